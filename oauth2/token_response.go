// Package oauth2 holds the wire types exchanged with the identity provider's token endpoint.
package oauth2

// TokenResponse is the token endpoint's success body (RFC 6749 section 5.1).
// Pointer fields distinguish "absent" from "empty".
type TokenResponse struct {
	// AccessToken is the JWT sent to the backend API as a bearer token.
	AccessToken *string `json:"access_token,omitempty"`

	// IdToken is only present when the openid scope was requested.
	IdToken *string `json:"id_token,omitempty"`

	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is a hint in seconds; the JWT's exp claim is authoritative.
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken may be omitted on a refresh grant, in which case the
	// previous one stays in use.
	RefreshToken *string `json:"refresh_token,omitempty"`

	Scope string `json:"scope,omitempty"`
}

// ErrorResponse is the token endpoint's failure body (RFC 6749 section 5.2).
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
