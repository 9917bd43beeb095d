package oauth2

// GrantType is the grant_type sent to the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant redeems the code returned to /auth/callback.
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenGrant exchanges a refresh token for a new token pair.
	RefreshTokenGrant GrantType = "refresh_token"
)
