package sessions

// Session is the server side record referenced by the session cookie.
// The cookie itself only carries an encrypted reference to it.
type Session struct {
	SessionID       string `json:"sessionId"`
	UserID          string `json:"userId"`
	Email           string `json:"email"`
	DisplayName     string `json:"displayName"`
	IsAuthenticated bool   `json:"isAuthenticated"`

	// Token is the current access token handed to backend calls
	Token string `json:"token"`
	// RefreshToken is empty when the session cannot be silently renewed
	RefreshToken string `json:"refreshToken,omitempty"`
}

// complete reports whether the record is fully populated. Anything else is
// treated as no session at all.
func (s *Session) complete() bool {
	return s != nil && s.IsAuthenticated && s.SessionID != "" && s.UserID != ""
}

// WithTokens returns a copy of s carrying a new token pair.
func (s Session) WithTokens(token, refreshToken string) *Session {
	s.Token = token
	s.RefreshToken = refreshToken
	return &s
}
