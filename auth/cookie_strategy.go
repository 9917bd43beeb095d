package auth

import (
	"context"
	"net/http"

	"github.com/jrsteele09/epr-admin-frontend/sessions"
	"github.com/rs/zerolog/log"
)

const CookieStrategyName = "session"

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeySession stores the validated session
const ContextKeySession ContextKey = "session"

// SessionReader resolves the session referenced by a request.
type SessionReader interface {
	GetSession(r *http.Request) (*sessions.Session, bool)
	ClearInvalidCookie(w http.ResponseWriter, r *http.Request)
}

// SessionValidator keeps a session's token fresh.
type SessionValidator interface {
	ValidateAndRefresh(ctx context.Context, r *http.Request, s *sessions.Session) (*sessions.Session, error)
}

// Result is the cookie strategy's verdict for one request.
type Result struct {
	IsValid     bool
	Credentials *sessions.Session
}

// CookieStrategy authenticates every request after sign in from the session cookie.
type CookieStrategy struct {
	sessions  SessionReader
	validator SessionValidator
}

func NewCookieStrategy(reader SessionReader, validator SessionValidator) *CookieStrategy {
	return &CookieStrategy{sessions: reader, validator: validator}
}

func (c *CookieStrategy) Name() string {
	return CookieStrategyName
}

// Validate never fails loudly: no session, or one that can't be refreshed,
// is simply not valid.
func (c *CookieStrategy) Validate(r *http.Request) Result {
	s, ok := c.sessions.GetSession(r)
	if !ok {
		return Result{IsValid: false}
	}

	validated, err := c.validator.ValidateAndRefresh(r.Context(), r, s)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", s.SessionID).Msg("session could not be validated")
		return Result{IsValid: false}
	}
	return Result{IsValid: true, Credentials: validated}
}

// Require is middleware making the cookie strategy mandatory for a route.
// Unauthenticated requests are handed to onUnauthorised and an undecodable
// cookie is expired on the way.
func (c *CookieStrategy) Require(onUnauthorised http.HandlerFunc) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			result := c.Validate(r)
			if !result.IsValid {
				c.sessions.ClearInvalidCookie(w, r)
				onUnauthorised(w, r)
				return
			}
			next(w, r.WithContext(WithSession(r.Context(), result.Credentials)))
		}
	}
}

func WithSession(ctx context.Context, s *sessions.Session) context.Context {
	return context.WithValue(ctx, ContextKeySession, s)
}

// SessionFromContext returns the session placed by Require.
func SessionFromContext(ctx context.Context) (*sessions.Session, bool) {
	s, ok := ctx.Value(ContextKeySession).(*sessions.Session)
	return s, ok && s != nil
}
