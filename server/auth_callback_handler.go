package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jrsteele09/epr-admin-frontend/audit"
	"github.com/jrsteele09/epr-admin-frontend/auth"
	apperrors "github.com/jrsteele09/epr-admin-frontend/internal/errors"
	"github.com/jrsteele09/epr-admin-frontend/sessions"
	"github.com/rs/zerolog/log"
)

// CallbackHandler completes the provider round trip. Authentication runs in try
// mode: a refused login renders the unauthorised view instead of failing the request.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		credentials, err := s.provider.Authenticate(r)
		if err != nil {
			s.metrics.SignInFailure()
			if apperrors.Is(err, apperrors.ErrNotAuthenticated) {
				log.Warn().Err(err).Msg("sign-in callback not authenticated")
				s.render(w, http.StatusUnauthorized, ViewUnauthorised, PageData{})
				return
			}
			log.Error().Err(err).Msg("sign-in callback failed")
			s.renderError(w, r, http.StatusInternalServerError)
			return
		}

		// The provider round trip looked fine; a token that doesn't verify now is a trust failure.
		if _, err := s.verifier.VerifyToken(ctx, credentials.Token); err != nil {
			s.metrics.SignInFailure()
			log.Error().Err(err).Str("userId", credentials.Profile.ID).Msg("callback token failed verification")
			s.renderError(w, r, http.StatusInternalServerError)
			return
		}

		// Read before the session is created: creating it rotates the cookie reference.
		referrer, _ := s.sessions.TakeFlash(ctx, r, auth.ReferrerFlashKey)

		session := &sessions.Session{
			SessionID:       uuid.NewString(),
			UserID:          credentials.Profile.ID,
			Email:           credentials.Profile.Email,
			DisplayName:     credentials.Profile.DisplayName,
			IsAuthenticated: true,
			Token:           credentials.Token,
			RefreshToken:    credentials.RefreshToken,
		}
		if err := s.sessions.CreateSession(ctx, w, r, session); err != nil {
			s.metrics.SignInFailure()
			log.Error().Err(err).Str("userId", session.UserID).Msg("failed to create session")
			s.renderError(w, r, http.StatusInternalServerError)
			return
		}

		s.audit.SignIn(ctx, audit.User{ID: session.UserID, Email: session.Email})
		s.metrics.SignInSuccess()

		target := SafeRedirect(referrer)
		if target != referrer && referrer != "" {
			log.Warn().Str("referrer", referrer).Msg("rejected unsafe post sign-in redirect")
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// SafeRedirect returns target when it is a local path starting with exactly
// one slash, and "/" otherwise.
func SafeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, `/\`) {
		return RouteHome
	}
	return target
}
