package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/jrsteele09/epr-admin-frontend/audit"
	"github.com/jrsteele09/epr-admin-frontend/auth"
	"github.com/rs/zerolog/log"
)

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
			log.Err(err).Msg("Failed to write health response")
		}
	}
}

// SignInHandler starts the provider login. The browser comes back on the callback route.
func (s *Server) SignInHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.SignInAttempted()
		if err := s.provider.Begin(w, r); err != nil {
			log.Error().Err(err).Msg("failed to start sign-in")
			s.renderError(w, r, http.StatusInternalServerError)
		}
	}
}

// SignOutHandler clears the local session and hands the browser to a page that
// wipes client side storage before leaving for the provider logout.
func (s *Server) SignOutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		session, ok := s.sessions.GetSession(r)
		if !ok {
			http.Redirect(w, r, RouteHome, http.StatusFound)
			return
		}

		doc, err := s.discovery.GetOidcConfig(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to resolve end session endpoint")
			s.renderError(w, r, http.StatusInternalServerError)
			return
		}
		logoutURL, err := s.logoutURL(doc.EndSessionEndpoint)
		if err != nil {
			log.Error().Err(err).Str("endSessionEndpoint", doc.EndSessionEndpoint).Msg("invalid end session endpoint")
			s.renderError(w, r, http.StatusInternalServerError)
			return
		}

		if err := s.sessions.ClearSession(ctx, w, r); err != nil {
			// The cookie is expired regardless; the record ages out with its TTL.
			log.Warn().Err(err).Str("sessionId", session.SessionID).Msg("failed to delete session record")
		}

		s.audit.SignOut(ctx, audit.User{ID: session.UserID, Email: session.Email})
		s.metrics.SignOutSuccess()

		s.render(w, http.StatusOK, ViewSignOut, PageData{LogoutURL: logoutURL})
	}
}

func (s *Server) logoutURL(endSessionEndpoint string) (string, error) {
	u, err := url.Parse(endSessionEndpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("post_logout_redirect_uri", s.baseURL+RouteHome)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Server) HomeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := auth.SessionFromContext(r.Context())
		if !ok {
			s.render(w, http.StatusUnauthorized, ViewUnauthorised, PageData{})
			return
		}
		s.render(w, http.StatusOK, ViewHome, PageData{
			SignedIn:    true,
			DisplayName: session.DisplayName,
			Email:       session.Email,
		})
	}
}

// RequireSession makes the cookie strategy mandatory for a route.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return s.cookie.Require(func(w http.ResponseWriter, r *http.Request) {
		s.render(w, http.StatusUnauthorized, ViewUnauthorised, PageData{})
	})
}
