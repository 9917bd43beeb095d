// Package refresh keeps a session's access token usable, renewing it with the
// refresh token shortly before the provider's maximum age.
package refresh

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/jrsteele09/epr-admin-frontend/internal/errors"
	"github.com/jrsteele09/epr-admin-frontend/internal/utils"
	"github.com/jrsteele09/epr-admin-frontend/sessions"
	"github.com/rs/zerolog/log"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// SessionUpdater persists a refreshed session under the request's reference.
type SessionUpdater interface {
	UpdateSession(ctx context.Context, r *http.Request, s *sessions.Session) error
}

type Validator struct {
	exchanger TokenExchanger
	updater   SessionUpdater
}

func NewValidator(exchanger TokenExchanger, updater SessionUpdater) *Validator {
	return &Validator{exchanger: exchanger, updater: updater}
}

// ValidateAndRefresh returns s untouched while its token is fresh. Otherwise it
// exchanges the refresh token, persists the new pair and returns the updated copy.
// Concurrent refreshes of one session are not coordinated; the last write wins.
func (v *Validator) ValidateAndRefresh(ctx context.Context, r *http.Request, s *sessions.Session) (*sessions.Session, error) {
	assessment := Assess(s.Token, NowTimeFunc())
	if assessment.Outcome == Valid {
		return s, nil
	}

	if s.RefreshToken == "" {
		return nil, apperrors.ErrSessionExpiredNoRefresh
	}

	log.Debug().Str("sessionId", s.SessionID).Str("reason", assessment.Reason).Msg("refreshing access token")

	tokens, err := v.exchanger.Refresh(ctx, s.RefreshToken)
	if err != nil {
		return nil, err
	}

	refreshToken := utils.Value(tokens.RefreshToken)
	if refreshToken == "" {
		refreshToken = s.RefreshToken
	}
	updated := s.WithTokens(utils.Value(tokens.AccessToken), refreshToken)

	if err := v.updater.UpdateSession(ctx, r, updated); err != nil {
		return nil, fmt.Errorf("persisting refreshed session: %w", err)
	}
	return updated, nil
}
