// Package audit records security relevant user actions.
package audit

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	CategoryAccess = "access"
	SubCategorySSO = "sso"

	ActionSignIn  = "sign-in"
	ActionSignOut = "sign-out"
)

// User identifies who performed the action.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Event is the fixed shape every audit record takes.
type Event struct {
	Category    string `json:"category"`
	SubCategory string `json:"subCategory"`
	Action      string `json:"action"`
	User        User   `json:"user"`
}

// Sink receives audit events. Implementations must not block the request for long.
type Sink interface {
	SignIn(ctx context.Context, user User)
	SignOut(ctx context.Context, user User)
}

// LogSink writes audit events as structured log lines.
type LogSink struct {
	logger zerolog.Logger
}

var _ Sink = (*LogSink)(nil)

// NewLogSink uses the global logger tagged with audit=true.
func NewLogSink() *LogSink {
	return NewLogSinkWithLogger(log.Logger)
}

func NewLogSinkWithLogger(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Bool("audit", true).Logger()}
}

func (s *LogSink) SignIn(ctx context.Context, user User) {
	s.write(ctx, Event{Category: CategoryAccess, SubCategory: SubCategorySSO, Action: ActionSignIn, User: user})
}

func (s *LogSink) SignOut(ctx context.Context, user User) {
	s.write(ctx, Event{Category: CategoryAccess, SubCategory: SubCategorySSO, Action: ActionSignOut, User: user})
}

func (s *LogSink) write(_ context.Context, e Event) {
	s.logger.Info().
		Str("category", e.Category).
		Str("subCategory", e.SubCategory).
		Str("action", e.Action).
		Dict("user", zerolog.Dict().Str("id", e.User.ID).Str("email", e.User.Email)).
		Msg("audit event")
}
