package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/epr-admin-frontend/internal/errors"
	"github.com/jrsteele09/epr-admin-frontend/sessions"
)

// PendingLoginTTL bounds the time between leaving for the provider and coming back.
const PendingLoginTTL = 10 * time.Minute

// PendingLogin is the state held between the authorize redirect and the callback.
// It is keyed by the browser's cookie reference and the state parameter, and
// redeemed exactly once.
type PendingLogin struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"codeVerifier"`
	Nonce        string    `json:"nonce"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PendingLogins keeps pending logins in the session store.
type PendingLogins struct {
	store     sessions.Store
	namespace string
}

func NewPendingLogins(store sessions.Store, namespace string) *PendingLogins {
	return &PendingLogins{store: store, namespace: namespace}
}

func (p *PendingLogins) key(reference, state string) string {
	return p.namespace + ":" + reference + ":" + state
}

// Put records login for the browser holding reference.
func (p *PendingLogins) Put(ctx context.Context, reference string, login PendingLogin) error {
	if reference == "" {
		return errors.New("browser reference cannot be empty")
	}
	if login.State == "" {
		return errors.New("state cannot be empty")
	}
	if login.CodeVerifier == "" {
		return errors.New("code verifier cannot be empty")
	}

	data, err := json.Marshal(login)
	if err != nil {
		return fmt.Errorf("encoding pending login: %w", err)
	}
	return p.store.Set(ctx, p.key(reference, login.State), data, PendingLoginTTL)
}

// Take redeems the pending login for state started by the browser holding
// reference. Unknown, expired, already redeemed and other browsers' states all
// match ErrInvalidState.
func (p *PendingLogins) Take(ctx context.Context, reference, state string) (*PendingLogin, error) {
	if reference == "" || state == "" {
		return nil, apperrors.ErrInvalidState
	}

	data, err := p.store.Take(ctx, p.key(reference, state))
	if errors.Is(err, apperrors.ErrSessionNotFound) {
		return nil, apperrors.ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("reading pending login: %w", err)
	}

	var login PendingLogin
	if err := json.Unmarshal(data, &login); err != nil {
		return nil, apperrors.Join(apperrors.ErrInvalidState, err)
	}
	return &login, nil
}
