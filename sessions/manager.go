// Package sessions keeps the signed-in user's session server side, referenced by an encrypted cookie.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/jrsteele09/epr-admin-frontend/internal/errors"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
)

// FlashTTL bounds how long a flash value waits to be taken.
const FlashTTL = 10 * time.Minute

type Options struct {
	CookieName string
	// CacheName namespaces every key written to the store
	CacheName string
	TTL       time.Duration
	Secure    bool
}

// Manager creates, reads, updates and clears sessions and flash values.
type Manager struct {
	store Store
	codec *CookieCodec
	opts  Options
}

func NewManager(store Store, codec *CookieCodec, opts Options) *Manager {
	return &Manager{store: store, codec: codec, opts: opts}
}

// Key builds a namespaced store key.
func (m *Manager) Key(parts ...string) string {
	key := m.opts.CacheName
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// CreateSession stores s under a newly minted reference and points the cookie at it.
// Any session held under the inbound reference is dropped.
func (m *Manager) CreateSession(ctx context.Context, w http.ResponseWriter, r *http.Request, s *Session) error {
	if !s.complete() {
		return fmt.Errorf("refusing to store an incomplete session")
	}

	if previous, err := m.reference(r); err == nil {
		if err := m.store.Delete(ctx, m.Key(previous)); err != nil {
			log.Warn().Err(err).Msg("failed to drop previous session")
		}
	}

	reference := ksuid.New().String()
	if err := m.put(ctx, reference, s); err != nil {
		return err
	}
	return m.setCookie(w, reference)
}

// GetSession returns the session referenced by the request cookie. A missing or
// undecodable cookie, a cache miss and a cache failure all read as no session.
func (m *Manager) GetSession(r *http.Request) (*Session, bool) {
	reference, err := m.reference(r)
	if err != nil {
		return nil, false
	}

	raw, err := m.store.Get(r.Context(), m.Key(reference))
	if err != nil {
		if !errors.Is(err, apperrors.ErrSessionNotFound) {
			log.Warn().Err(err).Msg("session cache read failed")
		}
		return nil, false
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		log.Warn().Err(err).Msg("discarding unreadable session record")
		return nil, false
	}
	if !s.complete() {
		return nil, false
	}
	return &s, true
}

// UpdateSession replaces the whole record under the request's reference.
func (m *Manager) UpdateSession(ctx context.Context, r *http.Request, s *Session) error {
	reference, err := m.reference(r)
	if err != nil {
		return err
	}
	return m.put(ctx, reference, s)
}

// ClearSession removes the cached record and expires the cookie.
func (m *Manager) ClearSession(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	defer m.expireCookie(w)

	reference, err := m.reference(r)
	if err != nil {
		return nil
	}
	if err := m.store.Delete(ctx, m.Key(reference)); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// ClearInvalidCookie expires a session cookie that can't be decoded so the
// browser stops sending it.
func (m *Manager) ClearInvalidCookie(w http.ResponseWriter, r *http.Request) {
	if _, err := m.reference(r); errors.Is(err, apperrors.ErrInvalidCookie) {
		m.expireCookie(w)
	}
}

type referenceContextKey struct{}

// Reference returns the browser's cookie reference.
func (m *Manager) Reference(r *http.Request) (string, bool) {
	reference, err := m.reference(r)
	return reference, err == nil
}

// EnsureReference returns the browser's cookie reference, minting one and
// setting the cookie when the request has none or an undecodable one. The
// returned request carries a minted reference so later calls in the same
// request see it.
func (m *Manager) EnsureReference(w http.ResponseWriter, r *http.Request) (*http.Request, string, error) {
	if reference, err := m.reference(r); err == nil {
		return r, reference, nil
	}

	reference := ksuid.New().String()
	if err := m.setCookie(w, reference); err != nil {
		return r, "", err
	}
	return r.WithContext(context.WithValue(r.Context(), referenceContextKey{}, reference)), reference, nil
}

// SetFlash stores a one shot value for the browser. A reference is minted
// when the request has none yet.
func (m *Manager) SetFlash(ctx context.Context, w http.ResponseWriter, r *http.Request, key, value string) error {
	_, reference, err := m.EnsureReference(w, r)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, m.Key(reference, "flash", key), []byte(value), FlashTTL)
}

// TakeFlash returns the flash value for key and removes it.
func (m *Manager) TakeFlash(ctx context.Context, r *http.Request, key string) (string, bool) {
	reference, err := m.reference(r)
	if err != nil {
		return "", false
	}

	raw, err := m.store.Take(ctx, m.Key(reference, "flash", key))
	if err != nil {
		if !errors.Is(err, apperrors.ErrSessionNotFound) {
			log.Warn().Err(err).Str("key", key).Msg("flash read failed")
		}
		return "", false
	}
	return string(raw), true
}

func (m *Manager) put(ctx context.Context, reference string, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := m.store.Set(ctx, m.Key(reference), data, m.opts.TTL); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// reference returns ErrSessionNotFound without a cookie, ErrInvalidCookie when it can't be decoded.
func (m *Manager) reference(r *http.Request) (string, error) {
	if reference, ok := r.Context().Value(referenceContextKey{}).(string); ok {
		return reference, nil
	}
	cookie, err := r.Cookie(m.opts.CookieName)
	if err != nil || cookie.Value == "" {
		return "", apperrors.ErrSessionNotFound
	}
	return m.codec.Decode(cookie.Value)
}

func (m *Manager) setCookie(w http.ResponseWriter, reference string) error {
	value, err := m.codec.Encode(reference)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.opts.TTL.Seconds()),
	})
	return nil
}

func (m *Manager) expireCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
