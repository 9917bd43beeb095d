// Package auth composes the two ways a request is authenticated: the provider
// delegated login flow and the session cookie checked on every later request.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/jrsteele09/epr-admin-frontend/internal/errors"
	"github.com/jrsteele09/epr-admin-frontend/oidc/discovery"
	"github.com/jrsteele09/epr-admin-frontend/token/verifier"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	ProviderStrategyName = "entra-id"

	// ReferrerFlashKey holds the page to return to after signing in.
	ReferrerFlashKey = "referrer"

	stateLength = 32
	nonceLength = 16
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// BrowserState ties login state to the browser through its cookie reference.
type BrowserState interface {
	Reference(r *http.Request) (string, bool)
	EnsureReference(w http.ResponseWriter, r *http.Request) (*http.Request, string, error)
	SetFlash(ctx context.Context, w http.ResponseWriter, r *http.Request, key, value string) error
}

type ProviderOptions struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	// BaseURL is the application's external origin, without trailing slash.
	BaseURL      string
	CallbackPath string
	HTTPClient   *http.Client
}

// ProviderStrategy runs the OAuth2 authorization code flow with PKCE against the
// identity provider described by the discovery document.
type ProviderStrategy struct {
	discovery discovery.Provider
	verifier  verifier.TokenVerifier
	pending   *PendingLogins
	browser   BrowserState
	opts      ProviderOptions
}

func NewProviderStrategy(d discovery.Provider, v verifier.TokenVerifier, pending *PendingLogins, browser BrowserState, opts ProviderOptions) *ProviderStrategy {
	return &ProviderStrategy{
		discovery: d,
		verifier:  v,
		pending:   pending,
		browser:   browser,
		opts:      opts,
	}
}

func (p *ProviderStrategy) Name() string {
	return ProviderStrategyName
}

// Location returns the redirect URI registered with the provider. A referrer
// from outside the callback path is stashed so the callback can return to it.
func (p *ProviderStrategy) Location(w http.ResponseWriter, r *http.Request) string {
	if referrer := p.returnPath(r.Referer()); referrer != "" {
		if err := p.browser.SetFlash(r.Context(), w, r, ReferrerFlashKey, referrer); err != nil {
			log.Warn().Err(err).Msg("failed to stash sign-in referrer")
		}
	}
	return p.opts.BaseURL + p.opts.CallbackPath
}

// returnPath reduces a same origin referrer to its path and query. Referrers
// from other origins or under the callback path are dropped.
func (p *ProviderStrategy) returnPath(referrer string) string {
	if referrer == "" {
		return ""
	}
	u, err := url.Parse(referrer)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		base, err := url.Parse(p.opts.BaseURL)
		if err != nil || !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
			return ""
		}
	}
	if strings.HasPrefix(u.Path, p.opts.CallbackPath) {
		return ""
	}
	if u.RawQuery != "" {
		return u.EscapedPath() + "?" + u.RawQuery
	}
	return u.EscapedPath()
}

// Begin records a pending login bound to the browser and sends it to the
// authorize endpoint.
func (p *ProviderStrategy) Begin(w http.ResponseWriter, r *http.Request) error {
	r, reference, err := p.browser.EnsureReference(w, r)
	if err != nil {
		return fmt.Errorf("binding login to browser: %w", err)
	}
	ctx := r.Context()

	redirectURI := p.Location(w, r)
	config, err := p.oauth2Config(ctx, redirectURI)
	if err != nil {
		return err
	}

	login := PendingLogin{
		State:        randomString(stateLength),
		CodeVerifier: oauth2.GenerateVerifier(),
		Nonce:        randomString(nonceLength),
		CreatedAt:    NowTimeFunc(),
	}
	if err := p.pending.Put(ctx, reference, login); err != nil {
		return fmt.Errorf("storing pending login: %w", err)
	}

	authURL := config.AuthCodeURL(login.State,
		oauth2.S256ChallengeOption(login.CodeVerifier),
		oidc.Nonce(login.Nonce),
	)
	http.Redirect(w, r, authURL, http.StatusFound)
	return nil
}

// Authenticate completes the flow on the callback. A refused or unverifiable
// round trip matches ErrNotAuthenticated; discovery failures are returned as is.
func (p *ProviderStrategy) Authenticate(r *http.Request) (*Credentials, error) {
	ctx := r.Context()

	if providerErr := r.FormValue("error"); providerErr != "" {
		return nil, apperrors.Wrapf(apperrors.ErrNotAuthenticated, "provider returned %s: %s", providerErr, r.FormValue("error_description"))
	}

	code := r.FormValue("code")
	if code == "" {
		return nil, apperrors.Wrapf(apperrors.ErrNotAuthenticated, "missing code")
	}

	// A callback from a browser other than the one that began the login has no
	// reference, or the wrong one, and so finds no pending login.
	reference, _ := p.browser.Reference(r)
	login, err := p.pending.Take(ctx, reference, r.FormValue("state"))
	if err != nil {
		return nil, apperrors.Join(apperrors.ErrNotAuthenticated, err)
	}

	config, err := p.oauth2Config(ctx, p.opts.BaseURL+p.opts.CallbackPath)
	if err != nil {
		return nil, err
	}

	token, err := config.Exchange(p.clientContext(ctx), code, oauth2.VerifierOption(login.CodeVerifier))
	if err != nil {
		return nil, apperrors.Join(apperrors.ErrNotAuthenticated, fmt.Errorf("exchanging code: %w", err))
	}

	if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" {
		idClaims, err := p.verifier.VerifyToken(ctx, rawIDToken)
		if err != nil {
			return nil, apperrors.Join(apperrors.ErrNotAuthenticated, err)
		}
		if idClaims.Nonce != login.Nonce {
			return nil, apperrors.Wrapf(apperrors.ErrNotAuthenticated, "id token nonce mismatch")
		}
	}

	profile, err := p.profile(ctx, token.AccessToken)
	if err != nil {
		return nil, apperrors.Join(apperrors.ErrNotAuthenticated, err)
	}

	return &Credentials{
		Profile:      *profile,
		Token:        token.AccessToken,
		RefreshToken: token.RefreshToken,
	}, nil
}

// profile verifies the access token and maps its claims onto a Profile.
func (p *ProviderStrategy) profile(ctx context.Context, accessToken string) (*Profile, error) {
	claims, err := p.verifier.VerifyToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	id := claims.ObjectID
	if id == "" {
		id = claims.Subject
	}
	email := claims.Email
	if email == "" {
		email = claims.PreferredUsername
	}

	return &Profile{
		ID:          id,
		Name:        claims.Name,
		Email:       email,
		DisplayName: claims.Name,
	}, nil
}

func (p *ProviderStrategy) oauth2Config(ctx context.Context, redirectURI string) (*oauth2.Config, error) {
	doc, err := p.discovery.GetOidcConfig(ctx)
	if err != nil {
		return nil, err
	}

	provider := (&oidc.ProviderConfig{
		IssuerURL:   doc.Issuer,
		AuthURL:     doc.AuthorizationEndpoint,
		TokenURL:    doc.TokenEndpoint,
		UserInfoURL: doc.UserInfoEndpoint,
		JWKSURL:     doc.JWKSURI,
		Algorithms:  []string{oidc.RS256},
	}).NewProvider(p.clientContext(ctx))

	endpoint := provider.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return &oauth2.Config{
		ClientID:     p.opts.ClientID,
		ClientSecret: p.opts.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  redirectURI,
		Scopes:       p.opts.Scopes,
	}, nil
}

func (p *ProviderStrategy) clientContext(ctx context.Context) context.Context {
	if p.opts.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.opts.HTTPClient)
}

// randomString creates a random base64url string
func randomString(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
