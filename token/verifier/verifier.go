// Package verifier checks bearer access tokens against the identity provider's published key set.
package verifier

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/jrsteele09/epr-admin-frontend/internal/errors"
	"github.com/jrsteele09/epr-admin-frontend/oidc/discovery"
	"github.com/pkg/errors"
)

// Claims is the decoded payload of a verified token.
type Claims struct {
	Subject           string
	ObjectID          string
	Name              string
	Email             string
	PreferredUsername string
	Issuer            string
	Audience          []string
	Nonce             string
	IssuedAt          time.Time
	Expiry            time.Time
	Raw               map[string]any
}

type Options struct {
	// ClientID is the required audience.
	ClientID string
	// Issuer overrides the issuer published in the discovery document.
	Issuer     string
	HTTPClient *http.Client
	Now        func() time.Time
}

// TokenVerifier is what the login flow depends on.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, raw string) (*Claims, error)
}

type Verifier struct {
	discovery discovery.Provider
	opts      Options

	mu      sync.Mutex
	keySets map[string]*oidc.RemoteKeySet
}

var _ TokenVerifier = (*Verifier)(nil)

func New(p discovery.Provider, opts Options) *Verifier {
	return &Verifier{
		discovery: p,
		opts:      opts,
		keySets:   make(map[string]*oidc.RemoteKeySet),
	}
}

// VerifyToken checks the RS256 signature, audience, issuer and expiry of raw.
// Verification failures match ErrTokenVerification, discovery failures ErrDiscoveryFailed.
func (v *Verifier) VerifyToken(ctx context.Context, raw string) (*Claims, error) {
	doc, err := v.discovery.GetOidcConfig(ctx)
	if err != nil {
		return nil, err
	}

	issuer := v.opts.Issuer
	if issuer == "" {
		issuer = doc.Issuer
	}

	idTokenVerifier := oidc.NewVerifier(issuer, v.keySet(doc.JWKSURI), &oidc.Config{
		ClientID:             v.opts.ClientID,
		SupportedSigningAlgs: []string{oidc.RS256},
		Now:                  v.opts.Now,
	})

	token, err := idTokenVerifier.Verify(v.clientContext(ctx), raw)
	if err != nil {
		return nil, apperrors.Join(apperrors.ErrTokenVerification, err)
	}

	var extra struct {
		ObjectID          string `json:"oid"`
		Name              string `json:"name"`
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := token.Claims(&extra); err != nil {
		return nil, errors.Wrapf(apperrors.ErrTokenVerification, "decoding claims: %v", err)
	}
	rawClaims := map[string]any{}
	if err := token.Claims(&rawClaims); err != nil {
		return nil, errors.Wrapf(apperrors.ErrTokenVerification, "decoding claims: %v", err)
	}

	return &Claims{
		Subject:           token.Subject,
		ObjectID:          extra.ObjectID,
		Name:              extra.Name,
		Email:             extra.Email,
		PreferredUsername: extra.PreferredUsername,
		Issuer:            token.Issuer,
		Audience:          token.Audience,
		Nonce:             token.Nonce,
		IssuedAt:          token.IssuedAt,
		Expiry:            token.Expiry,
		Raw:               rawClaims,
	}, nil
}

// keySet returns the cached key set for a JWKS URI. A RemoteKeySet refetches on
// an unknown kid, so rotation at the provider is picked up without a restart.
func (v *Verifier) keySet(jwksURI string) *oidc.RemoteKeySet {
	v.mu.Lock()
	defer v.mu.Unlock()

	if ks, ok := v.keySets[jwksURI]; ok {
		return ks
	}
	// The key set outlives the request that created it
	ks := oidc.NewRemoteKeySet(v.clientContext(context.Background()), jwksURI)
	v.keySets[jwksURI] = ks
	return ks
}

func (v *Verifier) clientContext(ctx context.Context) context.Context {
	if v.opts.HTTPClient == nil {
		return ctx
	}
	return oidc.ClientContext(ctx, v.opts.HTTPClient)
}
