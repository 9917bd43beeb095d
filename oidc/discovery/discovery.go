// Package discovery fetches the identity provider's OpenID Connect well-known configuration.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "github.com/jrsteele09/epr-admin-frontend/internal/errors"
	"github.com/pkg/errors"
)

// Document is the subset of the discovery document the auth core relies on.
type Document struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	EndSessionEndpoint    string `json:"end_session_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
	UserInfoEndpoint      string `json:"userinfo_endpoint,omitempty"`
}

func (d Document) validate() error {
	missing := ""
	switch {
	case d.Issuer == "":
		missing = "issuer"
	case d.AuthorizationEndpoint == "":
		missing = "authorization_endpoint"
	case d.TokenEndpoint == "":
		missing = "token_endpoint"
	case d.EndSessionEndpoint == "":
		missing = "end_session_endpoint"
	case d.JWKSURI == "":
		missing = "jwks_uri"
	}
	if missing != "" {
		return errors.Wrapf(apperrors.ErrDiscoveryFailed, "document missing %s", missing)
	}
	return nil
}

// Provider is implemented by anything able to resolve the discovery document.
type Provider interface {
	GetOidcConfig(ctx context.Context) (*Document, error)
}

type Client struct {
	wellKnownURL string
	httpClient   *http.Client
	cache        Cache
}

var _ Provider = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithCache makes document freshness explicit. Without it every call fetches.
func WithCache(c Cache) Option {
	return func(cl *Client) {
		if c != nil {
			cl.cache = c
		}
	}
}

func New(wellKnownURL string, opts ...Option) *Client {
	c := &Client{
		wellKnownURL: wellKnownURL,
		httpClient:   http.DefaultClient,
		cache:        NoCache{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOidcConfig returns the discovery document. Every failure matches ErrDiscoveryFailed.
func (c *Client) GetOidcConfig(ctx context.Context) (*Document, error) {
	if doc, ok := c.cache.Get(c.wellKnownURL); ok {
		return doc, nil
	}

	doc, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Set(c.wellKnownURL, doc)

	return doc, nil
}

func (c *Client) fetch(ctx context.Context) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.wellKnownURL, nil)
	if err != nil {
		return nil, apperrors.Join(apperrors.ErrDiscoveryFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Join(apperrors.ErrDiscoveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrapf(apperrors.ErrDiscoveryFailed, "unexpected status %d from %s", resp.StatusCode, c.wellKnownURL)
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, apperrors.Join(apperrors.ErrDiscoveryFailed, fmt.Errorf("decoding document: %w", err))
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}

	return &doc, nil
}
