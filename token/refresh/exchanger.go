package refresh

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/jrsteele09/epr-admin-frontend/internal/errors"
	"github.com/jrsteele09/epr-admin-frontend/oauth2"
	"github.com/jrsteele09/epr-admin-frontend/oidc/discovery"
)

// TokenExchanger swaps a refresh token for a new token pair.
type TokenExchanger interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.TokenResponse, error)
}

// ProviderExchanger posts refresh grants to the token endpoint named by discovery.
type ProviderExchanger struct {
	discovery    discovery.Provider
	clientID     string
	clientSecret string
	scopes       []string
	httpClient   *http.Client
}

var _ TokenExchanger = (*ProviderExchanger)(nil)

func NewProviderExchanger(p discovery.Provider, clientID, clientSecret string, scopes []string, httpClient *http.Client) *ProviderExchanger {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ProviderExchanger{
		discovery:    p,
		clientID:     clientID,
		clientSecret: clientSecret,
		scopes:       scopes,
		httpClient:   httpClient,
	}
}

// Refresh makes exactly one attempt. Failures match ErrRefreshFailed, or
// ErrDiscoveryFailed when the token endpoint can't be resolved.
func (e *ProviderExchanger) Refresh(ctx context.Context, refreshToken string) (*oauth2.TokenResponse, error) {
	doc, err := e.discovery.GetOidcConfig(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"grant_type":    {string(oauth2.RefreshTokenGrant)},
		"refresh_token": {refreshToken},
		"client_id":     {e.clientID},
		"client_secret": {e.clientSecret},
		"scope":         {strings.Join(e.scopes, " ")},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, doc.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperrors.Join(apperrors.ErrRefreshFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Join(apperrors.ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.Join(apperrors.ErrRefreshFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var providerErr oauth2.ErrorResponse
		_ = json.Unmarshal(body, &providerErr)
		return nil, apperrors.Wrapf(apperrors.ErrRefreshFailed, "token endpoint returned %d %s", resp.StatusCode, providerErr.Error)
	}

	var tokens oauth2.TokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, apperrors.Join(apperrors.ErrRefreshFailed, err)
	}
	if tokens.AccessToken == nil || *tokens.AccessToken == "" {
		return nil, apperrors.Wrapf(apperrors.ErrRefreshFailed, "response carried no access_token")
	}
	return &tokens, nil
}
