// Package testhelper provides a fake Entra style identity provider for package tests.
package testhelper

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/epr-admin-frontend/oauth2"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/require"
)

const (
	ClientID     = "test-client-id"
	ClientSecret = "test-client-secret"
	KeyID        = "test-key-1"
)

type authorization struct {
	challenge string
	nonce     string
	claims    jwt.MapClaims
}

// IdentityProvider serves discovery, JWKS, authorize and token endpoints
// under /tenant, mirroring the Entra ID v2.0 layout.
type IdentityProvider struct {
	Server *httptest.Server
	Key    *rsa.PrivateKey

	t    *testing.T
	jwks []byte

	mu              sync.Mutex
	codes           map[string]authorization
	refreshTokens   map[string]jwt.MapClaims
	discoveryStatus int
	tokenStatus     int
	discoveryCalls  int
	tokenCalls      int
	refreshCalls    int
	lastForm        map[string]string
}

func NewIdentityProvider(t *testing.T) *IdentityProvider {
	t.Helper()

	p := &IdentityProvider{
		Key:             GenerateRSAKey(t),
		t:               t,
		codes:           make(map[string]authorization),
		refreshTokens:   make(map[string]jwt.MapClaims),
		discoveryStatus: http.StatusOK,
		tokenStatus:     http.StatusOK,
	}
	p.jwks = buildJWKS(t, &p.Key.PublicKey, KeyID)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tenant/v2.0/.well-known/openid-configuration", p.discoveryHandler)
	mux.HandleFunc("GET /tenant/discovery/v2.0/keys", p.jwksHandler)
	mux.HandleFunc("GET /tenant/oauth2/v2.0/authorize", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /tenant/oauth2/v2.0/token", p.tokenHandler)

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

func buildJWKS(t *testing.T, pub *rsa.PublicKey, kid string) []byte {
	t.Helper()
	key, err := jwk.FromRaw(pub)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, kid))
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256))
	require.NoError(t, key.Set(jwk.KeyUsageKey, jwk.ForSignature))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(key))
	b, err := json.Marshal(set)
	require.NoError(t, err)
	return b
}

func (p *IdentityProvider) Issuer() string       { return p.Server.URL + "/tenant/v2.0" }
func (p *IdentityProvider) WellKnownURL() string { return p.Issuer() + "/.well-known/openid-configuration" }
func (p *IdentityProvider) AuthorizeURL() string { return p.Server.URL + "/tenant/oauth2/v2.0/authorize" }
func (p *IdentityProvider) TokenURL() string     { return p.Server.URL + "/tenant/oauth2/v2.0/token" }
func (p *IdentityProvider) LogoutURL() string    { return p.Server.URL + "/tenant/oauth2/v2.0/logout" }
func (p *IdentityProvider) JWKSURL() string      { return p.Server.URL + "/tenant/discovery/v2.0/keys" }

func (p *IdentityProvider) SetDiscoveryStatus(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discoveryStatus = code
}

func (p *IdentityProvider) SetTokenStatus(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenStatus = code
}

func (p *IdentityProvider) DiscoveryCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discoveryCalls
}

func (p *IdentityProvider) TokenCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenCalls
}

// RefreshCalls counts refresh_token grants only.
func (p *IdentityProvider) RefreshCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshCalls
}

// LastTokenForm returns the form values of the most recent token request.
func (p *IdentityProvider) LastTokenForm() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.lastForm))
	for k, v := range p.lastForm {
		out[k] = v
	}
	return out
}

// AccessTokenClaims returns a valid claim set for this provider. Overrides are
// merged on top; a nil override value removes the claim.
func (p *IdentityProvider) AccessTokenClaims(overrides jwt.MapClaims) jwt.MapClaims {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":                p.Issuer(),
		"aud":                ClientID,
		"sub":                "subject-1",
		"oid":                "object-1",
		"name":               "Test User",
		"preferred_username": "test.user@example.com",
		"iat":                now.Unix(),
		"nbf":                now.Unix(),
		"exp":                now.Add(time.Hour).Unix(),
	}
	for k, v := range overrides {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	return claims
}

// MintToken signs claims with the provider's published key.
func (p *IdentityProvider) MintToken(claims jwt.MapClaims) string {
	p.t.Helper()
	return SignToken(p.t, p.Key, KeyID, claims)
}

// Authorize registers an authorization code as if the user had signed in at
// the provider. The code can be redeemed once with the matching verifier.
func (p *IdentityProvider) Authorize(challenge, nonce string, claims jwt.MapClaims) string {
	code := randomString()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes[code] = authorization{challenge: challenge, nonce: nonce, claims: claims}
	return code
}

// IssueRefreshToken registers a refresh token that yields tokens for claims.
func (p *IdentityProvider) IssueRefreshToken(claims jwt.MapClaims) string {
	rt := randomString()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshTokens[rt] = claims
	return rt
}

func (p *IdentityProvider) discoveryHandler(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.discoveryCalls++
	status := p.discoveryStatus
	p.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, "unavailable", status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                p.Issuer(),
		"authorization_endpoint":                p.AuthorizeURL(),
		"token_endpoint":                        p.TokenURL(),
		"end_session_endpoint":                  p.LogoutURL(),
		"jwks_uri":                              p.JWKSURL(),
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (p *IdentityProvider) jwksHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(p.jwks)
}

func (p *IdentityProvider) tokenHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	form := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}

	p.mu.Lock()
	p.tokenCalls++
	p.lastForm = form
	status := p.tokenStatus
	if form["grant_type"] == string(oauth2.RefreshTokenGrant) {
		p.refreshCalls++
	}
	p.mu.Unlock()

	if status != http.StatusOK {
		writeJSON(w, status, map[string]string{"error": "temporarily_unavailable"})
		return
	}

	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		clientID, clientSecret = form["client_id"], form["client_secret"]
	}
	if clientID != ClientID || clientSecret != ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	switch oauth2.GrantType(form["grant_type"]) {
	case oauth2.AuthorizationCodeGrant:
		p.mu.Lock()
		authz, found := p.codes[form["code"]]
		delete(p.codes, form["code"])
		p.mu.Unlock()

		if !found || s256(form["code_verifier"]) != authz.challenge {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		p.writeTokens(w, authz.claims, authz.nonce)

	case oauth2.RefreshTokenGrant:
		p.mu.Lock()
		claims, found := p.refreshTokens[form["refresh_token"]]
		delete(p.refreshTokens, form["refresh_token"])
		p.mu.Unlock()

		if !found {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		p.writeTokens(w, claims, "")

	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (p *IdentityProvider) writeTokens(w http.ResponseWriter, claims jwt.MapClaims, nonce string) {
	now := time.Now()
	access := jwt.MapClaims{}
	for k, v := range claims {
		access[k] = v
	}
	access["iat"] = now.Unix()
	access["nbf"] = now.Unix()
	access["exp"] = now.Add(time.Hour).Unix()
	// Distinct tokens even when minted within the same second.
	access["uti"] = randomString()

	idClaims := jwt.MapClaims{
		"iss": p.Issuer(),
		"aud": ClientID,
		"sub": claims["sub"],
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	if nonce != "" {
		idClaims["nonce"] = nonce
	}

	accessToken, err := p.sign(access)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}
	idToken, err := p.sign(idClaims)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  accessToken,
		"id_token":      idToken,
		"refresh_token": p.IssueRefreshToken(claims),
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

func (p *IdentityProvider) sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = KeyID
	return token.SignedString(p.Key)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomString() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
