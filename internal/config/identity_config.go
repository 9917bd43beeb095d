package config

import (
	"strings"
	"time"
)

const (
	clientIDVar          = "ENTRA_CLIENT_ID"
	clientSecretVar      = "ENTRA_CLIENT_SECRET"
	wellKnownURLVar      = "ENTRA_WELL_KNOWN_URL"
	issuerVar            = "ENTRA_ISSUER"
	apiScopeVar          = "ENTRA_API_SCOPE"
	discoveryCacheTTLVar = "DISCOVERY_CACHE_TTL"
)

// baseScopes are always requested; the application API scope is appended.
var baseScopes = []string{"openid", "profile", "email", "offline_access"}

type Identity struct{}

var _ IdentityConfig = Identity{}

func (Identity) GetClientID() string {
	return GetEnv(clientIDVar, "")
}

func (Identity) GetClientSecret() string {
	return GetEnv(clientSecretVar, "")
}

func (Identity) GetWellKnownURL() string {
	return GetEnv(wellKnownURLVar, "")
}

// GetIssuer returns the expected token issuer, e.g. https://login.microsoftonline.com/<tenant>/v2.0.
// Empty means the issuer advertised by the discovery document is used.
func (Identity) GetIssuer() string {
	return GetEnv(issuerVar, "")
}

func (Identity) GetAPIScope() string {
	return GetEnv(apiScopeVar, "")
}

func (i Identity) GetScopes() []string {
	scopes := append([]string{}, baseScopes...)
	for _, s := range strings.Fields(i.GetAPIScope()) {
		scopes = append(scopes, s)
	}
	return scopes
}

// GetDiscoveryCacheTTL of zero disables caching of the discovery document.
func (Identity) GetDiscoveryCacheTTL() time.Duration {
	return getDuration(discoveryCacheTTLVar, 0)
}
