package config

import "time"

type Config interface {
	EnvConfig
	IdentityConfig
	SessionConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetBaseURL() string
	IsProduction() bool
}

// IdentityConfig describes the Entra ID application registration.
type IdentityConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetWellKnownURL() string
	GetIssuer() string
	GetAPIScope() string
	GetScopes() []string
	GetDiscoveryCacheTTL() time.Duration
}

type SessionConfig interface {
	GetCookieName() string
	GetCookiePassword() string
	GetCookieTTL() time.Duration
	GetCacheName() string
	GetCacheEngine() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

type mainConfig struct {
	EnvVars
	Identity
	Session
}

func New() Config {
	return mainConfig{}
}
