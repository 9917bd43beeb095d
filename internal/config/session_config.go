package config

import "time"

const (
	CacheEngineMemory = "memory"
	CacheEngineRedis  = "redis"
)

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetCookieName() string {
	return GetEnv("SESSION_COOKIE_NAME", "epr_admin_session")
}

// GetCookiePassword is the secret the cookie signing and encryption keys are derived from.
func (Session) GetCookiePassword() string {
	return GetEnv("SESSION_COOKIE_PASSWORD", "")
}

func (Session) GetCookieTTL() time.Duration {
	return getDuration("SESSION_COOKIE_TTL", 4*time.Hour)
}

func (Session) GetCacheName() string {
	return GetEnv("SESSION_CACHE_NAME", "epr-admin-session")
}

func (Session) GetCacheEngine() string {
	return GetEnv("SESSION_CACHE_ENGINE", CacheEngineMemory)
}

func (Session) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Session) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Session) GetRedisDB() int {
	return getInt("REDIS_DB", 0)
}
