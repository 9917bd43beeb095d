package server

import (
	"context"
	"fmt"

	"github.com/jrsteele09/epr-admin-frontend/audit"
	"github.com/jrsteele09/epr-admin-frontend/auth"
	"github.com/jrsteele09/epr-admin-frontend/internal/config"
	"github.com/jrsteele09/epr-admin-frontend/metrics"
	"github.com/jrsteele09/epr-admin-frontend/oidc/discovery"
	"github.com/jrsteele09/epr-admin-frontend/sessions"
	"github.com/jrsteele09/epr-admin-frontend/token/refresh"
	"github.com/jrsteele09/epr-admin-frontend/token/verifier"
	"github.com/rs/zerolog/log"
)

// Build wires the auth core from configuration. The returned cleanup releases
// the session cache connection.
func Build(ctx context.Context, cfg config.Config) (*Server, func(), error) {
	var discoveryOpts []discovery.Option
	if ttl := cfg.GetDiscoveryCacheTTL(); ttl > 0 {
		discoveryOpts = append(discoveryOpts, discovery.WithCache(discovery.NewTTLCache(ttl)))
	}
	oidcDiscovery := discovery.New(cfg.GetWellKnownURL(), discoveryOpts...)

	tokenVerifier := verifier.New(oidcDiscovery, verifier.Options{
		ClientID: cfg.GetClientID(),
		Issuer:   cfg.GetIssuer(),
	})

	store, cleanup, err := newSessionStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	codec, err := sessions.NewCookieCodec(cfg.GetCookiePassword())
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("[Server Build] %w", err)
	}
	sessionManager := sessions.NewManager(store, codec, sessions.Options{
		CookieName: cfg.GetCookieName(),
		CacheName:  cfg.GetCacheName(),
		TTL:        cfg.GetCookieTTL(),
		Secure:     cfg.IsProduction(),
	})

	provider := auth.NewProviderStrategy(
		oidcDiscovery,
		tokenVerifier,
		auth.NewPendingLogins(store, sessionManager.Key("pending")),
		sessionManager,
		auth.ProviderOptions{
			ClientID:     cfg.GetClientID(),
			ClientSecret: cfg.GetClientSecret(),
			Scopes:       cfg.GetScopes(),
			BaseURL:      cfg.GetBaseURL(),
			CallbackPath: RouteCallback,
		},
	)

	exchanger := refresh.NewProviderExchanger(oidcDiscovery, cfg.GetClientID(), cfg.GetClientSecret(), cfg.GetScopes(), nil)
	cookie := auth.NewCookieStrategy(sessionManager, refresh.NewValidator(exchanger, sessionManager))

	s, err := New(cfg, Deps{
		Discovery: oidcDiscovery,
		Verifier:  tokenVerifier,
		Sessions:  sessionManager,
		Provider:  provider,
		Cookie:    cookie,
		Audit:     audit.NewLogSink(),
		Metrics:   metrics.NewCounters(),
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	log.Info().
		Str("env", cfg.GetEnv()).
		Str("baseUrl", cfg.GetBaseURL()).
		Str("cacheEngine", cfg.GetCacheEngine()).
		Strs("strategies", []string{provider.Name(), cookie.Name()}).
		Msg("Auth core initialised")
	return s, cleanup, nil
}

func newSessionStore(ctx context.Context, cfg config.Config) (sessions.Store, func(), error) {
	switch cfg.GetCacheEngine() {
	case config.CacheEngineRedis:
		client, err := sessions.DialRedis(ctx, cfg.GetRedisAddr(), cfg.GetRedisPassword(), cfg.GetRedisDB())
		if err != nil {
			return nil, nil, fmt.Errorf("[Server Build] session cache: %w", err)
		}
		return sessions.NewRedisStore(client), func() {
			if err := client.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close session cache")
			}
		}, nil
	case config.CacheEngineMemory, "":
		return sessions.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("[Server Build] unknown session cache engine %q", cfg.GetCacheEngine())
	}
}
