package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/epr-admin-frontend/audit"
	"github.com/jrsteele09/epr-admin-frontend/auth"
	"github.com/jrsteele09/epr-admin-frontend/internal/config"
	"github.com/jrsteele09/epr-admin-frontend/metrics"
	"github.com/jrsteele09/epr-admin-frontend/oidc/discovery"
	"github.com/jrsteele09/epr-admin-frontend/sessions"
	"github.com/jrsteele09/epr-admin-frontend/token/verifier"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators the routes are built from.
type Deps struct {
	Discovery discovery.Provider
	Verifier  verifier.TokenVerifier
	Sessions  *sessions.Manager
	Provider  *auth.ProviderStrategy
	Cookie    *auth.CookieStrategy
	Audit     audit.Sink
	Metrics   metrics.Recorder
	// Views defaults to the embedded templates
	Views Renderer
}

type Server struct {
	env        string // Environment (e.g., "DEV", "PRODUCTION")
	production bool
	baseURL    string
	appName    string
	mux        *http.ServeMux
	routes     []string

	discovery discovery.Provider
	verifier  verifier.TokenVerifier
	sessions  *sessions.Manager
	provider  *auth.ProviderStrategy
	cookie    *auth.CookieStrategy
	audit     audit.Sink
	metrics   metrics.Recorder
	views     Renderer

	// metricsHandler exposes the recorder when it can serve itself
	metricsHandler http.Handler
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Discovery == nil || deps.Verifier == nil || deps.Sessions == nil || deps.Provider == nil || deps.Cookie == nil {
		return nil, errors.New("[Server New] discovery, verifier, sessions and both auth strategies are required")
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewLogSink()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCounters()
	}
	if deps.Views == nil {
		views, err := NewTemplateRenderer()
		if err != nil {
			return nil, fmt.Errorf("[Server New] failed to load views: %w", err)
		}
		deps.Views = views
	}

	s := &Server{
		env:        cfg.GetEnv(),
		production: cfg.IsProduction(),
		baseURL:    cfg.GetBaseURL(),
		appName:    cfg.GetAppName(),
		mux:        http.NewServeMux(),
		discovery:  deps.Discovery,
		verifier:   deps.Verifier,
		sessions:   deps.Sessions,
		provider:   deps.Provider,
		cookie:     deps.Cookie,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		views:      deps.Views,
	}
	if exposer, ok := deps.Metrics.(interface{ Handler() http.Handler }); ok {
		s.metricsHandler = exposer.Handler()
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	log.Debug().Msgf("[%s%s%s] %s", color, paddedMethod, ResetColor, path)
}

// forwardedPlainHTTP reports whether the proxy in front of us says the client
// used plain http. A request without the header is left alone.
func forwardedPlainHTTP(r *http.Request) bool {
	if r.TLS != nil {
		return false
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "http")
}
