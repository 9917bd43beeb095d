package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Public
	RouteHome    = "/"
	RouteHealth  = "/health"
	RouteMetrics = "/metrics"

	// Auth Routes
	RouteSignIn   = "/auth/sign-in"
	RouteCallback = "/auth/callback"
	RouteSignOut  = "/auth/sign-out"
)
