/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/go-prooflens/httpserver/middleware"
	"github.com/acronis/go-prooflens/log"
	"github.com/acronis/go-prooflens/restapi"
)

// systemEndpoints are neither measured nor rate limited.
var systemEndpoints = []string{"/", "/metrics", "/healthz"}

// APIVersion is a type alias for API version.
type APIVersion = int

// APIRoute is a type alias for a function that registers routes.
type APIRoute = func(router chi.Router)

// RouterOpts represents options for creating chi.Router.
type RouterOpts struct {
	// ServiceNameInURL is a part of the versioned API prefix ("/api/<name>/v<N>").
	ServiceNameInURL string
	APIRoutes        map[APIVersion]APIRoute
	// RootRoutes registers routes outside the versioned prefix, like a liveness page or compatibility aliases.
	RootRoutes     APIRoute
	ErrorDomain    string
	HealthCheck    HealthCheck
	MetricsHandler http.Handler
}

// NewRouter creates a new chi.Router with system endpoints and API routes registered.
// No middlewares are applied.
func NewRouter(logger log.FieldLogger, opts RouterOpts) chi.Router {
	router := chi.NewRouter()
	configureRouter(router, logger, opts)
	return router
}

func configureRouter(router chi.Router, logger log.FieldLogger, opts RouterOpts) {
	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, "/metrics", metricsHandler)
	router.Method(http.MethodGet, "/healthz", NewHealthCheckHandler(opts.HealthCheck))

	if opts.RootRoutes != nil {
		opts.RootRoutes(router)
	}
	if len(opts.APIRoutes) != 0 {
		router.Route("/api/"+opts.ServiceNameInURL, func(router chi.Router) {
			for ver, r := range opts.APIRoutes {
				router.Route(fmt.Sprintf("/v%d", ver), r)
			}
		})
	}

	router.NotFound(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(opts.ErrorDomain, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound)
		restapi.RespondError(rw, http.StatusNotFound, apiErr, loggerFromRequest(r, logger))
	})
	router.MethodNotAllowed(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(opts.ErrorDomain, restapi.ErrCodeMethodNotAllowed, restapi.ErrMessageMethodNotAllowed)
		restapi.RespondError(rw, http.StatusMethodNotAllowed, apiErr, loggerFromRequest(r, logger))
	})
}

// applyDefaultMiddlewaresToRouter installs the middleware chain. The order matters:
// everything below logging runs with the per-request logger, and CORS preflights are answered
// before the body limit and the rate limit are checked.
func applyDefaultMiddlewaresToRouter(
	router chi.Router, cfg *Config, logger log.FieldLogger, errDomain string, metricsCollector *middleware.HTTPRequestMetricsCollector,
) error {
	router.Use(middleware.RequestID())

	loggingOpts := middleware.LoggingOpts{
		RequestStart:         cfg.Log.RequestStart,
		RequestHeaders:       make(map[string]string, len(cfg.Log.RequestHeaders)),
		ExcludedEndpoints:    cfg.Log.ExcludedEndpoints,
		SlowRequestThreshold: cfg.Log.SlowRequestThreshold,
	}
	for _, headerName := range cfg.Log.RequestHeaders {
		loggingOpts.RequestHeaders[headerName] = "req_header_" + strings.ToLower(strings.ReplaceAll(headerName, "-", "_"))
	}
	router.Use(middleware.LoggingWithOpts(logger, loggingOpts))

	router.Use(middleware.Recovery(errDomain))

	if metricsCollector != nil {
		router.Use(middleware.HTTPRequestMetricsWithOpts(metricsCollector, GetChiRoutePattern,
			middleware.HTTPRequestMetricsOpts{ExcludedEndpoints: systemEndpoints}))
	}

	if cfg.CORS.Enabled {
		router.Use(middleware.CORS(cfg.CORS.Opts()))
	}

	if cfg.Limits.MaxBodySizeBytes > 0 {
		router.Use(middleware.RequestBodyLimit(cfg.Limits.MaxBodySizeBytes, errDomain))
	}

	if cfg.RateLimit.Enabled {
		rateLimitMw, err := middleware.RateLimitWithOpts(
			middleware.Rate{Count: cfg.RateLimit.Count, Duration: cfg.RateLimit.Duration},
			errDomain,
			middleware.RateLimitOpts{
				Alg:      cfg.RateLimit.Alg,
				MaxBurst: cfg.RateLimit.Burst,
				GetKey:   middleware.GetRateLimitKeyByClientIP,
				MaxKeys:  cfg.RateLimit.MaxKeys,
				DryRun:   cfg.RateLimit.DryRun,
			})
		if err != nil {
			return fmt.Errorf("create rate limit middleware: %w", err)
		}
		router.Use(func(next http.Handler) http.Handler {
			limited := rateLimitMw(next)
			return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
				if isSystemEndpoint(r.URL.Path) {
					next.ServeHTTP(rw, r)
					return
				}
				limited.ServeHTTP(rw, r)
			})
		})
	}

	return nil
}

func isSystemEndpoint(path string) bool {
	for _, endpoint := range systemEndpoints {
		if path == endpoint {
			return true
		}
	}
	return false
}

func loggerFromRequest(r *http.Request, fallback log.FieldLogger) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return fallback
}

// GetChiRoutePattern extracts chi route pattern from request.
func GetChiRoutePattern(r *http.Request) string {
	// modified code from https://github.com/go-chi/chi/issues/270#issuecomment-479184559
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}

	routePath := r.URL.RawPath
	if routePath == "" {
		routePath = r.URL.Path
	}
	tctx := chi.NewRouteContext()
	if !rctx.Routes.Match(tctx, r.Method, routePath) {
		return ""
	}
	return tctx.RoutePattern()
}
