/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/acronis/go-prooflens/httpserver/middleware"
	"github.com/acronis/go-prooflens/log"
	"github.com/acronis/go-prooflens/service"
)

// HTTPRequestMetricsOpts represents options of the metrics collected for incoming requests.
type HTTPRequestMetricsOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
}

// Opts represents options for creating HTTPServer.
type Opts struct {
	ServiceNameInURL string
	APIRoutes        map[APIVersion]APIRoute
	RootRoutes       APIRoute
	ErrorDomain      string
	HealthCheck      HealthCheck
	MetricsHandler   http.Handler

	HTTPRequestMetrics HTTPRequestMetricsOpts

	// Listener is used instead of listening on cfg.Address when set.
	Listener net.Listener
}

func (opts *Opts) routerOpts() RouterOpts {
	return RouterOpts{
		ServiceNameInURL: opts.ServiceNameInURL,
		APIRoutes:        opts.APIRoutes,
		RootRoutes:       opts.RootRoutes,
		ErrorDomain:      opts.ErrorDomain,
		HealthCheck:      opts.HealthCheck,
		MetricsHandler:   opts.MetricsHandler,
	}
}

// HTTPServer represents a wrapper around http.Server with the router and middlewares of the service.
// It implements service.Unit and service.MetricsRegisterer interfaces.
type HTTPServer struct {
	URL             string
	HTTPServer      *http.Server
	TLS             TLSConfig
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener         net.Listener
	port             atomic.Int32
	serveDone        atomic.Value
	metricsCollector *middleware.HTTPRequestMetricsCollector
}

var _ service.Unit = (*HTTPServer)(nil)
var _ service.MetricsRegisterer = (*HTTPServer)(nil)

// New creates a new HTTPServer with request logging, metrics collecting,
// recovering after panics, CORS and health-checking functionality.
func New(cfg *Config, logger log.FieldLogger, opts Opts) (*HTTPServer, error) { //nolint:gocritic // hugeParam
	metricsCollector := middleware.NewHTTPRequestMetricsCollectorWithOpts(middleware.HTTPRequestMetricsCollectorOpts{
		Namespace:       opts.HTTPRequestMetrics.Namespace,
		DurationBuckets: opts.HTTPRequestMetrics.DurationBuckets,
		ConstLabels:     opts.HTTPRequestMetrics.ConstLabels,
	})

	router := chi.NewRouter()
	if err := applyDefaultMiddlewaresToRouter(router, cfg, logger, opts.ErrorDomain, metricsCollector); err != nil {
		return nil, err
	}
	configureRouter(router, logger, opts.routerOpts())

	scheme := "http://"
	if cfg.TLS.Enabled {
		scheme = "https://"
	}
	return &HTTPServer{
		URL: scheme + cfg.Address,
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			WriteTimeout:      cfg.Timeouts.Write,
			ReadTimeout:       cfg.Timeouts.Read,
			ReadHeaderTimeout: cfg.Timeouts.ReadHeader,
			IdleTimeout:       cfg.Timeouts.Idle,
		},
		TLS:              cfg.TLS,
		HTTPRouter:       router,
		Logger:           logger,
		ShutdownTimeout:  cfg.Timeouts.Shutdown,
		listener:         opts.Listener,
		metricsCollector: metricsCollector,
	}, nil
}

// Start starts the HTTP server in a blocking way.
// It's supposed that this method will be called in a separate goroutine.
// If a fatal error occurs, it will be sent to the fatalError channel.
func (s *HTTPServer) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.serveDone.Store(done)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Bool("tls", s.TLS.Enabled),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	logger.Info("starting HTTP server...")

	if s.listener == nil {
		listener, err := net.Listen("tcp", s.HTTPServer.Addr)
		if err != nil {
			logger.Error("HTTP server error", log.Error(err))
			fatalError <- err
			return
		}
		s.listener = listener
	}
	if err := s.storePort(); err != nil {
		logger.Error("HTTP server error", log.Error(err))
		fatalError <- err
		return
	}

	var err error
	if s.TLS.Enabled {
		err = s.HTTPServer.ServeTLS(s.listener, s.TLS.Certificate, s.TLS.Key)
	} else {
		err = s.HTTPServer.Serve(s.listener)
	}
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("HTTP server closed")
		return
	}
	logger.Error("HTTP server error", log.Error(err))
	fatalError <- err
}

func (s *HTTPServer) storePort() error {
	_, portStr, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		return fmt.Errorf("split host and port of listener address: %w", err)
	}
	port, err := strconv.ParseInt(portStr, 10, 32)
	if err != nil {
		return fmt.Errorf("parse port of listener address: %w", err)
	}
	s.port.Store(int32(port))
	return nil
}

// Stop stops the HTTP server. Graceful stop waits for in-flight requests up to ShutdownTimeout.
func (s *HTTPServer) Stop(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("HTTP server closing error", log.Error(err))
			return err
		}
		s.waitServeDone()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	s.Logger.Info("shutting down HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("HTTP server shutting down error", log.Error(err))
		return err
	}
	s.waitServeDone()
	s.Logger.Info("HTTP server shut down")
	return nil
}

func (s *HTTPServer) waitServeDone() {
	if done, ok := s.serveDone.Load().(chan struct{}); ok {
		<-done
	}
}

// MustRegisterMetrics registers metrics in Prometheus client and panics if any error occurs.
func (s *HTTPServer) MustRegisterMetrics() {
	s.metricsCollector.MustRegister()
}

// UnregisterMetrics unregisters metrics in Prometheus client.
func (s *HTTPServer) UnregisterMetrics() {
	s.metricsCollector.Unregister()
}

// GetPort returns the port the server listens on, 0 before it started listening.
func (s *HTTPServer) GetPort() int {
	return int(s.port.Load())
}
