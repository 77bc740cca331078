// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sharevault.
//
// go-sharevault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-sharevault/pkg/logging"
	"github.com/jeremyhahn/go-sharevault/pkg/metrics"
	"github.com/jeremyhahn/go-sharevault/pkg/orchestrator"
	"github.com/jeremyhahn/go-sharevault/pkg/ratelimit"
)

// DefaultMaxBodyBytes bounds API request bodies when Config.MaxBodyBytes is
// zero.
const DefaultMaxBodyBytes = 1 << 20

// Server serves the sharevault HTTP API.
type Server struct {
	server        *http.Server
	handlers      *HandlerContext
	tlsConfig     *tls.Config
	authenticator Authenticator
	limiter       *ratelimit.Limiter
	metricsPath   string
	maxBodyBytes  int64
	logger        logging.Logger
}

// Config holds the REST server configuration.
type Config struct {
	// Addr is the listen address (default ":8443").
	Addr string

	// Orchestrator performs every API operation (required).
	Orchestrator *orchestrator.Orchestrator

	// Version is reported by GET /health.
	Version string

	// TLSConfig enables HTTPS when set.
	TLSConfig *tls.Config

	// Authenticator guards /api/v1 (default NoopAuthenticator).
	Authenticator Authenticator

	Logger logging.Logger

	// Limiter throttles requests per client address. Nil disables it.
	Limiter *ratelimit.Limiter

	// HealthChecker backs the probe endpoints. Nil reports healthy.
	HealthChecker HealthChecker

	// MetricsPath mounts the Prometheus handler. Empty disables it.
	MetricsPath string

	// MaxBodyBytes bounds API request bodies.
	MaxBodyBytes int64

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a server. It does not start listening.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}

	addr := cfg.Addr
	if addr == "" {
		addr = ":8443"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 30 * time.Second
	}
	idleTimeout := cfg.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = 60 * time.Second
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	authenticator := cfg.Authenticator
	if authenticator == nil {
		authenticator = NoopAuthenticator{}
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NewNop()
	}

	s := &Server{
		handlers: &HandlerContext{
			orch:    cfg.Orchestrator,
			health:  cfg.HealthChecker,
			version: version,
			logger:  log,
		},
		tlsConfig:     cfg.TLSConfig,
		authenticator: authenticator,
		limiter:       cfg.Limiter,
		metricsPath:   cfg.MetricsPath,
		maxBodyBytes:  maxBody,
		logger:        log,
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.setupRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		TLSConfig:         cfg.TLSConfig,
	}
	return s, nil
}

func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(s.CorrelationMiddleware())
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)

	r.Get("/health", s.handlers.HealthHandler)
	r.Head("/health", s.handlers.HealthHandler)
	r.Get("/health/live", s.handlers.LivenessHandler)
	r.Get("/health/ready", s.handlers.ReadinessHandler)
	r.Get("/health/startup", s.handlers.StartupHandler)

	if s.metricsPath != "" {
		r.Handle(s.metricsPath, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(ratelimit.Middleware(s.limiter))
		}
		r.Use(s.AuthenticationMiddleware())
		r.Use(s.BodyLimitMiddleware())

		r.Post("/keys", s.handlers.GenerateKeyHandler)

		r.Post("/bundles", s.handlers.ProtectHandler)
		r.Post("/bundles/recover", s.handlers.RecoverHandler)
		r.Post("/bundles/inspect", s.handlers.InspectHandler)
		r.Post("/bundles/verify", s.handlers.VerifyHandler)

		r.Get("/sessions", s.handlers.ListSessionsHandler)
		r.Get("/sessions/{id}", s.handlers.GetSessionHandler)
		r.Delete("/sessions/{id}", s.handlers.DeleteSessionHandler)
		r.Post("/sessions/{id}/recover", s.handlers.RecoverSessionHandler)
	})

	return r
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln, wrapping it with TLS when configured.
func (s *Server) Serve(ln net.Listener) error {
	scheme := "http"
	if s.tlsConfig != nil {
		scheme = "https"
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	s.logger.Info("Starting server",
		logging.String("addr", ln.Addr().String()),
		logging.String("scheme", scheme),
		logging.String("auth", s.authenticator.Name()))

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve %s: %w", scheme, err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server", logging.Error(err))
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
