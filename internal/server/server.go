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

// Package server assembles the sharevault runtime from a config.Config:
// logging, session storage, key custody, auditing, the orchestrator,
// health checks and the REST API.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jeremyhahn/go-sharevault/internal/config"
	"github.com/jeremyhahn/go-sharevault/internal/rest"
	"github.com/jeremyhahn/go-sharevault/internal/unix"
	"github.com/jeremyhahn/go-sharevault/pkg/audit"
	"github.com/jeremyhahn/go-sharevault/pkg/custody"
	"github.com/jeremyhahn/go-sharevault/pkg/health"
	"github.com/jeremyhahn/go-sharevault/pkg/logging"
	"github.com/jeremyhahn/go-sharevault/pkg/metrics"
	"github.com/jeremyhahn/go-sharevault/pkg/orchestrator"
	"github.com/jeremyhahn/go-sharevault/pkg/ratelimit"
	"github.com/jeremyhahn/go-sharevault/pkg/storage"
)

// DefaultShutdownTimeout applies when the server config leaves it unset.
const DefaultShutdownTimeout = 30 * time.Second

// ErrNotStarted is returned by operations that need a running listener.
var ErrNotStarted = errors.New("server: not started")

// Option customizes New.
type Option func(*Server)

// WithLogger replaces the logger built from the logging section.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithVersion sets the version reported by GET /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// Server owns every component built from the configuration.
type Server struct {
	config  *config.Config
	mu      sync.Mutex
	logger  logging.Logger
	level   *slog.LevelVar
	version string

	storage       storage.Backend
	custody       custody.Wrapper
	audit         audit.Recorder
	closeAudit    func() error
	orch          *orchestrator.Orchestrator
	healthChecker *health.Checker

	limiter          *ratelimit.Limiter
	restServer       *rest.Server
	unixServer       *unix.Server
	listener         net.Listener
	metricsCollector *metrics.ResourceCollector
	cancel           context.CancelFunc
	serveErr         chan error
	wg               sync.WaitGroup
}

// New validates cfg and builds the core components. The REST API is not
// created until Start. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{config: cfg, version: "dev"}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		l, lv, err := newLogger(cfg.Logging)
		if err != nil {
			return nil, err
		}
		s.logger, s.level = l, lv
	}

	if err := s.init(ctx); err != nil {
		s.closeComponents()
		return nil, err
	}
	return s, nil
}

func (s *Server) init(ctx context.Context) error {
	var err error

	s.storage, err = s.config.Storage.OpenStorage()
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", s.config.Storage.Backend, err)
	}
	s.logger.Debug("Storage opened", logging.String("backend", s.config.Storage.Backend))

	wrapper, err := s.config.Custody.OpenCustody(ctx)
	switch {
	case err == nil:
	case s.config.Custody.Provider == custody.PassphraseProvider && s.config.Custody.Settings["passphrase"] == "":
		s.logger.Warn("Custody disabled: no passphrase configured, only password sessions can be saved",
			logging.String("env", config.EnvPrefix+"CUSTODY_PASSPHRASE"))
	default:
		return fmt.Errorf("failed to open %s custody: %w", s.config.Custody.Provider, err)
	}
	if wrapper != nil {
		s.custody = wrapper
		s.logger.Debug("Custody provider ready", logging.String("provider", s.custody.Name()))
	}

	s.audit, s.closeAudit, err = s.config.Audit.NewRecorder()
	if err != nil {
		return fmt.Errorf("failed to open audit sink: %w", err)
	}

	opts := []orchestrator.Option{
		orchestrator.WithStorage(s.storage),
		orchestrator.WithLogger(s.logger),
		orchestrator.WithAudit(s.audit),
	}
	if s.custody != nil {
		opts = append(opts, orchestrator.WithCustody(s.custody))
	}
	s.orch, err = orchestrator.New(s.config.Orchestrator(), opts...)
	if err != nil {
		return err
	}

	s.initializeHealth()
	return nil
}

func (s *Server) initializeHealth() {
	s.healthChecker = health.NewChecker()
	s.healthChecker.RegisterCheck("storage", health.StorageCheck(s.storage))
	s.healthChecker.RegisterCheck("self-test", health.SelfTestCheck())
	s.logger.Debug("Health checker initialized", logging.Strings("checks", s.healthChecker.Checks()))
}

// Start creates the REST API and begins serving in the background. It
// returns once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.restServer != nil {
		return errors.New("server: already started")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	fail := func(err error) error {
		s.cancel()
		if s.limiter != nil {
			s.limiter.Stop()
			s.limiter = nil
		}
		s.restServer = nil
		s.listener = nil
		return err
	}

	if err := s.initializeREST(); err != nil {
		return fail(err)
	}

	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fail(fmt.Errorf("failed to listen on %s: %w", s.config.Server.Addr(), err))
	}
	s.listener = ln

	s.serveErr = make(chan error, 2)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.serveErr <- s.restServer.Serve(ln)
	}()

	if s.config.Server.UnixSocket != "" {
		if err := s.startUnix(); err != nil {
			_ = s.restServer.Stop(context.Background())
			s.wg.Wait()
			return fail(err)
		}
	}

	if s.config.Metrics.Enabled && s.config.Metrics.ResourceInterval > 0 {
		s.metricsCollector = metrics.StartResourceCollector(ctx, s.config.Metrics.ResourceInterval)
	}

	s.healthChecker.MarkStarted()
	s.logger.Info("Server started",
		logging.String("addr", ln.Addr().String()),
		logging.String("version", s.version))
	return nil
}

func (s *Server) initializeREST() error {
	cfg := s.config

	tlsConfig, err := cfg.TLS.Load()
	if err != nil {
		return err
	}
	authenticator, err := rest.NewAuthenticator(&cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to configure authentication: %w", err)
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metrics.Enable()
		metricsPath = cfg.Metrics.Path
	} else {
		metrics.Disable()
	}

	if cfg.RateLimit.Enabled {
		s.limiter = ratelimit.New(&cfg.RateLimit)
	}

	s.restServer, err = rest.NewServer(&rest.Config{
		Addr:          cfg.Server.Addr(),
		Orchestrator:  s.orch,
		Version:       s.version,
		TLSConfig:     tlsConfig,
		Authenticator: authenticator,
		Logger:        s.logger,
		Limiter:       s.limiter,
		HealthChecker: s.healthChecker,
		MetricsPath:   metricsPath,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		IdleTimeout:   cfg.Server.IdleTimeout,
	})
	return err
}

func (s *Server) startUnix() error {
	cfg := s.config.Server
	us, err := unix.NewServer(&unix.Config{
		SocketPath:   cfg.UnixSocket,
		SocketMode:   cfg.UnixSocketMode,
		Handler:      s.restServer.Handler(),
		Logger:       s.logger,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	})
	if err != nil {
		return err
	}
	if err := us.Listen(); err != nil {
		return err
	}
	s.unixServer = us

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.serveErr <- us.Serve()
	}()
	return nil
}

// Run starts the server and blocks until ctx is cancelled or serving
// fails, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		s.closeComponents()
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Received shutdown signal")
	case serveErr = <-s.serveErr:
		if serveErr != nil {
			s.logger.Error("REST server error", logging.Error(serveErr))
		}
	}
	return errors.Join(serveErr, s.Shutdown())
}

// Shutdown stops the REST API within the configured timeout and closes
// every component. It is safe to call on a server that never started.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.restServer != nil {
		timeout := s.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = DefaultShutdownTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		s.healthChecker.MarkNotStarted()
		if s.unixServer != nil {
			if err := s.unixServer.Stop(ctx); err != nil {
				errs = append(errs, err)
			}
			s.unixServer = nil
		}
		if err := s.restServer.Stop(ctx); err != nil {
			errs = append(errs, err)
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn("Shutdown timeout exceeded, forcing stop")
		}
		s.restServer = nil
	}

	if s.metricsCollector != nil {
		s.metricsCollector.Stop()
		s.metricsCollector = nil
	}
	if s.limiter != nil {
		s.limiter.Stop()
		s.limiter = nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	if err := s.closeComponents(); err != nil {
		errs = append(errs, err)
	}
	s.logger.Info("Server shutdown complete")
	return errors.Join(errs...)
}

// Close releases the core components of a server that was never started.
func (s *Server) Close() error {
	return s.Shutdown()
}

func (s *Server) closeComponents() error {
	var errs []error
	if s.orch != nil {
		if err := s.orch.Close(); err != nil {
			errs = append(errs, err)
		}
		s.orch = nil
	}
	if c, ok := s.custody.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close custody provider: %w", err))
		}
	}
	s.custody = nil
	if s.closeAudit != nil {
		if err := s.closeAudit(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close audit sink: %w", err))
		}
		s.closeAudit = nil
	}
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		}
		s.storage = nil
	}
	return errors.Join(errs...)
}

// Orchestrator returns the pipeline built from the configuration.
func (s *Server) Orchestrator() *orchestrator.Orchestrator {
	return s.orch
}

// Audit returns the configured audit sink.
func (s *Server) Audit() audit.Recorder {
	return s.audit
}

// Health returns the health checker.
func (s *Server) Health() *health.Checker {
	return s.healthChecker
}

// Logger returns the server logger.
func (s *Server) Logger() logging.Logger {
	return s.logger
}

// RESTServer returns the REST server, or nil before Start.
func (s *Server) RESTServer() *rest.Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restServer
}

// Addr returns the bound listener address.
func (s *Server) Addr() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return "", ErrNotStarted
	}
	return s.listener.Addr().String(), nil
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
func SetupSignalHandler() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newLogger(c config.LoggingConfig) (logging.Logger, *slog.LevelVar, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}
	lv := new(slog.LevelVar)
	lv.Set(level.SlogLevel())
	return logging.New(&logging.Config{
		LevelVar: lv,
		Format:   strings.ToLower(c.Format),
		Output:   os.Stderr,
	}), lv, nil
}
