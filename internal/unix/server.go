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

// Package unix serves an HTTP handler on a Unix domain socket for local
// clients that should not go through the network listener.
package unix

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jeremyhahn/go-sharevault/pkg/logging"
)

// DefaultSocketPath is used when Config.SocketPath is empty.
const DefaultSocketPath = "/var/run/sharevault/sharevault.sock"

// DefaultSocketMode restricts the socket to its owner and group.
const DefaultSocketMode os.FileMode = 0660

// Config holds the Unix socket server configuration.
type Config struct {
	SocketPath string
	SocketMode os.FileMode

	// Handler serves every request, usually the REST router.
	Handler http.Handler
	Logger  logging.Logger

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server owns the socket file for as long as it is listening.
type Server struct {
	config   Config
	logger   logging.Logger
	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer validates cfg and fills in defaults. It does not touch the
// filesystem until Listen.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("handler is required")
	}

	c := *cfg
	if c.SocketPath == "" {
		c.SocketPath = DefaultSocketPath
	}
	if c.SocketMode == 0 {
		c.SocketMode = DefaultSocketMode
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logging.NewNop()
	}

	return &Server{
		config: c,
		logger: c.Logger.With(logging.String("socket", c.SocketPath)),
	}, nil
}

// Listen creates the socket, replacing a stale socket file left by a
// previous process, and applies the configured permissions.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.New("unix socket already listening")
	}

	if err := os.MkdirAll(filepath.Dir(s.config.SocketPath), 0750); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := removeStale(s.config.SocketPath); err != nil {
		return err
	}

	ln, err := net.Listen("unix", s.config.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to create Unix socket listener: %w", err)
	}
	if err := os.Chmod(s.config.SocketPath, s.config.SocketMode); err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.config.Handler,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}
	s.logger.Info("Unix socket created")
	return nil
}

// Serve blocks serving requests until Stop. It returns nil after a clean
// shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	srv, ln := s.server, s.listener
	s.mu.Unlock()

	if srv == nil {
		return errors.New("unix socket is not listening")
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("unix socket server error: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and removes the socket file.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	var err error
	if err = srv.Shutdown(ctx); err != nil {
		s.logger.Error("Error shutting down Unix socket server", logging.Error(err))
	}
	if rmErr := os.Remove(s.config.SocketPath); rmErr != nil && !os.IsNotExist(rmErr) {
		s.logger.Warn("Failed to remove socket file", logging.Error(rmErr))
	}
	s.logger.Info("Unix socket server stopped")
	return err
}

// SocketPath returns the path of the socket file.
func (s *Server) SocketPath() string {
	return s.config.SocketPath
}

// removeStale deletes path if it is a socket. Any other file is left alone
// so a misconfigured path cannot clobber data.
func removeStale(path string) error {
	fi, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat socket path: %w", err)
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("refusing to replace non-socket file %s", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}
	return nil
}
