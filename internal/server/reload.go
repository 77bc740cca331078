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

package server

import (
	"fmt"
	"reflect"

	"github.com/jeremyhahn/go-sharevault/internal/config"
	"github.com/jeremyhahn/go-sharevault/pkg/logging"
	"github.com/jeremyhahn/go-sharevault/pkg/metrics"
)

// Reload applies the parts of cfg that can change without a restart: the
// log level and metrics collection. It returns the names of changed
// sections that only take effect after a restart.
func (s *Server) Reload(cfg *config.Config) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to reload configuration: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.Logging.Level != s.config.Logging.Level {
		if s.level == nil {
			s.logger.Warn("Log level is fixed by an injected logger")
		} else {
			level, err := logging.ParseLevel(cfg.Logging.Level)
			if err != nil {
				return nil, err
			}
			s.logger.Info("Updating log level",
				logging.String("old_level", s.config.Logging.Level),
				logging.String("new_level", cfg.Logging.Level))
			s.level.Set(level.SlogLevel())
		}
	}

	if cfg.Metrics.Enabled != s.config.Metrics.Enabled {
		if cfg.Metrics.Enabled {
			metrics.Enable()
		} else {
			metrics.Disable()
		}
	}

	restart := restartRequired(s.config, cfg)
	if len(restart) > 0 {
		s.logger.Warn("Configuration changes require a restart", logging.Strings("sections", restart))
	}

	s.config.Logging = cfg.Logging
	s.config.Metrics.Enabled = cfg.Metrics.Enabled
	return restart, nil
}

func restartRequired(old, next *config.Config) []string {
	sections := []struct {
		name string
		a, b any
	}{
		{"sharing", old.Sharing, next.Sharing},
		{"cipher", old.Cipher, next.Cipher},
		{"url", old.URL, next.URL},
		{"storage", old.Storage, next.Storage},
		{"custody", old.Custody, next.Custody},
		{"logging.format", old.Logging.Format, next.Logging.Format},
		{"server", old.Server, next.Server},
		{"tls", old.TLS, next.TLS},
		{"auth", old.Auth, next.Auth},
		{"ratelimit", old.RateLimit, next.RateLimit},
		{"metrics.path", old.Metrics.Path, next.Metrics.Path},
		{"audit", old.Audit, next.Audit},
	}
	var changed []string
	for _, sec := range sections {
		if !reflect.DeepEqual(sec.a, sec.b) {
			changed = append(changed, sec.name)
		}
	}
	return changed
}
