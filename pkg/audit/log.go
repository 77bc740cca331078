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

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/logger"
)

// LogConfig configures a LogRecorder.
type LogConfig struct {
	// Path of the audit log file. Empty writes to Output.
	Path string `yaml:"path,omitempty" json:"path,omitempty" mapstructure:"path"`

	// SystemLog also writes events to syslog or the Windows event log.
	SystemLog bool `yaml:"system_log,omitempty" json:"system_log,omitempty" mapstructure:"system_log"`

	// Verbose also writes events to stderr.
	Verbose bool `yaml:"verbose,omitempty" json:"verbose,omitempty" mapstructure:"verbose"`

	// Output is used when Path is empty. Defaults to io.Discard.
	Output io.Writer `yaml:"-" json:"-" mapstructure:"-"`
}

// LogRecorder writes each event as one JSON document through google/logger.
// Successful events are logged at info, failures at warning and denials at
// error severity.
type LogRecorder struct {
	mu     sync.Mutex
	log    *logger.Logger
	closed bool
}

// NewLogRecorder opens cfg.Path for appending, creating it with 0600
// permissions.
func NewLogRecorder(cfg *LogConfig) (*LogRecorder, error) {
	if cfg == nil {
		cfg = &LogConfig{}
	}
	r := &LogRecorder{}
	out := cfg.Output
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
			return nil, fmt.Errorf("audit: create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("audit: open log: %w", err)
		}
		out = f
	}
	if out == nil {
		out = io.Discard
	}
	r.log = logger.Init("sharevault-audit", cfg.Verbose, cfg.SystemLog, out)
	return r, nil
}

func (r *LogRecorder) Record(ctx context.Context, e *Event) error {
	if e == nil {
		return ErrNilEvent
	}
	prepare(ctx, e, time.Now)
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode event: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("audit: recorder closed")
	}
	switch e.Outcome {
	case OutcomeDenied:
		r.log.Error(string(line))
	case OutcomeFailure:
		r.log.Warning(string(line))
	default:
		r.log.Info(string(line))
	}
	return nil
}

// Close flushes the log. Writers implementing io.Closer, including the
// file opened for LogConfig.Path, are closed.
func (r *LogRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		r.log.Close()
	}
	return nil
}
