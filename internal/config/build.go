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

package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jeremyhahn/go-sharevault/pkg/audit"
	"github.com/jeremyhahn/go-sharevault/pkg/custody"
	"github.com/jeremyhahn/go-sharevault/pkg/logging"
	"github.com/jeremyhahn/go-sharevault/pkg/storage"
	"github.com/jeremyhahn/go-sharevault/pkg/storage/azsecrets"
	"github.com/jeremyhahn/go-sharevault/pkg/storage/file"
	"github.com/jeremyhahn/go-sharevault/pkg/storage/memory"
)

const (
	StorageMemory    = "memory"
	StorageFile      = "file"
	StorageAzSecrets = "azsecrets"

	AuditNone   = "none"
	AuditMemory = "memory"
	AuditLog    = "log"

	AuthNoop = "noop"
	AuthJWT  = "jwt"
)

// OpenStorage returns the configured session backend.
func (c *StorageConfig) OpenStorage() (storage.Backend, error) {
	switch c.Backend {
	case StorageMemory, "":
		return memory.New(), nil
	case StorageFile:
		return file.New(c.Path)
	case StorageAzSecrets:
		return azsecrets.New(&c.AzSecrets)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", c.Backend)
	}
}

// OpenCustody returns the configured custody provider, or nil when none is
// configured. The provider must be compiled in.
func (c *CustodyConfig) OpenCustody(ctx context.Context) (custody.Wrapper, error) {
	if c.Provider == "" || c.Provider == "none" {
		return nil, nil
	}
	return custody.New(ctx, c.Provider, custody.Settings(c.Settings))
}

// NewRecorder returns the configured audit sink and a function releasing
// it.
func (c *AuditConfig) NewRecorder() (audit.Recorder, func() error, error) {
	nop := func() error { return nil }
	switch c.Sink {
	case AuditNone, "":
		return audit.Nop{}, nop, nil
	case AuditMemory:
		return audit.NewMemoryRecorder(c.Capacity), nop, nil
	case AuditLog:
		r, err := audit.NewLogRecorder(&c.Log)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown audit sink: %q", c.Sink)
	}
}

// NewLogger returns a structured logger writing to stderr.
func (c *LoggingConfig) NewLogger() (logging.Logger, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(&logging.Config{
		Level:  level,
		Format: strings.ToLower(c.Format),
		Output: os.Stderr,
	}), nil
}
