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

// Package custody protects share cipher keys with a key encryption key held
// by a passphrase or an external key management service. Providers register
// a Factory by name. The passphrase provider registers itself; the cloud
// providers in the subpackages are registered by the binary that imports them.
package custody

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

var (
	ErrUnknownProvider = errors.New("custody: unknown provider")
	ErrInvalidConfig   = errors.New("custody: invalid configuration")
	ErrWrap            = errors.New("custody: wrap failed")
	ErrUnwrap          = errors.New("custody: unwrap failed")
)

// Wrapper encrypts and decrypts key material under a key encryption key.
type Wrapper interface {
	// Name is the provider name recorded next to wrapped keys.
	Name() string
	Wrap(ctx context.Context, key []byte) ([]byte, error)
	Unwrap(ctx context.Context, wrapped []byte) ([]byte, error)
}

// Envelope is a wrapped key as persisted in sessions.
type Envelope struct {
	Provider string `json:"provider"`
	Data     []byte `json:"data"`
}

// Seal wraps key with w.
func Seal(ctx context.Context, w Wrapper, key []byte) (*Envelope, error) {
	data, err := w.Wrap(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Envelope{Provider: w.Name(), Data: data}, nil
}

// Open unwraps e with w, which must be the provider that sealed it.
func Open(ctx context.Context, w Wrapper, e *Envelope) ([]byte, error) {
	if e == nil || len(e.Data) == 0 {
		return nil, fmt.Errorf("%w: empty envelope", ErrUnwrap)
	}
	if e.Provider != w.Name() {
		return nil, fmt.Errorf("%w: key was wrapped by %q, not %q", ErrUnwrap, e.Provider, w.Name())
	}
	return w.Unwrap(ctx, e.Data)
}

// Settings are provider specific options, typically a section of the
// configuration file.
type Settings map[string]string

// Get returns the value of key or "".
func (s Settings) Get(key string) string {
	return s[key]
}

// Require returns the value of key or ErrInvalidConfig.
func (s Settings) Require(key string) (string, error) {
	v := s[key]
	if v == "" {
		return "", fmt.Errorf("%w: %q is required", ErrInvalidConfig, key)
	}
	return v, nil
}

// Bool parses key, defaulting to false when unset.
func (s Settings) Bool(key string) (bool, error) {
	v, ok := s[key]
	if !ok || v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %q: %w", ErrInvalidConfig, key, err)
	}
	return b, nil
}

// Factory builds a Wrapper from settings.
type Factory func(ctx context.Context, s Settings) (Wrapper, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a provider available to New. Registering the same name
// twice panics.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("custody: nil factory for " + name)
	}
	if _, dup := registry[name]; dup {
		panic("custody: provider registered twice: " + name)
	}
	registry[name] = f
}

// New builds the provider called name.
func New(ctx context.Context, name string, s Settings) (Wrapper, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownProvider, name, Providers())
	}
	return f(ctx, s)
}

// Providers lists registered provider names.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
