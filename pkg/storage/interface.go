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

// Package storage provides key-value backends for persisted sessions. Keys
// are slash separated paths such as "sessions/<id>".
package storage

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// Backend is a thread-safe key-value store.
type Backend interface {
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put creates or overwrites key.
	Put(ctx context.Context, key string, value []byte, opts *Options) error

	// Delete returns ErrNotFound when key is absent.
	Delete(ctx context.Context, key string) error

	// List returns keys starting with prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)

	Exists(ctx context.Context, key string) (bool, error)

	Close() error
}

// Options are optional per-write settings.
type Options struct {
	// Permissions for file backed stores. Zero means 0600.
	Permissions fs.FileMode

	// ContentType is recorded by stores that support it.
	ContentType string

	// Metadata is recorded as tags by stores that support it.
	Metadata map[string]string
}

// DefaultOptions returns owner-only permissions and no metadata.
func DefaultOptions() *Options {
	return &Options{
		Permissions: 0600,
		Metadata:    make(map[string]string),
	}
}

// MaxKeyLength bounds key length across all backends.
const MaxKeyLength = 512

// ValidateKey rejects empty, absolute, traversing or oversized keys and
// keys containing control characters or backslashes.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key exceeds %d bytes", ErrInvalidKey, MaxKeyLength)
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x20 || key[i] == 0x7f || key[i] == '\\' {
			return fmt.Errorf("%w: key contains a control character or backslash", ErrInvalidKey)
		}
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: key %q is absolute", ErrInvalidKey, key)
	}
	if strings.HasSuffix(key, "/") {
		return fmt.Errorf("%w: key %q ends with a separator", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: key %q has an empty or relative segment", ErrInvalidKey, key)
		}
	}
	if path.Clean(key) != key {
		return fmt.Errorf("%w: key %q is not clean", ErrInvalidKey, key)
	}
	return nil
}
