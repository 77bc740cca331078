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

// Package storagetest holds behaviour tests shared by every
// storage.Backend implementation.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sharevault/pkg/storage"
)

// Factory returns a fresh, empty backend.
type Factory func(t *testing.T) storage.Backend

// Run exercises the storage.Backend contract against backends from newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Run("PutGet", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		values := map[string][]byte{
			"simple":           []byte("value"),
			"sessions/abc":     []byte(`{"v":1}`),
			"sessions/a/b/c":   {0x00, 0x01, 0xff},
			"empty-value-here": {},
		}
		for k, v := range values {
			require.NoError(t, b.Put(ctx, k, v, nil), k)
		}
		for k, v := range values {
			got, err := b.Get(ctx, k)
			require.NoError(t, err, k)
			assert.Equal(t, len(v), len(got), k)
			if len(v) > 0 {
				assert.Equal(t, v, got, k)
			}
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		require.NoError(t, b.Put(ctx, "k", []byte("one"), nil))
		require.NoError(t, b.Put(ctx, "k", []byte("two"), storage.DefaultOptions()))
		got, err := b.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), got)
	})

	t.Run("ValueIsCopied", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		v := []byte("original")
		require.NoError(t, b.Put(ctx, "k", v, nil))
		v[0] = 'X'

		got, err := b.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("original"), got)
		got[0] = 'Y'

		again, err := b.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("original"), again)
	})

	t.Run("NotFound", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		_, err := b.Get(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, b.Delete(ctx, "missing"), storage.ErrNotFound)
		ok, err := b.Exists(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		require.NoError(t, b.Put(ctx, "sessions/x", []byte("v"), nil))
		ok, err := b.Exists(ctx, "sessions/x")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, b.Delete(ctx, "sessions/x"))
		_, err = b.Get(ctx, "sessions/x")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ListSortedByPrefix", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		for _, k := range []string{"sessions/c", "sessions/a", "other/z", "sessions/b"} {
			require.NoError(t, b.Put(ctx, k, []byte(k), nil))
		}

		keys, err := b.List(ctx, "sessions/")
		require.NoError(t, err)
		assert.Equal(t, []string{"sessions/a", "sessions/b", "sessions/c"}, keys)

		all, err := b.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 4)

		none, err := b.List(ctx, "nothing/")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("InvalidKey", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		for _, k := range []string{"", "/abs", "../up", "a/../../b"} {
			assert.ErrorIs(t, b.Put(ctx, k, []byte("v"), nil), storage.ErrInvalidKey, "%q", k)
		}
	})

	t.Run("CanceledContext", func(t *testing.T) {
		b := newBackend(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, b.Put(ctx, "k", []byte("v"), nil), context.Canceled)
		_, err := b.Get(ctx, "k")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Closed", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		require.NoError(t, b.Put(ctx, "k", []byte("v"), nil))
		require.NoError(t, b.Close())

		_, err := b.Get(ctx, "k")
		assert.ErrorIs(t, err, storage.ErrClosed)
		assert.ErrorIs(t, b.Put(ctx, "k", []byte("v"), nil), storage.ErrClosed)
		_, err = b.List(ctx, "")
		assert.ErrorIs(t, err, storage.ErrClosed)
		assert.ErrorIs(t, b.Close(), storage.ErrClosed)
	})

	t.Run("Concurrent", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := fmt.Sprintf("sessions/%02d", i)
				assert.NoError(t, b.Put(ctx, key, []byte(key), nil))
				got, err := b.Get(ctx, key)
				assert.NoError(t, err)
				assert.Equal(t, []byte(key), got)
			}(i)
		}
		wg.Wait()

		keys, err := b.List(ctx, "sessions/")
		require.NoError(t, err)
		assert.Len(t, keys, 16)
	})
}
