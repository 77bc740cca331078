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

package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sharevault/pkg/storage"
	"github.com/jeremyhahn/go-sharevault/pkg/storage/storagetest"
)

func TestStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		s, err := New(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestNew_EmptyRoot(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestNew_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "root")
	s, err := New(root)
	require.NoError(t, err)
	assert.Equal(t, root, s.Root())

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestPut_Permissions(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "sessions/default", []byte("v"), nil))
	require.NoError(t, s.Put(ctx, "sessions/custom", []byte("v"), &storage.Options{Permissions: 0640}))

	tests := map[string]os.FileMode{
		"sessions/default": 0600,
		"sessions/custom":  0640,
	}
	for key, want := range tests {
		info, err := os.Stat(filepath.Join(s.Root(), filepath.FromSlash(key)))
		require.NoError(t, err)
		assert.Equal(t, want, info.Mode().Perm(), key)
	}
}

func TestPut_LeavesNoTemporaryFiles(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Put(ctx, "sessions/a", []byte{byte(i)}, nil))
	}
	entries, err := os.ReadDir(filepath.Join(s.Root(), "sessions"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Name())
}

func TestList_IgnoresTemporaryFiles(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "sessions/a", []byte("v"), nil))
	stray := filepath.Join(s.Root(), "sessions", ".a-123.tmp")
	require.NoError(t, os.WriteFile(stray, []byte("partial"), 0600))

	keys, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"sessions/a"}, keys)

	assert.ErrorIs(t, s.Put(ctx, "sessions/x.tmp", []byte("v"), nil), storage.ErrInvalidKey)
}

func TestTraversalStaysInsideRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "store")
	s, err := New(root)
	require.NoError(t, err)

	err = s.Put(context.Background(), "../outside", []byte("v"), nil)
	assert.ErrorIs(t, err, storage.ErrInvalidKey)
	_, statErr := os.Stat(filepath.Join(parent, "outside"))
	assert.True(t, os.IsNotExist(statErr))
}
