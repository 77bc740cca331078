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

package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sharevault/pkg/audit"
	"github.com/jeremyhahn/go-sharevault/pkg/custody"
	"github.com/jeremyhahn/go-sharevault/pkg/errcode"
	"github.com/jeremyhahn/go-sharevault/pkg/storage/memory"
)

type sessionFixture struct {
	o     *Orchestrator
	rec   *audit.MemoryRecorder
	store *memory.Storage
	ctx   context.Context
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })
	wrapper, err := custody.NewPassphrase([]byte("custody passphrase"), fastKDF)
	require.NoError(t, err)

	clock := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	o, rec := newTestOrchestrator(t, testConfig(2, 3),
		WithStorage(store), WithCustody(wrapper), WithClock(clock))
	return &sessionFixture{o: o, rec: rec, store: store, ctx: context.Background()}
}

func TestSession_Lifecycle(t *testing.T) {
	f := newSessionFixture(t)
	key := testKey(t)

	res, err := f.o.Protect(f.ctx, testURL, key)
	require.NoError(t, err)

	s, err := f.o.SaveSession(f.ctx, res.Payload, &key)
	require.NoError(t, err)
	assert.Equal(t, res.Bundle.ID, s.ID)
	assert.Equal(t, 2, s.Threshold)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, res.Bundle.Prime, s.Prime)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), s.CreatedAt)
	require.NotNil(t, s.Key)
	assert.Equal(t, custody.PassphraseProvider, s.Key.Provider)

	ids, err := f.o.ListSessions(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{s.ID}, ids)

	loaded, err := f.o.LoadSession(f.ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Payload, loaded.Payload)
	assert.False(t, loaded.PasswordProtected())

	secret, err := f.o.RecoverSession(f.ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, testURL, secret)

	secret, err = f.o.RecoverSession(f.ctx, s.ID, UseShares(2, 3))
	require.NoError(t, err)
	assert.Equal(t, testURL, secret)

	require.NoError(t, f.o.DeleteSession(f.ctx, s.ID))
	_, err = f.o.LoadSession(f.ctx, s.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, errcode.NotFound, errcode.Of(err))

	err = f.o.DeleteSession(f.ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	stats := f.rec.Stats()
	assert.Equal(t, 1, stats.ByType[audit.EventSessionSave])
	assert.Equal(t, 1, stats.ByType[audit.EventCustodyWrap])
	assert.Equal(t, 2, stats.ByType[audit.EventCustodyUnwrap])
	assert.Equal(t, 2, stats.ByType[audit.EventSessionDelete])
}

func TestSession_NeverStoresRawKey(t *testing.T) {
	f := newSessionFixture(t)
	key := testKey(t)
	res, err := f.o.Protect(f.ctx, testURL, key)
	require.NoError(t, err)

	s, err := f.o.SaveSession(f.ctx, res.Payload, &key)
	require.NoError(t, err)

	data, err := f.store.Get(f.ctx, sessionKey(s.ID))
	require.NoError(t, err)
	raw := key.Bytes()
	for _, form := range []string{
		string(raw),
		hex.EncodeToString(raw),
		base64.StdEncoding.EncodeToString(raw),
		base64.RawURLEncoding.EncodeToString(raw),
	} {
		assert.NotContains(t, string(data), form)
	}
	assert.NotContains(t, string(data), testURL)
}

func TestSession_WithoutKey(t *testing.T) {
	f := newSessionFixture(t)
	pw := []byte("session password")
	res, err := f.o.ProtectWithPassword(f.ctx, testURL, pw)
	require.NoError(t, err)

	s, err := f.o.SaveSession(f.ctx, res.Payload, nil)
	require.NoError(t, err)
	assert.Nil(t, s.Key)
	assert.True(t, s.PasswordProtected())

	_, err = f.o.RecoverSession(f.ctx, s.ID)
	require.ErrorIs(t, err, ErrNoSessionKey)

	loaded, err := f.o.LoadSession(f.ctx, s.ID)
	require.NoError(t, err)
	secret, err := f.o.RecoverWithPassword(f.ctx, loaded.Payload, pw)
	require.NoError(t, err)
	assert.Equal(t, testURL, secret)
}

func TestSession_Corrupt(t *testing.T) {
	f := newSessionFixture(t)
	key := testKey(t)
	res, err := f.o.Protect(f.ctx, testURL, key)
	require.NoError(t, err)
	s, err := f.o.SaveSession(f.ctx, res.Payload, nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Session) []byte
	}{
		{"not json", func(*Session) []byte { return []byte("{") }},
		{"threshold disagrees", func(s *Session) []byte {
			s.Threshold = 3
			return mustJSON(t, s)
		}},
		{"total disagrees", func(s *Session) []byte {
			s.Total = 4
			return mustJSON(t, s)
		}},
		{"prime disagrees", func(s *Session) []byte {
			s.Prime = "m521"
			return mustJSON(t, s)
		}},
		{"payload malformed", func(s *Session) []byte {
			s.Payload = "garbage"
			return mustJSON(t, s)
		}},
		{"id disagrees", func(s *Session) []byte {
			s.ID = "00000000-0000-0000-0000-000000000000"
			return mustJSON(t, s)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *s
			require.NoError(t, f.store.Put(f.ctx, sessionKey(s.ID), tt.mutate(&c), nil))

			_, err := f.o.LoadSession(f.ctx, s.ID)
			require.ErrorIs(t, err, ErrSessionCorrupt)
			assert.Equal(t, errcode.SessionCorrupt, errcode.Of(err))

			_, err = f.o.RecoverSession(f.ctx, s.ID)
			assert.ErrorIs(t, err, ErrSessionCorrupt)
		})
	}
}

func TestSession_InvalidID(t *testing.T) {
	f := newSessionFixture(t)
	for _, id := range []string{"", "../etc/passwd", "not-a-uuid", "6BA7B810-9DAD-11D1-80B4-00C04FD430C8"} {
		_, err := f.o.LoadSession(f.ctx, id)
		assert.ErrorIs(t, err, ErrInvalidSessionID, id)
		assert.ErrorIs(t, f.o.DeleteSession(f.ctx, id), ErrInvalidSessionID, id)
	}
}

func TestSession_ListIgnoresForeignKeys(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.store.Put(f.ctx, "sessions/not-a-session", []byte("x"), nil))
	require.NoError(t, f.store.Put(f.ctx, "health/probe", []byte("x"), nil))

	ids, err := f.o.ListSessions(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSession_RequiresStorageAndCustody(t *testing.T) {
	o, _ := newTestOrchestrator(t, testConfig(2, 3))
	ctx := context.Background()
	key := testKey(t)
	res, err := o.Protect(ctx, testURL, key)
	require.NoError(t, err)

	_, err = o.SaveSession(ctx, res.Payload, nil)
	require.ErrorIs(t, err, ErrStorageRequired)
	assert.Equal(t, errcode.Unavailable, errcode.Of(err))
	_, err = o.ListSessions(ctx)
	assert.ErrorIs(t, err, ErrStorageRequired)

	store := memory.New()
	defer store.Close()
	noCustody, _ := newTestOrchestrator(t, testConfig(2, 3), WithStorage(store))
	_, err = noCustody.SaveSession(ctx, res.Payload, &key)
	require.ErrorIs(t, err, ErrCustodyRequired)

	ids, err := noCustody.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSession_WrongCustodyProvider(t *testing.T) {
	f := newSessionFixture(t)
	key := testKey(t)
	res, err := f.o.Protect(f.ctx, testURL, key)
	require.NoError(t, err)
	s, err := f.o.SaveSession(f.ctx, res.Payload, &key)
	require.NoError(t, err)

	other, err := custody.NewPassphrase([]byte("different passphrase"), fastKDF)
	require.NoError(t, err)
	o2, _ := newTestOrchestrator(t, testConfig(2, 3), WithStorage(f.store), WithCustody(other))

	_, err = o2.RecoverSession(f.ctx, s.ID)
	assert.ErrorIs(t, err, custody.ErrUnwrap)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
