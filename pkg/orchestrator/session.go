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
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-sharevault/pkg/audit"
	"github.com/jeremyhahn/go-sharevault/pkg/bundle"
	"github.com/jeremyhahn/go-sharevault/pkg/custody"
	"github.com/jeremyhahn/go-sharevault/pkg/field"
	"github.com/jeremyhahn/go-sharevault/pkg/logging"
	"github.com/jeremyhahn/go-sharevault/pkg/metrics"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
	"github.com/jeremyhahn/go-sharevault/pkg/storage"
)

const sessionPrefix = "sessions/"

// Session is a stored payload. The key, when present, is wrapped by a
// custody provider; a raw key is never persisted.
type Session struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Threshold int               `json:"k"`
	Total     int               `json:"n"`
	Prime     field.PrimeID     `json:"prime"`
	Payload   string            `json:"payload"`
	Key       *custody.Envelope `json:"key,omitempty"`
}

// PasswordProtected reports whether the payload carries KDF parameters.
func (s *Session) PasswordProtected() bool {
	b, err := bundle.Parse(s.Payload)
	return err == nil && b.KDF != nil
}

func sessionKey(id string) string {
	return sessionPrefix + id
}

func checkSessionID(id string) error {
	u, err := uuid.Parse(id)
	if err != nil || u.String() != id {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	return nil
}

// SaveSession stores payload under the bundle id. When key is non-nil it is
// wrapped with the custody provider and stored with the session.
func (o *Orchestrator) SaveSession(ctx context.Context, payload string, key *sharecipher.Key) (s *Session, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpSessionSave, start, err) }(time.Now())

	s, err = o.saveSession(ctx, payload, key)
	o.record(ctx, o.sessionEvent(audit.EventSessionSave, err, s))
	return s, err
}

func (o *Orchestrator) saveSession(ctx context.Context, payload string, key *sharecipher.Key) (*Session, error) {
	if o.store == nil {
		return nil, ErrStorageRequired
	}
	b, err := parsePayload(payload)
	if err != nil {
		return nil, err
	}

	id := b.ID
	if checkSessionID(id) != nil {
		id = uuid.NewString()
	}
	s := &Session{
		ID:        id,
		CreatedAt: o.now().UTC(),
		Threshold: b.Threshold,
		Total:     b.Total,
		Prime:     b.Prime,
		Payload:   payload,
	}
	if key != nil {
		if s.Key, err = o.wrapKey(ctx, *key, id); err != nil {
			return nil, err
		}
	}

	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	opts := storage.DefaultOptions()
	opts.ContentType = "application/json"
	if err := o.store.Put(ctx, sessionKey(id), data, opts); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	o.refreshSessionGauge(ctx)
	o.log.InfoContext(ctx, "session saved",
		logging.String("session_id", id),
		logging.Bool("key_stored", s.Key != nil))
	return s, nil
}

// LoadSession reads a session and checks it against its payload.
func (o *Orchestrator) LoadSession(ctx context.Context, id string) (s *Session, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpSessionLoad, start, err) }(time.Now())

	s, _, err = o.loadSession(ctx, id)
	ev := o.sessionEvent(audit.EventSessionLoad, err, s)
	ev.SessionID = id
	o.record(ctx, ev)
	return s, err
}

func (o *Orchestrator) loadSession(ctx context.Context, id string) (*Session, *bundle.Bundle, error) {
	if o.store == nil {
		return nil, nil, ErrStorageRequired
	}
	if err := checkSessionID(id); err != nil {
		return nil, nil, err
	}
	data, err := o.store.Get(ctx, sessionKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, nil, fmt.Errorf("load session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrSessionCorrupt, id, err)
	}
	if s.ID != id {
		return nil, nil, fmt.Errorf("%w: %s: stored id %q", ErrSessionCorrupt, id, s.ID)
	}
	b, err := bundle.Parse(s.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrSessionCorrupt, id, err)
	}
	if b.Threshold != s.Threshold || b.Total != s.Total || b.Prime != s.Prime {
		return nil, nil, fmt.Errorf("%w: %s: session says %d-of-%d over %s, payload %d-of-%d over %s",
			ErrSessionCorrupt, id, s.Threshold, s.Total, s.Prime, b.Threshold, b.Total, b.Prime)
	}
	return &s, b, nil
}

// ListSessions returns the stored session ids in ascending order.
func (o *Orchestrator) ListSessions(ctx context.Context) ([]string, error) {
	if o.store == nil {
		return nil, ErrStorageRequired
	}
	keys, err := o.store.List(ctx, sessionPrefix)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		id := strings.TrimPrefix(k, sessionPrefix)
		if checkSessionID(id) == nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteSession removes a session.
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpSessionDelete, start, err) }(time.Now())

	err = o.deleteSession(ctx, id)
	ev := audit.NewEvent(audit.EventSessionDelete, err)
	ev.SessionID = id
	o.record(ctx, ev)
	return err
}

func (o *Orchestrator) deleteSession(ctx context.Context, id string) error {
	if o.store == nil {
		return ErrStorageRequired
	}
	if err := checkSessionID(id); err != nil {
		return err
	}
	if err := o.store.Delete(ctx, sessionKey(id)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return fmt.Errorf("delete session: %w", err)
	}
	o.refreshSessionGauge(ctx)
	o.log.InfoContext(ctx, "session deleted", logging.String("session_id", id))
	return nil
}

// RecoverSession recovers the secret of a session saved with a key.
func (o *Orchestrator) RecoverSession(ctx context.Context, id string, opts ...RecoverOption) (secret string, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpRecover, start, err) }(time.Now())

	var b, used *bundle.Bundle
	secret, b, used, err = o.recoverSession(ctx, id, newRecoverOptions(opts))
	ev := o.bundleEvent(audit.EventRecover, err, b, used)
	ev.SessionID = id
	o.record(ctx, ev)
	return secret, err
}

func (o *Orchestrator) recoverSession(ctx context.Context, id string, ro *recoverOptions) (string, *bundle.Bundle, *bundle.Bundle, error) {
	s, b, err := o.loadSession(ctx, id)
	if err != nil {
		return "", nil, nil, err
	}
	used := ro.apply(b)
	if s.Key == nil {
		return "", b, used, fmt.Errorf("%w: %s", ErrNoSessionKey, id)
	}
	key, err := o.unwrapKey(ctx, s.Key, id)
	if err != nil {
		return "", b, used, err
	}
	defer key.Wipe()

	secret, err := o.recoverBundle(ctx, b, used, key)
	return secret, b, used, err
}

func (o *Orchestrator) wrapKey(ctx context.Context, key sharecipher.Key, sessionID string) (env *custody.Envelope, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpCustodyWrap, start, err) }(time.Now())

	if o.custody == nil {
		err = ErrCustodyRequired
	} else {
		raw := key.Bytes()
		env, err = custody.Seal(ctx, o.custody, raw)
		clear(raw)
	}
	o.record(ctx, o.custodyEvent(audit.EventCustodyWrap, err, sessionID))
	return env, err
}

func (o *Orchestrator) unwrapKey(ctx context.Context, env *custody.Envelope, sessionID string) (key sharecipher.Key, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpCustodyUnwrap, start, err) }(time.Now())

	if o.custody == nil {
		err = ErrCustodyRequired
	} else {
		var raw []byte
		raw, err = custody.Open(ctx, o.custody, env)
		if err == nil {
			key, err = sharecipher.KeyFromBytes(raw)
			clear(raw)
		}
	}
	o.record(ctx, o.custodyEvent(audit.EventCustodyUnwrap, err, sessionID))
	return key, err
}

func (o *Orchestrator) refreshSessionGauge(ctx context.Context) {
	ids, err := o.ListSessions(ctx)
	if err != nil {
		o.log.WarnContext(ctx, "session count unavailable", logging.Error(err))
		return
	}
	metrics.SetSessionsStored(len(ids))
}

func (o *Orchestrator) sessionEvent(t audit.EventType, err error, s *Session) *audit.Event {
	ev := audit.NewEvent(t, err)
	if s != nil {
		ev.SessionID = s.ID
		ev.Threshold = s.Threshold
		ev.Total = s.Total
		ev.Prime = string(s.Prime)
		if s.Key != nil {
			ev.Provider = s.Key.Provider
		}
	}
	if err != nil {
		ev.Message = err.Error()
	}
	return ev
}

func (o *Orchestrator) custodyEvent(t audit.EventType, err error, sessionID string) *audit.Event {
	ev := audit.NewEvent(t, err)
	ev.SessionID = sessionID
	if o.custody != nil {
		ev.Provider = o.custody.Name()
	}
	if err != nil {
		ev.Message = err.Error()
	}
	return ev
}
