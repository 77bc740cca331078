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
	"sync"
	"time"
)

// DefaultMemoryCapacity bounds a MemoryRecorder created with capacity 0.
const DefaultMemoryCapacity = 10000

// Query filters events returned by MemoryRecorder.Events. Zero fields match
// everything.
type Query struct {
	Types    []EventType
	Outcome  Outcome
	BundleID string
	Since    time.Time
	Limit    int
}

func (q *Query) match(e *Event) bool {
	if q == nil {
		return true
	}
	if len(q.Types) > 0 {
		found := false
		for _, t := range q.Types {
			if t == e.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Outcome != "" && q.Outcome != e.Outcome {
		return false
	}
	if q.BundleID != "" && q.BundleID != e.BundleID {
		return false
	}
	if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
		return false
	}
	return true
}

// MemoryRecorder keeps the most recent events in memory, dropping the
// oldest once capacity is reached.
type MemoryRecorder struct {
	mu       sync.RWMutex
	events   []*Event
	capacity int
	dropped  int64
	now      func() time.Time
}

// NewMemoryRecorder returns a recorder holding at most capacity events.
func NewMemoryRecorder(capacity int) *MemoryRecorder {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryRecorder{capacity: capacity, now: time.Now}
}

// Record stores a copy of e.
func (m *MemoryRecorder) Record(ctx context.Context, e *Event) error {
	if e == nil {
		return ErrNilEvent
	}
	prepare(ctx, e, m.now)
	cp := *e
	cp.Shares = append([]int(nil), e.Shares...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == m.capacity {
		m.events[0] = nil
		m.events = m.events[1:]
		m.dropped++
	}
	m.events = append(m.events, &cp)
	return nil
}

// Events returns matching events, newest first.
func (m *MemoryRecorder) Events(q *Query) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Event, 0)
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if !q.match(e) {
			continue
		}
		out = append(out, *e)
		if q != nil && q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}

// Get returns the event with id.
func (m *MemoryRecorder) Get(id string) (Event, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.events {
		if e.ID == id {
			return *e, true
		}
	}
	return Event{}, false
}

// Stats counts stored events by type and outcome.
type Stats struct {
	Total     int               `json:"total"`
	Dropped   int64             `json:"dropped"`
	ByType    map[EventType]int `json:"by_type"`
	ByOutcome map[Outcome]int   `json:"by_outcome"`
}

func (m *MemoryRecorder) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Total:     len(m.events),
		Dropped:   m.dropped,
		ByType:    make(map[EventType]int),
		ByOutcome: make(map[Outcome]int),
	}
	for _, e := range m.events {
		s.ByType[e.Type]++
		s.ByOutcome[e.Outcome]++
	}
	return s
}

// Reset removes every stored event.
func (m *MemoryRecorder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	m.dropped = 0
}
