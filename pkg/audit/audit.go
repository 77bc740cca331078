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

// Package audit records security relevant events of the sharing pipeline.
// Events carry bundle metadata, outcomes and error classifications, never
// secrets, share values or key material.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-sharevault/pkg/correlation"
	"github.com/jeremyhahn/go-sharevault/pkg/errcode"
)

// EventType categorizes an event.
type EventType string

const (
	EventProtect       EventType = "bundle.protect"
	EventRecover       EventType = "bundle.recover"
	EventVerify        EventType = "bundle.verify"
	EventSessionSave   EventType = "session.save"
	EventSessionLoad   EventType = "session.load"
	EventSessionDelete EventType = "session.delete"
	EventKeyGenerate   EventType = "key.generate"
	EventKeyDerive     EventType = "key.derive"
	EventCustodyWrap   EventType = "custody.wrap"
	EventCustodyUnwrap EventType = "custody.unwrap"
)

// Outcome is the result of the audited operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Event is one audit entry.
type Event struct {
	ID            string       `json:"id"`
	Timestamp     time.Time    `json:"ts"`
	Type          EventType    `json:"type"`
	Outcome       Outcome      `json:"outcome"`
	Code          errcode.Code `json:"code,omitempty"`
	Principal     string       `json:"principal,omitempty"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	BundleID      string       `json:"bundle_id,omitempty"`
	SessionID     string       `json:"session_id,omitempty"`
	Threshold     int          `json:"k,omitempty"`
	Total         int          `json:"n,omitempty"`
	Prime         string       `json:"prime,omitempty"`
	Shares        []int        `json:"shares,omitempty"`
	Provider      string       `json:"provider,omitempty"`
	Message       string       `json:"message,omitempty"`
}

// Recorder persists events. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
}

// ErrNilEvent is returned when Record is called without an event.
var ErrNilEvent = errors.New("audit: nil event")

// NewEvent returns an event of type t whose outcome and code follow err.
// Rate limiting errors classify as denied.
func NewEvent(t EventType, err error) *Event {
	e := &Event{Type: t, Outcome: OutcomeSuccess}
	if err != nil {
		e.Outcome = OutcomeFailure
		e.Code = errcode.Of(err)
		if e.Code == errcode.RateLimited {
			e.Outcome = OutcomeDenied
		}
	}
	return e
}

// prepare fills ID, Timestamp and CorrelationID when unset.
func prepare(ctx context.Context, e *Event, now func() time.Time) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now().UTC()
	}
	if e.CorrelationID == "" && ctx != nil {
		e.CorrelationID = correlation.GetCorrelationID(ctx)
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, *Event) error { return nil }

// Multi fans an event out to every recorder and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, e *Event) error {
	if e == nil {
		return ErrNilEvent
	}
	prepare(ctx, e, time.Now)
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
