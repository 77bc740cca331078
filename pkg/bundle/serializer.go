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

package bundle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-sharevault/pkg/field"
)

// payload is the wire form. Field order here is the canonical order.
type payload struct {
	Version int     `json:"v"`
	ID      string  `json:"id,omitempty"`
	K       int     `json:"k"`
	N       int     `json:"n"`
	Prime   string  `json:"prime"`
	KDF     *KDF    `json:"kdf,omitempty"`
	Shares  []Entry `json:"s"`
}

// Serialize validates b and returns its canonical payload.
func Serialize(b *Bundle) (string, error) {
	if b == nil {
		return "", fmt.Errorf("%w: nil bundle", ErrMalformedBundle)
	}
	if err := b.Validate(); err != nil {
		return "", err
	}

	c := *b
	c.Entries = append([]Entry(nil), b.Entries...)
	c.sortEntries()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(payload{
		Version: c.Version,
		ID:      c.ID,
		K:       c.Threshold,
		N:       c.Total,
		Prime:   string(c.Prime),
		KDF:     c.KDF,
		Shares:  c.Entries,
	})
	if err != nil {
		return "", fmt.Errorf("bundle: encode: %w", err)
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// Parse decodes and validates a payload. Errors are checked in this order:
// unreadable JSON or missing version, unsupported version, unknown fields,
// structural problems, too few shares for the threshold, too many shares
// for the total.
func Parse(data string) (*Bundle, error) {
	var probe struct {
		Version *int `json:"v"`
	}
	if err := json.Unmarshal([]byte(data), &probe); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBundle, err)
	}
	if probe.Version == nil {
		return nil, fmt.Errorf("%w: missing version", ErrMalformedBundle)
	}
	if *probe.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormatVersion, *probe.Version)
	}

	var p payload
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBundle, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data", ErrMalformedBundle)
	}

	b := &Bundle{
		Version:   p.Version,
		ID:        p.ID,
		Threshold: p.K,
		Total:     p.N,
		Prime:     field.PrimeID(p.Prime),
		KDF:       p.KDF,
		Entries:   p.Shares,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	b.sortEntries()
	return b, nil
}
