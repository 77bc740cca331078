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

package threshold

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/jeremyhahn/go-sharevault/pkg/field"
)

// Codec converts shares to and from their text form
//
//	<index>:<value>
//
// where index is a decimal integer without leading zeros and value is the
// lowercase hex of the fixed-width big-endian field element. The text form
// is canonical: Encode(Decode(t)) == t for every accepted t.
type Codec struct {
	field *field.Field
}

// NewCodec returns a Codec for shares over f.
func NewCodec(f *field.Field) (*Codec, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: field is required", ErrInvalidThreshold)
	}
	return &Codec{field: f}, nil
}

// Encode returns the text form of s.
func (c *Codec) Encode(s Share) (string, error) {
	if s.Index < 1 || s.Index > MaxShares {
		return "", fmt.Errorf("%w: index %d", ErrMalformedShare, s.Index)
	}
	b, err := c.field.Bytes(s.Value)
	if err != nil {
		return "", fmt.Errorf("%w: index %d: %w", ErrMalformedShare, s.Index, err)
	}
	return strconv.Itoa(s.Index) + ":" + hex.EncodeToString(b), nil
}

// Decode parses the text form of a share.
func (c *Codec) Decode(text string) (Share, error) {
	idxText, valText, ok := strings.Cut(text, ":")
	if !ok {
		return Share{}, fmt.Errorf("%w: missing separator", ErrMalformedShareText)
	}

	idx, err := parseIndex(idxText)
	if err != nil {
		return Share{}, err
	}

	if len(valText) != 2*c.field.ElementSize() {
		return Share{}, fmt.Errorf("%w: value must be %d hex digits, got %d",
			ErrMalformedShareText, 2*c.field.ElementSize(), len(valText))
	}
	if strings.ToLower(valText) != valText {
		return Share{}, fmt.Errorf("%w: value must be lowercase hex", ErrMalformedShareText)
	}
	raw, err := hex.DecodeString(valText)
	if err != nil {
		return Share{}, fmt.Errorf("%w: %w", ErrMalformedShareText, err)
	}
	defer clear(raw)

	v, err := c.field.SetBytes(raw)
	if err != nil {
		return Share{}, fmt.Errorf("%w: %w", ErrMalformedShareText, err)
	}
	return Share{Index: idx, Value: v}, nil
}

// EncodeAll encodes shares in order.
func (c *Codec) EncodeAll(shares []Share) ([]string, error) {
	out := make([]string, len(shares))
	for i, s := range shares {
		t, err := c.Encode(s)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// DecodeAll decodes texts in order.
func (c *Codec) DecodeAll(texts []string) ([]Share, error) {
	out := make([]Share, len(texts))
	for i, t := range texts {
		s, err := c.Decode(t)
		if err != nil {
			return nil, fmt.Errorf("share %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

func parseIndex(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty index", ErrMalformedShareText)
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("%w: index has leading zeros", ErrMalformedShareText)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: index %q is not decimal", ErrMalformedShareText, s)
		}
	}
	idx, err := strconv.Atoi(s)
	if err != nil || idx < 1 || idx > MaxShares {
		return 0, fmt.Errorf("%w: index %q outside [1, %d]", ErrMalformedShareText, s, MaxShares)
	}
	return idx, nil
}
