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

// Package bundle defines the canonical payload that carries a set of
// encrypted shares together with the parameters needed to recombine them.
//
// The payload is compact JSON with a fixed field order and entries sorted by
// share index:
//
//	{"v":1,"id":"…","k":3,"n":5,"prime":"p256","s":[{"i":1,"c":"…"}]}
//
// Parse and Serialize are inverses: Serialize(Parse(p)) == p for every
// payload produced by Serialize.
package bundle

import (
	"fmt"
	"sort"

	"github.com/jeremyhahn/go-sharevault/pkg/field"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
	"github.com/jeremyhahn/go-sharevault/pkg/threshold"
)

// Version is the only payload format version written and read.
const Version = 1

// Entry is one encrypted share.
type Entry struct {
	Index      int    `json:"i"`
	Ciphertext string `json:"c"`
}

// KDF records how a password derived key was produced. Salt is not secret.
type KDF struct {
	sharecipher.KDFParams
	Salt []byte `json:"salt"`
}

// Bundle is the decoded form of a payload.
type Bundle struct {
	Version   int
	ID        string
	Threshold int
	Total     int
	Prime     field.PrimeID
	KDF       *KDF
	Entries   []Entry
}

// New returns a version 1 bundle with entries sorted by index.
func New(id string, k, n int, prime field.PrimeID, entries []Entry) *Bundle {
	b := &Bundle{
		Version:   Version,
		ID:        id,
		Threshold: k,
		Total:     n,
		Prime:     prime,
		Entries:   append([]Entry(nil), entries...),
	}
	b.sortEntries()
	return b
}

// Field returns the prime field named by the bundle.
func (b *Bundle) Field() (*field.Field, error) {
	f, err := field.New(b.Prime)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBundle, err)
	}
	return f, nil
}

// ThresholdConfig returns the sharing parameters of the bundle.
func (b *Bundle) ThresholdConfig() (threshold.Config, error) {
	f, err := b.Field()
	if err != nil {
		return threshold.Config{}, err
	}
	return threshold.NewConfig(b.Threshold, b.Total, f)
}

// Indices returns the share indices present, ascending.
func (b *Bundle) Indices() []int {
	out := make([]int, len(b.Entries))
	for i, e := range b.Entries {
		out[i] = e.Index
	}
	sort.Ints(out)
	return out
}

// Subset returns a copy of b carrying only the listed indices. Unknown
// indices are ignored. The result is a recovery working set and is rejected
// by Validate unless it still holds all Total entries.
func (b *Bundle) Subset(indices ...int) *Bundle {
	want := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		want[i] = struct{}{}
	}
	c := *b
	c.Entries = nil
	for _, e := range b.Entries {
		if _, ok := want[e.Index]; ok {
			c.Entries = append(c.Entries, e)
		}
	}
	if b.KDF != nil {
		kdf := *b.KDF
		kdf.Salt = append([]byte(nil), b.KDF.Salt...)
		c.KDF = &kdf
	}
	return &c
}

// Validate applies the structural checks performed by Parse.
func (b *Bundle) Validate() error {
	if b.Version != Version {
		return fmt.Errorf("%w: %d", ErrUnsupportedFormatVersion, b.Version)
	}
	if b.Threshold < 1 {
		return fmt.Errorf("%w: threshold must be at least 1, got %d", ErrMalformedBundle, b.Threshold)
	}
	if b.Total < 1 || b.Total > threshold.MaxShares {
		return fmt.Errorf("%w: total must be in [1, %d], got %d", ErrMalformedBundle, threshold.MaxShares, b.Total)
	}
	if _, err := field.New(b.Prime); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedBundle, err)
	}
	if b.KDF != nil {
		if err := b.KDF.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedBundle, err)
		}
		if len(b.KDF.Salt) < sharecipher.SaltSize {
			return fmt.Errorf("%w: kdf salt must be at least %d bytes", ErrMalformedBundle, sharecipher.SaltSize)
		}
	}

	seen := make(map[int]struct{}, len(b.Entries))
	for _, e := range b.Entries {
		if e.Index < 1 || e.Index > b.Total {
			return fmt.Errorf("%w: share index %d outside [1, %d]", ErrMalformedBundle, e.Index, b.Total)
		}
		if e.Ciphertext == "" {
			return fmt.Errorf("%w: share %d has empty ciphertext", ErrMalformedBundle, e.Index)
		}
		if _, dup := seen[e.Index]; dup {
			return fmt.Errorf("%w: duplicate share index %d", ErrMalformedBundle, e.Index)
		}
		seen[e.Index] = struct{}{}
	}

	if b.Threshold > len(b.Entries) {
		return fmt.Errorf("%w: threshold %d, %d shares present", ErrThresholdMismatch, b.Threshold, len(b.Entries))
	}
	// A stored bundle carries every share it was split into.
	if len(b.Entries) != b.Total {
		return fmt.Errorf("%w: %d shares present, total is %d", ErrMalformedBundle, len(b.Entries), b.Total)
	}
	return nil
}

func (b *Bundle) sortEntries() {
	sort.SliceStable(b.Entries, func(i, j int) bool {
		return b.Entries[i].Index < b.Entries[j].Index
	})
}
