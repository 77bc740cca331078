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
	"math/big"
	"sort"

	"github.com/jeremyhahn/go-sharevault/pkg/field"
)

// Share is one point (Index, Value) of the sharing polynomial.
type Share struct {
	Index int
	Value *big.Int
}

// Clone returns a deep copy of s.
func (s Share) Clone() Share {
	c := Share{Index: s.Index}
	if s.Value != nil {
		c.Value = new(big.Int).Set(s.Value)
	}
	return c
}

// Equal reports whether two shares have the same index and value.
func (s Share) Equal(o Share) bool {
	if s.Index != o.Index {
		return false
	}
	if s.Value == nil || o.Value == nil {
		return s.Value == o.Value
	}
	return s.Value.Cmp(o.Value) == 0
}

// Wipe zeroes the share value.
func (s *Share) Wipe() {
	field.Zeroize(s.Value)
}

// Indices returns the indices of shares in ascending order.
func Indices(shares []Share) []int {
	out := make([]int, len(shares))
	for i, s := range shares {
		out[i] = s.Index
	}
	sort.Ints(out)
	return out
}

// Select returns the shares whose index is listed in indices, preserving
// the order of indices. Unknown indices are skipped.
func Select(shares []Share, indices ...int) []Share {
	byIndex := make(map[int]Share, len(shares))
	for _, s := range shares {
		byIndex[s.Index] = s
	}
	out := make([]Share, 0, len(indices))
	for _, idx := range indices {
		if s, ok := byIndex[idx]; ok {
			out = append(out, s)
		}
	}
	return out
}
