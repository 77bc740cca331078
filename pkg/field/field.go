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

package field

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"sort"
)

// PrimeID names a registered prime modulus.
type PrimeID string

const (
	P256  PrimeID = "p256"
	P384  PrimeID = "p384"
	M521  PrimeID = "m521"
	M1279 PrimeID = "m1279"
	M4253 PrimeID = "m4253"
	M9689 PrimeID = "m9689"

	// DefaultPrimeID is the field used when none is configured.
	DefaultPrimeID = P256
)

var one = big.NewInt(1)

// Field is a prime field GF(p). A Field is immutable and safe for
// concurrent use.
type Field struct {
	id   PrimeID
	p    *big.Int
	size int
}

var (
	registry = map[PrimeID]*Field{}
	ordered  []*Field
)

func init() {
	// 2^256 - 2^224 + 2^192 + 2^96 - 1
	p256 := pow2(256)
	p256.Sub(p256, pow2(224))
	p256.Add(p256, pow2(192))
	p256.Add(p256, pow2(96))
	p256.Sub(p256, one)
	register(P256, p256)

	// 2^384 - 2^128 - 2^96 + 2^32 - 1
	p384 := pow2(384)
	p384.Sub(p384, pow2(128))
	p384.Sub(p384, pow2(96))
	p384.Add(p384, pow2(32))
	p384.Sub(p384, one)
	register(P384, p384)

	register(M521, mersenne(521))
	register(M1279, mersenne(1279))
	register(M4253, mersenne(4253))
	register(M9689, mersenne(9689))

	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].p.Cmp(ordered[j].p) < 0
	})
}

func pow2(e uint) *big.Int {
	return new(big.Int).Lsh(one, e)
}

func mersenne(e uint) *big.Int {
	p := pow2(e)
	return p.Sub(p, one)
}

func register(id PrimeID, p *big.Int) {
	f := &Field{
		id:   id,
		p:    p,
		size: (p.BitLen() + 7) / 8,
	}
	registry[id] = f
	ordered = append(ordered, f)
}

// New returns the registered field for id.
func New(id PrimeID) (*Field, error) {
	f, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPrime, id)
	}
	return f, nil
}

// MustNew is like New but panics on an unknown id. Intended for
// package-level variables and tests.
func MustNew(id PrimeID) *Field {
	f, err := New(id)
	if err != nil {
		panic(err)
	}
	return f
}

// IDs returns the registered prime ids ordered by modulus size.
func IDs() []PrimeID {
	ids := make([]PrimeID, len(ordered))
	for i, f := range ordered {
		ids[i] = f.id
	}
	return ids
}

// ForSecretLength returns the smallest registered field able to encode
// every secret of n bytes.
func ForSecretLength(n int) (*Field, error) {
	for _, f := range ordered {
		if n <= f.MaxSecretLength() {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %d bytes exceeds largest field capacity of %d bytes",
		ErrSecretTooLarge, n, ordered[len(ordered)-1].MaxSecretLength())
}

// ID returns the registry id of the field.
func (f *Field) ID() PrimeID {
	return f.id
}

// Prime returns a copy of the modulus.
func (f *Field) Prime() *big.Int {
	return new(big.Int).Set(f.p)
}

// Bits returns the bit length of the modulus.
func (f *Field) Bits() int {
	return f.p.BitLen()
}

// ElementSize returns the fixed serialized width of an element in bytes.
func (f *Field) ElementSize() int {
	return f.size
}

// Contains reports whether x is a canonical element, 0 <= x < p.
func (f *Field) Contains(x *big.Int) bool {
	return x != nil && x.Sign() >= 0 && x.Cmp(f.p) < 0
}

// Reduce returns x mod p.
func (f *Field) Reduce(x *big.Int) *big.Int {
	return new(big.Int).Mod(x, f.p)
}

// Add returns a + b mod p.
func (f *Field) Add(a, b *big.Int) *big.Int {
	r := new(big.Int).Add(a, b)
	return r.Mod(r, f.p)
}

// Sub returns a - b mod p.
func (f *Field) Sub(a, b *big.Int) *big.Int {
	r := new(big.Int).Sub(a, b)
	return r.Mod(r, f.p)
}

// Mul returns a * b mod p.
func (f *Field) Mul(a, b *big.Int) *big.Int {
	r := new(big.Int).Mul(a, b)
	return r.Mod(r, f.p)
}

// Neg returns -a mod p.
func (f *Field) Neg(a *big.Int) *big.Int {
	r := new(big.Int).Neg(a)
	return r.Mod(r, f.p)
}

// Inverse returns a^-1 mod p.
func (f *Field) Inverse(a *big.Int) (*big.Int, error) {
	r := f.Reduce(a)
	if r.Sign() == 0 {
		return nil, ErrNotInvertible
	}
	if r.ModInverse(r, f.p) == nil {
		return nil, ErrNotInvertible
	}
	return r, nil
}

// Div returns a / b mod p.
func (f *Field) Div(a, b *big.Int) (*big.Int, error) {
	inv, err := f.Inverse(b)
	if err != nil {
		return nil, err
	}
	return f.Mul(a, inv), nil
}

// Random returns a uniformly random element read from r. A nil reader
// selects crypto/rand.
func (f *Field) Random(r io.Reader) (*big.Int, error) {
	if r == nil {
		r = rand.Reader
	}
	x, err := rand.Int(r, f.p)
	if err != nil {
		return nil, fmt.Errorf("field: random element: %w", err)
	}
	return x, nil
}

// Bytes serializes x at the fixed element width. x must be in the field.
func (f *Field) Bytes(x *big.Int) ([]byte, error) {
	if !f.Contains(x) {
		return nil, ErrOutOfRange
	}
	return x.FillBytes(make([]byte, f.size)), nil
}

// SetBytes parses a fixed width big-endian element.
func (f *Field) SetBytes(b []byte) (*big.Int, error) {
	if len(b) != f.size {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrOutOfRange, f.size, len(b))
	}
	x := new(big.Int).SetBytes(b)
	if x.Cmp(f.p) >= 0 {
		return nil, ErrOutOfRange
	}
	return x, nil
}

// Zeroize overwrites the limbs of x and sets it to zero.
func Zeroize(x *big.Int) {
	if x == nil {
		return
	}
	words := x.Bits()
	for i := range words {
		words[i] = 0
	}
	x.SetInt64(0)
}
