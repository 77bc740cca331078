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
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/jeremyhahn/go-sharevault/pkg/field"
)

// Splitter produces shares of a secret. It is safe for concurrent use when
// its random source is.
type Splitter struct {
	cfg  Config
	rand io.Reader
}

// SplitterOption customizes a Splitter.
type SplitterOption func(*Splitter)

// WithRandom sets the source of polynomial coefficients. The default is
// crypto/rand.
func WithRandom(r io.Reader) SplitterOption {
	return func(s *Splitter) {
		if r != nil {
			s.rand = r
		}
	}
}

// NewSplitter validates cfg and returns a Splitter.
func NewSplitter(cfg Config, opts ...SplitterOption) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Splitter{cfg: cfg, rand: rand.Reader}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the splitter parameters.
func (s *Splitter) Config() Config {
	return s.cfg
}

// Split shares secret, which must be an element of the field, into N
// shares at x = 1..N.
func (s *Splitter) Split(secret *big.Int) ([]Share, error) {
	f := s.cfg.Field
	if !f.Contains(secret) {
		return nil, fmt.Errorf("%w: secret is not an element of %s", ErrInvalidThreshold, f.ID())
	}

	coeffs := make([]*big.Int, s.cfg.Threshold)
	coeffs[0] = new(big.Int).Set(secret)
	defer func() {
		for _, c := range coeffs {
			field.Zeroize(c)
		}
	}()

	for i := 1; i < len(coeffs); i++ {
		c, err := f.Random(s.rand)
		if err != nil {
			return nil, fmt.Errorf("threshold: generate coefficient: %w", err)
		}
		coeffs[i] = c
	}

	shares := make([]Share, s.cfg.Total)
	for i := range shares {
		x := big.NewInt(int64(i + 1))
		shares[i] = Share{Index: i + 1, Value: evaluate(f, coeffs, x)}
	}
	return shares, nil
}

// SplitBytes encodes secret as a field element and splits it.
func (s *Splitter) SplitBytes(secret []byte) ([]Share, error) {
	v, err := s.cfg.Field.EncodeSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidThreshold, err)
	}
	defer field.Zeroize(v)
	return s.Split(v)
}

// evaluate computes the polynomial at x using Horner's method.
func evaluate(f *field.Field, coeffs []*big.Int, x *big.Int) *big.Int {
	result := new(big.Int)
	for i := len(coeffs) - 1; i >= 0; i-- {
		result = f.Add(f.Mul(result, x), coeffs[i])
	}
	return result
}
