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
	"fmt"
	"math/big"

	"github.com/jeremyhahn/go-sharevault/pkg/field"
)

// Reconstructor recovers a secret from shares. It holds no mutable state.
type Reconstructor struct {
	cfg Config
}

// NewReconstructor validates cfg and returns a Reconstructor.
func NewReconstructor(cfg Config) (*Reconstructor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Reconstructor{cfg: cfg}, nil
}

// Config returns the reconstructor parameters.
func (r *Reconstructor) Config() Config {
	return r.cfg
}

// Reconstruct interpolates all supplied shares at x = 0.
func (r *Reconstructor) Reconstruct(shares []Share) (*big.Int, error) {
	if err := r.check(shares); err != nil {
		return nil, err
	}
	return interpolate(r.cfg.Field, shares, new(big.Int))
}

// ReconstructBytes reconstructs and decodes a secret produced by
// Splitter.SplitBytes.
func (r *Reconstructor) ReconstructBytes(shares []Share) ([]byte, error) {
	v, err := r.Reconstruct(shares)
	if err != nil {
		return nil, err
	}
	defer field.Zeroize(v)

	secret, err := r.cfg.Field.DecodeSecret(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPolynomialEvaluation, err)
	}
	return secret, nil
}

func (r *Reconstructor) check(shares []Share) error {
	f := r.cfg.Field
	seen := make(map[int]struct{}, len(shares))
	for _, s := range shares {
		if s.Index < 1 || s.Index > r.cfg.Total {
			return fmt.Errorf("%w: index %d outside [1, %d]", ErrMalformedShare, s.Index, r.cfg.Total)
		}
		if !f.Contains(s.Value) {
			return fmt.Errorf("%w: index %d value is not an element of %s", ErrMalformedShare, s.Index, f.ID())
		}
		if _, dup := seen[s.Index]; dup {
			return fmt.Errorf("%w: index %d", ErrDuplicateShareIndex, s.Index)
		}
		seen[s.Index] = struct{}{}
	}
	if len(shares) < r.cfg.Threshold {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientShares, len(shares), r.cfg.Threshold)
	}
	return nil
}

// interpolate evaluates the Lagrange polynomial through shares at x.
func interpolate(f *field.Field, shares []Share, x *big.Int) (*big.Int, error) {
	result := new(big.Int)
	for i, si := range shares {
		xi := big.NewInt(int64(si.Index))
		num := big.NewInt(1)
		den := big.NewInt(1)
		for j, sj := range shares {
			if i == j {
				continue
			}
			xj := big.NewInt(int64(sj.Index))
			num = f.Mul(num, f.Sub(x, xj))
			den = f.Mul(den, f.Sub(xi, xj))
		}

		basis, err := f.Div(num, den)
		if err != nil {
			return nil, fmt.Errorf("%w: basis for index %d: %w", ErrPolynomialEvaluation, si.Index, err)
		}
		result = f.Add(result, f.Mul(si.Value, basis))
	}
	return result, nil
}
