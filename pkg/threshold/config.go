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

	"github.com/jeremyhahn/go-sharevault/pkg/field"
)

// MaxShares bounds N and every share index.
const MaxShares = 255

// Config holds the parameters of one sharing instance.
type Config struct {
	// Threshold is K, the number of shares required to reconstruct.
	Threshold int

	// Total is N, the number of shares produced.
	Total int

	// Field is the prime field the polynomial is defined over.
	Field *field.Field
}

// NewConfig validates k, n and f and returns the resulting Config.
func NewConfig(k, n int, f *field.Field) (Config, error) {
	cfg := Config{Threshold: k, Total: n, Field: f}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that 1 <= K <= N <= MaxShares and a field is set.
func (c Config) Validate() error {
	if c.Field == nil {
		return fmt.Errorf("%w: field is required", ErrInvalidThreshold)
	}
	if c.Threshold < 1 {
		return fmt.Errorf("%w: threshold must be at least 1, got %d", ErrInvalidThreshold, c.Threshold)
	}
	if c.Total < c.Threshold {
		return fmt.Errorf("%w: total shares (%d) must be >= threshold (%d)",
			ErrInvalidThreshold, c.Total, c.Threshold)
	}
	if c.Total > MaxShares {
		return fmt.Errorf("%w: total shares must be at most %d, got %d",
			ErrInvalidThreshold, MaxShares, c.Total)
	}
	return nil
}
