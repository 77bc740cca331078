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
	"errors"
	"fmt"
)

var (
	// ErrInvalidThreshold is returned for K/N outside 1 <= K <= N <= MaxShares,
	// a missing field, or a secret that is not a field element.
	ErrInvalidThreshold = errors.New("threshold: invalid threshold parameters")

	// ErrInsufficientShares is returned when fewer than K distinct shares
	// are supplied.
	ErrInsufficientShares = errors.New("threshold: insufficient shares")

	// ErrDuplicateShareIndex is returned when two shares carry the same index.
	ErrDuplicateShareIndex = errors.New("threshold: duplicate share index")

	// ErrPolynomialEvaluation is returned when interpolation cannot complete
	// or its result is not an encoded secret.
	ErrPolynomialEvaluation = errors.New("threshold: polynomial evaluation failed")

	// ErrMalformedShare is returned for a share whose index or value is
	// outside the configured domain. It matches ErrPolynomialEvaluation.
	ErrMalformedShare = fmt.Errorf("%w: malformed share", ErrPolynomialEvaluation)

	// ErrMalformedShareText is returned when share text cannot be decoded.
	ErrMalformedShareText = errors.New("threshold: malformed share text")
)
