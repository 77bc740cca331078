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

import "errors"

var (
	// ErrNotInvertible is returned when an element has no multiplicative
	// inverse. Over a prime field this only happens for zero.
	ErrNotInvertible = errors.New("field: element is not invertible")

	// ErrUnknownPrime is returned for a PrimeID that is not registered.
	ErrUnknownPrime = errors.New("field: unknown prime id")

	// ErrSecretTooLarge is returned when the encoded secret is not below p.
	ErrSecretTooLarge = errors.New("field: secret does not fit in field")

	// ErrInvalidEncoding is returned when an element does not carry the
	// secret sentinel byte.
	ErrInvalidEncoding = errors.New("field: element is not an encoded secret")

	// ErrOutOfRange is returned for byte strings that do not describe an
	// element in [0, p).
	ErrOutOfRange = errors.New("field: element out of range")
)
