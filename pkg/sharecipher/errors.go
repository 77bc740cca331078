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

package sharecipher

import "errors"

var (
	// ErrAuthenticationFailure is returned when a token fails AEAD
	// verification: wrong key, or ciphertext, tag or header modified.
	ErrAuthenticationFailure = errors.New("sharecipher: authentication failed")

	// ErrExpiredOrMalformed is returned when a token cannot be parsed or its
	// authenticated timestamp is outside the accepted window.
	ErrExpiredOrMalformed = errors.New("sharecipher: token expired or malformed")

	// ErrInvalidKey is returned for key material of the wrong size.
	ErrInvalidKey = errors.New("sharecipher: invalid key")

	// ErrUnsupportedAlgorithm is returned for an unknown AEAD or KDF name.
	ErrUnsupportedAlgorithm = errors.New("sharecipher: unsupported algorithm")

	// ErrInvalidKDFParams is returned when key derivation parameters are
	// below the accepted minimums.
	ErrInvalidKDFParams = errors.New("sharecipher: invalid key derivation parameters")
)
