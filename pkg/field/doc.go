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

// Package field implements arithmetic over large prime fields for threshold
// secret sharing.
//
// # Prime Registry
//
// Fields are identified by a PrimeID so that a serialized bundle can name the
// modulus it was produced under without carrying the prime itself:
//
//	p256   2^256 - 2^224 + 2^192 + 2^96 - 1   (default)
//	p384   2^384 - 2^128 - 2^96 + 2^32 - 1
//	m521   2^521 - 1
//	m1279  2^1279 - 1
//	m4253  2^4253 - 1
//	m9689  2^9689 - 1
//
// All values are math/big integers reduced modulo p. Elements serialize at a
// fixed width of ElementSize bytes, big-endian.
//
// # Secret Encoding
//
// A byte string is mapped to a single field element by prefixing a 0x01
// sentinel byte and reading the result as a big-endian integer. The mapping
// is injective (leading zero bytes of the secret survive) and a secret whose
// encoding does not fit below p is rejected with ErrSecretTooLarge rather
// than reduced. ForSecretLength picks the smallest registered field that
// can hold a secret of a given length.
//
// # Usage Example
//
//	f := field.MustNew(field.P256)
//	v, err := f.EncodeSecret([]byte("https://example.com/v.mp4"))
//	if err != nil {
//	    return err
//	}
//	inv, err := f.Inverse(v)
package field
