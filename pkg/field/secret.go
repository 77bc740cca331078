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
	"fmt"
	"math/big"
)

// secretSentinel prefixes every encoded secret so that leading zero bytes
// are preserved and the empty secret maps to a nonzero element.
const secretSentinel = 0x01

// MaxSecretLength returns the largest secret length, in bytes, that always
// encodes below p.
func (f *Field) MaxSecretLength() int {
	// 0x01 followed by n bytes is < 2^(8n+1), which is <= 2^(bits-1) <= p.
	return (f.p.BitLen() - 2) / 8
}

// EncodeSecret maps secret to a single field element.
func (f *Field) EncodeSecret(secret []byte) (*big.Int, error) {
	buf := make([]byte, len(secret)+1)
	buf[0] = secretSentinel
	copy(buf[1:], secret)
	defer clear(buf)

	x := new(big.Int).SetBytes(buf)
	if x.Cmp(f.p) >= 0 {
		Zeroize(x)
		return nil, fmt.Errorf("%w: %d byte secret, %s holds at most %d bytes",
			ErrSecretTooLarge, len(secret), f.id, f.MaxSecretLength())
	}
	return x, nil
}

// DecodeSecret reverses EncodeSecret.
func (f *Field) DecodeSecret(x *big.Int) ([]byte, error) {
	if !f.Contains(x) {
		return nil, ErrOutOfRange
	}
	b := x.Bytes()
	if len(b) == 0 || b[0] != secretSentinel {
		return nil, ErrInvalidEncoding
	}
	out := make([]byte, len(b)-1)
	copy(out, b[1:])
	clear(b)
	return out, nil
}
