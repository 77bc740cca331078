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

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// KeySize is the size of a share encryption key in bytes.
const KeySize = 32

// Key is a 256-bit share encryption key. The zero Key is not a valid key.
type Key [KeySize]byte

// GenerateKey returns a key read from crypto/rand.
func GenerateKey() (Key, error) {
	return GenerateKeyFrom(rand.Reader)
}

// GenerateKeyFrom returns a key read from r.
func GenerateKeyFrom(r io.Reader) (Key, error) {
	var k Key
	if _, err := io.ReadFull(r, k[:]); err != nil {
		return Key{}, fmt.Errorf("sharecipher: generate key: %w", err)
	}
	return k, nil
}

// KeyFromBytes copies b into a Key. b must be exactly KeySize bytes.
func KeyFromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != KeySize {
		return k, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, KeySize, len(b))
	}
	copy(k[:], b)
	if k.IsZero() {
		return Key{}, fmt.Errorf("%w: all-zero key", ErrInvalidKey)
	}
	return k, nil
}

// ParseKey decodes the text form produced by Key.Encode. Padded and
// unpadded URL-safe base64 are both accepted.
func ParseKey(s string) (Key, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	defer clear(raw)
	return KeyFromBytes(raw)
}

// Encode returns the key as unpadded URL-safe base64.
func (k Key) Encode() string {
	return base64.RawURLEncoding.EncodeToString(k[:])
}

// Bytes returns a copy of the key material.
func (k Key) Bytes() []byte {
	out := make([]byte, KeySize)
	copy(out, k[:])
	return out
}

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool {
	var zero Key
	return subtle.ConstantTimeCompare(k[:], zero[:]) == 1
}

// Equal compares two keys in constant time.
func (k Key) Equal(o Key) bool {
	return subtle.ConstantTimeCompare(k[:], o[:]) == 1
}

// ID returns a short identifier derived from the key. It is safe to log.
func (k Key) ID() string {
	sum := sha256.Sum256(append([]byte("sharevault/key-id\x00"), k[:]...))
	return hex.EncodeToString(sum[:8])
}

// String implements fmt.Stringer without revealing key material.
func (k Key) String() string {
	return "Key(" + k.ID() + ")"
}

// GoString implements fmt.GoStringer without revealing key material.
func (k Key) GoString() string {
	return k.String()
}

// Wipe zeroes the key.
func (k *Key) Wipe() {
	clear(k[:])
}
