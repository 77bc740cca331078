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

// Package password holds passphrases in memory and reads them from a
// terminal, a file or the environment.
package password

import (
	"crypto/subtle"
	"errors"
)

var (
	ErrEmptyPassword  = errors.New("password cannot be empty")
	ErrPasswordZeroed = errors.New("password has been zeroed")
	ErrMismatch       = errors.New("passwords do not match")
)

// Password is a passphrase that can be wiped once used.
type Password interface {
	// Bytes returns a copy, or nil after Clear.
	Bytes() []byte
	String() (string, error)
	Clear()
}

// Secret is a Password held as cleartext bytes.
type Secret struct {
	b []byte
}

// New copies b into a Secret.
func New(b []byte) (*Secret, error) {
	if len(b) == 0 {
		return nil, ErrEmptyPassword
	}
	return &Secret{b: append([]byte(nil), b...)}, nil
}

func FromString(s string) (*Secret, error) {
	return New([]byte(s))
}

func (p *Secret) String() (string, error) {
	if p.b == nil {
		return "", ErrPasswordZeroed
	}
	return string(p.b), nil
}

func (p *Secret) Bytes() []byte {
	if p.b == nil {
		return nil
	}
	return append([]byte(nil), p.b...)
}

// Len is zero after Clear.
func (p *Secret) Len() int {
	return len(p.b)
}

func (p *Secret) Clear() {
	if p.b == nil {
		return
	}
	clear(p.b)
	subtle.ConstantTimeCopy(1, p.b, make([]byte, len(p.b)))
	p.b = nil
}

// Equal compares a and b in constant time.
func Equal(a, b Password) (bool, error) {
	ab := a.Bytes()
	if ab == nil {
		return false, ErrPasswordZeroed
	}
	defer clear(ab)

	bb := b.Bytes()
	if bb == nil {
		return false, ErrPasswordZeroed
	}
	defer clear(bb)

	return subtle.ConstantTimeCompare(ab, bb) == 1, nil
}

var _ Password = (*Secret)(nil)
