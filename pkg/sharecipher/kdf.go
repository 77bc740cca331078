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
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// KDFAlgorithm names a password based key derivation function.
type KDFAlgorithm string

const (
	KDFArgon2id     KDFAlgorithm = "argon2id"
	KDFPBKDF2SHA256 KDFAlgorithm = "pbkdf2-sha256"
)

const (
	// SaltSize is the size of generated salts and the minimum accepted salt.
	SaltSize = 16

	DefaultArgon2Time    = 3
	DefaultArgon2Memory  = 64 * 1024 // KiB
	DefaultArgon2Threads = 4

	DefaultPBKDF2Iterations = 600000

	// MinArgon2Memory is the minimum memory cost in KiB.
	MinArgon2Memory = 8 * 1024

	// MinPBKDF2Iterations is the minimum PBKDF2 iteration count.
	MinPBKDF2Iterations = 100000

	// Upper cost bounds. Bundle parameters are untrusted input.
	MaxArgon2Time       = 16
	MaxArgon2Memory     = 4 << 20 // KiB, 4 GiB
	MaxPBKDF2Iterations = 10_000_000
)

// KDFParams are the cost parameters of a password derivation. They are not
// secret and travel with a bundle so the key can be derived again.
type KDFParams struct {
	Algorithm  KDFAlgorithm `json:"alg" yaml:"algorithm"`
	Time       uint32       `json:"t,omitempty" yaml:"time,omitempty"`
	Memory     uint32       `json:"m,omitempty" yaml:"memory,omitempty"`
	Threads    uint8        `json:"p,omitempty" yaml:"threads,omitempty"`
	Iterations int          `json:"i,omitempty" yaml:"iterations,omitempty"`
}

// DefaultKDFParams returns the Argon2id defaults.
func DefaultKDFParams() *KDFParams {
	return &KDFParams{
		Algorithm: KDFArgon2id,
		Time:      DefaultArgon2Time,
		Memory:    DefaultArgon2Memory,
		Threads:   DefaultArgon2Threads,
	}
}

// DefaultPBKDF2Params returns the PBKDF2-SHA256 defaults.
func DefaultPBKDF2Params() *KDFParams {
	return &KDFParams{
		Algorithm:  KDFPBKDF2SHA256,
		Iterations: DefaultPBKDF2Iterations,
	}
}

// KDFParamsFor returns the defaults for alg.
func KDFParamsFor(alg KDFAlgorithm) (*KDFParams, error) {
	switch alg {
	case KDFArgon2id, "":
		return DefaultKDFParams(), nil
	case KDFPBKDF2SHA256:
		return DefaultPBKDF2Params(), nil
	default:
		return nil, fmt.Errorf("%w: kdf %q", ErrUnsupportedAlgorithm, alg)
	}
}

// Validate checks the parameters against the accepted cost range.
func (p *KDFParams) Validate() error {
	switch p.Algorithm {
	case KDFArgon2id:
		if p.Time < 1 || p.Time > MaxArgon2Time {
			return fmt.Errorf("%w: argon2id time must be in [1, %d], got %d", ErrInvalidKDFParams, MaxArgon2Time, p.Time)
		}
		if p.Memory < MinArgon2Memory || p.Memory > MaxArgon2Memory {
			return fmt.Errorf("%w: argon2id memory must be in [%d, %d] KiB, got %d",
				ErrInvalidKDFParams, MinArgon2Memory, MaxArgon2Memory, p.Memory)
		}
		if p.Threads < 1 {
			return fmt.Errorf("%w: argon2id threads must be at least 1", ErrInvalidKDFParams)
		}
	case KDFPBKDF2SHA256:
		if p.Iterations < MinPBKDF2Iterations || p.Iterations > MaxPBKDF2Iterations {
			return fmt.Errorf("%w: pbkdf2 iterations must be in [%d, %d], got %d",
				ErrInvalidKDFParams, MinPBKDF2Iterations, MaxPBKDF2Iterations, p.Iterations)
		}
	default:
		return fmt.Errorf("%w: kdf %q", ErrUnsupportedAlgorithm, p.Algorithm)
	}
	return nil
}

// DeriveKey derives a key from password and salt. A nil salt is replaced by
// SaltSize random bytes, and a nil params selects DefaultKDFParams. The salt
// actually used is returned so it can be stored with the bundle. The result
// is deterministic for a given password, salt and params.
func DeriveKey(password, salt []byte, params *KDFParams) (Key, []byte, error) {
	return deriveKey(rand.Reader, password, salt, params)
}

func deriveKey(r io.Reader, password, salt []byte, params *KDFParams) (Key, []byte, error) {
	if len(password) == 0 {
		return Key{}, nil, fmt.Errorf("%w: empty password", ErrInvalidKDFParams)
	}
	if params == nil {
		params = DefaultKDFParams()
	}
	if err := params.Validate(); err != nil {
		return Key{}, nil, err
	}

	if salt == nil {
		salt = make([]byte, SaltSize)
		if _, err := io.ReadFull(r, salt); err != nil {
			return Key{}, nil, fmt.Errorf("sharecipher: generate salt: %w", err)
		}
	} else if len(salt) < SaltSize {
		return Key{}, nil, fmt.Errorf("%w: salt must be at least %d bytes, got %d",
			ErrInvalidKDFParams, SaltSize, len(salt))
	}

	var derived []byte
	switch params.Algorithm {
	case KDFArgon2id:
		derived = argon2.IDKey(password, salt, params.Time, params.Memory, params.Threads, KeySize)
	case KDFPBKDF2SHA256:
		derived = pbkdf2.Key(password, salt, params.Iterations, KeySize, sha256.New)
	}
	defer clear(derived)

	var k Key
	copy(k[:], derived)
	return k, salt, nil
}
