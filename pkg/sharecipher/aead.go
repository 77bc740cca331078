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
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/sys/cpu"
)

// Algorithm names an AEAD construction.
type Algorithm string

const (
	// AlgorithmAuto selects AES-256-GCM on CPUs with AES instructions and
	// XChaCha20-Poly1305 elsewhere.
	AlgorithmAuto              Algorithm = "auto"
	AlgorithmXChaCha20Poly1305 Algorithm = "xchacha20-poly1305"
	AlgorithmAES256GCM         Algorithm = "aes256-gcm"
)

// Envelope algorithm identifiers.
const (
	algIDXChaCha20Poly1305 byte = 1
	algIDAES256GCM         byte = 2
)

const subkeyInfoPrefix = "sharevault/sharecipher/v1/"

// HasAESNI reports whether the CPU has AES instructions.
func HasAESNI() bool {
	switch runtime.GOARCH {
	case "amd64":
		return cpu.X86.HasAES
	case "arm64":
		return cpu.ARM64.HasAES
	default:
		return false
	}
}

// SelectAlgorithm resolves AlgorithmAuto to a concrete algorithm. Other
// values are returned unchanged.
func SelectAlgorithm(a Algorithm) Algorithm {
	if a != AlgorithmAuto && a != "" {
		return a
	}
	if HasAESNI() {
		return AlgorithmAES256GCM
	}
	return AlgorithmXChaCha20Poly1305
}

// ParseAlgorithm validates a configured algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(s); a {
	case "", AlgorithmAuto:
		return AlgorithmAuto, nil
	case AlgorithmXChaCha20Poly1305, AlgorithmAES256GCM:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s)
	}
}

func (a Algorithm) id() (byte, error) {
	switch a {
	case AlgorithmXChaCha20Poly1305:
		return algIDXChaCha20Poly1305, nil
	case AlgorithmAES256GCM:
		return algIDAES256GCM, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, a)
	}
}

// newAEAD builds the AEAD for alg keyed with an HKDF subkey of k, so the
// same Key never drives two algorithms directly.
func newAEAD(k Key, alg Algorithm) (cipher.AEAD, error) {
	subkey := make([]byte, KeySize)
	defer clear(subkey)
	r := hkdf.New(sha256.New, k[:], nil, []byte(subkeyInfoPrefix+string(alg)))
	if _, err := io.ReadFull(r, subkey); err != nil {
		return nil, fmt.Errorf("sharecipher: derive subkey: %w", err)
	}

	switch alg {
	case AlgorithmXChaCha20Poly1305:
		return chacha20poly1305.NewX(subkey)
	case AlgorithmAES256GCM:
		block, err := aes.NewCipher(subkey)
		if err != nil {
			return nil, fmt.Errorf("sharecipher: aes: %w", err)
		}
		return cipher.NewGCM(block)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
}
