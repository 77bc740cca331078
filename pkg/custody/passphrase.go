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

package custody

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
)

// PassphraseProvider is the name of the built-in passphrase provider.
const PassphraseProvider = "passphrase"

func init() {
	Register(PassphraseProvider, func(_ context.Context, s Settings) (Wrapper, error) {
		pw, err := s.Require("passphrase")
		if err != nil {
			return nil, err
		}
		params := sharecipher.DefaultKDFParams()
		if alg := s.Get("kdf"); alg != "" {
			if params, err = sharecipher.KDFParamsFor(sharecipher.KDFAlgorithm(alg)); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
			}
		}
		w, err := NewPassphrase([]byte(pw), params)
		if err != nil {
			return nil, err
		}
		return w, nil
	})
}

// Passphrase wraps 32-byte keys as a JWE under a key derived from a
// passphrase. The wrapped form is a JSON object carrying the KDF parameters
// and salt next to the compact JWE, so a key wrapped under one KDF
// configuration still unwraps after the configuration changes.
type Passphrase struct {
	passphrase []byte
	params     *sharecipher.KDFParams
	rand       io.Reader
}

type passphraseEnvelope struct {
	KDF  sharecipher.KDFParams `json:"kdf"`
	Salt []byte                `json:"salt"`
	JWE  string                `json:"jwe"`
}

// NewPassphrase copies passphrase. A nil params selects Argon2id defaults.
func NewPassphrase(passphrase []byte, params *sharecipher.KDFParams) (*Passphrase, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("%w: passphrase is required", ErrInvalidConfig)
	}
	if params == nil {
		params = sharecipher.DefaultKDFParams()
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &Passphrase{
		passphrase: append([]byte(nil), passphrase...),
		params:     params,
		rand:       rand.Reader,
	}, nil
}

func (p *Passphrase) Name() string { return PassphraseProvider }

func (p *Passphrase) Wrap(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := sharecipher.KeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrap, err)
	}
	defer k.Wipe()

	salt := make([]byte, sharecipher.SaltSize)
	if _, err := io.ReadFull(p.rand, salt); err != nil {
		return nil, fmt.Errorf("%w: salt: %w", ErrWrap, err)
	}
	kek, _, err := sharecipher.DeriveKey(p.passphrase, salt, p.params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrap, err)
	}
	defer kek.Wipe()

	jwe, err := k.WrapJWK(kek)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrap, err)
	}
	data, err := json.Marshal(passphraseEnvelope{KDF: *p.params, Salt: salt, JWE: jwe})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrap, err)
	}
	return data, nil
}

// Unwrap derives the key encryption key with the parameters recorded in
// wrapped, not the ones p was built with. It fails with
// sharecipher.ErrAuthenticationFailure for a wrong passphrase.
func (p *Passphrase) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var env passphraseEnvelope
	dec := json.NewDecoder(bytes.NewReader(wrapped))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decode wrapped key: %w", ErrUnwrap, err)
	}
	if env.JWE == "" || len(env.Salt) < sharecipher.SaltSize {
		return nil, fmt.Errorf("%w: wrapped key is incomplete", ErrUnwrap)
	}

	// DeriveKey bounds the recorded costs.
	kek, _, err := sharecipher.DeriveKey(p.passphrase, env.Salt, &env.KDF)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnwrap, err)
	}
	defer kek.Wipe()

	k, err := sharecipher.UnwrapJWK(env.JWE, kek)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnwrap, err)
	}
	defer k.Wipe()
	return k.Bytes(), nil
}

// Wipe zeroes the stored passphrase.
func (p *Passphrase) Wipe() {
	clear(p.passphrase)
}
