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
	"encoding/json"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

// JWK returns k as an "oct" JSON Web Key. An empty kid defaults to k.ID().
func (k Key) JWK(kid string) ([]byte, error) {
	if kid == "" {
		kid = k.ID()
	}
	jwk := jose.JSONWebKey{
		Key:   k.Bytes(),
		KeyID: kid,
		Use:   "enc",
	}
	data, err := json.Marshal(jwk)
	if err != nil {
		return nil, fmt.Errorf("sharecipher: marshal jwk: %w", err)
	}
	return data, nil
}

// ParseJWK reads a key exported by Key.JWK.
func ParseJWK(data []byte) (Key, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(data); err != nil {
		return Key{}, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	raw, ok := jwk.Key.([]byte)
	if !ok {
		return Key{}, fmt.Errorf("%w: jwk is %T, want symmetric key", ErrInvalidKey, jwk.Key)
	}
	defer clear(raw)
	return KeyFromBytes(raw)
}

// WrapJWK encrypts the JWK form of k under kek as a compact JWE using
// AES-256 key wrap and AES-256-GCM content encryption.
func (k Key) WrapJWK(kek Key) (string, error) {
	jwk, err := k.JWK("")
	if err != nil {
		return "", err
	}
	defer clear(jwk)

	enc, err := jose.NewEncrypter(jose.A256GCM, jose.Recipient{
		Algorithm: jose.A256KW,
		Key:       kek.Bytes(),
		KeyID:     kek.ID(),
	}, (&jose.EncrypterOptions{}).WithContentType("jwk+json"))
	if err != nil {
		return "", fmt.Errorf("sharecipher: create encrypter: %w", err)
	}
	obj, err := enc.Encrypt(jwk)
	if err != nil {
		return "", fmt.Errorf("sharecipher: encrypt jwk: %w", err)
	}
	return obj.CompactSerialize()
}

// UnwrapJWK reverses WrapJWK.
func UnwrapJWK(token string, kek Key) (Key, error) {
	obj, err := jose.ParseEncrypted(token,
		[]jose.KeyAlgorithm{jose.A256KW},
		[]jose.ContentEncryption{jose.A256GCM})
	if err != nil {
		return Key{}, fmt.Errorf("%w: %w", ErrExpiredOrMalformed, err)
	}
	jwk, err := obj.Decrypt(kek.Bytes())
	if err != nil {
		return Key{}, ErrAuthenticationFailure
	}
	defer clear(jwk)
	return ParseJWK(jwk)
}
