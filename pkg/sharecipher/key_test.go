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
	"bytes"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastArgon2 keeps tests quick while staying above the accepted minimums.
var fastArgon2 = &KDFParams{Algorithm: KDFArgon2id, Time: 1, Memory: MinArgon2Memory, Threads: 1}

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	b, err := GenerateKey()
	require.NoError(t, err)

	assert.False(t, a.IsZero())
	assert.False(t, a.Equal(b))
	assert.Len(t, a.Bytes(), KeySize)
}

func TestGenerateKeyFrom_ShortReader(t *testing.T) {
	_, err := GenerateKeyFrom(bytes.NewReader(make([]byte, 8)))
	assert.Error(t, err)
}

func TestKeyFromBytes(t *testing.T) {
	_, err := KeyFromBytes(make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = KeyFromBytes(make([]byte, KeySize))
	assert.ErrorIs(t, err, ErrInvalidKey)

	raw := bytes.Repeat([]byte{0x42}, KeySize)
	k, err := KeyFromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, k.Bytes())
}

func TestParseKey(t *testing.T) {
	k := mustKey(t)
	text := k.Encode()
	assert.NotContains(t, text, "=")

	got, err := ParseKey(text)
	require.NoError(t, err)
	assert.True(t, k.Equal(got))

	got, err = ParseKey(" " + text + "=\n")
	require.NoError(t, err)
	assert.True(t, k.Equal(got))

	for _, bad := range []string{"", "not base64!", "AAAA", k.Encode()[:20]} {
		_, err := ParseKey(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}

func TestKey_StringHidesMaterial(t *testing.T) {
	k, err := KeyFromBytes(bytes.Repeat([]byte{0xab}, KeySize))
	require.NoError(t, err)

	for _, verb := range []string{"%v", "%s", "%+v", "%#v", "%x"} {
		out := fmt.Sprintf(verb, k)
		assert.NotContains(t, out, "abababab", verb)
	}
	assert.Len(t, k.ID(), 16)
}

func TestKey_Wipe(t *testing.T) {
	k := mustKey(t)
	k.Wipe()
	assert.True(t, k.IsZero())
}

func TestDeriveKey_Deterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{0x01}, SaltSize)

	a, saltA, err := DeriveKey([]byte("correct horse"), salt, fastArgon2)
	require.NoError(t, err)
	b, _, err := DeriveKey([]byte("correct horse"), salt, fastArgon2)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
	assert.Equal(t, salt, saltA)

	c, _, err := DeriveKey([]byte("correct horsf"), salt, fastArgon2)
	require.NoError(t, err)
	assert.False(t, a.Equal(c))

	other := bytes.Repeat([]byte{0x02}, SaltSize)
	d, _, err := DeriveKey([]byte("correct horse"), other, fastArgon2)
	require.NoError(t, err)
	assert.False(t, a.Equal(d))
}

func TestDeriveKey_GeneratesSalt(t *testing.T) {
	_, s1, err := DeriveKey([]byte("pw"), nil, fastArgon2)
	require.NoError(t, err)
	_, s2, err := DeriveKey([]byte("pw"), nil, fastArgon2)
	require.NoError(t, err)

	assert.Len(t, s1, SaltSize)
	assert.NotEqual(t, s1, s2)
}

func TestDeriveKey_Defaults(t *testing.T) {
	if testing.Short() {
		t.Skip("argon2id defaults allocate 64 MiB")
	}
	salt := bytes.Repeat([]byte{0x07}, SaltSize)
	a, _, err := DeriveKey([]byte("pw"), salt, nil)
	require.NoError(t, err)
	b, _, err := DeriveKey([]byte("pw"), salt, DefaultKDFParams())
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestDeriveKey_PBKDF2(t *testing.T) {
	salt := bytes.Repeat([]byte{0x03}, SaltSize)
	params := &KDFParams{Algorithm: KDFPBKDF2SHA256, Iterations: MinPBKDF2Iterations}

	a, _, err := DeriveKey([]byte("pw"), salt, params)
	require.NoError(t, err)
	b, _, err := DeriveKey([]byte("pw"), salt, fastArgon2)
	require.NoError(t, err)
	assert.False(t, a.Equal(b))
}

func TestDeriveKey_Rejects(t *testing.T) {
	salt := bytes.Repeat([]byte{0x01}, SaltSize)
	tests := []struct {
		name     string
		password []byte
		salt     []byte
		params   *KDFParams
		want     error
	}{
		{"empty password", nil, salt, fastArgon2, ErrInvalidKDFParams},
		{"short salt", []byte("pw"), salt[:8], fastArgon2, ErrInvalidKDFParams},
		{"low memory", []byte("pw"), salt, &KDFParams{Algorithm: KDFArgon2id, Time: 1, Memory: 1024, Threads: 1}, ErrInvalidKDFParams},
		{"zero time", []byte("pw"), salt, &KDFParams{Algorithm: KDFArgon2id, Memory: MinArgon2Memory, Threads: 1}, ErrInvalidKDFParams},
		{"few iterations", []byte("pw"), salt, &KDFParams{Algorithm: KDFPBKDF2SHA256, Iterations: 1000}, ErrInvalidKDFParams},
		{"huge memory", []byte("pw"), salt, &KDFParams{Algorithm: KDFArgon2id, Time: 1, Memory: math.MaxUint32, Threads: 1}, ErrInvalidKDFParams},
		{"memory over cap", []byte("pw"), salt, &KDFParams{Algorithm: KDFArgon2id, Time: 1, Memory: MaxArgon2Memory + 1, Threads: 1}, ErrInvalidKDFParams},
		{"huge time", []byte("pw"), salt, &KDFParams{Algorithm: KDFArgon2id, Time: MaxArgon2Time + 1, Memory: MinArgon2Memory, Threads: 1}, ErrInvalidKDFParams},
		{"huge iterations", []byte("pw"), salt, &KDFParams{Algorithm: KDFPBKDF2SHA256, Iterations: math.MaxInt64}, ErrInvalidKDFParams},
		{"iterations over cap", []byte("pw"), salt, &KDFParams{Algorithm: KDFPBKDF2SHA256, Iterations: MaxPBKDF2Iterations + 1}, ErrInvalidKDFParams},
		{"unknown kdf", []byte("pw"), salt, &KDFParams{Algorithm: "scrypt"}, ErrUnsupportedAlgorithm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DeriveKey(tt.password, tt.salt, tt.params)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestKDFParamsFor(t *testing.T) {
	p, err := KDFParamsFor(KDFPBKDF2SHA256)
	require.NoError(t, err)
	assert.Equal(t, DefaultPBKDF2Iterations, p.Iterations)

	p, err = KDFParamsFor("")
	require.NoError(t, err)
	assert.Equal(t, KDFArgon2id, p.Algorithm)
	assert.NoError(t, p.Validate())

	_, err = KDFParamsFor("bcrypt")
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestJWK_RoundTrip(t *testing.T) {
	k := mustKey(t)
	data, err := k.JWK("")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kty":"oct"`)
	assert.Contains(t, string(data), k.ID())

	back, err := ParseJWK(data)
	require.NoError(t, err)
	assert.True(t, k.Equal(back))
}

func TestParseJWK_Rejects(t *testing.T) {
	_, err := ParseJWK([]byte("{"))
	assert.ErrorIs(t, err, ErrInvalidKey)

	// 16 byte oct key
	_, err = ParseJWK([]byte(`{"kty":"oct","k":"AAECAwQFBgcICQoLDA0ODw"}`))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestWrapJWK(t *testing.T) {
	k := mustKey(t)
	kek := mustKey(t)

	token, err := k.WrapJWK(kek)
	require.NoError(t, err)

	back, err := UnwrapJWK(token, kek)
	require.NoError(t, err)
	assert.True(t, k.Equal(back))

	_, err = UnwrapJWK(token, mustKey(t))
	assert.ErrorIs(t, err, ErrAuthenticationFailure)

	_, err = UnwrapJWK("not.a.jwe", kek)
	assert.ErrorIs(t, err, ErrExpiredOrMalformed)
}
