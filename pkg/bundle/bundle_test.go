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

package bundle

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sharevault/pkg/field"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
)

func entries(indices ...int) []Entry {
	out := make([]Entry, len(indices))
	for i, idx := range indices {
		out[i] = Entry{Index: idx, Ciphertext: fmt.Sprintf("AQIAAAAAZVPxAA-ct%d", idx)}
	}
	return out
}

func TestSerialize_Canonical(t *testing.T) {
	b := New("7f1c", 3, 5, field.P256, entries(5, 1, 3, 2, 4))
	got, err := Serialize(b)
	require.NoError(t, err)

	want := `{"v":1,"id":"7f1c","k":3,"n":5,"prime":"p256","s":[` +
		`{"i":1,"c":"AQIAAAAAZVPxAA-ct1"},` +
		`{"i":2,"c":"AQIAAAAAZVPxAA-ct2"},` +
		`{"i":3,"c":"AQIAAAAAZVPxAA-ct3"},` +
		`{"i":4,"c":"AQIAAAAAZVPxAA-ct4"},` +
		`{"i":5,"c":"AQIAAAAAZVPxAA-ct5"}]}`
	assert.Equal(t, want, got)
}

func TestSerialize_DoesNotReorderCaller(t *testing.T) {
	b := &Bundle{Version: Version, Threshold: 2, Total: 3, Prime: field.P256, Entries: entries(3, 1, 2)}
	_, err := Serialize(b)
	require.NoError(t, err)
	assert.Equal(t, 3, b.Entries[0].Index)
}

func TestParse_RoundTrip(t *testing.T) {
	b := New("abc", 3, 5, field.M521, entries(1, 2, 3, 4, 5))
	b.KDF = &KDF{
		KDFParams: *sharecipher.DefaultKDFParams(),
		Salt:      bytes.Repeat([]byte{0x09}, sharecipher.SaltSize),
	}

	payload, err := Serialize(b)
	require.NoError(t, err)
	assert.Contains(t, payload, `"kdf":{"alg":"argon2id","t":3,"m":65536,"p":4,"salt":"`)

	parsed, err := Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, b, parsed)

	again, err := Serialize(parsed)
	require.NoError(t, err)
	assert.Equal(t, payload, again)
}

func TestParse_PartialBundle(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"missing shares", `{"v":1,"k":3,"n":5,"prime":"p256","s":[{"i":2,"c":"a"},{"i":4,"c":"b"},{"i":5,"c":"c"}]}`},
		{"one short", `{"v":1,"k":1,"n":2,"prime":"p256","s":[{"i":2,"c":"a"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Parse(tt.payload)
			assert.ErrorIs(t, err, ErrMalformedBundle)
			assert.NotErrorIs(t, err, ErrThresholdMismatch)
			assert.Nil(t, b)
		})
	}

	_, err := Serialize(New("p", 3, 5, field.P256, entries(2, 4, 5)))
	assert.ErrorIs(t, err, ErrMalformedBundle)
}

func TestParse_ThresholdMismatch(t *testing.T) {
	for _, n := range []int{3, 5} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			payload := fmt.Sprintf(`{"v":1,"k":4,"n":%d,"prime":"p256","s":[{"i":1,"c":"a"},{"i":2,"c":"b"},{"i":3,"c":"c"}]}`, n)
			b, err := Parse(payload)
			assert.ErrorIs(t, err, ErrThresholdMismatch)
			assert.Nil(t, b)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"empty", ``, ErrMalformedBundle},
		{"not json", `hello`, ErrMalformedBundle},
		{"json array", `[1,2]`, ErrMalformedBundle},
		{"null", `null`, ErrMalformedBundle},
		{"missing version", `{"k":1,"n":1,"prime":"p256","s":[{"i":1,"c":"a"}]}`, ErrMalformedBundle},
		{"string version", `{"v":"1","k":1,"n":1,"prime":"p256","s":[{"i":1,"c":"a"}]}`, ErrMalformedBundle},
		{"version 2", `{"v":2,"k":1,"n":1,"prime":"p256","s":[{"i":1,"c":"a"}]}`, ErrUnsupportedFormatVersion},
		{"version 0", `{"v":0}`, ErrUnsupportedFormatVersion},
		{"version 2 with unknown fields", `{"v":2,"future":true}`, ErrUnsupportedFormatVersion},
		{"unknown field", `{"v":1,"k":1,"n":1,"prime":"p256","s":[{"i":1,"c":"a"}],"x":1}`, ErrMalformedBundle},
		{"unknown entry field", `{"v":1,"k":1,"n":1,"prime":"p256","s":[{"i":1,"c":"a","z":0}]}`, ErrMalformedBundle},
		{"trailing data", `{"v":1,"k":1,"n":1,"prime":"p256","s":[{"i":1,"c":"a"}]} {}`, ErrMalformedBundle},
		{"k zero", `{"v":1,"k":0,"n":1,"prime":"p256","s":[{"i":1,"c":"a"}]}`, ErrMalformedBundle},
		{"n zero", `{"v":1,"k":1,"n":0,"prime":"p256","s":[]}`, ErrMalformedBundle},
		{"n too large", `{"v":1,"k":1,"n":256,"prime":"p256","s":[{"i":1,"c":"a"}]}`, ErrMalformedBundle},
		{"unknown prime", `{"v":1,"k":1,"n":1,"prime":"p13","s":[{"i":1,"c":"a"}]}`, ErrMalformedBundle},
		{"empty ciphertext", `{"v":1,"k":1,"n":2,"prime":"p256","s":[{"i":1,"c":""}]}`, ErrMalformedBundle},
		{"index zero", `{"v":1,"k":1,"n":2,"prime":"p256","s":[{"i":0,"c":"a"}]}`, ErrMalformedBundle},
		{"index beyond n", `{"v":1,"k":1,"n":2,"prime":"p256","s":[{"i":3,"c":"a"}]}`, ErrMalformedBundle},
		{"duplicate index", `{"v":1,"k":2,"n":3,"prime":"p256","s":[{"i":1,"c":"a"},{"i":1,"c":"b"}]}`, ErrMalformedBundle},
		{"no shares", `{"v":1,"k":1,"n":1,"prime":"p256","s":[]}`, ErrThresholdMismatch},
		{"weak kdf", `{"v":1,"k":1,"n":1,"prime":"p256","kdf":{"alg":"pbkdf2-sha256","i":10,"salt":"AAAAAAAAAAAAAAAAAAAAAA=="},"s":[{"i":1,"c":"a"}]}`, ErrMalformedBundle},
		{"argon2 memory too large", `{"v":1,"k":1,"n":1,"prime":"p256","kdf":{"alg":"argon2id","t":1,"m":4294967295,"p":1,"salt":"AAAAAAAAAAAAAAAAAAAAAA=="},"s":[{"i":1,"c":"a"}]}`, ErrMalformedBundle},
		{"argon2 time too large", `{"v":1,"k":1,"n":1,"prime":"p256","kdf":{"alg":"argon2id","t":4294967295,"m":65536,"p":1,"salt":"AAAAAAAAAAAAAAAAAAAAAA=="},"s":[{"i":1,"c":"a"}]}`, ErrMalformedBundle},
		{"pbkdf2 iterations too large", `{"v":1,"k":1,"n":1,"prime":"p256","kdf":{"alg":"pbkdf2-sha256","i":9223372036854775807,"salt":"AAAAAAAAAAAAAAAAAAAAAA=="},"s":[{"i":1,"c":"a"}]}`, ErrMalformedBundle},
		{"short salt", `{"v":1,"k":1,"n":1,"prime":"p256","kdf":{"alg":"pbkdf2-sha256","i":600000,"salt":"AAAA"},"s":[{"i":1,"c":"a"}]}`, ErrMalformedBundle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Parse(tt.payload)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, b)
		})
	}
}

func TestSerialize_Rejects(t *testing.T) {
	_, err := Serialize(nil)
	assert.ErrorIs(t, err, ErrMalformedBundle)

	_, err = Serialize(New("x", 4, 5, field.P256, entries(1, 2, 3)))
	assert.ErrorIs(t, err, ErrThresholdMismatch)

	_, err = Serialize(&Bundle{Version: 3, Threshold: 1, Total: 1, Prime: field.P256, Entries: entries(1)})
	assert.ErrorIs(t, err, ErrUnsupportedFormatVersion)
}

func TestBundle_Subset(t *testing.T) {
	b := New("x", 2, 4, field.P256, entries(1, 2, 3, 4))
	b.KDF = &KDF{KDFParams: *sharecipher.DefaultPBKDF2Params(), Salt: bytes.Repeat([]byte{1}, 16)}

	sub := b.Subset(4, 2, 9)
	assert.Equal(t, []int{2, 4}, sub.Indices())
	assert.ErrorIs(t, sub.Validate(), ErrMalformedBundle)
	assert.Len(t, b.Entries, 4)
	assert.NoError(t, b.Subset(1, 2, 3, 4).Validate())

	sub.KDF.Salt[0] = 0xff
	assert.Equal(t, byte(1), b.KDF.Salt[0])

	assert.ErrorIs(t, b.Subset(1).Validate(), ErrThresholdMismatch)
}

func TestBundle_ThresholdConfig(t *testing.T) {
	b := New("x", 2, 4, field.P384, entries(1, 2))
	cfg, err := b.ThresholdConfig()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Threshold)
	assert.Equal(t, 4, cfg.Total)
	assert.Equal(t, field.P384, cfg.Field.ID())

	b.Prime = "bogus"
	_, err = b.ThresholdConfig()
	assert.ErrorIs(t, err, ErrMalformedBundle)
}

func TestSerialize_NoHTMLEscaping(t *testing.T) {
	b := New("a<b>&c", 1, 1, field.P256, entries(1))
	payload, err := Serialize(b)
	require.NoError(t, err)
	assert.True(t, strings.Contains(payload, `"id":"a<b>&c"`))
}
