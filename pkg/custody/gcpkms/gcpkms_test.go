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

package gcpkms

import (
	"bytes"
	"context"
	"testing"

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/jeremyhahn/go-sharevault/pkg/custody"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
)

const keyName = "projects/p/locations/global/keyRings/r/cryptoKeys/sharevault"

// fakeKMS XORs with a fixed pad and honours checksums like the service.
type fakeKMS struct {
	skipVerify     bool
	corruptCRC     bool
	decryptInvalid bool
	closed         bool
}

func pad(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[i] ^ 0x5a
	}
	return out
}

func (f *fakeKMS) Encrypt(_ context.Context, req *kmspb.EncryptRequest, _ ...gax.CallOption) (*kmspb.EncryptResponse, error) {
	if req.GetPlaintextCrc32C().GetValue() != crc32c(req.GetPlaintext()) {
		return nil, status.Error(codes.InvalidArgument, "checksum")
	}
	ct := pad(req.GetPlaintext())
	crc := crc32c(ct)
	if f.corruptCRC {
		crc++
	}
	return &kmspb.EncryptResponse{
		Name:                    req.GetName(),
		Ciphertext:              ct,
		CiphertextCrc32C:        wrapperspb.Int64(crc),
		VerifiedPlaintextCrc32C: !f.skipVerify,
	}, nil
}

func (f *fakeKMS) Decrypt(_ context.Context, req *kmspb.DecryptRequest, _ ...gax.CallOption) (*kmspb.DecryptResponse, error) {
	if f.decryptInvalid {
		return nil, status.Error(codes.InvalidArgument, "Decryption failed: the ciphertext is invalid.")
	}
	pt := pad(req.GetCiphertext())
	crc := crc32c(pt)
	if f.corruptCRC {
		crc++
	}
	return &kmspb.DecryptResponse{Plaintext: pt, PlaintextCrc32C: wrapperspb.Int64(crc)}, nil
}

func (f *fakeKMS) Close() error {
	f.closed = true
	return nil
}

func newWrapper(t *testing.T, f *fakeKMS) *Wrapper {
	t.Helper()
	w, err := NewWithClient(&Config{KeyName: keyName}, f)
	require.NoError(t, err)
	return w
}

func TestWrapUnwrap(t *testing.T) {
	f := &fakeKMS{}
	w := newWrapper(t, f)
	key := bytes.Repeat([]byte{0xab}, 32)

	wrapped, err := w.Wrap(context.Background(), key)
	require.NoError(t, err)
	assert.NotEqual(t, key, wrapped)

	got, err := w.Unwrap(context.Background(), wrapped)
	require.NoError(t, err)
	assert.Equal(t, key, got)

	require.NoError(t, w.Close())
	assert.True(t, f.closed)
}

func TestWrap_ChecksumFailures(t *testing.T) {
	_, err := newWrapper(t, &fakeKMS{skipVerify: true}).Wrap(context.Background(), []byte("k"))
	assert.ErrorIs(t, err, custody.ErrWrap)

	_, err = newWrapper(t, &fakeKMS{corruptCRC: true}).Wrap(context.Background(), []byte("k"))
	assert.ErrorIs(t, err, custody.ErrWrap)

	_, err = newWrapper(t, &fakeKMS{corruptCRC: true}).Unwrap(context.Background(), []byte("k"))
	assert.ErrorIs(t, err, custody.ErrUnwrap)
}

func TestUnwrap_InvalidCiphertext(t *testing.T) {
	_, err := newWrapper(t, &fakeKMS{decryptInvalid: true}).Unwrap(context.Background(), []byte("junk"))
	assert.ErrorIs(t, err, custody.ErrUnwrap)
	assert.ErrorIs(t, err, sharecipher.ErrAuthenticationFailure)
}

func TestConfig(t *testing.T) {
	assert.ErrorIs(t, (*Config)(nil).Validate(), custody.ErrInvalidConfig)
	assert.ErrorIs(t, (&Config{}).Validate(), custody.ErrInvalidConfig)

	cfg := ConfigFromSettings(custody.Settings{"key_name": keyName, "credentials_json": "{}"})
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, []byte("{}"), cfg.CredentialsJSON)

	_, err := NewWithClient(cfg, nil)
	assert.ErrorIs(t, err, custody.ErrInvalidConfig)
}
