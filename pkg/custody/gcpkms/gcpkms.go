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

// Package gcpkms wraps keys with a Google Cloud KMS symmetric crypto key.
// Requests and responses carry CRC32C checksums that are verified on both
// sides.
package gcpkms

import (
	"context"
	"fmt"
	"hash/crc32"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/jeremyhahn/go-sharevault/pkg/custody"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
)

const Name = "gcpkms"

// Client is the subset of *kms.KeyManagementClient used by Wrapper.
type Client interface {
	Encrypt(ctx context.Context, req *kmspb.EncryptRequest, opts ...gax.CallOption) (*kmspb.EncryptResponse, error)
	Decrypt(ctx context.Context, req *kmspb.DecryptRequest, opts ...gax.CallOption) (*kmspb.DecryptResponse, error)
	Close() error
}

// Config names the crypto key as
// projects/{p}/locations/{l}/keyRings/{r}/cryptoKeys/{k}.
type Config struct {
	KeyName         string `yaml:"key_name" json:"key_name" mapstructure:"key_name"`
	CredentialsFile string `yaml:"credentials_file,omitempty" json:"credentials_file,omitempty" mapstructure:"credentials_file"`
	CredentialsJSON []byte `yaml:"-" json:"-" mapstructure:"-"`

	// Endpoint overrides the API endpoint, for example an emulator.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty" mapstructure:"endpoint"`
}

func (c *Config) Validate() error {
	if c == nil || c.KeyName == "" {
		return fmt.Errorf("%w: gcpkms key_name is required", custody.ErrInvalidConfig)
	}
	return nil
}

func ConfigFromSettings(s custody.Settings) *Config {
	cfg := &Config{
		KeyName:         s.Get("key_name"),
		CredentialsFile: s.Get("credentials_file"),
		Endpoint:        s.Get("endpoint"),
	}
	if j := s.Get("credentials_json"); j != "" {
		cfg.CredentialsJSON = []byte(j)
	}
	return cfg
}

// Wrapper is a custody.Wrapper backed by Cloud KMS Encrypt and Decrypt.
type Wrapper struct {
	cfg    *Config
	client Client
}

func New(ctx context.Context, cfg *Config) (*Wrapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var opts []option.ClientOption
	if len(cfg.CredentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(cfg.CredentialsJSON))
	} else if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := kms.NewKeyManagementClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcpkms: create client: %w", err)
	}
	return NewWithClient(cfg, client)
}

func NewWithClient(cfg *Config, client Client) (*Wrapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("%w: gcpkms client is required", custody.ErrInvalidConfig)
	}
	return &Wrapper{cfg: cfg, client: client}, nil
}

func (w *Wrapper) Name() string { return Name }

func (w *Wrapper) Wrap(ctx context.Context, key []byte) ([]byte, error) {
	resp, err := w.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:            w.cfg.KeyName,
		Plaintext:       key,
		PlaintextCrc32C: wrapperspb.Int64(crc32c(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: gcpkms encrypt: %w", custody.ErrWrap, err)
	}
	if !resp.GetVerifiedPlaintextCrc32C() {
		return nil, fmt.Errorf("%w: gcpkms did not verify the plaintext checksum", custody.ErrWrap)
	}
	if resp.GetCiphertextCrc32C() != nil && resp.GetCiphertextCrc32C().GetValue() != crc32c(resp.GetCiphertext()) {
		return nil, fmt.Errorf("%w: gcpkms ciphertext checksum mismatch", custody.ErrWrap)
	}
	return resp.GetCiphertext(), nil
}

// Unwrap maps InvalidArgument from the service, which KMS returns for
// ciphertext it cannot decrypt, to sharecipher.ErrAuthenticationFailure.
func (w *Wrapper) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	resp, err := w.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:             w.cfg.KeyName,
		Ciphertext:       wrapped,
		CiphertextCrc32C: wrapperspb.Int64(crc32c(wrapped)),
	})
	if err != nil {
		if status.Code(err) == codes.InvalidArgument {
			return nil, fmt.Errorf("%w: %w: gcpkms: %s", custody.ErrUnwrap, sharecipher.ErrAuthenticationFailure, status.Convert(err).Message())
		}
		return nil, fmt.Errorf("%w: gcpkms decrypt: %w", custody.ErrUnwrap, err)
	}
	if resp.GetPlaintextCrc32C() != nil && resp.GetPlaintextCrc32C().GetValue() != crc32c(resp.GetPlaintext()) {
		return nil, fmt.Errorf("%w: gcpkms plaintext checksum mismatch", custody.ErrUnwrap)
	}
	return resp.GetPlaintext(), nil
}

func (w *Wrapper) Close() error {
	return w.client.Close()
}

func Factory(ctx context.Context, s custody.Settings) (custody.Wrapper, error) {
	w, err := New(ctx, ConfigFromSettings(s))
	if err != nil {
		return nil, err
	}
	return w, nil
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func crc32c(data []byte) int64 {
	return int64(crc32.Checksum(data, castagnoli))
}
