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

// Package awskms wraps keys with an AWS KMS symmetric key.
package awskms

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/jeremyhahn/go-sharevault/pkg/custody"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
)

// Name is the provider name.
const Name = "awskms"

// Client is the subset of *kms.Client used by Wrapper.
type Client interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Config selects the key and credentials. Static credentials are used when
// both AccessKeyID and SecretAccessKey are set; otherwise the default AWS
// credential chain applies.
type Config struct {
	Region          string `yaml:"region" json:"region" mapstructure:"region"`
	KeyID           string `yaml:"key_id" json:"key_id" mapstructure:"key_id"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"-" mapstructure:"secret_access_key"`
	SessionToken    string `yaml:"session_token,omitempty" json:"-" mapstructure:"session_token"`

	// Endpoint overrides the KMS endpoint, for example LocalStack.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty" mapstructure:"endpoint"`
}

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: awskms config is required", custody.ErrInvalidConfig)
	}
	if c.Region == "" {
		return fmt.Errorf("%w: awskms region is required", custody.ErrInvalidConfig)
	}
	if c.KeyID == "" {
		return fmt.Errorf("%w: awskms key_id is required", custody.ErrInvalidConfig)
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return fmt.Errorf("%w: awskms access_key_id and secret_access_key must be set together", custody.ErrInvalidConfig)
	}
	return nil
}

// ConfigFromSettings reads a Config from provider settings.
func ConfigFromSettings(s custody.Settings) *Config {
	return &Config{
		Region:          s.Get("region"),
		KeyID:           s.Get("key_id"),
		AccessKeyID:     s.Get("access_key_id"),
		SecretAccessKey: s.Get("secret_access_key"),
		SessionToken:    s.Get("session_token"),
		Endpoint:        s.Get("endpoint"),
	}
}

// EncryptionContext binds wrapped keys to this application. KMS refuses to
// decrypt when the context differs.
var EncryptionContext = map[string]string{"purpose": "sharevault"}

// Wrapper is a custody.Wrapper backed by AWS KMS Encrypt and Decrypt.
type Wrapper struct {
	cfg    *Config
	client Client
}

// New loads AWS configuration and builds a KMS client.
func New(ctx context.Context, cfg *Config) (*Wrapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("awskms: load aws config: %w", err)
	}
	client := kms.NewFromConfig(awsCfg, func(o *kms.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(cfg, client)
}

// NewWithClient uses an existing client.
func NewWithClient(cfg *Config, client Client) (*Wrapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("%w: awskms client is required", custody.ErrInvalidConfig)
	}
	return &Wrapper{cfg: cfg, client: client}, nil
}

func (w *Wrapper) Name() string { return Name }

func (w *Wrapper) Wrap(ctx context.Context, key []byte) ([]byte, error) {
	out, err := w.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(w.cfg.KeyID),
		Plaintext:         key,
		EncryptionContext: EncryptionContext,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: awskms encrypt: %w", custody.ErrWrap, err)
	}
	return out.CiphertextBlob, nil
}

// Unwrap maps InvalidCiphertextException to
// sharecipher.ErrAuthenticationFailure.
func (w *Wrapper) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	out, err := w.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:             aws.String(w.cfg.KeyID),
		CiphertextBlob:    wrapped,
		EncryptionContext: EncryptionContext,
	})
	if err != nil {
		var invalid *types.InvalidCiphertextException
		if errors.As(err, &invalid) {
			return nil, fmt.Errorf("%w: %w: awskms: %s", custody.ErrUnwrap, sharecipher.ErrAuthenticationFailure, invalid.ErrorMessage())
		}
		return nil, fmt.Errorf("%w: awskms decrypt: %w", custody.ErrUnwrap, err)
	}
	return out.Plaintext, nil
}

// Factory registers with custody.Register.
func Factory(ctx context.Context, s custody.Settings) (custody.Wrapper, error) {
	w, err := New(ctx, ConfigFromSettings(s))
	if err != nil {
		return nil, err
	}
	return w, nil
}
