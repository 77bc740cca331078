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

// Package azurekv wraps keys with an Azure Key Vault key using the WrapKey
// and UnwrapKey operations.
package azurekv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"

	"github.com/jeremyhahn/go-sharevault/internal/azcred"
	"github.com/jeremyhahn/go-sharevault/pkg/custody"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
)

const Name = "azurekv"

// DefaultAlgorithm is used when Config.Algorithm is empty.
const DefaultAlgorithm = azkeys.EncryptionAlgorithmRSAOAEP256

// Client is the subset of *azkeys.Client used by Wrapper.
type Client interface {
	WrapKey(ctx context.Context, name, version string, parameters azkeys.KeyOperationParameters, options *azkeys.WrapKeyOptions) (azkeys.WrapKeyResponse, error)
	UnwrapKey(ctx context.Context, name, version string, parameters azkeys.KeyOperationParameters, options *azkeys.UnwrapKeyOptions) (azkeys.UnwrapKeyResponse, error)
}

type Config struct {
	VaultURL string `yaml:"vault_url" json:"vault_url" mapstructure:"vault_url"`
	KeyName  string `yaml:"key_name" json:"key_name" mapstructure:"key_name"`

	// KeyVersion pins a key version. Empty wraps with the current version.
	KeyVersion string `yaml:"key_version,omitempty" json:"key_version,omitempty" mapstructure:"key_version"`

	// Algorithm is RSA-OAEP-256, RSA-OAEP or A256KW (managed HSM).
	Algorithm string `yaml:"algorithm,omitempty" json:"algorithm,omitempty" mapstructure:"algorithm"`

	azcred.Config `yaml:",inline" mapstructure:",squash"`
}

var algorithms = map[string]azkeys.EncryptionAlgorithm{
	string(azkeys.EncryptionAlgorithmRSAOAEP256): azkeys.EncryptionAlgorithmRSAOAEP256,
	string(azkeys.EncryptionAlgorithmRSAOAEP):    azkeys.EncryptionAlgorithmRSAOAEP,
	string(azkeys.EncryptionAlgorithmA256KW):     azkeys.EncryptionAlgorithmA256KW,
}

func (c *Config) Validate() error {
	if c == nil || c.VaultURL == "" {
		return fmt.Errorf("%w: azurekv vault_url is required", custody.ErrInvalidConfig)
	}
	if c.KeyName == "" {
		return fmt.Errorf("%w: azurekv key_name is required", custody.ErrInvalidConfig)
	}
	if _, err := c.algorithm(); err != nil {
		return err
	}
	return nil
}

func (c *Config) algorithm() (azkeys.EncryptionAlgorithm, error) {
	if c.Algorithm == "" {
		return DefaultAlgorithm, nil
	}
	alg, ok := algorithms[c.Algorithm]
	if !ok {
		return "", fmt.Errorf("%w: azurekv algorithm %q", custody.ErrInvalidConfig, c.Algorithm)
	}
	return alg, nil
}

func ConfigFromSettings(s custody.Settings) *Config {
	return &Config{
		VaultURL:   s.Get("vault_url"),
		KeyName:    s.Get("key_name"),
		KeyVersion: s.Get("key_version"),
		Algorithm:  s.Get("algorithm"),
		Config: azcred.Config{
			TenantID:     s.Get("tenant_id"),
			ClientID:     s.Get("client_id"),
			ClientSecret: s.Get("client_secret"),
		},
	}
}

// wrappedKey records the key version used so unwrapping survives rotation.
type wrappedKey struct {
	Version   string `json:"kv,omitempty"`
	Algorithm string `json:"alg"`
	Value     []byte `json:"ct"`
}

// Wrapper is a custody.Wrapper backed by Azure Key Vault.
type Wrapper struct {
	cfg    *Config
	alg    azkeys.EncryptionAlgorithm
	client Client
}

func New(cfg *Config) (*Wrapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cred, err := azcred.New(cfg.Config)
	if err != nil {
		return nil, err
	}
	client, err := azkeys.NewClient(cfg.VaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azurekv: create client: %w", err)
	}
	return NewWithClient(cfg, client)
}

func NewWithClient(cfg *Config, client Client) (*Wrapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("%w: azurekv client is required", custody.ErrInvalidConfig)
	}
	alg, _ := cfg.algorithm()
	return &Wrapper{cfg: cfg, alg: alg, client: client}, nil
}

func (w *Wrapper) Name() string { return Name }

func (w *Wrapper) Wrap(ctx context.Context, key []byte) ([]byte, error) {
	alg := w.alg
	resp, err := w.client.WrapKey(ctx, w.cfg.KeyName, w.cfg.KeyVersion,
		azkeys.KeyOperationParameters{Algorithm: &alg, Value: key}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: azurekv wrap: %w", custody.ErrWrap, err)
	}

	version := w.cfg.KeyVersion
	if resp.KID != nil {
		version = resp.KID.Version()
	}
	out, err := json.Marshal(wrappedKey{Version: version, Algorithm: string(alg), Value: resp.Result})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", custody.ErrWrap, err)
	}
	return out, nil
}

// Unwrap maps a 400 from the service, returned for ciphertext the key
// cannot unwrap, to sharecipher.ErrAuthenticationFailure.
func (w *Wrapper) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	var wk wrappedKey
	if err := json.Unmarshal(wrapped, &wk); err != nil {
		return nil, fmt.Errorf("%w: azurekv: malformed wrapped key: %w", custody.ErrUnwrap, err)
	}
	alg, ok := algorithms[wk.Algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: azurekv: algorithm %q", custody.ErrUnwrap, wk.Algorithm)
	}

	resp, err := w.client.UnwrapKey(ctx, w.cfg.KeyName, wk.Version,
		azkeys.KeyOperationParameters{Algorithm: &alg, Value: wk.Value}, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("%w: %w: azurekv: %s", custody.ErrUnwrap, sharecipher.ErrAuthenticationFailure, respErr.ErrorCode)
		}
		return nil, fmt.Errorf("%w: azurekv unwrap: %w", custody.ErrUnwrap, err)
	}
	return resp.Result, nil
}

func Factory(_ context.Context, s custody.Settings) (custody.Wrapper, error) {
	w, err := New(ConfigFromSettings(s))
	if err != nil {
		return nil, err
	}
	return w, nil
}
