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

// Package vault wraps keys with a HashiCorp Vault transit key.
package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	vault "github.com/hashicorp/vault/api"

	"github.com/jeremyhahn/go-sharevault/pkg/custody"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
)

const Name = "vault"

// DefaultMount is the transit engine mount path.
const DefaultMount = "transit"

// Logical is the subset of *vault.Logical used by Wrapper.
type Logical interface {
	WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*vault.Secret, error)
}

type Config struct {
	Address   string `yaml:"address" json:"address" mapstructure:"address"`
	Token     string `yaml:"token,omitempty" json:"-" mapstructure:"token"`
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty" mapstructure:"namespace"`
	Mount     string `yaml:"mount,omitempty" json:"mount,omitempty" mapstructure:"mount"`
	KeyName   string `yaml:"key_name" json:"key_name" mapstructure:"key_name"`
}

func (c *Config) Validate() error {
	if c == nil || c.KeyName == "" {
		return fmt.Errorf("%w: vault key_name is required", custody.ErrInvalidConfig)
	}
	if strings.ContainsAny(c.KeyName, "/ ") || strings.Contains(c.Mount, "..") {
		return fmt.Errorf("%w: vault key_name or mount is not a valid path segment", custody.ErrInvalidConfig)
	}
	return nil
}

func (c *Config) mount() string {
	if c.Mount == "" {
		return DefaultMount
	}
	return strings.Trim(c.Mount, "/")
}

func ConfigFromSettings(s custody.Settings) *Config {
	return &Config{
		Address:   s.Get("address"),
		Token:     s.Get("token"),
		Namespace: s.Get("namespace"),
		Mount:     s.Get("mount"),
		KeyName:   s.Get("key_name"),
	}
}

// Wrapper is a custody.Wrapper backed by transit encrypt and decrypt.
type Wrapper struct {
	cfg     *Config
	logical Logical
}

// New builds a Vault client. Address and Token fall back to VAULT_ADDR and
// VAULT_TOKEN.
func New(cfg *Config) (*Wrapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	vc := vault.DefaultConfig()
	if vc.Error != nil {
		return nil, fmt.Errorf("vault: default config: %w", vc.Error)
	}
	if cfg.Address != "" {
		vc.Address = cfg.Address
	}
	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("vault: create client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	return NewWithLogical(cfg, client.Logical())
}

func NewWithLogical(cfg *Config, logical Logical) (*Wrapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logical == nil {
		return nil, fmt.Errorf("%w: vault client is required", custody.ErrInvalidConfig)
	}
	return &Wrapper{cfg: cfg, logical: logical}, nil
}

func (w *Wrapper) Name() string { return Name }

func (w *Wrapper) Wrap(ctx context.Context, key []byte) ([]byte, error) {
	path := w.cfg.mount() + "/encrypt/" + w.cfg.KeyName
	secret, err := w.logical.WriteWithContext(ctx, path, map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: vault encrypt: %w", custody.ErrWrap, err)
	}
	ct, err := field(secret, "ciphertext")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", custody.ErrWrap, err)
	}
	return []byte(ct), nil
}

// Unwrap maps a 400 from transit decrypt to
// sharecipher.ErrAuthenticationFailure.
func (w *Wrapper) Unwrap(ctx context.Context, wrapped []byte) ([]byte, error) {
	if !strings.HasPrefix(string(wrapped), "vault:v") {
		return nil, fmt.Errorf("%w: vault: not a transit ciphertext", custody.ErrUnwrap)
	}
	path := w.cfg.mount() + "/decrypt/" + w.cfg.KeyName
	secret, err := w.logical.WriteWithContext(ctx, path, map[string]interface{}{
		"ciphertext": string(wrapped),
	})
	if err != nil {
		var respErr *vault.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("%w: %w: vault: %s", custody.ErrUnwrap, sharecipher.ErrAuthenticationFailure,
				strings.Join(respErr.Errors, "; "))
		}
		return nil, fmt.Errorf("%w: vault decrypt: %w", custody.ErrUnwrap, err)
	}
	pt, err := field(secret, "plaintext")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", custody.ErrUnwrap, err)
	}
	key, err := base64.StdEncoding.DecodeString(pt)
	if err != nil {
		return nil, fmt.Errorf("%w: vault: decode plaintext: %w", custody.ErrUnwrap, err)
	}
	return key, nil
}

func Factory(_ context.Context, s custody.Settings) (custody.Wrapper, error) {
	w, err := New(ConfigFromSettings(s))
	if err != nil {
		return nil, err
	}
	return w, nil
}

func field(secret *vault.Secret, name string) (string, error) {
	if secret == nil || secret.Data == nil {
		return "", errors.New("vault: empty response")
	}
	v, ok := secret.Data[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("vault: response has no %s", name)
	}
	return v, nil
}
