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

// Package azsecrets stores values as Azure Key Vault secrets. Storage keys
// are mapped to secret names as Prefix followed by the unpadded base32hex
// encoding of the key, which only uses characters Key Vault accepts.
// Values are stored base64 encoded.
//
// Deleted secrets enter the vault's soft-delete state; writing the same key
// again before the secret is purged fails with a conflict from the service.
package azsecrets

import (
	"context"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/jeremyhahn/go-sharevault/internal/azcred"
	"github.com/jeremyhahn/go-sharevault/pkg/storage"
)

const (
	// DefaultPrefix namespaces secrets written by this package.
	DefaultPrefix = "sharevault-"

	// MaxSecretNameLength is the Key Vault limit on secret names.
	MaxSecretNameLength = 127

	contentType = "application/octet-stream;base64"
	keyTag      = "sharevault-key"
)

var nameEncoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// Client is the subset of *azsecrets.Client used by Storage.
type Client interface {
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	DeleteSecret(ctx context.Context, name string, options *azsecrets.DeleteSecretOptions) (azsecrets.DeleteSecretResponse, error)
	NewListSecretPropertiesPager(options *azsecrets.ListSecretPropertiesOptions) *runtime.Pager[azsecrets.ListSecretPropertiesResponse]
}

// Config configures a Key Vault backed store.
type Config struct {
	// VaultURL has the form https://{vault-name}.vault.azure.net/.
	VaultURL string `yaml:"vault_url" json:"vault_url" mapstructure:"vault_url"`

	// Prefix defaults to DefaultPrefix. It must be alphanumeric or dashes.
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty" mapstructure:"prefix"`

	azcred.Config `yaml:",inline" mapstructure:",squash"`
}

// Storage is a storage.Backend over Key Vault secrets.
type Storage struct {
	client Client
	prefix string

	mu     sync.RWMutex
	closed bool
}

// New connects to the vault in cfg.
func New(cfg *Config) (*Storage, error) {
	if cfg == nil || cfg.VaultURL == "" {
		return nil, errors.New("azsecrets: vault URL is required")
	}
	cred, err := azcred.New(cfg.Config)
	if err != nil {
		return nil, err
	}
	client, err := azsecrets.NewClient(cfg.VaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azsecrets: create client: %w", err)
	}
	return NewWithClient(client, cfg.Prefix)
}

// NewWithClient wraps an existing client. An empty prefix selects
// DefaultPrefix.
func NewWithClient(client Client, prefix string) (*Storage, error) {
	if client == nil {
		return nil, errors.New("azsecrets: client is required")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	for _, r := range prefix {
		if !isNameChar(r) {
			return nil, fmt.Errorf("azsecrets: prefix %q may only contain letters, digits and dashes", prefix)
		}
	}
	return &Storage{client: client, prefix: prefix}, nil
}

// SecretName returns the Key Vault secret name for key.
func (s *Storage) SecretName(key string) (string, error) {
	if err := storage.ValidateKey(key); err != nil {
		return "", err
	}
	name := s.prefix + strings.ToLower(nameEncoding.EncodeToString([]byte(key)))
	if len(name) > MaxSecretNameLength {
		return "", fmt.Errorf("%w: %q maps to a secret name longer than %d characters",
			storage.ErrInvalidKey, key, MaxSecretNameLength)
	}
	return name, nil
}

func (s *Storage) keyFromName(name string) (string, bool) {
	if len(name) < len(s.prefix) || !strings.EqualFold(name[:len(s.prefix)], s.prefix) {
		return "", false
	}
	raw, err := nameEncoding.DecodeString(strings.ToUpper(name[len(s.prefix):]))
	if err != nil || len(raw) == 0 {
		return "", false
	}
	return string(raw), true
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	name, err := s.open(ctx, key)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		return nil, translate(err, "get", key)
	}
	if resp.Value == nil {
		return nil, fmt.Errorf("azsecrets: get %q: secret has no value", key)
	}
	data, err := base64.StdEncoding.DecodeString(*resp.Value)
	if err != nil {
		return nil, fmt.Errorf("azsecrets: get %q: decode value: %w", key, err)
	}
	return data, nil
}

func (s *Storage) Put(ctx context.Context, key string, value []byte, opts *storage.Options) error {
	name, err := s.open(ctx, key)
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(value)
	ct := contentType
	tags := map[string]*string{keyTag: to(key)}
	if opts != nil {
		for k, v := range opts.Metadata {
			tags[k] = to(v)
		}
	}
	enabled := true
	params := azsecrets.SetSecretParameters{
		Value:            &encoded,
		ContentType:      &ct,
		SecretAttributes: &azsecrets.SecretAttributes{Enabled: &enabled},
		Tags:             tags,
	}
	if _, err := s.client.SetSecret(ctx, name, params, nil); err != nil {
		return translate(err, "put", key)
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	name, err := s.open(ctx, key)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteSecret(ctx, name, nil); err != nil {
		return translate(err, "delete", key)
	}
	return nil
}

func (s *Storage) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	keys := make([]string, 0)
	pager := s.client.NewListSecretPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, translate(err, "list", prefix)
		}
		for _, props := range page.Value {
			if props == nil || props.ID == nil {
				continue
			}
			key, ok := s.keyFromName(props.ID.Name())
			if ok && strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Close marks the store closed. The vault is not modified.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	s.closed = true
	return nil
}

func (s *Storage) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}

func (s *Storage) open(ctx context.Context, key string) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}
	return s.SecretName(key)
}

func translate(err error, op, key string) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return storage.ErrNotFound
	}
	return fmt.Errorf("azsecrets: %s %q: %w", op, key, err)
}

func isNameChar(r rune) bool {
	return r == '-' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func to(s string) *string { return &s }

var _ storage.Backend = (*Storage)(nil)
