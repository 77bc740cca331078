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

// Package config loads the sharevault configuration file, applies
// SHAREVAULT_* environment overrides and validates the result.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-sharevault/pkg/audit"
	"github.com/jeremyhahn/go-sharevault/pkg/field"
	"github.com/jeremyhahn/go-sharevault/pkg/logging"
	"github.com/jeremyhahn/go-sharevault/pkg/orchestrator"
	"github.com/jeremyhahn/go-sharevault/pkg/ratelimit"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
	"github.com/jeremyhahn/go-sharevault/pkg/storage/azsecrets"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SHAREVAULT_"

// Config is the complete configuration of the CLI and server.
type Config struct {
	Sharing   SharingConfig    `yaml:"sharing"`
	Cipher    CipherConfig     `yaml:"cipher"`
	URL       URLConfig        `yaml:"url"`
	Storage   StorageConfig    `yaml:"storage"`
	Custody   CustodyConfig    `yaml:"custody"`
	Logging   LoggingConfig    `yaml:"logging"`
	Server    ServerConfig     `yaml:"server"`
	TLS       TLSConfig        `yaml:"tls"`
	Auth      AuthConfig       `yaml:"auth"`
	RateLimit ratelimit.Config `yaml:"ratelimit"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Audit     AuditConfig      `yaml:"audit"`
}

// SharingConfig sets the threshold scheme. An empty Prime selects the
// smallest field that fits each secret.
type SharingConfig struct {
	Threshold int    `yaml:"threshold"`
	Total     int    `yaml:"total"`
	Prime     string `yaml:"prime"`
}

type CipherConfig struct {
	Algorithm string                `yaml:"algorithm"`
	TTL       time.Duration         `yaml:"ttl"`
	KDF       sharecipher.KDFParams `yaml:"kdf"`

	// PasswordAttemptsPerMinute limits password recovery per bundle.
	PasswordAttemptsPerMinute int `yaml:"password_attempts_per_minute"`

	MaxVerifySubsets int `yaml:"max_verify_subsets"`
}

type URLConfig struct {
	Validate        bool     `yaml:"validate"`
	MediaExtensions []string `yaml:"media_extensions"`
}

// StorageConfig selects the session backend: memory, file or azsecrets.
type StorageConfig struct {
	Backend   string           `yaml:"backend"`
	Path      string           `yaml:"path"`
	AzSecrets azsecrets.Config `yaml:"azsecrets"`
}

// CustodyConfig selects the provider wrapping stored session keys. Settings
// are passed to the provider factory unchanged.
type CustodyConfig struct {
	Provider string            `yaml:"provider"`
	Settings map[string]string `yaml:"settings"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"` // 0 binds any free port
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`

	// UnixSocket additionally serves the API on a local socket when set.
	UnixSocket     string      `yaml:"unix_socket"`
	UnixSocketMode os.FileMode `yaml:"unix_socket_mode"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// AuthConfig controls authentication of the REST API. Type is noop or jwt.
type AuthConfig struct {
	Enabled bool      `yaml:"enabled"`
	Type    string    `yaml:"type"`
	JWT     JWTConfig `yaml:"jwt"`
}

// JWTConfig verifies bearer tokens with an HMAC secret or a PEM public key.
type JWTConfig struct {
	Secret        string   `yaml:"secret"`
	PublicKeyFile string   `yaml:"public_key_file"`
	Issuer        string   `yaml:"issuer"`
	Audience      []string `yaml:"audience"`
	Algorithms    []string `yaml:"algorithms"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`

	// ResourceInterval is the period of the process resource collector.
	// Zero disables it.
	ResourceInterval time.Duration `yaml:"resource_interval"`
}

// AuditConfig selects the audit sink: none, memory or log.
type AuditConfig struct {
	Sink     string          `yaml:"sink"`
	Capacity int             `yaml:"capacity"`
	Log      audit.LogConfig `yaml:"log"`
}

// Default returns the built-in profile: 2-of-3 sharing over an
// automatically sized field, automatic AEAD selection, Argon2id, memory
// storage and passphrase custody.
func Default() *Config {
	return &Config{
		Sharing: SharingConfig{
			Threshold: orchestrator.DefaultThreshold,
			Total:     orchestrator.DefaultTotal,
		},
		Cipher: CipherConfig{
			Algorithm:                 string(sharecipher.AlgorithmAuto),
			KDF:                       *sharecipher.DefaultKDFParams(),
			PasswordAttemptsPerMinute: orchestrator.DefaultPasswordAttemptsPerMinute,
			MaxVerifySubsets:          orchestrator.DefaultMaxVerifySubsets,
		},
		URL: URLConfig{
			Validate:        true,
			MediaExtensions: orchestrator.DefaultMediaExtensions(),
		},
		Storage: StorageConfig{
			Backend: StorageMemory,
		},
		Custody: CustodyConfig{
			Provider: "passphrase",
			Settings: map[string]string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8443,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		TLS: TLSConfig{
			MinVersion: "TLS1.2",
		},
		Auth: AuthConfig{
			Type: AuthNoop,
		},
		RateLimit: ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: 120,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Audit: AuditConfig{
			Sink:     AuditMemory,
			Capacity: 10000,
		},
	}
}

// Load reads path over Default, applies environment overrides and
// validates. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		// #nosec G304 - config path is provided by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg, os.LookupEnv)
	cfg.Cipher.KDF = fillKDF(cfg.Cipher.KDF)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnvOverrides(cfg *Config, lookup lookupFunc) {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		v, ok := lookup(name)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("Warning: invalid %s value %q, keeping %d: %v", name, v, *dst, err)
			return
		}
		*dst = n
	}
	dur := func(name string, dst *time.Duration) {
		v, ok := lookup(name)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("Warning: invalid %s value %q, keeping %s: %v", name, v, *dst, err)
			return
		}
		*dst = d
	}
	flag := func(name string, dst *bool) {
		v, ok := lookup(name)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			log.Printf("Warning: invalid %s value %q, keeping %t: %v", name, v, *dst, err)
			return
		}
		*dst = b
	}

	num(EnvPrefix+"THRESHOLD", &cfg.Sharing.Threshold)
	num(EnvPrefix+"TOTAL", &cfg.Sharing.Total)
	str(EnvPrefix+"PRIME", &cfg.Sharing.Prime)

	str(EnvPrefix+"CIPHER_ALGORITHM", &cfg.Cipher.Algorithm)
	dur(EnvPrefix+"CIPHER_TTL", &cfg.Cipher.TTL)
	flag(EnvPrefix+"VALIDATE_URLS", &cfg.URL.Validate)

	str(EnvPrefix+"STORAGE_BACKEND", &cfg.Storage.Backend)
	str(EnvPrefix+"STORAGE_PATH", &cfg.Storage.Path)
	str(EnvPrefix+"AZSECRETS_VAULT_URL", &cfg.Storage.AzSecrets.VaultURL)

	str(EnvPrefix+"LOG_LEVEL", &cfg.Logging.Level)
	str(EnvPrefix+"LOG_FORMAT", &cfg.Logging.Format)

	str(EnvPrefix+"HOST", &cfg.Server.Host)
	num(EnvPrefix+"PORT", &cfg.Server.Port)
	str(EnvPrefix+"UNIX_SOCKET", &cfg.Server.UnixSocket)

	flag(EnvPrefix+"AUTH_ENABLED", &cfg.Auth.Enabled)
	str(EnvPrefix+"AUTH_TYPE", &cfg.Auth.Type)
	str(EnvPrefix+"JWT_SECRET", &cfg.Auth.JWT.Secret)

	str(EnvPrefix+"AUDIT_SINK", &cfg.Audit.Sink)
	str(EnvPrefix+"AUDIT_PATH", &cfg.Audit.Log.Path)

	str(EnvPrefix+"CUSTODY_PROVIDER", &cfg.Custody.Provider)
	if cfg.Custody.Settings == nil {
		cfg.Custody.Settings = map[string]string{}
	}
	set := func(name, key string) {
		if v, ok := lookup(name); ok && v != "" {
			cfg.Custody.Settings[key] = v
		}
	}
	set(EnvPrefix+"CUSTODY_PASSPHRASE", "passphrase")

	// Provider SDK variables follow the conventions of each cloud.
	switch cfg.Custody.Provider {
	case "awskms":
		set("AWS_REGION", "region")
		set("AWS_ACCESS_KEY_ID", "access_key_id")
		set("AWS_SECRET_ACCESS_KEY", "secret_access_key")
		set("AWS_SESSION_TOKEN", "session_token")
	case "gcpkms":
		set("GOOGLE_APPLICATION_CREDENTIALS", "credentials_file")
	case "azurekv":
		set("AZURE_KEYVAULT_URL", "vault_url")
		set("AZURE_TENANT_ID", "tenant_id")
		set("AZURE_CLIENT_ID", "client_id")
		set("AZURE_CLIENT_SECRET", "client_secret")
	case "vault":
		set("VAULT_ADDR", "address")
		set("VAULT_TOKEN", "token")
		set("VAULT_NAMESPACE", "namespace")
	}
	if cfg.Storage.Backend == StorageAzSecrets {
		str("AZURE_TENANT_ID", &cfg.Storage.AzSecrets.TenantID)
		str("AZURE_CLIENT_ID", &cfg.Storage.AzSecrets.ClientID)
		str("AZURE_CLIENT_SECRET", &cfg.Storage.AzSecrets.ClientSecret)
	}
}

// fillKDF completes cost parameters left unset for the chosen algorithm.
func fillKDF(p sharecipher.KDFParams) sharecipher.KDFParams {
	def, err := sharecipher.KDFParamsFor(p.Algorithm)
	if err != nil {
		return p
	}
	switch def.Algorithm {
	case sharecipher.KDFPBKDF2SHA256:
		if p.Iterations == 0 {
			p.Iterations = def.Iterations
		}
		p.Time, p.Memory, p.Threads = 0, 0, 0
	default:
		if p.Time == 0 {
			p.Time = def.Time
		}
		if p.Memory == 0 {
			p.Memory = def.Memory
		}
		if p.Threads == 0 {
			p.Threads = def.Threads
		}
		p.Iterations = 0
	}
	p.Algorithm = def.Algorithm
	return p
}

// Orchestrator returns the pipeline settings.
func (c *Config) Orchestrator() *orchestrator.Config {
	kdf := c.Cipher.KDF
	return &orchestrator.Config{
		Threshold:                 c.Sharing.Threshold,
		Total:                     c.Sharing.Total,
		Prime:                     field.PrimeID(c.Sharing.Prime),
		Algorithm:                 sharecipher.Algorithm(c.Cipher.Algorithm),
		TTL:                       c.Cipher.TTL,
		KDF:                       &kdf,
		ValidateURLs:              c.URL.Validate,
		MediaExtensions:           c.URL.MediaExtensions,
		MaxVerifySubsets:          c.Cipher.MaxVerifySubsets,
		PasswordAttemptsPerMinute: c.Cipher.PasswordAttemptsPerMinute,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Orchestrator().Validate(); err != nil {
		return err
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageFile:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the file backend")
		}
	case StorageAzSecrets:
		if c.Storage.AzSecrets.VaultURL == "" {
			return fmt.Errorf("storage azsecrets.vault_url is required for the azsecrets backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Storage.Backend)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("invalid server max_body_bytes: %d", c.Server.MaxBodyBytes)
	}

	if err := c.TLS.Validate(); err != nil {
		return err
	}

	if c.Auth.Enabled {
		switch c.Auth.Type {
		case AuthNoop, "":
		case AuthJWT:
			if c.Auth.JWT.Secret == "" && c.Auth.JWT.PublicKeyFile == "" {
				return fmt.Errorf("auth jwt requires secret or public_key_file")
			}
		default:
			return fmt.Errorf("unknown auth type: %s", c.Auth.Type)
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("ratelimit requests_per_minute must be positive when enabled")
	}

	switch c.Audit.Sink {
	case AuditNone, AuditMemory, "":
	case AuditLog:
		if c.Audit.Log.Path == "" && !c.Audit.Log.SystemLog {
			return fmt.Errorf("audit log sink requires log.path or log.system_log")
		}
	default:
		return fmt.Errorf("unknown audit sink: %q", c.Audit.Sink)
	}
	return nil
}
