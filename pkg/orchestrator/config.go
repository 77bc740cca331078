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

package orchestrator

import (
	"fmt"
	"time"

	"github.com/jeremyhahn/go-sharevault/pkg/field"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
	"github.com/jeremyhahn/go-sharevault/pkg/threshold"
)

const (
	DefaultThreshold = 2
	DefaultTotal     = 3

	// DefaultMaxVerifySubsets bounds the subsets tried by Verify.
	DefaultMaxVerifySubsets = 1024

	// DefaultPasswordAttemptsPerMinute limits RecoverWithPassword per bundle.
	DefaultPasswordAttemptsPerMinute = 5
)

// Config holds the sharing and protection parameters.
type Config struct {
	Threshold int `yaml:"threshold" json:"threshold" mapstructure:"threshold"`
	Total     int `yaml:"total" json:"total" mapstructure:"total"`

	// Prime pins the field. Empty selects the smallest field that fits the
	// secret.
	Prime field.PrimeID `yaml:"prime" json:"prime,omitempty" mapstructure:"prime"`

	Algorithm sharecipher.Algorithm `yaml:"algorithm" json:"algorithm" mapstructure:"algorithm"`

	// TTL bounds share token age on recovery. Zero disables the check.
	TTL time.Duration `yaml:"ttl" json:"ttl" mapstructure:"ttl"`

	// KDF is used by ProtectWithPassword. Nil selects Argon2id defaults.
	KDF *sharecipher.KDFParams `yaml:"kdf" json:"kdf,omitempty" mapstructure:"kdf"`

	// ValidateURLs enables URL validation of secrets in Protect.
	ValidateURLs bool `yaml:"validate_urls" json:"validate_urls" mapstructure:"validate_urls"`

	// MediaExtensions are the extensions accepted without a warning.
	MediaExtensions []string `yaml:"media_extensions" json:"media_extensions,omitempty" mapstructure:"media_extensions"`

	MaxVerifySubsets int `yaml:"max_verify_subsets" json:"max_verify_subsets" mapstructure:"max_verify_subsets"`

	PasswordAttemptsPerMinute int `yaml:"password_attempts_per_minute" json:"password_attempts_per_minute" mapstructure:"password_attempts_per_minute"`
}

// DefaultConfig returns a 2-of-3 configuration with URL validation on.
func DefaultConfig() *Config {
	return &Config{
		Threshold:                 DefaultThreshold,
		Total:                     DefaultTotal,
		Algorithm:                 sharecipher.AlgorithmAuto,
		KDF:                       sharecipher.DefaultKDFParams(),
		ValidateURLs:              true,
		MediaExtensions:           DefaultMediaExtensions(),
		MaxVerifySubsets:          DefaultMaxVerifySubsets,
		PasswordAttemptsPerMinute: DefaultPasswordAttemptsPerMinute,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Threshold < 1 || c.Total < c.Threshold || c.Total > threshold.MaxShares {
		return fmt.Errorf("%w: %w: need 1 <= k <= n <= %d, got k=%d n=%d",
			ErrInvalidConfig, threshold.ErrInvalidThreshold, threshold.MaxShares, c.Threshold, c.Total)
	}
	if c.Prime != "" {
		if _, err := field.New(c.Prime); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if c.Algorithm != "" {
		if _, err := sharecipher.ParseAlgorithm(string(c.Algorithm)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if c.TTL < 0 {
		return fmt.Errorf("%w: negative ttl", ErrInvalidConfig)
	}
	if c.KDF != nil {
		if err := c.KDF.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if c.MaxVerifySubsets < 0 {
		return fmt.Errorf("%w: negative max_verify_subsets", ErrInvalidConfig)
	}
	if c.PasswordAttemptsPerMinute < 0 {
		return fmt.Errorf("%w: negative password_attempts_per_minute", ErrInvalidConfig)
	}
	return nil
}
