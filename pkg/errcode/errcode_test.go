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

package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeremyhahn/go-sharevault/pkg/bundle"
	"github.com/jeremyhahn/go-sharevault/pkg/field"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
	"github.com/jeremyhahn/go-sharevault/pkg/threshold"
)

func TestOf(t *testing.T) {
	tests := []struct {
		err  error
		want Code
	}{
		{nil, OK},
		{errors.New("boom"), Unknown},
		{threshold.ErrInvalidThreshold, InvalidThreshold},
		{field.ErrNotInvertible, NotInvertible},
		{threshold.ErrInsufficientShares, InsufficientShares},
		{threshold.ErrDuplicateShareIndex, DuplicateShareIndex},
		{threshold.ErrPolynomialEvaluation, PolynomialEvaluationError},
		{threshold.ErrMalformedShare, PolynomialEvaluationError},
		{threshold.ErrMalformedShareText, MalformedShareText},
		{sharecipher.ErrAuthenticationFailure, AuthenticationFailure},
		{sharecipher.ErrExpiredOrMalformed, ExpiredOrMalformed},
		{bundle.ErrUnsupportedFormatVersion, UnsupportedFormatVersion},
		{bundle.ErrMalformedBundle, MalformedBundle},
		{bundle.ErrThresholdMismatch, ThresholdMismatch},
		{sharecipher.ErrInvalidKey, InvalidInput},
		{sharecipher.ErrInvalidKDFParams, InvalidInput},
		{sharecipher.ErrUnsupportedAlgorithm, InvalidInput},
		{field.ErrUnknownPrime, InvalidInput},
		{field.ErrSecretTooLarge, InvalidInput},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, Of(tt.err))
			if tt.err != nil {
				wrapped := fmt.Errorf("stage decrypt share 3: %w", tt.err)
				assert.Equal(t, tt.want, Of(wrapped))
			}
		})
	}
}

func TestOf_NestedSentinels(t *testing.T) {
	// A polynomial failure caused by a non-invertible basis is classified
	// by the outer sentinel.
	err := fmt.Errorf("%w: %w", threshold.ErrPolynomialEvaluation, field.ErrNotInvertible)
	assert.Equal(t, PolynomialEvaluationError, Of(err))

	err = fmt.Errorf("%w: %w", threshold.ErrInvalidThreshold, field.ErrSecretTooLarge)
	assert.Equal(t, InvalidThreshold, Of(err))
}

func TestRecoverable(t *testing.T) {
	assert.True(t, Recoverable(fmt.Errorf("x: %w", threshold.ErrInsufficientShares)))
	for _, err := range []error{nil, threshold.ErrDuplicateShareIndex, sharecipher.ErrAuthenticationFailure, bundle.ErrThresholdMismatch} {
		assert.False(t, Recoverable(err))
	}
}

func TestRegister(t *testing.T) {
	sentinel := errors.New("custom: not found")
	assert.Equal(t, Unknown, Of(sentinel))

	Register(sentinel, Code("NotFound"))
	Register(sentinel, Code("Ignored"))
	assert.Equal(t, Code("NotFound"), Of(fmt.Errorf("wrap: %w", sentinel)))

	// Built-in entries keep priority.
	Register(bundle.ErrMalformedBundle, Code("Other"))
	assert.Equal(t, MalformedBundle, Of(bundle.ErrMalformedBundle))
}

func TestCodes(t *testing.T) {
	assert.Len(t, Codes(), 11)
}
