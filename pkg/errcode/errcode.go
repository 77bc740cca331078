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

// Package errcode classifies errors from the sharing pipeline into stable
// names used for CLI output, REST responses and metric labels.
package errcode

import (
	"errors"
	"sync"

	"github.com/jeremyhahn/go-sharevault/pkg/bundle"
	"github.com/jeremyhahn/go-sharevault/pkg/field"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
	"github.com/jeremyhahn/go-sharevault/pkg/threshold"
)

// Code is a stable error classification.
type Code string

const (
	OK                        Code = "OK"
	Unknown                   Code = "Unknown"
	InvalidThreshold          Code = "InvalidThreshold"
	NotInvertible             Code = "NotInvertible"
	InsufficientShares        Code = "InsufficientShares"
	DuplicateShareIndex       Code = "DuplicateShareIndex"
	PolynomialEvaluationError Code = "PolynomialEvaluationError"
	MalformedShareText        Code = "MalformedShareText"
	AuthenticationFailure     Code = "AuthenticationFailure"
	ExpiredOrMalformed        Code = "ExpiredOrMalformed"
	UnsupportedFormatVersion  Code = "UnsupportedFormatVersion"
	MalformedBundle           Code = "MalformedBundle"
	ThresholdMismatch         Code = "ThresholdMismatch"
)

// Service codes. Their sentinels live in outer packages and are added with
// Register.
const (
	InvalidInput   Code = "InvalidInput"
	NotFound       Code = "NotFound"
	RateLimited    Code = "RateLimited"
	SessionCorrupt Code = "SessionCorrupt"
	Unavailable    Code = "Unavailable"
)

type entry struct {
	target error
	code   Code
}

var (
	mu sync.RWMutex

	// Checked in order. More specific sentinels come first.
	table = []entry{
		{threshold.ErrInsufficientShares, InsufficientShares},
		{threshold.ErrDuplicateShareIndex, DuplicateShareIndex},
		{threshold.ErrMalformedShareText, MalformedShareText},
		{threshold.ErrPolynomialEvaluation, PolynomialEvaluationError},
		{threshold.ErrInvalidThreshold, InvalidThreshold},
		{field.ErrNotInvertible, NotInvertible},
		{sharecipher.ErrAuthenticationFailure, AuthenticationFailure},
		{sharecipher.ErrExpiredOrMalformed, ExpiredOrMalformed},
		{bundle.ErrUnsupportedFormatVersion, UnsupportedFormatVersion},
		{bundle.ErrThresholdMismatch, ThresholdMismatch},
		{bundle.ErrMalformedBundle, MalformedBundle},

		// Caller input rejected before the pipeline runs.
		{sharecipher.ErrInvalidKey, InvalidInput},
		{sharecipher.ErrInvalidKDFParams, InvalidInput},
		{sharecipher.ErrUnsupportedAlgorithm, InvalidInput},
		{field.ErrUnknownPrime, InvalidInput},
		{field.ErrSecretTooLarge, InvalidInput},
	}
)

// Register adds a classification for target. Packages outside the core
// pipeline use it for their own sentinels. Registered entries are checked
// after the built-in table.
func Register(target error, code Code) {
	mu.Lock()
	defer mu.Unlock()
	for _, e := range table {
		if e.target == target {
			return
		}
	}
	table = append(table, entry{target: target, code: code})
}

// Of returns the classification of err. A nil error is OK.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	mu.RLock()
	defer mu.RUnlock()
	for _, e := range table {
		if errors.Is(err, e.target) {
			return e.code
		}
	}
	return Unknown
}

// Recoverable reports whether the caller can succeed by retrying with more
// input, which is only the case when more shares are needed.
func Recoverable(err error) bool {
	return Of(err) == InsufficientShares
}

// Codes returns the built-in taxonomy.
func Codes() []Code {
	return []Code{
		InvalidThreshold, NotInvertible, InsufficientShares, DuplicateShareIndex,
		PolynomialEvaluationError, MalformedShareText, AuthenticationFailure,
		ExpiredOrMalformed, UnsupportedFormatVersion, MalformedBundle, ThresholdMismatch,
	}
}
