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
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-sharevault/pkg/errcode"
	"github.com/jeremyhahn/go-sharevault/pkg/storage"
)

var (
	// ErrInvalidURL is returned when a secret fails URL validation.
	ErrInvalidURL = errors.New("orchestrator: invalid url")

	// ErrInvalidConfig is returned by New for unusable settings.
	ErrInvalidConfig = errors.New("orchestrator: invalid configuration")

	// ErrTooManyAttempts is returned when password recovery for a bundle is
	// attempted faster than the configured rate.
	ErrTooManyAttempts = errors.New("orchestrator: too many attempts")

	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("orchestrator: session not found")

	// ErrSessionCorrupt is returned when a stored session cannot be decoded
	// or disagrees with its payload.
	ErrSessionCorrupt = errors.New("orchestrator: session corrupt")

	// ErrInvalidSessionID is returned for a malformed session id.
	ErrInvalidSessionID = errors.New("orchestrator: invalid session id")

	// ErrNoPassword is returned by RecoverWithPassword for a bundle that
	// was not protected with a password.
	ErrNoPassword = errors.New("orchestrator: bundle is not password protected")

	// ErrNoSessionKey is returned by RecoverSession when the session was
	// saved without a key.
	ErrNoSessionKey = errors.New("orchestrator: session has no stored key")

	// ErrStorageRequired is returned by session operations when no storage
	// backend is configured.
	ErrStorageRequired = errors.New("orchestrator: storage backend not configured")

	// ErrCustodyRequired is returned when a key must be wrapped or
	// unwrapped and no custody provider is configured.
	ErrCustodyRequired = errors.New("orchestrator: custody provider not configured")
)

func init() {
	errcode.Register(ErrInvalidURL, errcode.InvalidInput)
	errcode.Register(ErrInvalidConfig, errcode.InvalidInput)
	errcode.Register(ErrInvalidSessionID, errcode.InvalidInput)
	errcode.Register(ErrNoPassword, errcode.InvalidInput)
	errcode.Register(ErrNoSessionKey, errcode.InvalidInput)
	errcode.Register(ErrTooManyAttempts, errcode.RateLimited)
	errcode.Register(ErrSessionNotFound, errcode.NotFound)
	errcode.Register(storage.ErrNotFound, errcode.NotFound)
	errcode.Register(ErrSessionCorrupt, errcode.SessionCorrupt)
	errcode.Register(ErrStorageRequired, errcode.Unavailable)
	errcode.Register(ErrCustodyRequired, errcode.Unavailable)
}

// Stage names the pipeline step that failed.
type Stage string

const (
	StageValidate    Stage = "validate"
	StageSplit       Stage = "split"
	StageEncode      Stage = "encode"
	StageEncrypt     Stage = "encrypt"
	StageSerialize   Stage = "serialize"
	StageParse       Stage = "parse"
	StageDerive      Stage = "derive"
	StageDecrypt     Stage = "decrypt"
	StageDecode      Stage = "decode"
	StageReconstruct Stage = "reconstruct"
)

// StageError reports the step, and for per-share steps the share index,
// at which a protect or recover run failed. The underlying error keeps its
// classification through errors.Is.
type StageError struct {
	Stage Stage
	Index int
	Err   error
}

func (e *StageError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("%s share %d: %v", e.Stage, e.Index, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, index int, err error) error {
	return &StageError{Stage: stage, Index: index, Err: err}
}
