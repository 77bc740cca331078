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

package rest

import (
	"encoding/json"
	"time"

	"github.com/jeremyhahn/go-sharevault/pkg/bundle"
	"github.com/jeremyhahn/go-sharevault/pkg/field"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// KeyRequest is the body of POST /keys. With a password the key is
// derived; otherwise a random key is generated. Salt is only used with a
// password and defaults to fresh random bytes.
type KeyRequest struct {
	Password string `json:"password,omitempty"`
	Salt     []byte `json:"salt,omitempty"`
}

// KeyResponse carries a share encryption key. Key is unpadded URL-safe
// base64.
type KeyResponse struct {
	Key string          `json:"key"`
	KID string          `json:"kid"`
	JWK json.RawMessage `json:"jwk"`
	KDF *bundle.KDF     `json:"kdf,omitempty"`
}

// ProtectRequest is the body of POST /bundles. At most one of Key and
// Password may be set; with neither a key is generated and returned.
type ProtectRequest struct {
	Secret   string `json:"secret"`
	Key      string `json:"key,omitempty"`
	Password string `json:"password,omitempty"`

	// Save stores the bundle as a session. A generated or supplied key is
	// wrapped by the custody provider; password bundles are stored without
	// a key.
	Save bool `json:"save,omitempty"`
}

// ProtectResponse describes a new bundle.
type ProtectResponse struct {
	BundleInfo
	Payload   string `json:"payload"`
	Key       string `json:"key,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// RecoverRequest is the body of POST /bundles/recover. Shares restricts
// reconstruction to the listed indices.
type RecoverRequest struct {
	Payload  string `json:"payload"`
	Key      string `json:"key,omitempty"`
	Password string `json:"password,omitempty"`
	Shares   []int  `json:"shares,omitempty"`
}

// SessionRecoverRequest is the optional body of
// POST /sessions/{id}/recover.
type SessionRecoverRequest struct {
	Shares []int `json:"shares,omitempty"`
}

// RecoverResponse carries a recovered secret.
type RecoverResponse struct {
	BundleID string `json:"bundle_id,omitempty"`
	Secret   string `json:"secret"`
}

// InspectRequest is the body of POST /bundles/inspect.
type InspectRequest struct {
	Payload string `json:"payload"`
}

// BundleInfo is the non-secret description of a bundle.
type BundleInfo struct {
	ID                string                   `json:"bundle_id"`
	Version           int                      `json:"version"`
	Threshold         int                      `json:"k"`
	Total             int                      `json:"n"`
	Prime             field.PrimeID            `json:"prime"`
	Shares            []int                    `json:"shares"`
	PasswordProtected bool                     `json:"password_protected"`
	KDF               sharecipher.KDFAlgorithm `json:"kdf,omitempty"`
}

// VerifyRequest is the body of POST /bundles/verify. Expected is optional.
type VerifyRequest struct {
	Payload  string `json:"payload"`
	Key      string `json:"key,omitempty"`
	Password string `json:"password,omitempty"`
	Expected string `json:"expected,omitempty"`
}

// SessionInfo describes a stored session without its payload.
type SessionInfo struct {
	ID                string        `json:"id"`
	CreatedAt         time.Time     `json:"created_at"`
	Threshold         int           `json:"k"`
	Total             int           `json:"n"`
	Prime             field.PrimeID `json:"prime"`
	PasswordProtected bool          `json:"password_protected"`
	KeyProvider       string        `json:"key_provider,omitempty"`
}

// SessionResponse is returned by GET /sessions/{id}.
type SessionResponse struct {
	SessionInfo
	Payload string `json:"payload"`
}

// ListSessionsResponse is returned by GET /sessions.
type ListSessionsResponse struct {
	Sessions []string `json:"sessions"`
}

func bundleInfo(b *bundle.Bundle) BundleInfo {
	info := BundleInfo{
		ID:        b.ID,
		Version:   b.Version,
		Threshold: b.Threshold,
		Total:     b.Total,
		Prime:     b.Prime,
		Shares:    b.Indices(),
	}
	if b.KDF != nil {
		info.PasswordProtected = true
		info.KDF = b.KDF.Algorithm
	}
	return info
}
