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

package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateKey(t *testing.T) {
	valid := []string{"sessions/abc", "a", "sessions/2c1e-44/meta", strings.Repeat("k", MaxKeyLength)}
	for _, k := range valid {
		assert.NoError(t, ValidateKey(k), k)
	}

	invalid := []string{
		"",
		"/etc/passwd",
		"../escape",
		"sessions/../../x",
		"sessions/./x",
		"sessions//x",
		"sessions/",
		"nul\x00byte",
		"tab\tkey",
		`win\path`,
		strings.Repeat("k", MaxKeyLength+1),
	}
	for _, k := range invalid {
		assert.ErrorIs(t, ValidateKey(k), ErrInvalidKey, "%q", k)
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.EqualValues(t, 0600, opts.Permissions)
	assert.NotNil(t, opts.Metadata)
}
