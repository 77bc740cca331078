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

package server

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeremyhahn/go-sharevault/pkg/custody"
	"github.com/jeremyhahn/go-sharevault/pkg/custody/awskms"
	"github.com/jeremyhahn/go-sharevault/pkg/custody/azurekv"
	"github.com/jeremyhahn/go-sharevault/pkg/custody/gcpkms"
	"github.com/jeremyhahn/go-sharevault/pkg/custody/vault"
)

func TestCustodyProvidersRegistered(t *testing.T) {
	providers := custody.Providers()
	for _, name := range []string{custody.PassphraseProvider, awskms.Name, gcpkms.Name, azurekv.Name, vault.Name} {
		assert.Contains(t, providers, name)
	}
}
