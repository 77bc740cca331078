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
	"github.com/jeremyhahn/go-sharevault/pkg/custody"
	"github.com/jeremyhahn/go-sharevault/pkg/custody/awskms"
	"github.com/jeremyhahn/go-sharevault/pkg/custody/azurekv"
	"github.com/jeremyhahn/go-sharevault/pkg/custody/gcpkms"
	"github.com/jeremyhahn/go-sharevault/pkg/custody/vault"
)

// Cloud providers are registered next to the built-in passphrase provider
// so custody.provider in the configuration can name any of them.
func init() {
	custody.Register(awskms.Name, awskms.Factory)
	custody.Register(gcpkms.Name, gcpkms.Factory)
	custody.Register(azurekv.Name, azurekv.Factory)
	custody.Register(vault.Name, vault.Factory)
}
