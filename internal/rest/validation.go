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
	"fmt"

	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
	"github.com/jeremyhahn/go-sharevault/pkg/threshold"
)

func required(value, name string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidRequest, name)
	}
	return nil
}

// credentials checks that at most one of key and password is set, and at
// least one when need is true.
func credentials(key, password string, need bool) error {
	switch {
	case key != "" && password != "":
		return fmt.Errorf("%w: key and password are mutually exclusive", ErrInvalidRequest)
	case need && key == "" && password == "":
		return fmt.Errorf("%w: key or password is required", ErrInvalidRequest)
	}
	return nil
}

func parseKey(text string) (sharecipher.Key, error) {
	k, err := sharecipher.ParseKey(text)
	if err != nil {
		return sharecipher.Key{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return k, nil
}

// checkShares validates share indices requested by a client.
func checkShares(indices []int) error {
	seen := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		if i < 1 || i > threshold.MaxShares {
			return fmt.Errorf("%w: share index %d outside [1, %d]", ErrInvalidRequest, i, threshold.MaxShares)
		}
		if _, dup := seen[i]; dup {
			return fmt.Errorf("%w: share index %d listed twice", ErrInvalidRequest, i)
		}
		seen[i] = struct{}{}
	}
	return nil
}
