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

package bundle

import "errors"

var (
	// ErrUnsupportedFormatVersion is returned for a well-formed payload
	// whose version this package does not read.
	ErrUnsupportedFormatVersion = errors.New("bundle: unsupported format version")

	// ErrMalformedBundle is returned for a payload that is not a valid
	// bundle.
	ErrMalformedBundle = errors.New("bundle: malformed bundle")

	// ErrThresholdMismatch is returned when a bundle declares a threshold
	// larger than the number of shares it carries.
	ErrThresholdMismatch = errors.New("bundle: threshold exceeds share count")
)
