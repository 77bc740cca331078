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
	"net/url"
	"path"
	"strings"
)

const (
	MinURLLength = 10
	MaxURLLength = 1000
)

// DefaultMediaExtensions returns the extensions of common streaming media.
func DefaultMediaExtensions() []string {
	return []string{
		".mp4", ".mkv", ".avi", ".mov", ".flv", ".webm",
		".m3u8", ".mp3", ".wav", ".flac",
	}
}

// ValidateURL checks that raw is an absolute http or https URL with a host
// and a length within [MinURLLength, MaxURLLength].
func ValidateURL(raw string) error {
	if len(raw) < MinURLLength || len(raw) > MaxURLLength {
		return fmt.Errorf("%w: length %d outside [%d, %d]", ErrInvalidURL, len(raw), MinURLLength, MaxURLLength)
	}
	if strings.TrimSpace(raw) != raw {
		return fmt.Errorf("%w: surrounding whitespace", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

// HasMediaExtension reports whether the path of raw ends in one of exts,
// ignoring case.
func HasMediaExtension(raw string, exts []string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
