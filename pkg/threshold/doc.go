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

// Package threshold implements Shamir's Secret Sharing over the large prime
// fields of package field.
//
// A secret is split into N shares such that any K of them reconstruct it and
// fewer than K reveal nothing about it.
//
// # Mathematical Foundation
//
// The secret s becomes the constant term of a random polynomial of degree
// K-1 over GF(p):
//
//	f(x) = s + a1*x + a2*x^2 + ... + a(K-1)*x^(K-1)
//
// Share i is the point (i, f(i)) for i = 1..N. Reconstruction evaluates the
// Lagrange interpolating polynomial at x = 0:
//
//	s = sum(y_i * prod((0 - x_j) / (x_i - x_j))) for j != i
//
// Every supplied share takes part in the interpolation. Supplying more than
// K shares of the same polynomial yields the same secret; a tampered extra
// share changes the result instead of being silently dropped.
//
// # Security Properties
//
//   - Coefficients a1..a(K-1) are drawn from crypto/rand on every split, so
//     repeated splits of one secret produce unlinkable share sets.
//   - K-1 or fewer shares are consistent with every possible secret.
//   - K = 1 is permitted and degenerates to N copies of the secret. It
//     provides no secrecy until threshold.
//   - Share values are not authenticated here. Integrity comes from the
//     encryption layer.
//
// # Usage Example
//
//	cfg, err := threshold.NewConfig(3, 5, field.MustNew(field.P256))
//	if err != nil {
//	    return err
//	}
//	splitter, _ := threshold.NewSplitter(cfg)
//	shares, err := splitter.SplitBytes([]byte("https://example.com/v.mp4"))
//
//	reconstructor, _ := threshold.NewReconstructor(cfg)
//	secret, err := reconstructor.ReconstructBytes(shares[:3])
package threshold
