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
	"net/http"

	"github.com/jeremyhahn/go-sharevault/pkg/correlation"
)

// CorrelationMiddleware takes the correlation id from X-Correlation-ID,
// then X-Request-ID, generating one when neither is usable. The id is put
// in the request context, where the logger and audit recorder pick it up,
// and echoed in the response.
func (s *Server) CorrelationMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := correlation.Sanitize(r.Header.Get(correlation.CorrelationIDHeader))
			if id == "" {
				id = correlation.Sanitize(r.Header.Get(correlation.RequestIDHeader))
			}
			if id == "" {
				id = correlation.NewID()
			}

			w.Header().Set(correlation.CorrelationIDHeader, id)
			next.ServeHTTP(w, r.WithContext(correlation.WithCorrelationID(r.Context(), id)))
		})
	}
}
