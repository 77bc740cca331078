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
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sharevault/pkg/bundle"
	"github.com/jeremyhahn/go-sharevault/pkg/errcode"
	"github.com/jeremyhahn/go-sharevault/pkg/logging"
	"github.com/jeremyhahn/go-sharevault/pkg/orchestrator"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
	"github.com/jeremyhahn/go-sharevault/pkg/threshold"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHandleError(t *testing.T) {
	h := &HandlerContext{logger: logging.NewNop()}

	tests := []struct {
		name   string
		err    error
		status int
		code   errcode.Code
	}{
		{"insufficient shares", fmt.Errorf("reconstruct: %w", threshold.ErrInsufficientShares), http.StatusUnprocessableEntity, errcode.InsufficientShares},
		{"threshold mismatch", bundle.ErrThresholdMismatch, http.StatusUnprocessableEntity, errcode.ThresholdMismatch},
		{"authentication failure", sharecipher.ErrAuthenticationFailure, http.StatusUnauthorized, errcode.AuthenticationFailure},
		{"malformed bundle", bundle.ErrMalformedBundle, http.StatusBadRequest, errcode.MalformedBundle},
		{"malformed share text", threshold.ErrMalformedShareText, http.StatusBadRequest, errcode.MalformedShareText},
		{"unsupported version", bundle.ErrUnsupportedFormatVersion, http.StatusBadRequest, errcode.UnsupportedFormatVersion},
		{"invalid request", ErrInvalidRequest, http.StatusBadRequest, errcode.InvalidInput},
		{"invalid url", orchestrator.ErrInvalidURL, http.StatusBadRequest, errcode.InvalidInput},
		{"session not found", orchestrator.ErrSessionNotFound, http.StatusNotFound, errcode.NotFound},
		{"too many attempts", orchestrator.ErrTooManyAttempts, http.StatusTooManyRequests, errcode.RateLimited},
		{"no storage", orchestrator.ErrStorageRequired, http.StatusServiceUnavailable, errcode.Unavailable},
		{"body too large", ErrBodyTooLarge, http.StatusRequestEntityTooLarge, errcode.InvalidInput},
		{"unknown", fmt.Errorf("disk on fire"), http.StatusInternalServerError, errcode.Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.handleError(w, httptest.NewRequest(http.MethodPost, "/api/v1/x", nil), tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			resp := decodeError(t, w)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.status, resp.Status)
			if tt.status == http.StatusTooManyRequests {
				assert.Equal(t, "60", w.Header().Get("Retry-After"))
			}
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, resp.Error, "disk on fire")
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	decode := func(body string) error {
		var v InspectRequest
		return decodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), &v)
	}

	assert.NoError(t, decode(`{"payload":"x"}`))
	for _, body := range []string{``, `{`, `{"unknown":1}`, `{"payload":"x"} {}`, `[]`} {
		err := decode(body)
		assert.ErrorIs(t, err, ErrInvalidRequest, body)
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, logging.NewNop(), HealthResponse{Status: "ok"}, http.StatusAccepted)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestWriteJSON_EncodeFailureLogged(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewFromSlog(slog.New(slog.NewJSONHandler(&buf, nil)))

	w := httptest.NewRecorder()
	writeJSON(w, log, map[string]any{"bad": make(chan int)}, http.StatusOK)
	assert.Equal(t, http.StatusOK, w.Code)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "Failed to encode response", rec["msg"])
	assert.Equal(t, "ERROR", rec["level"])
	assert.Contains(t, rec["error"], "unsupported type")
	assert.EqualValues(t, http.StatusOK, rec["status"])
}
