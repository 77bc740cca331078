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
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jeremyhahn/go-sharevault/pkg/errcode"
	"github.com/jeremyhahn/go-sharevault/pkg/logging"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalError  = errors.New("internal server error")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBodyTooLarge   = errors.New("request body too large")
)

func init() {
	errcode.Register(ErrInvalidRequest, errcode.InvalidInput)
	errcode.Register(ErrBodyTooLarge, errcode.InvalidInput)
}

// retryAfter is advertised on 429 responses for password attempts.
const retryAfter = time.Minute

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Message string       `json:"message,omitempty"`
	Code    errcode.Code `json:"code"`
	Status  int          `json:"status"`
}

// statusFor maps an error classification to an HTTP status.
func statusFor(code errcode.Code) int {
	switch code {
	case errcode.InsufficientShares, errcode.ThresholdMismatch:
		return http.StatusUnprocessableEntity
	case errcode.AuthenticationFailure, errcode.ExpiredOrMalformed:
		return http.StatusUnauthorized
	case errcode.InvalidInput, errcode.InvalidThreshold, errcode.MalformedShareText,
		errcode.MalformedBundle, errcode.UnsupportedFormatVersion, errcode.DuplicateShareIndex:
		return http.StatusBadRequest
	case errcode.NotFound:
		return http.StatusNotFound
	case errcode.RateLimited:
		return http.StatusTooManyRequests
	case errcode.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError classifies err and writes the matching response. Internal
// errors are logged and answered with a generic message.
func (h *HandlerContext) handleError(w http.ResponseWriter, r *http.Request, err error) {
	code := errcode.Of(err)
	status := statusFor(code)

	switch {
	case errors.Is(err, ErrBodyTooLarge):
		status = http.StatusRequestEntityTooLarge
	case status == http.StatusTooManyRequests:
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			logging.Error(err),
			logging.String("code", string(code)),
			logging.String("path", r.URL.Path))
		if status == http.StatusInternalServerError {
			writeErrorWithMessage(w, h.logger, ErrInternalError, "An unexpected error occurred", code, status)
			return
		}
	}
	writeError(w, h.logger, err, code, status)
}

func writeError(w http.ResponseWriter, log logging.Logger, err error, code errcode.Code, status int) {
	writeErrorWithMessage(w, log, err, "", code, status)
}

func writeErrorWithMessage(w http.ResponseWriter, log logging.Logger, err error, message string, code errcode.Code, status int) {
	resp := ErrorResponse{
		Error:   err.Error(),
		Message: message,
		Code:    code,
		Status:  status,
	}
	writeJSON(w, log, resp, status)
}

// writeJSON writes data with the given status code. Encoding failures are
// reported to log since the status line is already sent.
func writeJSON(w http.ResponseWriter, log logging.Logger, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("Failed to encode response",
			logging.Error(err),
			logging.Int("status", status))
	}
}

// decodeJSON reads a single JSON object from r into v. Unknown fields are
// rejected.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, mbe.Limit)
		}
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", ErrInvalidRequest)
	}
	return nil
}
