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
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sharevault/pkg/logging"
)

func TestResponseWriter(t *testing.T) {
	t.Run("default status is 200", func(t *testing.T) {
		rw := newResponseWriter(httptest.NewRecorder())
		assert.Equal(t, http.StatusOK, rw.statusCode)
	})

	t.Run("write implies 200", func(t *testing.T) {
		rw := newResponseWriter(httptest.NewRecorder())
		n, err := rw.Write([]byte("test"))
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.True(t, rw.written)
		assert.Equal(t, http.StatusOK, rw.statusCode)
	})

	t.Run("first status wins", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := newResponseWriter(rec)
		rw.WriteHeader(http.StatusCreated)
		rw.WriteHeader(http.StatusBadRequest)
		assert.Equal(t, http.StatusCreated, rw.statusCode)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	s := &Server{logger: logging.NewNop()}
	h := s.RecoveryMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, ErrInternalError.Error(), resp.Error)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestAuthenticationMiddleware(t *testing.T) {
	s := &Server{logger: logging.NewNop(), authenticator: tokenAuthenticator("good")}
	var subject string
	h := s.AuthenticationMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = GetIdentity(r.Context()).Subject
	}))

	t.Run("rejects", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer bad")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, subject)
	})

	t.Run("accepts", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "test-user", subject)
	})
}

func TestBodyLimitMiddleware(t *testing.T) {
	s := &Server{maxBodyBytes: 8}
	var readErr error
	h := s.BodyLimitMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("short")))
	assert.NoError(t, readErr)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("much too long")))
	var mbe *http.MaxBytesError
	assert.True(t, errors.As(readErr, &mbe))
}

// tokenAuthenticator accepts a single static bearer token.
type tokenAuthenticator string

func (a tokenAuthenticator) Name() string { return "test" }

func (a tokenAuthenticator) AuthenticateHTTP(r *http.Request) (*Identity, error) {
	if r.Header.Get("Authorization") != "Bearer "+string(a) {
		return nil, ErrInvalidToken
	}
	return &Identity{Subject: "test-user"}, nil
}
