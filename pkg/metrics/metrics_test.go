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

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sharevault/pkg/errcode"
	"github.com/jeremyhahn/go-sharevault/pkg/threshold"
)

func TestEnableDisable(t *testing.T) {
	assert.True(t, IsEnabled())
	Disable()
	assert.False(t, IsEnabled())
	Enable()
	assert.True(t, IsEnabled())
}

func TestRecordOperation(t *testing.T) {
	Enable()
	OperationsTotal.Reset()
	OperationDuration.Reset()

	RecordOperation(OpSplit, StatusSuccess, 0.01)
	RecordOperation(OpSplit, StatusSuccess, 0.02)
	RecordOperation(OpRecover, StatusError, 0.5)

	assert.Equal(t, 2, testutil.CollectAndCount(OperationsTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(OperationsTotal.WithLabelValues(OpSplit, StatusSuccess)))
	assert.Equal(t, 2, testutil.CollectAndCount(OperationDuration))
}

func TestRecordOperation_Disabled(t *testing.T) {
	Disable()
	defer Enable()
	OperationsTotal.Reset()

	RecordOperation(OpSplit, StatusSuccess, 0.01)
	AddShares("p256", 5)
	assert.Equal(t, 0, testutil.CollectAndCount(OperationsTotal))
}

func TestObserve(t *testing.T) {
	Enable()
	OperationsTotal.Reset()
	ErrorsTotal.Reset()

	Observe(OpRecover, time.Now(), nil)
	Observe(OpRecover, time.Now(), fmt.Errorf("recover: %w", threshold.ErrInsufficientShares))
	Observe(OpRecover, time.Now(), errors.New("other"))

	assert.Equal(t, float64(1), testutil.ToFloat64(OperationsTotal.WithLabelValues(OpRecover, StatusSuccess)))
	assert.Equal(t, float64(2), testutil.ToFloat64(OperationsTotal.WithLabelValues(OpRecover, StatusError)))
	assert.Equal(t, float64(1), testutil.ToFloat64(ErrorsTotal.WithLabelValues(OpRecover, string(errcode.InsufficientShares))))
	assert.Equal(t, float64(1), testutil.ToFloat64(ErrorsTotal.WithLabelValues(OpRecover, string(errcode.Unknown))))
}

func TestAddSharesAndSessions(t *testing.T) {
	Enable()
	SharesTotal.Reset()

	AddShares("p256", 5)
	AddShares("p256", 3)
	SetSessionsStored(7)

	assert.Equal(t, float64(8), testutil.ToFloat64(SharesTotal.WithLabelValues("p256")))
	assert.Equal(t, float64(7), testutil.ToFloat64(SessionsStored))
}

func TestHTTPMiddleware_RoutePattern(t *testing.T) {
	Enable()
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Get("/api/v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 1, testutil.CollectAndCount(HTTPRequestsTotal))
	assert.Equal(t, float64(3), testutil.ToFloat64(
		HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/sessions/{id}", "404")))
	assert.Equal(t, float64(0), testutil.ToFloat64(HTTPInFlight))
}

func TestHTTPMiddleware_DefaultStatus(t *testing.T) {
	Enable()
	HTTPRequestsTotal.Reset()

	h := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(
		HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "200")))
}

func TestResourceCollector(t *testing.T) {
	Enable()
	rc := StartResourceCollector(context.Background(), time.Hour)
	rc.Stop()

	assert.Greater(t, testutil.ToFloat64(Goroutines), float64(0))
	assert.Greater(t, testutil.ToFloat64(MemoryAllocBytes), float64(0))
}
