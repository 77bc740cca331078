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

// Package metrics provides Prometheus instrumentation for share splitting,
// recovery, session storage and the REST API.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jeremyhahn/go-sharevault/pkg/errcode"
)

const (
	// Namespace prefixes every metric.
	Namespace = "sharevault"

	LabelOperation  = "operation"
	LabelStatus     = "status"
	LabelErrorCode  = "error_code"
	LabelPrime      = "prime"
	LabelMethod     = "method"
	LabelRoute      = "route"
	LabelStatusCode = "status_code"

	StatusSuccess = "success"
	StatusError   = "error"

	OpSplit         = "split"
	OpReconstruct   = "reconstruct"
	OpEncrypt       = "encrypt"
	OpDecrypt       = "decrypt"
	OpProtect       = "protect"
	OpRecover       = "recover"
	OpVerify        = "verify"
	OpSessionSave   = "session_save"
	OpSessionLoad   = "session_load"
	OpSessionDelete = "session_delete"
	OpKeyGenerate   = "key_generate"
	OpKeyDerive     = "key_derive"
	OpCustodyWrap   = "custody_wrap"
	OpCustodyUnwrap = "custody_unwrap"
)

var (
	// OperationsTotal counts operations by name and outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of sharevault operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// OperationDuration observes operation latency. Key derivation
	// dominates the upper buckets.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of sharevault operations in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{LabelOperation},
	)

	// ErrorsTotal counts failures by error classification.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation and error code",
		},
		[]string{LabelOperation, LabelErrorCode},
	)

	// SharesTotal counts shares produced by splits, per prime field.
	SharesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "shares_total",
			Help:      "Total number of shares produced by prime field",
		},
		[]string{LabelPrime},
	)

	// SessionsStored is the number of sessions in the configured store.
	SessionsStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sessions_stored",
			Help:      "Number of sessions held in storage",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route and status code",
		},
		[]string{LabelMethod, LabelRoute, LabelStatusCode},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod, LabelRoute},
	)

	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests being served",
		},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Current bytes of allocated heap objects",
		},
	)

	ServerUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds since startup",
		},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordOperation records one operation outcome and its duration.
func RecordOperation(operation, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordError counts an error under its classification.
func RecordError(operation string, code errcode.Code) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(operation, string(code)).Inc()
}

// Observe records an operation that started at start and finished with
// err. It is meant to be deferred:
//
//	defer func(start time.Time) { metrics.Observe(metrics.OpRecover, start, err) }(time.Now())
func Observe(operation string, start time.Time, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
		RecordError(operation, errcode.Of(err))
	}
	RecordOperation(operation, status, time.Since(start).Seconds())
}

// AddShares counts n shares produced over prime.
func AddShares(prime string, n int) {
	if !enabled.Load() {
		return
	}
	SharesTotal.WithLabelValues(prime).Add(float64(n))
}

// SetSessionsStored sets the stored session gauge.
func SetSessionsStored(n int) {
	if !enabled.Load() {
		return
	}
	SessionsStored.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, route, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration)
}

func Enable() { enabled.Store(true) }

// Disable stops all recording. Useful in tests.
func Disable() { enabled.Store(false) }

func IsEnabled() bool { return enabled.Load() }
