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
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sharevault/pkg/audit"
	"github.com/jeremyhahn/go-sharevault/pkg/custody"
	"github.com/jeremyhahn/go-sharevault/pkg/health"
	"github.com/jeremyhahn/go-sharevault/pkg/logging"
	"github.com/jeremyhahn/go-sharevault/pkg/orchestrator"
	"github.com/jeremyhahn/go-sharevault/pkg/ratelimit"
	"github.com/jeremyhahn/go-sharevault/pkg/sharecipher"
	"github.com/jeremyhahn/go-sharevault/pkg/storage/memory"
)

const testURL = "https://cdn.example.com/media/clip-0042.mp4"

var fastKDF = &sharecipher.KDFParams{
	Algorithm: sharecipher.KDFArgon2id,
	Time:      1,
	Memory:    sharecipher.MinArgon2Memory,
	Threads:   1,
}

type testEnv struct {
	server *Server
	orch   *orchestrator.Orchestrator
	audit  *audit.MemoryRecorder
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	cfg := orchestrator.DefaultConfig()
	cfg.KDF = fastKDF
	wrapper, err := custody.NewPassphrase([]byte("custody passphrase"), fastKDF)
	require.NoError(t, err)
	rec := audit.NewMemoryRecorder(100)

	orch, err := orchestrator.New(cfg,
		orchestrator.WithStorage(memory.New()),
		orchestrator.WithCustody(wrapper),
		orchestrator.WithAudit(rec),
		orchestrator.WithLogger(logging.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = orch.Close() })

	scfg := &Config{Orchestrator: orch, Version: "test", MetricsPath: "/metrics"}
	if mutate != nil {
		mutate(scfg)
	}
	s, err := NewServer(scfg)
	require.NoError(t, err)
	return &testEnv{server: s, orch: orch, audit: rec}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)

	_, err = NewServer(&Config{})
	assert.Error(t, err)

	env := newTestEnv(t, nil)
	assert.Equal(t, ":8443", env.server.Addr())
	assert.Equal(t, int64(DefaultMaxBodyBytes), env.server.maxBodyBytes)
	assert.Equal(t, "noop", env.server.authenticator.Name())
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test", decodeBody[HealthResponse](t, w).Version)

	for _, path := range []string{"/health/live", "/health/ready", "/health/startup"} {
		w := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestServer_HealthChecker(t *testing.T) {
	checker := health.NewChecker()
	checker.RegisterCheck("failing", func(context.Context) health.CheckResult {
		return health.CheckResult{Status: health.StatusUnhealthy, Message: "down"}
	})
	env := newTestEnv(t, func(c *Config) { c.HealthChecker = checker })

	w := env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decodeBody[HealthCheckResponse](t, w)
	assert.Equal(t, health.StatusUnhealthy, resp.Status)
	require.Len(t, resp.Checks, 1)

	w = env.do(t, http.MethodGet, "/health/startup", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	checker.MarkStarted()
	w = env.do(t, http.MethodGet, "/health/startup", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/v1/keys", nil)

	w := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sharevault_http_requests_total")

	env = newTestEnv(t, func(c *Config) { c.MetricsPath = "" })
	w = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Authentication(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Authenticator = tokenAuthenticator("s3cret") })

	w := env.do(t, http.MethodGet, "/api/v1/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	w = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_RateLimit(t *testing.T) {
	limiter := ratelimit.New(&ratelimit.Config{Enabled: true, RequestsPerMinute: 1, Burst: 1})
	t.Cleanup(limiter.Stop)
	env := newTestEnv(t, func(c *Config) { c.Limiter = limiter })

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/sessions", nil).Code)
	w := env.do(t, http.MethodGet, "/api/v1/sessions", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil).Code)
}

func TestServer_BodyLimit(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.MaxBodyBytes = 64 })
	w := env.do(t, http.MethodPost, "/api/v1/bundles/inspect", InspectRequest{Payload: string(bytes.Repeat([]byte("x"), 128))})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestServer_ServeAndStop(t *testing.T) {
	env := newTestEnv(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- env.server.Serve(ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.server.Stop(ctx))
	assert.NoError(t, <-done)
}
