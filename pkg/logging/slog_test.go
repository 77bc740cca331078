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

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sharevault/pkg/correlation"
)

func jsonLogger(level Level) (*SlogAdapter, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(&Config{Level: level, Format: "json", Output: &buf}), &buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestSlogAdapter_Levels(t *testing.T) {
	l, buf := jsonLogger(LevelWarn)
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	recs := lines(t, buf)
	require.Len(t, recs, 2)
	assert.Equal(t, "w", recs[0]["msg"])
	assert.Equal(t, "WARN", recs[0]["level"])
	assert.Equal(t, "ERROR", recs[1]["level"])
}

func TestSlogAdapter_Fields(t *testing.T) {
	l, buf := jsonLogger(LevelDebug)
	l.Info("bundle created",
		String("bundle_id", "b1"),
		Int("k", 3),
		Int64("bytes", 64),
		Bool("partial", false),
		Ints("indices", []int{1, 3, 5}),
		Duration("elapsed", time.Second),
		Error(errors.New("boom")),
	)

	rec := lines(t, buf)[0]
	assert.Equal(t, "b1", rec["bundle_id"])
	assert.Equal(t, float64(3), rec["k"])
	assert.Equal(t, float64(64), rec["bytes"])
	assert.Equal(t, false, rec["partial"])
	assert.Equal(t, []any{float64(1), float64(3), float64(5)}, rec["indices"])
	assert.Equal(t, "boom", rec["error"])
}

func TestSlogAdapter_WithDoesNotDuplicate(t *testing.T) {
	l, buf := jsonLogger(LevelInfo)
	child := l.With(String("component", "orchestrator"))
	child.Info("one")
	child.Info("two", Int("n", 5))

	recs := lines(t, buf)
	require.Len(t, recs, 2)
	assert.Equal(t, "orchestrator", recs[0]["component"])
	assert.Equal(t, float64(5), recs[1]["n"])
	assert.Equal(t, 1, strings.Count(strings.Split(buf.String(), "\n")[0], `"component"`))
}

func TestSlogAdapter_Correlation(t *testing.T) {
	l, buf := jsonLogger(LevelDebug)
	ctx := correlation.WithCorrelationID(context.Background(), "req-9")

	l.DebugContext(ctx, "a")
	l.InfoContext(ctx, "b")
	l.WarnContext(ctx, "c")
	l.ErrorContext(ctx, "d")
	l.InfoContext(context.Background(), "e")

	recs := lines(t, buf)
	require.Len(t, recs, 5)
	for _, r := range recs[:4] {
		assert.Equal(t, "req-9", r["correlation_id"])
	}
	assert.NotContains(t, recs[4], "correlation_id")
}

func TestNew_TextDefault(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Output: &buf})
	l.Info("hello", String("k", "v"))
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")
}

func TestNew_LevelVar(t *testing.T) {
	var buf bytes.Buffer
	lv := new(slog.LevelVar)
	lv.Set(LevelWarn.SlogLevel())
	l := New(&Config{Level: LevelDebug, LevelVar: lv, Format: "json", Output: &buf})

	l.Info("hidden")
	lv.Set(LevelDebug.SlogLevel())
	l.Debug("shown")

	recs := lines(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "shown", recs[0]["msg"])
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.Error("ignored")
	l.With(String("a", "b")).Info("ignored")
	assert.False(t, l.Slog().Enabled(context.Background(), 8))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug": LevelDebug, "INFO": LevelInfo, "": LevelInfo,
		"warn": LevelWarn, "warning": LevelWarn, " error ": LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("trace")
	assert.Error(t, err)
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestError_Nil(t *testing.T) {
	assert.Equal(t, "", Error(nil).Value)
}
