package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"phobos.org.uk/groqbridge/internal/runner"
)

var (
	_ runner.Sink = (*Logger)(nil)
	_ runner.Sink = (*InvocationLogger)(nil)
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []Entry {
	t.Helper()
	var entries []Entry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var e Entry
		require.NoError(t, json.Unmarshal([]byte(line), &e), "line should be valid JSON: %s", line)
		entries = append(entries, e)
	}
	return entries
}

func TestLogger_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Level: LevelDebug, Component: "bridge"})

	logger.Debug("debug message")
	logger.Info("info message", map[string]any{"model": "gemma2-9b-it", "lines": 3})
	logger.Warn("warn message")
	logger.Error("error message")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, "bridge", e.Component)
		assert.False(t, e.Timestamp.IsZero())
	}
	assert.Equal(t, LevelDebug, entries[0].Level)
	assert.Equal(t, "gemma2-9b-it", entries[1].Fields["model"])
	assert.Equal(t, float64(3), entries[1].Fields["lines"])
	assert.Equal(t, LevelError, entries[3].Level)
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Level: LevelWarn})

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Error("shown")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, LevelWarn, entries[0].Level)

	logger.SetLevel(LevelDebug)
	logger.Debug("now shown")
	assert.Contains(t, buf.String(), "now shown")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestLogger_InvocationScope(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Level: LevelInfo, Component: "bridge"})

	inv := logger.WithInvocation("inv-1234")
	inv.Info("script stdout", map[string]any{"stream": "stdout", "line": "hello"})
	inv.Error("script stderr", map[string]any{"stream": "stderr", "line": "oops"})
	inv.Debug("filtered out")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "inv-1234", e.InvocationID)
		assert.Equal(t, "bridge", e.Component)
	}
	assert.Equal(t, "hello", entries[0].Fields["line"])
	assert.Equal(t, LevelError, entries[1].Level)
}

func TestLogger_Query(t *testing.T) {
	logger := New(Config{Output: &bytes.Buffer{}, Level: LevelDebug, Component: "bridge"})

	logger.Debug("debug entry")
	logger.Info("info entry")
	inv := logger.WithInvocation("inv-1")
	inv.Warn("invocation warning")
	inv.Error("invocation error")
	logger.Error("general error")

	t.Run("no filter returns all", func(t *testing.T) {
		result := logger.Query(Query{})
		assert.Len(t, result.Entries, 5)
		assert.Equal(t, 5, result.Total)
		assert.Equal(t, int64(5), result.Counts.Total)
	})

	t.Run("filter by level", func(t *testing.T) {
		result := logger.Query(Query{Level: LevelWarn})
		assert.Len(t, result.Entries, 3)
	})

	t.Run("filter by invocation and level", func(t *testing.T) {
		result := logger.Query(Query{Level: LevelError, InvocationID: "inv-1"})
		require.Len(t, result.Entries, 1)
		assert.Equal(t, "invocation error", result.Entries[0].Message)
	})

	t.Run("filter by component", func(t *testing.T) {
		assert.Empty(t, logger.Query(Query{Component: "other"}).Entries)
	})

	t.Run("limit keeps most recent", func(t *testing.T) {
		result := logger.Query(Query{Limit: 2})
		require.Len(t, result.Entries, 2)
		assert.Equal(t, 5, result.Total)
		assert.Equal(t, "general error", result.Entries[1].Message)
	})
}

func TestLogger_QueryTimeFilter(t *testing.T) {
	logger := New(Config{Output: &bytes.Buffer{}, Level: LevelInfo})

	logger.Info("entry 1")
	time.Sleep(10 * time.Millisecond)
	midpoint := time.Now().UTC()
	time.Sleep(10 * time.Millisecond)
	logger.Info("entry 2")
	logger.Info("entry 3")

	assert.Len(t, logger.Query(Query{Since: midpoint}).Entries, 2)
	assert.Len(t, logger.Query(Query{Until: midpoint}).Entries, 1)
}

func TestLogger_RingBufferAndClear(t *testing.T) {
	logger := New(Config{Output: &bytes.Buffer{}, Level: LevelInfo, MaxEntries: 3})

	for _, msg := range []string{"entry 1", "entry 2", "entry 3", "entry 4", "entry 5"} {
		logger.Info(msg)
	}

	result := logger.Query(Query{})
	require.Len(t, result.Entries, 3)
	assert.Equal(t, "entry 3", result.Entries[0].Message)
	assert.Equal(t, "entry 5", result.Entries[2].Message)
	assert.Equal(t, int64(5), logger.Stats().Info)

	logger.Clear()
	assert.Equal(t, int64(0), logger.Stats().Total)
	assert.Empty(t, logger.Query(Query{}).Entries)
}

func TestLogger_ConcurrentSinkWrites(t *testing.T) {
	logger := New(Config{Output: &bytes.Buffer{}, Level: LevelDebug, MaxEntries: 100})
	inv := logger.WithInvocation("inv-c")

	var wg sync.WaitGroup
	for _, stream := range []string{"stdout", "stderr"} {
		wg.Add(1)
		go func(stream string) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if stream == "stderr" {
					inv.Error("script stderr", map[string]any{"stream": stream, "i": i})
				} else {
					inv.Info("script stdout", map[string]any{"stream": stream, "i": i})
				}
			}
		}(stream)
	}
	wg.Wait()

	stats := logger.Stats()
	assert.Equal(t, int64(500), stats.Info)
	assert.Equal(t, int64(500), stats.Error)
	assert.Len(t, logger.Query(Query{}).Entries, 100)
}
