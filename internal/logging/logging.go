// Package logging provides structured JSON logging with levels and queryable storage.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity levels
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// levelPriority returns numeric priority for level comparison
func levelPriority(l Level) int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

// Entry represents a single log entry
type Entry struct {
	Timestamp    time.Time      `json:"timestamp"`
	Level        Level          `json:"level"`
	Message      string         `json:"message"`
	Component    string         `json:"component,omitempty"`
	InvocationID string         `json:"invocation_id,omitempty"`
	Fields       map[string]any `json:"fields,omitempty"`
}

// Logger provides structured logging with in-memory storage for querying
type Logger struct {
	mu         sync.RWMutex
	output     io.Writer
	level      Level
	component  string
	entries    []Entry
	maxEntries int
	counts     map[Level]int64
}

// Config holds logger configuration
type Config struct {
	Output     io.Writer // Output writer (default: os.Stderr)
	Level      Level     // Minimum log level (default: info)
	Component  string    // Component name for all entries
	MaxEntries int       // Max entries to keep in memory (default: 1000)
}

// New creates a new logger with the given configuration
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.Level == "" {
		cfg.Level = LevelInfo
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = 1000
	}
	return &Logger{
		output:     cfg.Output,
		level:      cfg.Level,
		component:  cfg.Component,
		entries:    make([]Entry, 0, cfg.MaxEntries),
		maxEntries: cfg.MaxEntries,
		counts:     make(map[Level]int64),
	}
}

// SetLevel changes the minimum log level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) enabled(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return levelPriority(level) >= levelPriority(l.level)
}

// write stores the entry in the ring buffer and emits it as one JSON line.
func (l *Logger) write(level Level, invocationID, msg string, fields []map[string]any) {
	if !l.enabled(level) {
		return
	}

	entry := Entry{
		Timestamp:    time.Now().UTC(),
		Level:        level,
		Message:      msg,
		Component:    l.component,
		InvocationID: invocationID,
	}
	if len(fields) > 0 {
		entry.Fields = fields[0]
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.counts[level]++

	if len(l.entries) >= l.maxEntries {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, entry)

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(l.output, `{"level":"error","message":"failed to marshal log entry: %s"}`+"\n", err)
		return
	}
	l.output.Write(append(data, '\n'))
}

// Debug logs at debug level
func (l *Logger) Debug(msg string, fields ...map[string]any) {
	l.write(LevelDebug, "", msg, fields)
}

// Info logs at info level
func (l *Logger) Info(msg string, fields ...map[string]any) {
	l.write(LevelInfo, "", msg, fields)
}

// Warn logs at warn level
func (l *Logger) Warn(msg string, fields ...map[string]any) {
	l.write(LevelWarn, "", msg, fields)
}

// Error logs at error level
func (l *Logger) Error(msg string, fields ...map[string]any) {
	l.write(LevelError, "", msg, fields)
}

// WithInvocation returns a logger that tags every entry with invocation_id.
func (l *Logger) WithInvocation(id string) *InvocationLogger {
	return &InvocationLogger{parent: l, id: id}
}

// InvocationLogger is a logger scoped to one script invocation. It satisfies
// runner.Sink.
type InvocationLogger struct {
	parent *Logger
	id     string
}

func (i *InvocationLogger) Debug(msg string, fields ...map[string]any) {
	i.parent.write(LevelDebug, i.id, msg, fields)
}

func (i *InvocationLogger) Info(msg string, fields ...map[string]any) {
	i.parent.write(LevelInfo, i.id, msg, fields)
}

func (i *InvocationLogger) Warn(msg string, fields ...map[string]any) {
	i.parent.write(LevelWarn, i.id, msg, fields)
}

func (i *InvocationLogger) Error(msg string, fields ...map[string]any) {
	i.parent.write(LevelError, i.id, msg, fields)
}

// Query parameters for filtering logs
type Query struct {
	Level        Level     // Filter by minimum level
	InvocationID string    // Filter by invocation ID
	Since        time.Time // Filter entries after this time
	Until        time.Time // Filter entries before this time
	Limit        int       // Max entries to return (0 = all)
	Component    string    // Filter by component
}

// QueryResult contains filtered log entries and metadata
type QueryResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`  // Total entries matching filter (before limit)
	Counts  Stats   `json:"counts"` // Overall counts by level
}

// Stats contains log statistics
type Stats struct {
	Debug int64 `json:"debug"`
	Info  int64 `json:"info"`
	Warn  int64 `json:"warn"`
	Error int64 `json:"error"`
	Total int64 `json:"total"`
}

func (l *Logger) statsUnlocked() Stats {
	stats := Stats{
		Debug: l.counts[LevelDebug],
		Info:  l.counts[LevelInfo],
		Warn:  l.counts[LevelWarn],
		Error: l.counts[LevelError],
	}
	stats.Total = stats.Debug + stats.Info + stats.Warn + stats.Error
	return stats
}

// Query returns log entries matching the filter criteria
func (l *Logger) Query(q Query) QueryResult {
	l.mu.RLock()
	defer l.mu.RUnlock()

	filtered := []Entry{}
	for _, e := range l.entries {
		if q.Level != "" && levelPriority(e.Level) < levelPriority(q.Level) {
			continue
		}
		if q.InvocationID != "" && e.InvocationID != q.InvocationID {
			continue
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
			continue
		}
		if q.Component != "" && e.Component != q.Component {
			continue
		}
		filtered = append(filtered, e)
	}

	total := len(filtered)

	// Most recent entries win when limited
	if q.Limit > 0 && len(filtered) > q.Limit {
		filtered = filtered[len(filtered)-q.Limit:]
	}

	return QueryResult{
		Entries: filtered,
		Total:   total,
		Counts:  l.statsUnlocked(),
	}
}

// Stats returns current log statistics without entries
func (l *Logger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.statsUnlocked()
}

// Clear removes all stored entries and resets counts
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]Entry, 0, l.maxEntries)
	l.counts = make(map[Level]int64)
}
