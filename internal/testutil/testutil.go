package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

// Shell is the interpreter used to run mock scripts in place of Python.
const Shell = "/bin/sh"

// RequireUnix skips tests that drive mock scripts through /bin/sh.
func RequireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("mock scripts need a POSIX shell")
	}
	if _, err := os.Stat(Shell); err != nil {
		t.Skipf("%s not available: %v", Shell, err)
	}
}

// WriteScript writes a shell script into dir and returns its path. The body is
// everything after the shebang line.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := "#!/bin/sh\n" + body
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatalf("writing script %s: %v", path, err)
	}
	return path
}

// MockGroqScript returns a script body that behaves like the Groq client:
// it echoes the prompt and model on stdout, exits 2 with a message on stderr
// when the prompt is "fail", and sleeps when the prompt is "slow".
func MockGroqScript() string {
	return `prompt="$1"
model="$2"
if [ "$prompt" = "fail" ]; then
  echo "bad input" >&2
  exit 2
fi
if [ "$prompt" = "slow" ]; then
  sleep 5
fi
echo "model: $model"
echo "answer: $prompt"
`
}

// Eventually retries a condition until it returns true or timeout expires
func Eventually(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("Condition did not become true within timeout")
}

// SinkEntry is one call recorded by RecordingSink.
type SinkEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// RecordingSink collects Info and Error calls for assertions.
type RecordingSink struct {
	mu      sync.Mutex
	entries []SinkEntry
}

func (s *RecordingSink) Info(msg string, fields ...map[string]any) {
	s.add("info", msg, fields)
}

func (s *RecordingSink) Error(msg string, fields ...map[string]any) {
	s.add("error", msg, fields)
}

func (s *RecordingSink) add(level, msg string, fields []map[string]any) {
	var f map[string]any
	if len(fields) > 0 {
		f = fields[0]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, SinkEntry{Level: level, Message: msg, Fields: f})
}

// Entries returns a copy of everything recorded so far.
func (s *RecordingSink) Entries() []SinkEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SinkEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Lines returns the relayed lines for one stream, in arrival order.
func (s *RecordingSink) Lines(stream string) []string {
	var lines []string
	for _, e := range s.Entries() {
		if e.Fields["stream"] == stream {
			lines = append(lines, e.Fields["line"].(string))
		}
	}
	return lines
}
