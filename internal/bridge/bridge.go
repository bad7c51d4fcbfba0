// Package bridge serves the prompt panel: it validates paths, holds the
// in-flight flag and hands each accepted prompt to a runner.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"phobos.org.uk/groqbridge/internal/config"
	"phobos.org.uk/groqbridge/internal/logging"
	"phobos.org.uk/groqbridge/internal/metrics"
	"phobos.org.uk/groqbridge/internal/model"
	"phobos.org.uk/groqbridge/internal/paths"
	"phobos.org.uk/groqbridge/internal/runner"
)

// ErrBusy is returned by Invoke while another invocation is in flight.
var ErrBusy = errors.New("an invocation is already in flight")

// State represents whether the bridge is running a script
type State string

const (
	StateIdle    State = "idle"
	StateWorking State = "working"
)

const previewLength = 50

// Invocation is one accepted prompt and, once finished, its result.
type Invocation struct {
	ID            string         `json:"invocation_id"`
	Prompt        string         `json:"-"`
	PromptPreview string         `json:"prompt_preview"`
	Model         string         `json:"model"`
	ModelID       string         `json:"model_id"`
	Phase         runner.State   `json:"phase"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Response      string         `json:"response"`
	Result        *runner.Result `json:"result,omitempty"`
}

// Bridge is the panel server
type Bridge struct {
	config    *config.Config
	version   string
	startTime time.Time
	log       *logging.Logger
	metrics   *metrics.Metrics
	registry  *prometheus.Registry

	mu      sync.RWMutex
	state   State
	current *Invocation
	last    *Invocation

	server     *http.Server
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// Option customises a Bridge.
type Option func(*logging.Config)

// WithLogOutput sends JSON log lines to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(c *logging.Config) { c.Output = w }
}

// New creates a new Bridge
func New(cfg *config.Config, version string, opts ...Option) *Bridge {
	logCfg := logging.Config{
		Output:     os.Stderr,
		Level:      cfg.Level(),
		Component:  "bridge",
		MaxEntries: 1000,
	}
	for _, opt := range opts {
		opt(&logCfg)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	baseCtx, cancelBase := context.WithCancel(context.Background())

	return &Bridge{
		config:     cfg,
		version:    version,
		startTime:  time.Now(),
		log:        logging.New(logCfg),
		metrics:    metrics.MustNewMetrics(reg),
		registry:   reg,
		state:      StateIdle,
		baseCtx:    baseCtx,
		cancelBase: cancelBase,
	}
}

// Logger exposes the bridge's log store.
func (b *Bridge) Logger() *logging.Logger {
	return b.log
}

// State reports whether an invocation is in flight.
func (b *Bridge) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Last returns a copy of the most recently finished invocation.
func (b *Bridge) Last() (Invocation, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.last == nil {
		return Invocation{}, false
	}
	return *b.last, true
}

// Invoke validates the configured paths, claims the in-flight flag and runs
// the script synchronously. It returns ErrBusy if another invocation holds
// the flag and a *paths.NotFoundError if the interpreter or script is
// missing; in both cases nothing is launched. Script failures are not errors:
// they are reported in the returned Invocation's Result.
func (b *Bridge) Invoke(ctx context.Context, prompt, modelName string) (Invocation, error) {
	sel := b.config.Selection()
	if modelName != "" {
		sel = model.Parse(modelName)
	}

	exe := paths.ResolveExecutable(b.config.PythonPath)
	if err := paths.Validate(exe, b.config.ScriptPath); err != nil {
		b.metrics.Rejected()
		b.log.Warn("invocation rejected", map[string]any{"error": err.Error()})
		return Invocation{}, err
	}

	inv, err := b.acquire(prompt, sel)
	if err != nil {
		b.metrics.Rejected()
		return Invocation{}, err
	}
	defer b.release(inv)

	invLog := b.log.WithInvocation(inv.ID)
	invLog.Info("invocation started", map[string]any{
		"model_id":      inv.ModelID,
		"prompt_length": len(prompt),
	})
	b.metrics.Started()

	r := &runner.Runner{
		Timeout: b.config.Timeout,
		Env:     b.config.Env,
		Sink:    invLog,
		OnState: func(s runner.State) { b.setPhase(inv, s) },
	}
	res := r.Run(ctx, runner.Request{
		Executable: exe,
		Script:     b.config.ScriptPath,
		Prompt:     prompt,
		Model:      sel.ID(),
	})
	b.metrics.Finished(sel.ID(), res)

	b.mu.Lock()
	completedAt := time.Now()
	inv.CompletedAt = &completedAt
	inv.Result = &res
	inv.Response = res.Text()
	out := *inv
	b.mu.Unlock()

	return out, nil
}

func (b *Bridge) acquire(prompt string, sel model.Model) (*Invocation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateIdle {
		id := ""
		if b.current != nil {
			id = b.current.ID
		}
		return nil, fmt.Errorf("%w: %s", ErrBusy, id)
	}

	preview := prompt
	if len(preview) > previewLength {
		preview = preview[:previewLength] + "..."
	}

	inv := &Invocation{
		ID:            "inv-" + uuid.New().String()[:8],
		Prompt:        prompt,
		PromptPreview: preview,
		Model:         sel.String(),
		ModelID:       sel.ID(),
		Phase:         runner.StateIdle,
		StartedAt:     time.Now(),
	}
	b.state = StateWorking
	b.current = inv
	return inv, nil
}

// release clears the in-flight flag. It runs deferred so the flag is cleared
// on every return path.
func (b *Bridge) release(inv *Invocation) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == inv {
		b.current = nil
	}
	b.last = inv
	b.state = StateIdle
}

func (b *Bridge) setPhase(inv *Invocation, s runner.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inv.Phase = s
}

// Start starts the HTTP server
func (b *Bridge) Start() error {
	addr := fmt.Sprintf("%s:%d", b.config.Bind, b.config.Port)
	b.server = &http.Server{
		Addr:              addr,
		Handler:           b.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return b.baseCtx },
	}

	b.log.Info("bridge starting", map[string]any{
		"addr":    addr,
		"version": b.version,
		"model":   b.config.Selection().ID(),
		"script":  b.config.ScriptPath,
	})
	return b.server.ListenAndServe()
}

// Shutdown cancels any running invocation, whose request context derives
// from the server's base context, then drains the HTTP server.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.cancelBase()
	if b.server != nil {
		return b.server.Shutdown(ctx)
	}
	return nil
}
