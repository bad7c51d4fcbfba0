// Package runner executes the model script as a child process and captures
// its output.
//
// A Runner launches exactly one process per Run call, with the script path,
// prompt and model identifier as separate argv entries and no shell in
// between. stdout and stderr are read line by line by two goroutines; each
// line is appended to that stream's accumulator and relayed to the Sink as it
// arrives. Run blocks until both streams are drained and the process has
// exited, then folds everything into a single Result. Failures are returned as
// values, never as errors.
//
// A Runner keeps no state between calls. Callers that must not overlap
// invocations serialize them themselves.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// UTF8Env is appended to the inherited environment so a Python child uses
// UTF-8 for stdio regardless of the host locale.
var UTF8Env = []string{"PYTHONIOENCODING=utf-8", "PYTHONUTF8=1"}

// DefaultMaxLineSize bounds a single line of child output.
const DefaultMaxLineSize = 10 * 1024 * 1024

// Stream names used in sink fields and Result counters.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Sink receives every captured line and the final outcome. It is called from
// two goroutines at once and must be safe for concurrent use.
type Sink interface {
	Info(msg string, fields ...map[string]any)
	Error(msg string, fields ...map[string]any)
}

// Request is one invocation: run Executable with [Script, Prompt, Model].
type Request struct {
	Executable string
	Script     string
	Prompt     string
	Model      string
}

// Args returns the argv entries after the executable.
func (r Request) Args() []string {
	return []string{r.Script, r.Prompt, r.Model}
}

// Runner launches the script. The zero value is usable: no timeout, no sink.
type Runner struct {
	// Timeout kills the process group and fails with KindTimeout when
	// non-zero.
	Timeout time.Duration
	// Env is appended after UTF8Env; later entries win.
	Env []string
	// MaxLineSize overrides DefaultMaxLineSize when positive.
	MaxLineSize int
	Sink        Sink
	// OnState observes lifecycle transitions, in order, from the calling
	// goroutine.
	OnState func(State)
}

// New returns a Runner logging to sink.
func New(sink Sink, timeout time.Duration) *Runner {
	return &Runner{Sink: sink, Timeout: timeout}
}

// Run executes req and returns its Result. It never panics on process errors
// and never retries.
func (r *Runner) Run(ctx context.Context, req Request) Result {
	start := time.Now()
	tr := newTracker(r.OnState)

	res := r.run(ctx, req, tr)
	res.DurationSeconds = time.Since(start).Seconds()

	tr.finish(res)
	r.report(req, res)
	return res
}

type stream struct {
	name  string
	buf   strings.Builder
	lines int
}

func (r *Runner) run(ctx context.Context, req Request, tr *tracker) Result {
	tr.to(StateLaunching)

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	req.Executable = absExecutable(req.Executable)
	req.Script = absPath(req.Script)
	workDir := filepath.Dir(req.Script)

	cmd := exec.CommandContext(ctx, req.Executable, req.Args()...)
	cmd.Dir = workDir
	cmd.Env = append(append(os.Environ(), UTF8Env...), r.Env...)
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return failure(KindLaunch, -1, "", launchMessage(fmt.Errorf("stdout pipe: %w", err), req, workDir))
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return failure(KindLaunch, -1, "", launchMessage(fmt.Errorf("stderr pipe: %w", err), req, workDir))
	}

	if err := cmd.Start(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return r.interrupted(ctxErr, -1, "")
		}
		return failure(KindLaunch, -1, "", launchMessage(err, req, workDir))
	}
	tr.to(StateRunning)

	out := &stream{name: StreamStdout}
	errOut := &stream{name: StreamStderr}

	var g errgroup.Group
	g.Go(func() error { return r.consume(stdoutPipe, out) })
	g.Go(func() error { return r.consume(stderrPipe, errOut) })
	streamErr := g.Wait()
	waitErr := cmd.Wait()

	res := r.classify(ctx, cmd, waitErr, streamErr, out.buf.String(), errOut.buf.String())
	res.StdoutLines = out.lines
	res.StderrLines = errOut.lines
	return res
}

func (r *Runner) classify(ctx context.Context, cmd *exec.Cmd, waitErr, streamErr error, stdout, stderr string) Result {
	if waitErr == nil && streamErr == nil {
		return success(stdout)
	}

	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return r.interrupted(ctxErr, code, stderr)
	}

	if streamErr != nil {
		return failure(KindStream, code, stderr,
			fmt.Sprintf("Error reading script output: %v\nError: %s", streamErr, stderr))
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code = exitErr.ExitCode()
		detail := ""
		if code < 0 {
			// Killed by a signal; ExitError's String gives e.g. "signal: killed".
			detail = exitErr.String()
		}
		return failure(KindExit, code, stderr, exitMessage(code, detail, stderr))
	}

	return failure(KindStream, code, stderr,
		fmt.Sprintf("Error waiting for script: %v\nError: %s", waitErr, stderr))
}

func (r *Runner) interrupted(ctxErr error, code int, stderr string) Result {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		limit := "its deadline"
		if r.Timeout > 0 {
			limit = r.Timeout.String()
		}
		return failure(KindTimeout, code, stderr,
			fmt.Sprintf("script exceeded %s and was killed.\nError: %s", limit, stderr))
	}
	return failure(KindCancelled, code, stderr,
		fmt.Sprintf("script was cancelled.\nError: %s", stderr))
}

// consume reads one pipe to EOF. Lines are decoded as UTF-8 with invalid
// bytes replaced. After a read error the pipe is drained so the child never
// blocks on a full pipe.
func (r *Runner) consume(rd io.Reader, s *stream) error {
	maxLine := r.MaxLineSize
	if maxLine <= 0 {
		maxLine = DefaultMaxLineSize
	}
	initial := 64 * 1024
	if initial > maxLine {
		initial = maxLine
	}

	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, initial), maxLine)
	for sc.Scan() {
		line := sc.Text()
		if !utf8.ValidString(line) {
			line = strings.ToValidUTF8(line, "\uFFFD")
		}
		s.buf.WriteString(line)
		s.buf.WriteByte('\n')
		s.lines++
		r.relay(s.name, line)
	}
	if err := sc.Err(); err != nil {
		io.Copy(io.Discard, rd)
		return fmt.Errorf("reading %s: %w", s.name, err)
	}
	return nil
}

func (r *Runner) relay(name, line string) {
	if r.Sink == nil {
		return
	}
	fields := map[string]any{"stream": name, "line": line}
	if name == StreamStderr {
		r.Sink.Error("script stderr", fields)
		return
	}
	r.Sink.Info("script stdout", fields)
}

func (r *Runner) report(req Request, res Result) {
	if r.Sink == nil {
		return
	}
	fields := map[string]any{
		"model":            req.Model,
		"duration_seconds": res.DurationSeconds,
		"stdout_lines":     res.StdoutLines,
		"stderr_lines":     res.StderrLines,
	}
	if res.Succeeded() {
		fields["exit_code"] = 0
		r.Sink.Info("script completed", fields)
		return
	}
	fields["kind"] = string(res.Failure.Kind)
	fields["exit_code"] = res.Failure.ExitCode
	fields["message"] = res.Failure.Message
	r.Sink.Error("script failed", fields)
}

// absPath makes p absolute so it still resolves after the working directory
// changes to the script's directory.
func absPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// absExecutable leaves bare command names to the $PATH lookup.
func absExecutable(p string) string {
	if !strings.ContainsAny(p, `/\`) {
		return p
	}
	return absPath(p)
}
