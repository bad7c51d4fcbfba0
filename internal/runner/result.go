package runner

import (
	"fmt"
	"strings"
)

// Status is the terminal outcome of an invocation.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// FailureKind classifies why an invocation failed.
type FailureKind string

const (
	KindLaunch    FailureKind = "launch"    // process could not be created
	KindExit      FailureKind = "exit"      // process exited non-zero
	KindStream    FailureKind = "stream"    // reading stdout or stderr failed
	KindTimeout   FailureKind = "timeout"   // runner deadline elapsed and the process was killed
	KindCancelled FailureKind = "cancelled" // caller context was cancelled
)

// Failure describes a failed invocation.
type Failure struct {
	Kind     FailureKind `json:"kind"`
	ExitCode int         `json:"exit_code"`
	Stderr   string      `json:"stderr"`
	Message  string      `json:"message"`
}

// Result is produced exactly once per Run. Output is set on success and
// Failure on failure, never both.
type Result struct {
	Status          Status   `json:"status"`
	Output          string   `json:"output,omitempty"`
	Failure         *Failure `json:"failure,omitempty"`
	DurationSeconds float64  `json:"duration_seconds"`
	StdoutLines     int      `json:"stdout_lines"`
	StderrLines     int      `json:"stderr_lines"`
}

// Succeeded reports whether the script exited zero.
func (r Result) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// Text is what a caller displays: the script's output on success, the
// failure message otherwise.
func (r Result) Text() string {
	if r.Failure != nil {
		return r.Failure.Message
	}
	return r.Output
}

// ExitCode returns 0 on success and the recorded code on failure.
func (r Result) ExitCode() int {
	if r.Failure != nil {
		return r.Failure.ExitCode
	}
	return 0
}

func success(output string) Result {
	return Result{Status: StatusSucceeded, Output: output}
}

func failure(kind FailureKind, exitCode int, stderr, message string) Result {
	return Result{
		Status: StatusFailed,
		Failure: &Failure{
			Kind:     kind,
			ExitCode: exitCode,
			Stderr:   stderr,
			Message:  message,
		},
	}
}

func exitMessage(code int, detail, stderr string) string {
	if detail != "" {
		return fmt.Sprintf("script failed with exit code %d (%s).\nError: %s", code, detail, stderr)
	}
	return fmt.Sprintf("script failed with exit code %d.\nError: %s", code, stderr)
}

// launchMessage formats a launch error together with the wrapped error chain
// and the invocation context, standing in for a stack trace.
func launchMessage(err error, req Request, workDir string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error executing script: %v\n", err)
	b.WriteString("Trace:\n")
	for i, layer := range errorChain(err) {
		fmt.Fprintf(&b, "  #%d %T: %v\n", i, layer, layer)
	}
	fmt.Fprintf(&b, "  executable=%q script=%q workdir=%q", req.Executable, req.Script, workDir)
	return b.String()
}

func errorChain(err error) []error {
	var chain []error
	for err != nil {
		chain = append(chain, err)
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return chain
}
