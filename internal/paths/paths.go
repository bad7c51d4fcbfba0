// Package paths checks that the interpreter and script exist before a run.
package paths

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Roles reported in NotFoundError.
const (
	RoleExecutable = "executable"
	RoleScript     = "script"
)

// NotFoundError reports a missing executable or script.
type NotFoundError struct {
	Role string
	Path string
}

func (e *NotFoundError) Error() string {
	switch e.Role {
	case RoleExecutable:
		return fmt.Sprintf("executable not found at %q, please verify the interpreter path", e.Path)
	case RoleScript:
		return fmt.Sprintf("script not found at %q, please verify the script path", e.Path)
	default:
		return fmt.Sprintf("%s not found at %q", e.Role, e.Path)
	}
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Validate checks the executable first, then the script.
func Validate(executable, script string) error {
	if !isFile(executable) {
		return &NotFoundError{Role: RoleExecutable, Path: executable}
	}
	if !isFile(script) {
		return &NotFoundError{Role: RoleScript, Path: script}
	}
	return nil
}

// ResolveExecutable returns name unchanged when it contains a path separator,
// otherwise the result of a $PATH lookup. A failed lookup returns name as-is so
// Validate reports it.
func ResolveExecutable(name string) string {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return name
	}
	if p, err := exec.LookPath(name); err == nil {
		return p
	}
	return name
}

func isFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
