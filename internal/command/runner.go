// Package command runs the external packaging tools.
//
// Every invocation is blocking and is logged with its shell-quoted command
// line. A non-zero exit becomes an *ExitError; nothing is retried.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/oshokin/conda-rpms/internal/logger"
)

// maxStderrInError bounds how much captured stderr is repeated in error messages.
const maxStderrInError = 2048

// Runner starts external programs.
type Runner interface {
	// Output runs the program and returns its captured stdout and stderr.
	Output(ctx context.Context, name string, args ...string) (*Result, error)
	// Stream runs the program attached to the runner's output streams.
	Stream(ctx context.Context, name string, args ...string) error
}

// Result is the captured output of a finished program.
type Result struct {
	Stdout []byte
	Stderr []byte
}

// ExitError reports a program that could not start or exited with a non-zero code.
type ExitError struct {
	// Command is the shell-quoted command line.
	Command string
	// Code is the exit code, -1 when the program did not run to completion.
	Code int
	// Stderr holds the captured error output, if any.
	Stderr []byte
	// Err is the underlying error returned by os/exec.
	Err error
}

// Error implements error.
func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command %q failed with exit code %d", e.Command, e.Code)

	if stderr := strings.TrimSpace(string(e.Stderr)); stderr != "" {
		if len(stderr) > maxStderrInError {
			stderr = "..." + stderr[len(stderr)-maxStderrInError:]
		}

		msg += ": " + stderr
	}

	return msg
}

// Unwrap returns the underlying os/exec error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExecRunner implements Runner with os/exec.
type ExecRunner struct {
	// Dir is the working directory of started programs; empty means the current one.
	Dir string
	// Stdout receives streamed output; os.Stdout when nil.
	Stdout io.Writer
	// Stderr receives streamed error output; os.Stderr when nil.
	Stderr io.Writer
}

// NewExecRunner returns a runner attached to the process stdio.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Output implements Runner.
func (r *ExecRunner) Output(ctx context.Context, name string, args ...string) (*Result, error) {
	var stdout, stderr bytes.Buffer

	cmd := r.command(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &Result{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}

	if err != nil {
		return result, newExitError(name, args, result.Stderr, err)
	}

	return result, nil
}

// Stream implements Runner.
func (r *ExecRunner) Stream(ctx context.Context, name string, args ...string) error {
	cmd := r.command(ctx, name, args...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}

	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Run(); err != nil {
		return newExitError(name, args, nil, err)
	}

	return nil
}

func (r *ExecRunner) command(ctx context.Context, name string, args ...string) *exec.Cmd {
	logger.DebugKV(ctx, "Running command", "command", Line(name, args...))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir

	return cmd
}

func newExitError(name string, args []string, stderr []byte, err error) *ExitError {
	code := -1

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}

	return &ExitError{
		Command: Line(name, args...),
		Code:    code,
		Stderr:  stderr,
		Err:     err,
	}
}

// Line returns the shell-quoted command line for logs and errors.
func Line(name string, args ...string) string {
	return shellquote.Join(append([]string{name}, args...)...)
}

// SplitArgs splits a shell-quoted argument string, e.g. from configuration.
func SplitArgs(s string) ([]string, error) {
	args, err := shellquote.Split(s)
	if err != nil {
		return nil, fmt.Errorf("split %q: %w", s, err)
	}

	return args, nil
}
