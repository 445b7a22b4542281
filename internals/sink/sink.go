// Package sink hands a version string to the external process that writes
// it into the build system's project file (meson rewrite).
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommand is used when no rewrite command is configured.
var DefaultCommand = []string{"meson", "rewrite"}

var ErrSinkFailure = errors.New("rewrite failed")

// ExitError reports a rewrite process that exited non-zero.
type ExitError struct {
	Args []string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s with exit status %d", ErrSinkFailure, e.Code)
}

func (e *ExitError) Unwrap() error {
	return ErrSinkFailure
}

// Runner runs the rewrite with args and reports its exit code. err is only
// set when the process could not be run at all.
type Runner interface {
	Run(ctx context.Context, args []string) (int, error)
}

type RunnerFunc func(ctx context.Context, args []string) (int, error)

func (f RunnerFunc) Run(ctx context.Context, args []string) (int, error) {
	return f(ctx, args)
}

// RewriteArgs builds the arguments that set the project version in dir.
func RewriteArgs(dir string, version string) []string {
	return []string{"--sourcedir", dir, "kwargs", "set", "project", "/", "version", version}
}

// CommandFromEnv splits a configured rewrite command such as
// "/usr/bin/meson rewrite". Blank values yield DefaultCommand.
func CommandFromEnv(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return append([]string(nil), DefaultCommand...)
	}
	return fields
}

type commandContextFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

var execCommandContext commandContextFunc = exec.CommandContext

// ExecRunner runs Command followed by the rewrite arguments as a child
// process and waits for it.
type ExecRunner struct {
	Command []string
	Stdout  io.Writer
	Stderr  io.Writer
	// Timeout bounds a single run. Zero means no limit.
	Timeout time.Duration
}

var _ Runner = (*ExecRunner)(nil)

func NewExecRunner(command []string, timeout time.Duration) *ExecRunner {
	return &ExecRunner{Command: command, Stdout: os.Stdout, Stderr: os.Stderr, Timeout: timeout}
}

func (r *ExecRunner) Run(ctx context.Context, args []string) (int, error) {
	if len(r.Command) == 0 {
		return -1, errors.New("no rewrite command configured")
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	full := append(append([]string(nil), r.Command[1:]...), args...)
	cmd := execCommandContext(ctx, r.Command[0], full...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, fmt.Errorf("%s did not finish: %w", r.Command[0], ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("failed to run %s: %w", r.Command[0], err)
}

// Publish runs the rewrite and turns a non-zero exit into an *ExitError.
func Publish(ctx context.Context, runner Runner, dir string, version string) error {
	args := RewriteArgs(dir, version)
	code, err := runner.Run(ctx, args)
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Args: args, Code: code}
	}
	return nil
}
