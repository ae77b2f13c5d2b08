// Package runner executes external command-line tools with bounded run time
// and a structured outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	execute "github.com/alexellis/go-execute/v2"
	"github.com/sirupsen/logrus"

	"github.com/rmitchellscott/nixpdf/internal/logging"
)

// ErrToolNotFound is returned when the binary cannot be resolved on PATH.
var ErrToolNotFound = errors.New("tool not found")

// Invocation describes one external process.
type Invocation struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration
	// Sensitive keeps Args out of the log, e.g. when they carry a password.
	Sensitive bool
}

type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// ExitError reports a tool that ran and exited non-zero.
type ExitError struct {
	Name   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Name, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + truncate(s, 512)
	}
	return msg
}

// TimeoutError reports a tool killed after exceeding its Timeout.
type TimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Name, e.Timeout)
}

// Runner is the capability the PDF adapters depend on.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// Func adapts a plain function to Runner.
type Func func(ctx context.Context, inv Invocation) (Result, error)

func (f Func) Run(ctx context.Context, inv Invocation) (Result, error) {
	return f(ctx, inv)
}

// Exec runs tools through go-execute.
type Exec struct {
	LookPath func(string) (string, error)
}

func New() *Exec {
	return &Exec{LookPath: exec.LookPath}
}

// Lookup resolves a tool name to a path, wrapping failures in ErrToolNotFound.
func (e *Exec) Lookup(name string) (string, error) {
	path, err := e.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return path, nil
}

func (e *Exec) Run(ctx context.Context, inv Invocation) (Result, error) {
	path, err := e.Lookup(inv.Name)
	if err != nil {
		return Result{}, err
	}

	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	task := execute.ExecTask{
		Command:     path,
		Args:        inv.Args,
		Cwd:         inv.Dir,
		Env:         inv.Env,
		StreamStdio: false,
	}

	var logArgs interface{} = inv.Args
	if inv.Sensitive {
		logArgs = "[redacted]"
	}
	log := logging.WithFields(logrus.Fields{"tool": inv.Name, "args": logArgs})
	log.Debug("executing")

	start := time.Now()
	res, execErr := task.Execute(runCtx)
	result := Result{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
		Duration: time.Since(start),
	}

	switch {
	case ctx.Err() != nil:
		log.WithField("duration", result.Duration).Warn("cancelled by caller")
		return result, fmt.Errorf("%s: %w", inv.Name, ctx.Err())
	case runCtx.Err() != nil:
		log.WithField("timeout", inv.Timeout).Warn("timed out")
		return result, &TimeoutError{Name: inv.Name, Timeout: inv.Timeout}
	case execErr != nil:
		return result, fmt.Errorf("run %s: %w", inv.Name, execErr)
	case res.ExitCode != 0:
		log.WithFields(logrus.Fields{"exit_code": res.ExitCode, "stderr": truncate(res.Stderr, 2048)}).Warn("non-zero exit")
		return result, &ExitError{Name: inv.Name, Code: res.ExitCode, Stderr: res.Stderr}
	}

	log.WithField("duration", result.Duration).Debug("completed")
	return result, nil
}

// IsNotFound reports whether err means the tool is not installed.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrToolNotFound)
}

// ExitCode extracts the exit status from an *ExitError, or -1.
func ExitCode(err error) int {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return -1
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
