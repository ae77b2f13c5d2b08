// Package qpdf wraps the qpdf command for encryption, decryption and
// structural repair.
package qpdf

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rmitchellscott/nixpdf/internal/apperr"
	"github.com/rmitchellscott/nixpdf/internal/logging"
	"github.com/rmitchellscott/nixpdf/internal/runner"
)

const (
	MsgProtectUnavailable = "PDF protection requires qpdf. Install with: apt-get install qpdf"
	MsgProtectFailed      = "Failed to protect PDF"
	MsgUnlockFailed       = "Failed to unlock PDF. Check password or install qpdf."
	MsgRepairUnavailable  = "PDF repair requires qpdf. Install with: apt-get install qpdf"
	MsgRepairFailed       = "Failed to repair PDF"

	// exitWarnings is qpdf's status for "succeeded with warnings".
	exitWarnings = 3
)

// Client runs qpdf through a runner.Runner.
type Client struct {
	Runner  runner.Runner
	Binary  string
	Timeout time.Duration
}

func New(r runner.Runner, binary string, timeout time.Duration) *Client {
	return &Client{Runner: r, Binary: binary, Timeout: timeout}
}

// Protect encrypts in with AES-256, using password as both user and owner
// password.
func (c *Client) Protect(ctx context.Context, in, out, password string) error {
	err := c.run(ctx, []string{"--encrypt", password, password, "256", "--", in, out}, out, true)
	switch {
	case err == nil:
		return nil
	case runner.IsNotFound(err):
		return apperr.ToolUnavailable(MsgProtectUnavailable, err)
	default:
		return apperr.ToolFailure(MsgProtectFailed, err)
	}
}

// Unlock decrypts in with password. A wrong password and a missing qpdf
// produce the same client message.
func (c *Client) Unlock(ctx context.Context, in, out, password string) error {
	err := c.run(ctx, []string{"--password=" + password, "--decrypt", in, out}, out, true)
	switch {
	case err == nil:
		return nil
	case runner.IsNotFound(err):
		return apperr.ToolUnavailable(MsgUnlockFailed, err)
	default:
		return apperr.ToolFailure(MsgUnlockFailed, err)
	}
}

// Repair rewrites in; qpdf reconstructs a damaged xref table while reading.
func (c *Client) Repair(ctx context.Context, in, out string) error {
	err := c.run(ctx, []string{in, out}, out, false)
	switch {
	case err == nil:
		return nil
	case runner.IsNotFound(err):
		return apperr.ToolUnavailable(MsgRepairUnavailable, err)
	default:
		return apperr.ToolFailure(MsgRepairFailed, err)
	}
}

// run treats exit status 3 as success when qpdf still produced out.
func (c *Client) run(ctx context.Context, args []string, out string, sensitive bool) error {
	_, err := c.Runner.Run(ctx, runner.Invocation{Name: c.Binary, Args: args, Timeout: c.Timeout, Sensitive: sensitive})
	if err != nil {
		if runner.ExitCode(err) == exitWarnings && nonEmpty(out) {
			logging.Warnf("[QPDF] completed with warnings: %v", err)
			return nil
		}
		return err
	}
	if !nonEmpty(out) {
		return fmt.Errorf("qpdf produced no output")
	}
	return nil
}

func nonEmpty(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Size() > 0
}
