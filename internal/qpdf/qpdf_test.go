package qpdf

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/rmitchellscott/nixpdf/internal/apperr"
	"github.com/rmitchellscott/nixpdf/internal/pdfops"
	"github.com/rmitchellscott/nixpdf/internal/pdftest"
	"github.com/rmitchellscott/nixpdf/internal/runner"
)

// stubRunner records invocations, writes the last argument as output and
// returns err.
func stubRunner(records *[]runner.Invocation, err error) runner.Runner {
	return runner.Func(func(_ context.Context, inv runner.Invocation) (runner.Result, error) {
		*records = append(*records, inv)
		if len(inv.Args) > 0 && !runner.IsNotFound(err) {
			os.WriteFile(inv.Args[len(inv.Args)-1], []byte("%PDF-1.7"), 0o644)
		}
		return runner.Result{}, err
	})
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")

	tests := []struct {
		name string
		call func(c *Client) error
		want []string
	}{
		{
			name: "protect",
			call: func(c *Client) error { return c.Protect(context.Background(), in, out, "secret1") },
			want: []string{"--encrypt", "secret1", "secret1", "256", "--", in, out},
		},
		{
			name: "unlock",
			call: func(c *Client) error { return c.Unlock(context.Background(), in, out, "secret1") },
			want: []string{"--password=secret1", "--decrypt", in, out},
		},
		{
			name: "repair",
			call: func(c *Client) error { return c.Repair(context.Background(), in, out) },
			want: []string{in, out},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Remove(out)
			var calls []runner.Invocation
			c := New(stubRunner(&calls, nil), "qpdf", time.Minute)
			if err := tt.call(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(calls) != 1 {
				t.Fatalf("expected 1 call, got %d", len(calls))
			}
			if calls[0].Name != "qpdf" || calls[0].Timeout != time.Minute {
				t.Errorf("unexpected invocation %+v", calls[0])
			}
			if !reflect.DeepEqual(calls[0].Args, tt.want) {
				t.Errorf("args mismatch:\n got  %v\n want %v", calls[0].Args, tt.want)
			}
			if tt.name != "repair" && !calls[0].Sensitive {
				t.Error("password-bearing invocation not marked sensitive")
			}
		})
	}
}

func TestErrorMapping(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	notFound := runner.ErrToolNotFound
	failed := &runner.ExitError{Name: "qpdf", Code: 2, Stderr: "invalid password"}

	tests := []struct {
		name    string
		runErr  error
		call    func(c *Client) error
		kind    apperr.Kind
		message string
	}{
		{"protect missing", notFound, func(c *Client) error { return c.Protect(context.Background(), in, out, "secret1") }, apperr.KindToolUnavailable, MsgProtectUnavailable},
		{"protect failed", failed, func(c *Client) error { return c.Protect(context.Background(), in, out, "secret1") }, apperr.KindToolFailure, MsgProtectFailed},
		{"unlock missing", notFound, func(c *Client) error { return c.Unlock(context.Background(), in, out, "x") }, apperr.KindToolUnavailable, MsgUnlockFailed},
		{"unlock wrong password", failed, func(c *Client) error { return c.Unlock(context.Background(), in, out, "x") }, apperr.KindToolFailure, MsgUnlockFailed},
		{"repair missing", notFound, func(c *Client) error { return c.Repair(context.Background(), in, out) }, apperr.KindToolUnavailable, MsgRepairUnavailable},
		{"repair failed", failed, func(c *Client) error { return c.Repair(context.Background(), in, out) }, apperr.KindToolFailure, MsgRepairFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Remove(out)
			var calls []runner.Invocation
			c := New(stubRunner(&calls, tt.runErr), "qpdf", time.Minute)
			err := tt.call(c)
			var e *apperr.Error
			if !errors.As(err, &e) {
				t.Fatalf("expected *apperr.Error, got %v", err)
			}
			if e.Kind != tt.kind || e.Message != tt.message {
				t.Errorf("got kind=%v message=%q, want kind=%v message=%q", e.Kind, e.Message, tt.kind, tt.message)
			}
		})
	}
}

func TestWarningsExitIsSuccess(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "repaired.pdf")
	var calls []runner.Invocation
	c := New(stubRunner(&calls, &runner.ExitError{Name: "qpdf", Code: 3}), "qpdf", time.Minute)
	if err := c.Repair(context.Background(), filepath.Join(dir, "in.pdf"), out); err != nil {
		t.Fatalf("exit 3 with output should succeed, got %v", err)
	}
}

func TestWarningsExitWithoutOutputFails(t *testing.T) {
	dir := t.TempDir()
	r := runner.Func(func(context.Context, runner.Invocation) (runner.Result, error) {
		return runner.Result{}, &runner.ExitError{Name: "qpdf", Code: 3}
	})
	c := New(r, "qpdf", time.Minute)
	if err := c.Repair(context.Background(), filepath.Join(dir, "in.pdf"), filepath.Join(dir, "out.pdf")); err == nil {
		t.Fatal("expected failure when no output exists")
	}
}

func TestRoundTripWithQPDF(t *testing.T) {
	if _, err := exec.LookPath("qpdf"); err != nil {
		t.Skip("qpdf not installed")
	}
	dir := t.TempDir()
	in := pdftest.PDF(t, dir, "in.pdf", 100, 110)
	protected := filepath.Join(dir, "protected.pdf")
	unlocked := filepath.Join(dir, "unlocked.pdf")
	c := New(runner.New(), "qpdf", time.Minute)

	if err := c.Protect(context.Background(), in, protected, "hunter22"); err != nil {
		t.Fatalf("Protect: %v", err)
	}
	if err := c.Unlock(context.Background(), protected, filepath.Join(dir, "wrong.pdf"), "nope123"); err == nil {
		t.Fatal("Unlock with wrong password succeeded")
	}
	if err := c.Unlock(context.Background(), protected, unlocked, "hunter22"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	n, err := pdfops.PageCount(unlocked)
	if err != nil || n != 2 {
		t.Fatalf("unlocked page count = %d, %v", n, err)
	}
}
