package converter

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rmitchellscott/nixpdf/internal/apperr"
	"github.com/rmitchellscott/nixpdf/internal/runner"
)

// Format is a target of the Python converter script.
type Format struct {
	Arg  string
	Ext  string
	Name string
}

var (
	Word       = Format{Arg: "word", Ext: ".docx", Name: "Word"}
	PowerPoint = Format{Arg: "pptx", Ext: ".pptx", Name: "PowerPoint"}
	Excel      = Format{Arg: "excel", Ext: ".xlsx", Name: "Excel"}
)

const MsgScriptUnavailable = "PDF to Office conversion requires Python 3 and the converter script dependencies. Install with: pip install pdf2docx PyPDF2 python-docx python-pptx openpyxl"

// Script runs `python <script> <format> <in> <out>`. The script reports
// success by printing SUCCESS on stdout.
type Script struct {
	Runner  runner.Runner
	Python  string
	Path    string
	Timeout time.Duration
}

func (s *Script) Convert(ctx context.Context, in, out string, f Format) error {
	failed := fmt.Sprintf("Failed to convert PDF to %s", f.Name)

	if _, err := os.Stat(s.Path); err != nil {
		return apperr.ToolUnavailable(MsgScriptUnavailable, fmt.Errorf("converter script %s: %w", s.Path, err))
	}

	res, err := s.Runner.Run(ctx, runner.Invocation{
		Name:    s.Python,
		Args:    []string{s.Path, f.Arg, in, out},
		Timeout: s.Timeout,
	})
	if err != nil {
		if runner.IsNotFound(err) {
			return apperr.ToolUnavailable(MsgScriptUnavailable, err)
		}
		return apperr.ToolFailure(failed, err)
	}
	if !strings.Contains(res.Stdout, "SUCCESS") {
		return apperr.ToolFailure(failed, fmt.Errorf("converter did not report success: %s", strings.TrimSpace(res.Stdout+" "+res.Stderr)))
	}
	if fi, err := os.Stat(out); err != nil || fi.Size() == 0 {
		return apperr.ToolFailure(failed, fmt.Errorf("converter reported success but %s is missing", out))
	}
	return nil
}
