// Package converter drives the external converters: LibreOffice for office
// documents, a Python script for PDF to office formats, pdftoppm or MuPDF for
// rasterizing, and Tesseract for OCR.
package converter

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rmitchellscott/nixpdf/internal/apperr"
	"github.com/rmitchellscott/nixpdf/internal/logging"
	"github.com/rmitchellscott/nixpdf/internal/runner"
)

const (
	MsgOfficeUnavailable = "Office to PDF conversion requires LibreOffice. Install with: apt-get install libreoffice"
	MsgOfficeFailed      = "Failed to convert document to PDF"
)

// Office converts office documents to PDF with headless LibreOffice.
type Office struct {
	Runner  runner.Runner
	Binary  string
	Timeout time.Duration
}

// ToPDF converts in and returns the path of the produced PDF inside workDir.
// workDir also holds a private LibreOffice profile so concurrent conversions
// don't contend for the user's profile lock.
func (o *Office) ToPDF(ctx context.Context, in, workDir string) (string, error) {
	outDir := filepath.Join(workDir, "out")
	profileDir := filepath.Join(workDir, "profile")
	for _, dir := range []string{outDir, profileDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", apperr.Internal(MsgOfficeFailed, err)
		}
	}

	profileURL := (&url.URL{Scheme: "file", Path: profileAbs(profileDir)}).String()
	args := []string{
		"--headless", "--invisible", "--nodefault", "--nofirststartwizard",
		"--nolockcheck", "--nologo", "--norestore",
		"-env:UserInstallation=" + profileURL,
		"--convert-to", "pdf",
		"--outdir", outDir,
		in,
	}
	res, err := o.Runner.Run(ctx, runner.Invocation{Name: o.Binary, Args: args, Timeout: o.Timeout})
	if err != nil {
		if runner.IsNotFound(err) {
			return "", apperr.ToolUnavailable(MsgOfficeUnavailable, err)
		}
		return "", apperr.ToolFailure(MsgOfficeFailed, err)
	}

	base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	out := filepath.Join(outDir, base+".pdf")
	if fi, statErr := os.Stat(out); statErr != nil || fi.Size() == 0 {
		logging.Warnf("[OFFICE] no output for %s; stdout=%q stderr=%q", filepath.Base(in), res.Stdout, res.Stderr)
		return "", apperr.ToolFailure(MsgOfficeFailed, fmt.Errorf("expected output %s not produced", out))
	}
	return out, nil
}

func profileAbs(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}
