package converter

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rmitchellscott/nixpdf/internal/apperr"
	"github.com/rmitchellscott/nixpdf/internal/logging"
	"github.com/rmitchellscott/nixpdf/internal/runner"
)

const (
	MsgOCRUnavailable = "OCR requires Tesseract. Install with: apt-get install tesseract-ocr"
	MsgOCRFailed      = "OCR failed"
)

// OCR extracts text with Tesseract. PDFs are rasterized first and recognised
// page by page.
type OCR struct {
	Runner     runner.Runner
	Binary     string
	Lang       string
	Timeout    time.Duration
	Rasterizer Rasterizer
	DPI        int
}

// Image recognises a single image and returns its text.
func (o *OCR) Image(ctx context.Context, path string) (string, error) {
	res, err := o.Runner.Run(ctx, runner.Invocation{
		Name:    o.Binary,
		Args:    []string{path, "stdout", "-l", o.Lang},
		Timeout: o.Timeout,
	})
	if err != nil {
		if runner.IsNotFound(err) {
			return "", apperr.ToolUnavailable(MsgOCRUnavailable, err)
		}
		return "", apperr.ToolFailure(MsgOCRFailed, err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// PDF rasterizes in into workDir and recognises each page. Page texts are
// joined with a form feed.
func (o *OCR) PDF(ctx context.Context, in, workDir string) (string, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", apperr.Internal(MsgOCRFailed, err)
	}
	pages, err := o.Rasterizer.Rasterize(ctx, in, workDir, o.DPI)
	if err != nil {
		return "", err
	}

	texts := make([]string, 0, len(pages))
	for i, page := range pages {
		text, err := o.Image(ctx, page)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i+1, err)
		}
		texts = append(texts, text)
	}
	logging.Logf("[OCR] recognised %d pages", len(pages))
	return strings.Join(texts, "\n\f\n"), nil
}
