// Package compressor recompresses PDFs with Ghostscript's pdfwrite device.
package compressor

import (
	"context"
	"fmt"
	"time"

	"github.com/rmitchellscott/nixpdf/internal/runner"
)

// Ghostscript invokes gs with a compatibility level and a PDFSETTINGS preset
// (/screen, /ebook, /printer, /prepress).
type Ghostscript struct {
	Runner   runner.Runner
	Binary   string
	Compat   string
	Settings string
	Timeout  time.Duration
}

// Compress writes a recompressed copy of in to out.
func (g *Ghostscript) Compress(ctx context.Context, in, out string) error {
	args := []string{
		"-sDEVICE=pdfwrite",
		fmt.Sprintf("-dCompatibilityLevel=%s", g.Compat),
		fmt.Sprintf("-dPDFSETTINGS=%s", g.Settings),
		"-dNOPAUSE", "-dQUIET", "-dBATCH", "-dSAFER",
		fmt.Sprintf("-sOutputFile=%s", out),
		in,
	}
	if _, err := g.Runner.Run(ctx, runner.Invocation{Name: g.Binary, Args: args, Timeout: g.Timeout}); err != nil {
		return fmt.Errorf("ghostscript: %w", err)
	}
	return nil
}
