package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/rmitchellscott/nixpdf/internal/apperr"
	"github.com/rmitchellscott/nixpdf/internal/artifact"
	"github.com/rmitchellscott/nixpdf/internal/converter"
	"github.com/rmitchellscott/nixpdf/internal/logging"
	"github.com/rmitchellscott/nixpdf/internal/pdfops"
)

// OCRResult is the inline payload of the ocr operation.
type OCRResult struct {
	Text    string `json:"text"`
	Success bool   `json:"success"`
}

func (d *Dispatcher) register() {
	d.add(&Operation{
		Name:        "merge",
		Description: "Combine PDFs in upload order",
		Accept:      AcceptPDF,
		MinFiles:    2,
		Download:    "merged.pdf",
		FailMessage: "Failed to merge PDFs",
		run:         d.merge,
	})
	d.add(&Operation{
		Name:        "split",
		Description: "Split a PDF into pages or extract page ranges",
		Accept:      AcceptPDF,
		MinFiles:    1,
		MaxFiles:    1,
		Fields:      []string{"pages", "mode"},
		Download:    "split_pages.zip",
		FailMessage: "Failed to split PDF",
		run:         d.split,
	})
	d.add(&Operation{
		Name:        "compress",
		Description: "Reduce PDF file size",
		Accept:      AcceptPDF,
		MinFiles:    1,
		MaxFiles:    1,
		Download:    "compressed.pdf",
		FailMessage: "Failed to compress PDF",
		run:         d.compress,
	})
	d.add(&Operation{
		Name:        "rotate",
		Description: "Rotate every page",
		Accept:      AcceptPDF,
		MinFiles:    1,
		MaxFiles:    1,
		Fields:      []string{"degrees"},
		Download:    "rotated.pdf",
		FailMessage: "Failed to rotate PDF",
		run:         d.rotate,
	})
	d.add(&Operation{
		Name:        "watermark",
		Description: "Stamp diagonal text on every page",
		Accept:      AcceptPDF,
		MinFiles:    1,
		MaxFiles:    1,
		Fields:      []string{"text", "opacity"},
		Download:    "watermarked.pdf",
		FailMessage: "Failed to add watermark",
		run:         d.watermark,
	})
	d.add(&Operation{
		Name:        "protect",
		Description: "Encrypt a PDF with a password",
		Accept:      AcceptPDF,
		MinFiles:    1,
		MaxFiles:    1,
		Fields:      []string{"password"},
		Download:    "protected.pdf",
		FailMessage: "Failed to protect PDF",
		run:         d.protect,
	})
	d.add(&Operation{
		Name:        "unlock",
		Description: "Remove the password from a PDF",
		Accept:      AcceptPDF,
		MinFiles:    1,
		MaxFiles:    1,
		Fields:      []string{"password"},
		Download:    "unlocked.pdf",
		FailMessage: "Failed to unlock PDF. Check password or install qpdf.",
		run:         d.unlock,
	})
	d.add(&Operation{
		Name:        "page-numbers",
		Description: "Number every page",
		Accept:      AcceptPDF,
		MinFiles:    1,
		MaxFiles:    1,
		Fields:      []string{"position"},
		Download:    "numbered.pdf",
		FailMessage: "Failed to add page numbers",
		run:         d.pageNumbers,
	})
	d.add(&Operation{
		Name:        "office-to-pdf",
		Description: "Convert Word, PowerPoint or Excel to PDF",
		Accept:      AcceptOffice,
		MinFiles:    1,
		MaxFiles:    1,
		Download:    "output.pdf",
		FailMessage: converter.MsgOfficeFailed,
		run:         d.officeToPDF,
	})
	for _, f := range []struct {
		name string
		fmt  converter.Format
	}{
		{"pdf-to-word", converter.Word},
		{"pdf-to-ppt", converter.PowerPoint},
		{"pdf-to-excel", converter.Excel},
	} {
		format := f.fmt
		d.add(&Operation{
			Name:        f.name,
			Description: "Convert a PDF to " + format.Name,
			Accept:      AcceptPDF,
			MinFiles:    1,
			MaxFiles:    1,
			Download:    "output" + format.Ext,
			FailMessage: "Failed to convert PDF to " + format.Name,
			run: func(ctx context.Context, req *Request) (*artifact.Artifact, error) {
				return d.pdfToOffice(ctx, req, format)
			},
		})
	}
	d.add(&Operation{
		Name:        "pdf-to-images",
		Description: "Render every page as a JPEG",
		Accept:      AcceptPDF,
		MinFiles:    1,
		MaxFiles:    1,
		Download:    "pdf_pages.zip",
		FailMessage: converter.MsgRasterFailed,
		run:         d.pdfToImages,
	})
	d.add(&Operation{
		Name:        "images-to-pdf",
		Description: "Build a PDF with one page per image",
		Accept:      AcceptImage,
		MinFiles:    1,
		Download:    "images.pdf",
		FailMessage: "Failed to convert images to PDF",
		run:         d.imagesToPDF,
	})
	d.add(&Operation{
		Name:        "ocr",
		Description: "Extract text from a scan or image",
		Accept:      AcceptPDFOrImage,
		MinFiles:    1,
		MaxFiles:    1,
		FailMessage: converter.MsgOCRFailed,
		run:         d.ocr,
	})
	d.add(&Operation{
		Name:        "repair",
		Description: "Rewrite a damaged PDF",
		Accept:      AcceptPDF,
		MinFiles:    1,
		MaxFiles:    1,
		Download:    "repaired.pdf",
		FailMessage: "Failed to repair PDF",
		run:         d.repair,
	})
	d.add(&Operation{
		Name:        "info",
		Description: "Show page count, page sizes and metadata",
		Accept:      AcceptPDF,
		MinFiles:    1,
		MaxFiles:    1,
		FailMessage: "Failed to get PDF info",
		run:         d.info,
	})
}

func paths(req *Request) []string {
	out := make([]string, len(req.Files))
	for i, f := range req.Files {
		out[i] = f.Path
	}
	return out
}

func (d *Dispatcher) merge(_ context.Context, req *Request) (*artifact.Artifact, error) {
	out, err := req.Scope.NewPath("merged.pdf")
	if err != nil {
		return nil, err
	}
	if err := pdfops.Merge(paths(req), out); err != nil {
		return nil, err
	}
	return artifact.Single(out, "merged.pdf"), nil
}

func (d *Dispatcher) split(_ context.Context, req *Request) (*artifact.Artifact, error) {
	params, err := parseSplit(req.Params)
	if err != nil {
		return nil, err
	}
	in := req.Files[0].Path

	if params.Mode == "ranges" || (params.Mode == "" && params.Pages != "") {
		out, err := req.Scope.NewPath("split.pdf")
		if err != nil {
			return nil, err
		}
		pages, err := pdfops.Collect(in, out, params.Pages)
		if err != nil {
			return nil, err
		}
		logging.Logf("[SPLIT] extracted %d pages", len(pages))
		return artifact.Single(out, "split.pdf"), nil
	}

	dir, err := req.Scope.MkdirTemp("split")
	if err != nil {
		return nil, err
	}
	pages, err := pdfops.Burst(in, dir)
	if errors.Is(err, pdfops.ErrSinglePage) {
		return nil, apperr.Validation(CodeSinglePage, err.Error())
	}
	if err != nil {
		return nil, err
	}
	return artifact.Archive("split_pages.zip", entries(pages)), nil
}

// compress always runs the pdfcpu optimizer. With Ghostscript configured the
// smaller of the two outputs wins; a failed Ghostscript pass is not fatal.
func (d *Dispatcher) compress(ctx context.Context, req *Request) (*artifact.Artifact, error) {
	in := req.Files[0].Path
	out, err := req.Scope.NewPath("compressed.pdf")
	if err != nil {
		return nil, err
	}
	delta, err := pdfops.Optimize(in, out)
	if err != nil {
		return nil, err
	}

	if gs := d.tools.Ghostscript; gs != nil {
		gsOut, err := req.Scope.NewPath("compressed-gs.pdf")
		if err != nil {
			return nil, err
		}
		if err := gs.Compress(ctx, in, gsOut); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logging.Warnf("[COMPRESS] ghostscript pass skipped: %v", err)
		} else if size := sizeOf(gsOut); size > 0 && size < delta.After {
			logging.Logf("[COMPRESS] ghostscript output is smaller (%s < %s)",
				humanize.Bytes(uint64(size)), humanize.Bytes(uint64(delta.After)))
			out = gsOut
			delta.After = size
		}
	}

	logging.Logf("[COMPRESS] %.1f%% reduction", delta.Reduction())
	return artifact.Single(out, "compressed.pdf"), nil
}

func (d *Dispatcher) rotate(_ context.Context, req *Request) (*artifact.Artifact, error) {
	params, err := parseRotate(req.Params)
	if err != nil {
		return nil, err
	}
	out, err := req.Scope.NewPath("rotated.pdf")
	if err != nil {
		return nil, err
	}
	if err := pdfops.Rotate(req.Files[0].Path, out, params.Degrees); err != nil {
		return nil, err
	}
	return artifact.Single(out, "rotated.pdf"), nil
}

func (d *Dispatcher) watermark(_ context.Context, req *Request) (*artifact.Artifact, error) {
	params, err := parseWatermark(req.Params)
	if err != nil {
		return nil, err
	}
	out, err := req.Scope.NewPath("watermarked.pdf")
	if err != nil {
		return nil, err
	}
	if err := pdfops.Watermark(req.Files[0].Path, out, params.Text, params.Opacity); err != nil {
		return nil, err
	}
	return artifact.Single(out, "watermarked.pdf"), nil
}

func (d *Dispatcher) protect(ctx context.Context, req *Request) (*artifact.Artifact, error) {
	params, err := parseProtect(req.Params)
	if err != nil {
		return nil, err
	}
	out, err := req.Scope.NewPath("protected.pdf")
	if err != nil {
		return nil, err
	}
	if err := d.tools.QPDF.Protect(ctx, req.Files[0].Path, out, params.Password); err != nil {
		return nil, err
	}
	return artifact.Single(out, "protected.pdf"), nil
}

func (d *Dispatcher) unlock(ctx context.Context, req *Request) (*artifact.Artifact, error) {
	params, err := parseUnlock(req.Params)
	if err != nil {
		return nil, err
	}
	out, err := req.Scope.NewPath("unlocked.pdf")
	if err != nil {
		return nil, err
	}
	if err := d.tools.QPDF.Unlock(ctx, req.Files[0].Path, out, params.Password); err != nil {
		return nil, err
	}
	return artifact.Single(out, "unlocked.pdf"), nil
}

func (d *Dispatcher) pageNumbers(_ context.Context, req *Request) (*artifact.Artifact, error) {
	params, err := parsePageNumbers(req.Params)
	if err != nil {
		return nil, err
	}
	out, err := req.Scope.NewPath("numbered.pdf")
	if err != nil {
		return nil, err
	}
	if err := pdfops.PageNumbers(req.Files[0].Path, out, pdfops.Position(params.Position)); err != nil {
		return nil, err
	}
	return artifact.Single(out, "numbered.pdf"), nil
}

func (d *Dispatcher) officeToPDF(ctx context.Context, req *Request) (*artifact.Artifact, error) {
	work, err := req.Scope.MkdirTemp("office")
	if err != nil {
		return nil, err
	}
	out, err := d.tools.Office.ToPDF(ctx, req.Files[0].Path, work)
	if err != nil {
		return nil, err
	}
	return artifact.Single(out, "output.pdf"), nil
}

func (d *Dispatcher) pdfToOffice(ctx context.Context, req *Request, f converter.Format) (*artifact.Artifact, error) {
	name := "output" + f.Ext
	out, err := req.Scope.NewPath(name)
	if err != nil {
		return nil, err
	}
	if err := d.tools.Script.Convert(ctx, req.Files[0].Path, out, f); err != nil {
		return nil, err
	}
	return artifact.Single(out, name), nil
}

func (d *Dispatcher) pdfToImages(ctx context.Context, req *Request) (*artifact.Artifact, error) {
	dir, err := req.Scope.MkdirTemp("images")
	if err != nil {
		return nil, err
	}
	pages, err := d.tools.Raster.Rasterize(ctx, req.Files[0].Path, dir, d.tools.RasterDPI)
	if err != nil {
		return nil, err
	}
	return artifact.Archive("pdf_pages.zip", entries(pages)), nil
}

func (d *Dispatcher) imagesToPDF(_ context.Context, req *Request) (*artifact.Artifact, error) {
	out, err := req.Scope.NewPath("images.pdf")
	if err != nil {
		return nil, err
	}
	if err := pdfops.ImagesToPDF(paths(req), out); err != nil {
		return nil, err
	}
	return artifact.Single(out, "images.pdf"), nil
}

func (d *Dispatcher) ocr(ctx context.Context, req *Request) (*artifact.Artifact, error) {
	f := req.Files[0]
	var (
		text string
		err  error
	)
	if f.IsPDF() {
		var work string
		work, err = req.Scope.MkdirTemp("ocr")
		if err != nil {
			return nil, err
		}
		text, err = d.tools.OCR.PDF(ctx, f.Path, work)
	} else {
		text, err = d.tools.OCR.Image(ctx, f.Path)
	}
	if err != nil {
		return nil, err
	}
	return artifact.Inline(OCRResult{Text: text, Success: true}), nil
}

func (d *Dispatcher) repair(ctx context.Context, req *Request) (*artifact.Artifact, error) {
	out, err := req.Scope.NewPath("repaired.pdf")
	if err != nil {
		return nil, err
	}
	if err := d.tools.QPDF.Repair(ctx, req.Files[0].Path, out); err != nil {
		return nil, err
	}
	return artifact.Single(out, "repaired.pdf"), nil
}

func (d *Dispatcher) info(_ context.Context, req *Request) (*artifact.Artifact, error) {
	info, err := pdfops.Inspect(req.Files[0].Path)
	if err != nil {
		return nil, err
	}
	return artifact.Inline(info), nil
}

func entries(files []string) []artifact.Entry {
	out := make([]artifact.Entry, len(files))
	for i, p := range files {
		out[i] = artifact.Entry{Name: filepath.Base(p), Path: p}
	}
	return out
}

func sizeOf(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
