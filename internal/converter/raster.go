package converter

import (
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/gen2brain/go-fitz"

	"github.com/rmitchellscott/nixpdf/internal/apperr"
	"github.com/rmitchellscott/nixpdf/internal/runner"
)

const (
	MsgRasterUnavailable = "PDF to images requires poppler-utils. Install with: apt-get install poppler-utils"
	MsgRasterFailed      = "Failed to convert PDF to images"

	jpegQuality = 90
)

// Rasterizer renders every page of a PDF to a JPEG in outDir and returns
// the image paths in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, in, outDir string, dpi int) ([]string, error)
}

// Pdftoppm rasterizes with poppler's pdftoppm.
type Pdftoppm struct {
	Runner  runner.Runner
	Binary  string
	Timeout time.Duration
}

func (p *Pdftoppm) Rasterize(ctx context.Context, in, outDir string, dpi int) ([]string, error) {
	args := []string{"-jpeg", "-r", strconv.Itoa(dpi), in, filepath.Join(outDir, "page")}
	if _, err := p.Runner.Run(ctx, runner.Invocation{Name: p.Binary, Args: args, Timeout: p.Timeout}); err != nil {
		if runner.IsNotFound(err) {
			return nil, apperr.ToolUnavailable(MsgRasterUnavailable, err)
		}
		return nil, apperr.ToolFailure(MsgRasterFailed, err)
	}

	pages, err := collectPages(outDir)
	if err != nil {
		return nil, apperr.Internal(MsgRasterFailed, err)
	}
	if len(pages) == 0 {
		return nil, apperr.ToolFailure(MsgRasterFailed, fmt.Errorf("pdftoppm produced no images"))
	}
	return pages, nil
}

// pdftoppm zero-pads page numbers to the width of the page count
// (page-1.jpg or page-01.jpg), so order by the parsed number.
var pageImage = regexp.MustCompile(`^page-(\d+)\.jpg$`)

func collectPages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type numbered struct {
		n    int
		path string
	}
	var found []numbered
	for _, e := range entries {
		m := pageImage.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		found = append(found, numbered{n, filepath.Join(dir, e.Name())})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}

// Fitz rasterizes in-process with MuPDF, for hosts without poppler.
type Fitz struct{}

func (Fitz) Rasterize(ctx context.Context, in, outDir string, dpi int) ([]string, error) {
	doc, err := fitz.New(in)
	if err != nil {
		return nil, apperr.ToolFailure(MsgRasterFailed, err)
	}
	defer doc.Close()

	n := doc.NumPage()
	pages := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(i, float64(dpi))
		if err != nil {
			return nil, apperr.ToolFailure(MsgRasterFailed, fmt.Errorf("render page %d: %w", i+1, err))
		}
		path := filepath.Join(outDir, fmt.Sprintf("page-%d.jpg", i+1))
		f, err := os.Create(path)
		if err != nil {
			return nil, apperr.Internal(MsgRasterFailed, err)
		}
		encErr := jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality})
		closeErr := f.Close()
		if encErr != nil || closeErr != nil {
			return nil, apperr.Internal(MsgRasterFailed, fmt.Errorf("write page %d: %v %v", i+1, encErr, closeErr))
		}
		pages = append(pages, path)
	}
	return pages, nil
}
