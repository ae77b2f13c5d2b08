// Package pdftest builds small image and PDF fixtures for tests. Page widths
// are chosen by the caller so tests can tell pages apart after a transform.
package pdftest

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/rmitchellscott/nixpdf/internal/pdfops"
)

// PageHeight is the height of every page produced by PDF.
const PageHeight = 200

// PNG writes a w x h PNG into dir.
func PNG(tb testing.TB, dir, name string, w, h int) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		tb.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, fill(w, h)); err != nil {
		tb.Fatal(err)
	}
	return path
}

// JPEG writes a w x h JPEG into dir.
func JPEG(tb testing.TB, dir, name string, w, h int) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		tb.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, fill(w, h), nil); err != nil {
		tb.Fatal(err)
	}
	return path
}

// PDF writes a PDF into dir with one page per width, each PageHeight tall.
func PDF(tb testing.TB, dir, name string, widths ...int) string {
	tb.Helper()
	imgDir := tb.TempDir()
	images := make([]string, len(widths))
	for i, w := range widths {
		images[i] = PNG(tb, imgDir, fmt.Sprintf("p%d.png", i), w, PageHeight)
	}
	path := filepath.Join(dir, name)
	if err := pdfops.ImagesToPDF(images, path); err != nil {
		tb.Fatal(err)
	}
	return path
}

// Widths returns the rounded width of every page of the PDF at path.
func Widths(tb testing.TB, path string) []int {
	tb.Helper()
	sizes, err := pdfops.PageSizes(path)
	if err != nil {
		tb.Fatal(err)
	}
	out := make([]int, len(sizes))
	for i, s := range sizes {
		out[i] = int(s.Width + 0.5)
	}
	return out
}

// PageContent returns, for every page, its decoded content stream followed
// by the content of each form XObject the page draws. Stamped text shows up
// as "(text) Tj".
func PageContent(tb testing.TB, path string) []string {
	tb.Helper()
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		tb.Fatal(err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		tb.Fatal(err)
	}

	out := make([]string, ctx.XRefTable.PageCount)
	for i := 1; i <= ctx.XRefTable.PageCount; i++ {
		d, _, inh, err := ctx.PageDict(i, false)
		if err != nil {
			tb.Fatal(err)
		}
		var buf bytes.Buffer
		content, err := ctx.PageContent(d, i)
		if err != nil && !errors.Is(err, model.ErrNoContent) {
			tb.Fatal(err)
		}
		buf.Write(content)

		res := inh.Resources
		if o, found := d.Find("Resources"); found {
			if rd, err := ctx.DereferenceDict(o); err == nil && rd != nil {
				res = rd
			}
		}
		writeForms(ctx, res, &buf, 0)
		out[i-1] = buf.String()
	}
	return out
}

func writeForms(ctx *model.Context, res types.Dict, buf *bytes.Buffer, depth int) {
	if res == nil || depth > 3 {
		return
	}
	o, found := res.Find("XObject")
	if !found {
		return
	}
	xobjs, err := ctx.DereferenceDict(o)
	if err != nil {
		return
	}
	for _, x := range xobjs {
		sd, _, err := ctx.DereferenceStreamDict(x)
		if err != nil || sd == nil {
			continue
		}
		if st := sd.Subtype(); st == nil || *st != "Form" {
			continue
		}
		if err := sd.Decode(); err != nil {
			continue
		}
		buf.WriteByte('\n')
		buf.Write(sd.Content)
		if r, found := sd.Find("Resources"); found {
			if rd, err := ctx.DereferenceDict(r); err == nil {
				writeForms(ctx, rd, buf, depth+1)
			}
		}
	}
}

func fill(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}
