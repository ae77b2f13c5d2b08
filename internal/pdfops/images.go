package pdfops

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ImagesToPDF creates out with one page per image, in order. Each page is
// exactly the size of its image (one point per pixel).
func ImagesToPDF(images []string, out string) error {
	if len(images) == 0 {
		return fmt.Errorf("no images to convert")
	}
	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full
	if err := api.ImportImagesFile(images, out, imp, newConfig()); err != nil {
		return fmt.Errorf("failed to build PDF from images: %w", err)
	}
	return nil
}

// PageSize is a page's media box in points.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PageSizes returns the dimensions of every page.
func PageSizes(path string) ([]PageSize, error) {
	dims, err := api.PageDimsFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read page dimensions: %w", err)
	}
	sizes := make([]PageSize, len(dims))
	for i, d := range dims {
		sizes[i] = PageSize{Width: d.Width, Height: d.Height}
	}
	return sizes, nil
}
