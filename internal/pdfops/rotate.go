package pdfops

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Rotate adds degrees (a multiple of 90) to every page's rotation, modulo
// 360. Pages that inherit /Rotate from the page tree are handled by pdfcpu.
func Rotate(in, out string, degrees int) error {
	if degrees%90 != 0 {
		return fmt.Errorf("rotation must be a multiple of 90, got %d", degrees)
	}
	if degrees%360 == 0 {
		// Full turn: rotations are unchanged.
		if _, err := PageCount(in); err != nil {
			return err
		}
		return copyFile(in, out)
	}
	if err := api.RotateFile(in, out, degrees%360, nil, newConfig()); err != nil {
		return fmt.Errorf("failed to rotate PDF: %w", err)
	}
	return nil
}

// PageRotations returns the effective /Rotate of every page, normalised to
// 0, 90, 180 or 270.
func PageRotations(path string) ([]int, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to ensure page count: %w", err)
	}

	rotations := make([]int, ctx.PageCount)
	for i := 1; i <= ctx.PageCount; i++ {
		d, _, inherited, err := ctx.PageDict(i, false)
		if err != nil {
			return nil, fmt.Errorf("failed to get page dict %d: %w", i, err)
		}
		rot := 0
		if own := d.IntEntry("Rotate"); own != nil {
			rot = *own
		} else if inherited != nil {
			rot = inherited.Rotate
		}
		rotations[i-1] = ((rot % 360) + 360) % 360
	}
	return rotations, nil
}
