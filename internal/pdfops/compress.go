package pdfops

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/rmitchellscott/nixpdf/internal/logging"
)

// SizeDelta compares input and output sizes.
type SizeDelta struct {
	Before int64 `json:"before"`
	After  int64 `json:"after"`
}

// Reduction is the percentage saved; negative when the output grew.
func (d SizeDelta) Reduction() float64 {
	if d.Before == 0 {
		return 0
	}
	return float64(d.Before-d.After) / float64(d.Before) * 100
}

// Optimize rewrites in with shared objects deduplicated and object and xref
// streams enabled. The output may be larger than the input.
func Optimize(in, out string) (SizeDelta, error) {
	conf := newConfig()
	conf.WriteObjectStream = true
	conf.WriteXRefStream = true

	if err := api.OptimizeFile(in, out, conf); err != nil {
		return SizeDelta{}, fmt.Errorf("failed to optimize PDF: %w", err)
	}

	delta := SizeDelta{Before: fileSize(in), After: fileSize(out)}
	logging.Logf("[PDFOPS] optimized %s -> %s (%.1f%% reduction)",
		humanize.Bytes(uint64(delta.Before)), humanize.Bytes(uint64(delta.After)), delta.Reduction())
	return delta, nil
}
