package pdfops

import (
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const (
	DefaultWatermarkText    = "CONFIDENTIAL"
	DefaultWatermarkOpacity = 0.3
)

// Position is a horizontal anchor for page numbers along the bottom edge.
type Position string

const (
	BottomLeft   Position = "bottom-left"
	BottomCenter Position = "bottom-center"
	BottomRight  Position = "bottom-right"
)

// ParsePosition maps the request value to a Position; "" means BottomRight.
func ParsePosition(s string) (Position, bool) {
	switch Position(strings.ToLower(strings.TrimSpace(s))) {
	case "", BottomRight:
		return BottomRight, true
	case BottomLeft:
		return BottomLeft, true
	case BottomCenter:
		return BottomCenter, true
	}
	return "", false
}

// anchor returns the pdfcpu position and offset: 30pt side margin, 20pt from
// the bottom edge.
func (p Position) anchor() (string, string) {
	switch p {
	case BottomLeft:
		return "bl", "30 20"
	case BottomCenter:
		return "bc", "0 20"
	default:
		return "br", "-30 20"
	}
}

// Watermark stamps text diagonally across the centre of every page in
// Helvetica-Bold 50pt light gray at the given opacity (0..1).
func Watermark(in, out, text string, opacity float64) error {
	if opacity < 0 || opacity > 1 {
		return fmt.Errorf("opacity must be between 0 and 1, got %v", opacity)
	}
	if strings.TrimSpace(text) == "" {
		text = DefaultWatermarkText
	}

	desc := fmt.Sprintf("fontname:Helvetica-Bold, points:50, rotation:45, scalefactor:1 abs, position:c, fillcolor:#BFBFBF, opacity:%.2f", opacity)
	wm, err := api.TextWatermark(WatermarkText(text), desc, true, false, types.POINTS)
	if err != nil {
		return fmt.Errorf("failed to build watermark: %w", err)
	}
	if err := api.AddWatermarksFile(in, out, nil, wm, newConfig()); err != nil {
		return fmt.Errorf("failed to add watermark: %w", err)
	}
	return nil
}

// WatermarkText escapes text so pdfcpu's placeholder expansion (%p, %P, %t,
// %v) prints it literally. A run of n percent signs is written as n+1, since
// the expansion drops one; a placeholder letter right after the run cannot
// be kept adjacent and gets a space in front of it.
func WatermarkText(text string) string {
	var b strings.Builder
	for i := 0; i < len(text); {
		if text[i] != '%' {
			b.WriteByte(text[i])
			i++
			continue
		}
		j := i
		for j < len(text) && text[j] == '%' {
			j++
		}
		b.WriteString(strings.Repeat("%", j-i+1))
		if j < len(text) && strings.IndexByte("pPtv", text[j]) >= 0 {
			b.WriteByte(' ')
		}
		i = j
	}
	return b.String()
}

// PageNumbers stamps the 1-based page index on every page in Helvetica 12pt.
func PageNumbers(in, out string, pos Position) error {
	anchor, offset := pos.anchor()
	desc := fmt.Sprintf("fontname:Helvetica, points:12, rotation:0, scalefactor:1 abs, position:%s, offset:%s, fillcolor:#000000, opacity:1", anchor, offset)
	wm, err := api.TextWatermark("%p", desc, true, false, types.POINTS)
	if err != nil {
		return fmt.Errorf("failed to build page number stamp: %w", err)
	}
	if err := api.AddWatermarksFile(in, out, nil, wm, newConfig()); err != nil {
		return fmt.Errorf("failed to add page numbers: %w", err)
	}
	return nil
}
