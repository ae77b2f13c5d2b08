package pdfops

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/rmitchellscott/nixpdf/internal/logging"
)

// ErrSinglePage is returned by Burst for a one-page document.
var ErrSinglePage = errors.New("PDF has only one page, cannot split")

// Burst writes one PDF per page into outDir as page_<n>.pdf (1-based) and
// returns the paths in page order.
func Burst(in, outDir string) ([]string, error) {
	n, err := PageCount(in)
	if err != nil {
		return nil, err
	}
	if n <= 1 {
		return nil, ErrSinglePage
	}

	conf := newConfig()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		out := filepath.Join(outDir, fmt.Sprintf("page_%d.pdf", i))
		if err := api.TrimFile(in, out, []string{strconv.Itoa(i)}, conf); err != nil {
			return nil, fmt.Errorf("failed to extract page %d: %w", i, err)
		}
		pages = append(pages, out)
	}
	logging.Logf("[PDFOPS] split %d pages", n)
	return pages, nil
}

// Collect writes the chosen pages, in selection order, into out. See
// ParsePageRanges for the accepted syntax.
func Collect(in, out, selection string) ([]int, error) {
	n, err := PageCount(in)
	if err != nil {
		return nil, err
	}
	pages := ParsePageRanges(selection, n)

	selected := make([]string, len(pages))
	for i, p := range pages {
		selected[i] = strconv.Itoa(p)
	}
	if err := api.CollectFile(in, out, selected, newConfig()); err != nil {
		return nil, fmt.Errorf("failed to extract pages: %w", err)
	}
	return pages, nil
}

// ParsePageRanges parses comma separated tokens of the form "n" or "a-b"
// (1-based, inclusive). Malformed tokens and pages outside 1..pageCount are
// dropped. A selection that matches nothing yields every page in order.
func ParsePageRanges(selection string, pageCount int) []int {
	var pages []int
	for _, token := range strings.Split(selection, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if from, to, ok := strings.Cut(token, "-"); ok {
			start, err1 := strconv.Atoi(strings.TrimSpace(from))
			end, err2 := strconv.Atoi(strings.TrimSpace(to))
			if err1 != nil || err2 != nil {
				continue
			}
			for p := max(start, 1); p <= min(end, pageCount); p++ {
				pages = append(pages, p)
			}
			continue
		}
		p, err := strconv.Atoi(token)
		if err != nil || p < 1 || p > pageCount {
			continue
		}
		pages = append(pages, p)
	}

	if len(pages) == 0 {
		pages = make([]int, pageCount)
		for i := range pages {
			pages[i] = i + 1
		}
	}
	return pages
}
