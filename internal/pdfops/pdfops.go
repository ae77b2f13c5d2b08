// Package pdfops implements the in-process PDF transformations on top of
// pdfcpu. Every function reads input files and writes a new output file;
// inputs are never modified.
package pdfops

import (
	"fmt"
	"io"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/rmitchellscott/nixpdf/internal/logging"
)

func init() {
	// pdfcpu would otherwise create a config dir under the user's home.
	api.DisableConfigDir()
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount returns the number of pages in the PDF at path.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF page count: %w", err)
	}
	return n, nil
}

// Merge concatenates inputs in order into out.
func Merge(inputs []string, out string) error {
	if len(inputs) < 2 {
		return fmt.Errorf("merge needs at least 2 inputs, got %d", len(inputs))
	}
	if err := api.MergeCreateFile(inputs, out, false, newConfig()); err != nil {
		return fmt.Errorf("failed to merge PDFs: %w", err)
	}
	logging.Logf("[PDFOPS] merged %d files", len(inputs))
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
