package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/rmitchellscott/nixpdf/internal/config"
	"github.com/rmitchellscott/nixpdf/internal/runner"
	"github.com/rmitchellscott/nixpdf/internal/sweeper"
	"github.com/rmitchellscott/nixpdf/internal/version"
)

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove stale uploads and temp files once, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			w := sweeper.NewWorker(afero.NewOsFs(), []string{cfg.UploadDir, cfg.TempDir}, cfg.SweepInterval, cfg.SweepMaxAge)
			res := w.RunOnce()
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries (%s), %d failed\n",
				res.Removed, humanize.Bytes(uint64(res.Bytes)), res.Failed)
			if res.Failed > 0 {
				return fmt.Errorf("%d entries could not be removed", res.Failed)
			}
			return nil
		},
	}
}

func newDoctorCommand() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Report which external tools are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			missing := runDoctor(cmd.OutOrStdout(), cfg, runner.New().Lookup)
			if strict && missing > 0 {
				return fmt.Errorf("%d required tools missing", missing)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when a tool is missing")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

type toolCheck struct {
	purpose string
	binary  string
	install string
}

// runDoctor prints one line per external dependency and returns how many
// are missing. Ghostscript only counts when COMPRESS_GHOSTSCRIPT is on, and
// pdftoppm only with the pdftoppm raster backend.
func runDoctor(w io.Writer, cfg config.Config, lookup func(string) (string, error)) int {
	checks := []toolCheck{
		{"protect/unlock/repair", cfg.Tools.QPDF, "apt-get install qpdf"},
		{"office-to-pdf", cfg.Tools.Soffice, "apt-get install libreoffice"},
		{"ocr", cfg.Tools.Tesseract, "apt-get install tesseract-ocr"},
		{"pdf-to-office", cfg.Tools.Python, "apt-get install python3"},
	}
	if cfg.RasterBackend == config.RasterPdftoppm {
		checks = append(checks, toolCheck{"pdf-to-images", cfg.Tools.Pdftoppm, "apt-get install poppler-utils"})
	}
	if cfg.CompressGhostscript {
		checks = append(checks, toolCheck{"compress", cfg.Tools.Ghostscript, "apt-get install ghostscript"})
	}

	missing := 0
	for _, c := range checks {
		if path, err := lookup(c.binary); err == nil {
			fmt.Fprintf(w, "ok       %-24s %s\n", c.purpose, path)
		} else {
			missing++
			fmt.Fprintf(w, "missing  %-24s %s (%s)\n", c.purpose, c.binary, c.install)
		}
	}

	if _, err := os.Stat(cfg.ConverterScript); err == nil {
		fmt.Fprintf(w, "ok       %-24s %s\n", "converter script", cfg.ConverterScript)
	} else {
		missing++
		fmt.Fprintf(w, "missing  %-24s %s\n", "converter script", cfg.ConverterScript)
	}
	fmt.Fprintf(w, "raster backend: %s at %d dpi\n", cfg.RasterBackend, cfg.RasterDPI)
	return missing
}
