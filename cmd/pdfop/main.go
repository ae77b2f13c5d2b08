// pdfop runs a single operation on local files, without the HTTP server.
//
//	pdfop merge a.pdf b.pdf -o out/
//	pdfop rotate -p degrees=180 scan.pdf
//	pdfop ocr page.png
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rmitchellscott/nixpdf/internal/artifact"
	"github.com/rmitchellscott/nixpdf/internal/config"
	"github.com/rmitchellscott/nixpdf/internal/dispatch"
	"github.com/rmitchellscott/nixpdf/internal/logging"
	"github.com/rmitchellscott/nixpdf/internal/runner"
	"github.com/rmitchellscott/nixpdf/internal/security"
	"github.com/rmitchellscott/nixpdf/internal/upload"
	"github.com/rmitchellscott/nixpdf/internal/workspace"
)

func main() {
	_ = godotenv.Load()
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		params []string
		outDir string
	)
	cmd := &cobra.Command{
		Use:          "pdfop <operation> <file>...",
		Short:        "Run one PDF operation on local files",
		Args:         cobra.MinimumNArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := logging.Setup(cfg.LogLevel, "text"); err != nil {
				return err
			}
			logging.SetOutput(cmd.ErrOrStderr())

			p, err := parseParams(params)
			if err != nil {
				return err
			}
			d := dispatch.New(dispatch.NewTools(cfg, runner.New()))
			out, err := run(cmd.Context(), d, args[0], args[1:], p, outDir, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if out != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Output saved to: %s\n", out)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "operation parameter as key=value (repeatable)")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory for the result file")
	return cmd
}

func parseParams(kvs []string) (dispatch.Params, error) {
	p := dispatch.Params{}
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("parameter %q is not key=value", kv)
		}
		p[k] = v
	}
	return p, nil
}

// run executes op on inputs. Inline results are written to stdout as JSON;
// file results are copied into outDir and their path returned. Scratch files
// live in a private temp dir removed before run returns; inputs are never
// touched.
func run(ctx context.Context, d *dispatch.Dispatcher, op string, inputs []string, params dispatch.Params, outDir string, stdout io.Writer) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	files, err := describe(inputs)
	if err != nil {
		return "", err
	}

	tmp, err := os.MkdirTemp("", "pdfop-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmp)
	scope := workspace.NewScope(tmp)
	defer scope.Release(ctx)

	art, err := d.Run(ctx, op, &dispatch.Request{Files: files, Params: params, Scope: scope})
	if err != nil {
		return "", err
	}
	if art.Kind == artifact.KindInline {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return "", enc.Encode(art.Payload)
	}

	src, err := art.Materialize(scope)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	dst, err := security.SafeJoin(outDir, art.Filename)
	if err != nil {
		return "", err
	}
	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func describe(paths []string) ([]upload.File, error) {
	files := make([]upload.File, 0, len(paths))
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !fi.Mode().IsRegular() {
			return nil, fmt.Errorf("%s is not a regular file", p)
		}
		mt, err := mimetype.DetectFile(p)
		if err != nil {
			return nil, fmt.Errorf("detect %s: %w", p, err)
		}
		detected := upload.Normalize(mt.String())
		files = append(files, upload.File{
			Path:         p,
			OriginalName: filepath.Base(p),
			MimeType:     detected,
			DetectedType: detected,
			Size:         fi.Size(),
		})
	}
	return files, nil
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
