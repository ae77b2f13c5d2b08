// Package dispatch maps operation names to transformations and enforces the
// per-operation preconditions that generic upload validation cannot.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rmitchellscott/nixpdf/internal/apperr"
	"github.com/rmitchellscott/nixpdf/internal/artifact"
	"github.com/rmitchellscott/nixpdf/internal/compressor"
	"github.com/rmitchellscott/nixpdf/internal/config"
	"github.com/rmitchellscott/nixpdf/internal/converter"
	"github.com/rmitchellscott/nixpdf/internal/logging"
	"github.com/rmitchellscott/nixpdf/internal/qpdf"
	"github.com/rmitchellscott/nixpdf/internal/runner"
	"github.com/rmitchellscott/nixpdf/internal/upload"
	"github.com/rmitchellscott/nixpdf/internal/workspace"
)

const (
	CodeUnknownOperation = "unknown_operation"
	CodeInvalidParameter = "invalid_parameter"
	CodeSinglePage       = "single_page"
)

// Accept is the kind of input an operation takes.
type Accept string

const (
	AcceptPDF        Accept = "pdf"
	AcceptImage      Accept = "image"
	AcceptOffice     Accept = "office"
	AcceptPDFOrImage Accept = "pdf-or-image"
)

// Params are the text fields of the request.
type Params map[string]string

// Get returns the trimmed value of key, or "".
func (p Params) Get(key string) string {
	return strings.TrimSpace(p[key])
}

// Request is one invocation of an operation. Every path an operation
// creates must be registered with Scope.
type Request struct {
	Files  []upload.File
	Params Params
	Scope  *workspace.Scope
}

type handler func(ctx context.Context, req *Request) (*artifact.Artifact, error)

// Operation describes one entry of the catalog.
type Operation struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Accept      Accept   `json:"accept"`
	MinFiles    int      `json:"minFiles"`
	MaxFiles    int      `json:"maxFiles,omitempty"`
	Fields      []string `json:"fields,omitempty"`
	Download    string   `json:"download,omitempty"`

	// FailMessage is shown for unexpected errors.
	FailMessage string `json:"-"`

	run handler
}

// Tools are the adapters the operations call into. A nil Ghostscript skips
// the second compression pass.
type Tools struct {
	QPDF        *qpdf.Client
	Office      *converter.Office
	Script      *converter.Script
	Raster      converter.Rasterizer
	OCR         *converter.OCR
	Ghostscript *compressor.Ghostscript
	RasterDPI   int
}

// NewTools builds the adapters from cfg, all sharing r.
func NewTools(cfg config.Config, r runner.Runner) Tools {
	var raster converter.Rasterizer = &converter.Pdftoppm{
		Runner:  r,
		Binary:  cfg.Tools.Pdftoppm,
		Timeout: cfg.LongToolTimeout,
	}
	if cfg.RasterBackend == config.RasterFitz {
		raster = converter.Fitz{}
	}

	t := Tools{
		QPDF:   qpdf.New(r, cfg.Tools.QPDF, cfg.ToolTimeout),
		Office: &converter.Office{Runner: r, Binary: cfg.Tools.Soffice, Timeout: cfg.ToolTimeout},
		Script: &converter.Script{Runner: r, Python: cfg.Tools.Python, Path: cfg.ConverterScript, Timeout: cfg.LongToolTimeout},
		Raster: raster,
		OCR: &converter.OCR{
			Runner:     r,
			Binary:     cfg.Tools.Tesseract,
			Lang:       cfg.OCRLang,
			Timeout:    cfg.LongToolTimeout,
			Rasterizer: raster,
			DPI:        cfg.RasterDPI,
		},
		RasterDPI: cfg.RasterDPI,
	}
	if cfg.CompressGhostscript {
		t.Ghostscript = &compressor.Ghostscript{
			Runner:   r,
			Binary:   cfg.Tools.Ghostscript,
			Compat:   cfg.GSCompat,
			Settings: cfg.GSSettings,
			Timeout:  cfg.LongToolTimeout,
		}
	}
	return t
}

// Dispatcher holds the operation registry.
type Dispatcher struct {
	tools Tools
	ops   map[string]*Operation
	order []string
}

func New(tools Tools) *Dispatcher {
	if tools.RasterDPI <= 0 {
		tools.RasterDPI = 150
	}
	d := &Dispatcher{tools: tools, ops: map[string]*Operation{}}
	d.register()
	return d
}

func (d *Dispatcher) add(op *Operation) {
	d.ops[op.Name] = op
	d.order = append(d.order, op.Name)
}

// Lookup returns the named operation.
func (d *Dispatcher) Lookup(name string) (*Operation, bool) {
	op, ok := d.ops[name]
	return op, ok
}

// Operations returns the catalog in registration order.
func (d *Dispatcher) Operations() []*Operation {
	out := make([]*Operation, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.ops[name])
	}
	return out
}

// Run checks the request against the operation's file rules, then runs it.
// Every returned error is an *apperr.Error.
func (d *Dispatcher) Run(ctx context.Context, name string, req *Request) (*artifact.Artifact, error) {
	op, ok := d.Lookup(name)
	if !ok {
		return nil, apperr.Validation(CodeUnknownOperation, fmt.Sprintf("Unknown operation: %s", name))
	}
	if err := op.checkFiles(req.Files); err != nil {
		return nil, err
	}
	if req.Params == nil {
		req.Params = Params{}
	}

	start := time.Now()
	art, err := op.run(ctx, req)
	if err != nil {
		e := apperr.From(err, op.FailMessage)
		entry := logging.WithFields(logrus.Fields{
			"operation": name,
			"kind":      e.Kind.String(),
			"duration":  time.Since(start).Round(time.Millisecond).String(),
		})
		// Rejected input is reported once, by the caller.
		if e.Kind == apperr.KindValidation {
			entry.Debugf("operation rejected: %s", e.Message)
		} else {
			entry.Errorf("operation failed: %v", err)
		}
		return nil, e
	}
	logging.WithFields(logrus.Fields{
		"operation": name,
		"files":     len(req.Files),
		"duration":  time.Since(start).Round(time.Millisecond).String(),
	}).Info("operation complete")
	return art, nil
}

func (op *Operation) checkFiles(files []upload.File) error {
	if len(files) == 0 {
		if op.Accept == AcceptImage {
			return apperr.Validation(upload.CodeMissingFile, "No images uploaded")
		}
		return apperr.Validation(upload.CodeMissingFile, "No file uploaded")
	}
	if len(files) < op.MinFiles {
		return apperr.Validation(upload.CodeTooFewFiles, fmt.Sprintf("Please upload at least %d PDF files", op.MinFiles))
	}
	if op.MaxFiles > 0 && len(files) > op.MaxFiles {
		return apperr.Validation(upload.CodeTooManyFiles, fmt.Sprintf("Too many files. Max is %d", op.MaxFiles))
	}
	for _, f := range files {
		if msg := op.rejectType(f); msg != "" {
			return apperr.Validation(upload.CodeInvalidType, msg)
		}
	}
	return nil
}

func (op *Operation) rejectType(f upload.File) string {
	switch op.Accept {
	case AcceptPDF:
		if !f.IsPDF() {
			return "File must be a PDF"
		}
	case AcceptImage:
		if !f.IsImage() {
			return "Only PNG and JPEG images are supported"
		}
	case AcceptPDFOrImage:
		if !f.IsPDF() && !f.IsImage() {
			return "File must be a PDF or an image"
		}
	case AcceptOffice:
		if !isOffice(f.MimeType) && !isOffice(f.DetectedType) {
			return "File must be a Word, PowerPoint or Excel document"
		}
	}
	return ""
}

func isOffice(mt string) bool {
	switch mt {
	case upload.MimeDOCX, upload.MimePPTX, upload.MimeXLSX,
		upload.MimeDOC, upload.MimePPT, upload.MimeXLS:
		return true
	}
	return false
}
