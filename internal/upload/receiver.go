// Package upload streams multipart uploads to disk and enforces the count,
// size and type limits before any processing happens.
package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"github.com/rmitchellscott/nixpdf/internal/apperr"
	"github.com/rmitchellscott/nixpdf/internal/logging"
	"github.com/rmitchellscott/nixpdf/internal/security"
	"github.com/rmitchellscott/nixpdf/internal/workspace"
)

const (
	CodeInvalidForm  = "invalid_form"
	CodeMissingFile  = "missing_file"
	CodeTooManyFiles = "too_many_files"
	CodeTooFewFiles  = "too_few_files"
	CodeFileTooLarge = "file_too_large"
	CodeInvalidType  = "invalid_type"

	maxFieldBytes = 64 << 10
	maxFields     = 32
)

type Limits struct {
	MaxFileSize int64
	MaxFiles    int
}

// Receiver persists uploads into dir.
type Receiver struct {
	dir    string
	limits Limits
}

func NewReceiver(dir string, limits Limits) *Receiver {
	return &Receiver{dir: dir, limits: limits}
}

func (r *Receiver) Limits() Limits { return r.limits }

// Receive streams every part of req. Files are tracked by scope as soon as
// they exist on disk, so a rejected request leaves nothing behind once the
// scope is released.
func (r *Receiver) Receive(req *http.Request, scope *workspace.Scope) (*Form, error) {
	mr, err := req.MultipartReader()
	if err != nil {
		return nil, apperr.Validation(CodeInvalidForm, "Request must be multipart/form-data")
	}

	form := &Form{Fields: map[string]string{}}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.Validation(CodeInvalidForm, "Malformed multipart body")
		}

		if part.FileName() == "" {
			err = r.readField(form, part)
		} else {
			err = r.saveFile(form, part, scope)
		}
		part.Close()
		if err != nil {
			return nil, err
		}
	}
	return form, nil
}

func (r *Receiver) readField(form *Form, part *multipart.Part) error {
	name := part.FormName()
	if name == "" {
		return nil
	}
	if len(form.Fields) >= maxFields {
		return apperr.Validation(CodeInvalidForm, "Too many form fields")
	}
	data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return apperr.Validation(CodeInvalidForm, "Malformed multipart body")
	}
	if len(data) > maxFieldBytes {
		return apperr.Validation(CodeInvalidForm, fmt.Sprintf("Field %q is too large", name))
	}
	form.Fields[name] = string(data)
	return nil
}

func (r *Receiver) saveFile(form *Form, part *multipart.Part, scope *workspace.Scope) error {
	if len(form.Files) >= r.limits.MaxFiles {
		return apperr.Validation(CodeTooManyFiles, fmt.Sprintf("Too many files. Max is %d", r.limits.MaxFiles))
	}

	original := part.FileName()
	path, err := security.SafeJoin(r.dir, workspace.UniqueName(original))
	if err != nil {
		return apperr.Internal("Failed to store upload", err)
	}
	scope.Track(path)

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return apperr.Internal("Failed to store upload", err)
	}
	n, copyErr := io.Copy(dst, io.LimitReader(part, r.limits.MaxFileSize+1))
	closeErr := dst.Close()
	if copyErr != nil {
		return apperr.Validation(CodeInvalidForm, "Upload interrupted")
	}
	if closeErr != nil {
		return apperr.Internal("Failed to store upload", closeErr)
	}
	if n > r.limits.MaxFileSize {
		return apperr.Validation(CodeFileTooLarge, "File too large. Max size is "+sizeLabel(r.limits.MaxFileSize))
	}

	detected := ""
	if mt, err := mimetype.DetectFile(path); err == nil && mt != nil {
		detected = Normalize(mt.String())
	}

	declared := Normalize(part.Header.Get("Content-Type"))
	effective := declared
	if effective == "" || effective == "application/octet-stream" {
		effective = detected
	}
	if !IsAllowed(effective) {
		if effective == "" {
			effective = "unknown"
		}
		return apperr.Validation(CodeInvalidType, fmt.Sprintf("Invalid file type: %s", effective))
	}

	f := File{
		Path:         path,
		OriginalName: original,
		MimeType:     effective,
		DetectedType: detected,
		Size:         n,
	}
	form.Files = append(form.Files, f)

	logging.WithFields(logrus.Fields{
		"name":     original,
		"declared": declared,
		"detected": detected,
		"size":     humanize.Bytes(uint64(n)),
	}).Debug("[UPLOAD] stored file")
	return nil
}

// sizeLabel renders whole-megabyte limits as "50MB" and anything else with
// humanize, so small limits never print as "0MB".
func sizeLabel(n int64) string {
	if n >= 1<<20 && n%(1<<20) == 0 {
		return fmt.Sprintf("%dMB", n>>20)
	}
	return humanize.IBytes(uint64(n))
}
