// Package artifact models the result of an operation: a single file, an
// archive of several files, or an inline JSON payload.
package artifact

import (
	"archive/zip"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/rmitchellscott/nixpdf/internal/security"
	"github.com/rmitchellscott/nixpdf/internal/workspace"
)

type Kind int

const (
	KindSingle Kind = iota + 1
	KindArchive
	KindInline
)

// Entry is one file inside an archive.
type Entry struct {
	Name string
	Path string
}

type Artifact struct {
	Kind Kind
	// Filename is the download name for Single and Archive.
	Filename string
	Path     string
	Entries  []Entry
	Payload  interface{}
}

func Single(path, filename string) *Artifact {
	return &Artifact{Kind: KindSingle, Path: path, Filename: filename}
}

func Archive(filename string, entries []Entry) *Artifact {
	return &Artifact{Kind: KindArchive, Filename: filename, Entries: entries}
}

func Inline(payload interface{}) *Artifact {
	return &Artifact{Kind: KindInline, Payload: payload}
}

// ContentType guesses the download's media type from Filename.
func (a *Artifact) ContentType() string {
	if ct := mime.TypeByExtension(filepath.Ext(a.Filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Materialize returns a path ready to stream. Single files are checked for
// existence; archives are zipped into a scope-tracked temp file.
func (a *Artifact) Materialize(scope *workspace.Scope) (string, error) {
	switch a.Kind {
	case KindSingle:
		if err := nonEmpty(a.Path); err != nil {
			return "", err
		}
		return a.Path, nil
	case KindArchive:
		f, err := scope.CreateTemp("archive-*.zip")
		if err != nil {
			return "", err
		}
		writeErr := WriteZip(f, a.Entries)
		closeErr := f.Close()
		if writeErr != nil {
			return "", writeErr
		}
		if closeErr != nil {
			return "", fmt.Errorf("close archive: %w", closeErr)
		}
		return f.Name(), nil
	default:
		return "", fmt.Errorf("artifact kind %d has no file", a.Kind)
	}
}

// WriteZip writes entries, in order, as a deflated zip archive.
func WriteZip(w io.Writer, entries []Entry) error {
	if len(entries) == 0 {
		return fmt.Errorf("archive has no entries")
	}
	zw := zip.NewWriter(w)
	for _, e := range entries {
		if err := addEntry(zw, e); err != nil {
			zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

func addEntry(zw *zip.Writer, e Entry) error {
	name, err := security.ValidateAndCleanFilename(e.Name)
	if err != nil {
		return fmt.Errorf("archive entry %q: %w", e.Name, err)
	}
	src, err := os.Open(e.Path)
	if err != nil {
		return fmt.Errorf("open archive entry: %w", err)
	}
	defer src.Close()

	fi, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat archive entry: %w", err)
	}
	hdr, err := zip.FileInfoHeader(fi)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func nonEmpty(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output missing: %w", err)
	}
	if fi.IsDir() || fi.Size() == 0 {
		return fmt.Errorf("output %s is empty", filepath.Base(path))
	}
	return nil
}
