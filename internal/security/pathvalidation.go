package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal  = errors.New("path contains directory traversal sequences")
	ErrAbsolutePath   = errors.New("absolute paths are not allowed")
	ErrEmptyPath      = errors.New("path cannot be empty")
	ErrInvalidPath    = errors.New("invalid path")
	ErrOutsideBaseDir = errors.New("path is outside allowed base directory")
)

// checkRelative rejects names that could escape the directory they are
// joined onto.
func checkRelative(name string) error {
	switch {
	case name == "":
		return ErrEmptyPath
	case strings.ContainsRune(name, 0):
		return ErrInvalidPath
	case strings.Contains(name, ".."):
		return ErrPathTraversal
	case filepath.IsAbs(name):
		return ErrAbsolutePath
	}
	if clean := filepath.Clean(name); clean == "." {
		return ErrPathTraversal
	}
	return nil
}

// SafeJoin joins a relative, traversal-free name onto base. Every scratch
// file, upload and CLI output path goes through here, so the result is
// always strictly inside base.
func SafeJoin(base, name string) (string, error) {
	if err := checkRelative(name); err != nil {
		return "", err
	}
	if base == "" {
		return "", fmt.Errorf("base directory cannot be empty")
	}

	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	full := filepath.Join(absBase, name)
	if !strings.HasPrefix(full, absBase+string(filepath.Separator)) {
		return "", ErrOutsideBaseDir
	}
	return filepath.Join(base, name), nil
}
