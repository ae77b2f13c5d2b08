package security

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxFilenameBytes = 120

func ValidateAndCleanFilename(filename string) (string, error) {
	if filename == "" {
		return "", ErrEmptyPath
	}

	if strings.Contains(filename, "/") || strings.Contains(filename, "\\") {
		return "", fmt.Errorf("filename cannot contain path separators")
	}

	if strings.Contains(filename, "..") {
		return "", ErrPathTraversal
	}

	if strings.Contains(filename, "\x00") {
		return "", ErrInvalidPath
	}

	filename = strings.TrimSpace(filename)
	if filename == "" {
		return "", ErrEmptyPath
	}

	return filename, nil
}

// SanitizeFilename reduces a client-supplied name to a single safe path
// component. It never fails; unusable names become "upload".
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "/" || name == "." {
		return "upload"
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r == utf8.RuneError, unicode.IsControl(r):
			continue
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune("._-() ", r):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	clean := strings.TrimLeft(strings.TrimSpace(b.String()), ".")
	for strings.Contains(clean, "..") {
		clean = strings.ReplaceAll(clean, "..", ".")
	}
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return "upload"
	}
	return truncateName(clean, maxFilenameBytes)
}

// truncateName shortens name to at most limit bytes, keeping the extension.
func truncateName(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) > 16 {
		ext = ""
	}
	stem := name[:len(name)-len(ext)]
	keep := limit - len(ext)
	for keep > 0 && !utf8.RuneStart(stem[keep]) {
		keep--
	}
	return stem[:keep] + ext
}
