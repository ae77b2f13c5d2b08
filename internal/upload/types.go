package upload

import (
	"mime"
	"strings"
)

const (
	MimePDF  = "application/pdf"
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeDOC  = "application/msword"
	MimePPT  = "application/vnd.ms-powerpoint"
	MimeXLS  = "application/vnd.ms-excel"
)

// AllowedTypes is the upload allow-list. image/jpg is a common non-standard
// alias some clients send.
var AllowedTypes = []string{
	MimePDF,
	MimeJPEG,
	"image/jpg",
	MimePNG,
	MimeDOCX,
	MimePPTX,
	MimeXLSX,
	MimeDOC,
	MimePPT,
	MimeXLS,
}

// IsAllowed reports whether mt (parameters ignored) is on the allow-list.
func IsAllowed(mt string) bool {
	mt = Normalize(mt)
	for _, allowed := range AllowedTypes {
		if mt == allowed {
			return true
		}
	}
	return false
}

// Normalize lowercases a media type and strips parameters.
func Normalize(mt string) string {
	mt = strings.TrimSpace(mt)
	if mt == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		return parsed
	}
	return strings.ToLower(strings.SplitN(mt, ";", 2)[0])
}

// File is an uploaded file persisted to scratch storage.
type File struct {
	Path         string `json:"-"`
	OriginalName string `json:"name"`
	MimeType     string `json:"mimeType"`
	DetectedType string `json:"detectedType"`
	Size         int64  `json:"size"`
}

// IsPDF checks the sniffed content, not the declared type.
func (f File) IsPDF() bool {
	return f.DetectedType == MimePDF
}

func (f File) IsImage() bool {
	return f.DetectedType == MimeJPEG || f.DetectedType == MimePNG
}

// Form is the parsed request: files in request order plus text fields.
type Form struct {
	Files  []File
	Fields map[string]string
}

// Value returns a text field or "".
func (f *Form) Value(key string) string {
	if f == nil || f.Fields == nil {
		return ""
	}
	return f.Fields[key]
}
