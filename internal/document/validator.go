package document

import (
	"path/filepath"
	"strings"
)

// MaxFileSize is the upload size cap: 10 MiB.
const MaxFileSize int64 = 10 << 20

// RejectReason explains why a file was rejected before any work was done.
type RejectReason string

const (
	RejectNone         RejectReason = ""
	RejectNoExtension  RejectReason = "missing file extension"
	RejectBadExtension RejectReason = "unsupported file type"
	RejectEmptyFile    RejectReason = "empty file"
	RejectOversized    RejectReason = "file exceeds size limit"
)

// ValidationResult is a tagged outcome: either accepted, or rejected with a
// reason and the offending value.
type ValidationResult struct {
	OK        bool
	Reason    RejectReason
	Offending string
}

var acceptedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".doc":  true,
}

// Validate gates an upload on filename extension and size. Pure function,
// no side effects. Accepted types are pdf, docx and doc (case-insensitive
// on the final extension token); accepted sizes are 0 < size <= MaxFileSize.
func Validate(filename string, sizeBytes int64) ValidationResult {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || ext == "." {
		return ValidationResult{Reason: RejectNoExtension, Offending: filename}
	}
	if !acceptedExtensions[ext] {
		return ValidationResult{Reason: RejectBadExtension, Offending: ext}
	}
	if sizeBytes <= 0 {
		return ValidationResult{Reason: RejectEmptyFile, Offending: filename}
	}
	if sizeBytes > MaxFileSize {
		return ValidationResult{Reason: RejectOversized, Offending: filename}
	}
	return ValidationResult{OK: true}
}
