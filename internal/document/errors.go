package document

import (
	"errors"
	"fmt"
)

// Base error kinds for the file intake layer.
var (
	ErrStorageFailure    = errors.New("storage failure")
	ErrExtractionFailure = errors.New("extraction failure")
)

// ExtractionReason narrows an extraction failure.
type ExtractionReason string

const (
	ExtractionCorrupt     ExtractionReason = "corrupt"
	ExtractionUnsupported ExtractionReason = "unsupported"
	ExtractionTimeout     ExtractionReason = "timeout"
)

// ExtractionError is a typed extraction failure with the underlying cause
// preserved.
type ExtractionError struct {
	Reason ExtractionReason
	Name   string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", ErrExtractionFailure, e.Reason, e.Name, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", ErrExtractionFailure, e.Reason, e.Name)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is lets callers match any extraction failure with errors.Is(err, ErrExtractionFailure).
func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtractionFailure
}
