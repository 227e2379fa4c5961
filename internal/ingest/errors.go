package ingest

import (
	"errors"
	"fmt"
)

// Base error kinds for ingestion failures. Validation and extraction errors
// are terminal for the single document; index write conflicts are retried
// before surfacing.
var (
	ErrInvalidFileType    = errors.New("invalid file type")
	ErrInvalidFileSize    = errors.New("invalid file size")
	ErrEmptyExtractedText = errors.New("no extractable text")
	ErrIndexWriteConflict = errors.New("index write conflict")
)

// PipelineError carries the stage a pipeline failed at, with the underlying
// cause preserved.
type PipelineError struct {
	Stage       Stage
	CandidateID string
	Err         error
	Detail      string
}

func (e *PipelineError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (stage:%s, candidate:%s): %s", e.Err, e.Stage, e.CandidateID, e.Detail)
	}
	return fmt.Sprintf("%s (stage:%s, candidate:%s)", e.Err, e.Stage, e.CandidateID)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is supports errors.Is against the base error kinds.
func (e *PipelineError) Is(target error) bool {
	return errors.Is(e.Err, target)
}
