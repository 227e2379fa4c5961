package document

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"code.sajari.com/docconv"
	"github.com/rs/zerolog"
)

// TextExtractor turns an uploaded document into raw text. It consumes the
// upload's bytes directly, so it works the same over any storage backend.
// Implementations must bound their work by the context so one malformed file
// cannot stall a pipeline indefinitely.
type TextExtractor interface {
	Extract(ctx context.Context, filename string, content []byte) (string, error)
}

type convertFunc func(r io.Reader) (string, map[string]string, error)

// DocconvExtractor extracts text with format-specific docconv converters.
// Each supported type is an independent strategy, dispatched on the
// filename's extension.
type DocconvExtractor struct {
	timeout  time.Duration
	logger   zerolog.Logger
	converts map[string]convertFunc
}

func NewDocconvExtractor(timeout time.Duration, logger zerolog.Logger) *DocconvExtractor {
	return &DocconvExtractor{
		timeout: timeout,
		logger:  logger,
		converts: map[string]convertFunc{
			".pdf":  docconv.ConvertPDF,
			".docx": docconv.ConvertDocx,
			".doc":  docconv.ConvertDoc,
		},
	}
}

// Extract converts the document with the strategy for its extension.
// Unsupported types and corrupt documents yield a typed ExtractionError; a
// conversion that outlives the timeout is aborted.
func (e *DocconvExtractor) Extract(ctx context.Context, filename string, content []byte) (string, error) {
	convert, ok := e.converts[normalizeType(filepath.Ext(filename))]
	if !ok {
		return "", &ExtractionError{Reason: ExtractionUnsupported, Name: filename}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	start := time.Now()

	go func() {
		text, _, err := convert(bytes.NewReader(content))
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		e.logger.Warn().Str("filename", filename).Dur("elapsed", time.Since(start)).Msg("extraction timed out")
		return "", &ExtractionError{Reason: ExtractionTimeout, Name: filename, Err: ctx.Err()}
	case res := <-done:
		if res.err != nil {
			return "", &ExtractionError{Reason: ExtractionCorrupt, Name: filename, Err: res.err}
		}
		e.logger.Debug().Str("filename", filename).Int("chars", len(res.text)).Dur("elapsed", time.Since(start)).Msg("text extracted")
		return res.text, nil
	}
}

func normalizeType(fileType string) string {
	t := strings.ToLower(strings.TrimSpace(fileType))
	if t != "" && !strings.HasPrefix(t, ".") {
		t = "." + t
	}
	return t
}
