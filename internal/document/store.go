package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StorageWriter persists the raw bytes of an upload and returns the path the
// file is reachable at. Implementations must be safe for concurrent use and
// must never expose a partially written file.
type StorageWriter interface {
	Store(ctx context.Context, filename string, content []byte) (string, error)
}

// LocalStore writes uploads into a directory on the local filesystem.
type LocalStore struct {
	dir    string
	logger zerolog.Logger
}

func NewLocalStore(dir string, logger zerolog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create uploads dir: %v", ErrStorageFailure, err)
	}
	return &LocalStore{dir: dir, logger: logger}, nil
}

// Store writes the content under a collision-resistant unique name. The file
// is written to a temp path first and renamed into place, so concurrent
// callers either see a complete file or none.
func (s *LocalStore) Store(ctx context.Context, filename string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	target := filepath.Join(s.dir, UniqueName(filename))

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	s.logger.Debug().Str("path", target).Int("bytes", len(content)).Msg("upload stored")
	return target, nil
}

// UniqueName builds "<stem>_<uuid><ext>" so identically named concurrent
// uploads never collide.
func UniqueName(filename string) string {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem = "upload"
	}
	return fmt.Sprintf("%s_%s%s", stem, uuid.New().String(), strings.ToLower(ext))
}
