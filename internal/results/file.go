// ABOUTME: File-backed result store writing one JSON file per request ID
// ABOUTME: Creates the results directory on demand and writes atomically

package results

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/2389/research-gateway/internal/step"
)

// FileStore stores results as <dir>/<requestID>.json.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore creates a store rooted at dir. The directory is created on
// the first write.
func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		dir:    dir,
		logger: logger.With("component", "results", "backend", "file"),
	}
}

func (s *FileStore) path(requestID string) string {
	return filepath.Join(s.dir, requestID+".json")
}

// Store writes the result through a temp file and rename so readers never
// observe a partial file.
func (s *FileStore) Store(ctx context.Context, requestID string, result step.Action) error {
	if !ValidID(requestID) {
		return fmt.Errorf("invalid request id %q", requestID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encode(result)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating results directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, requestID+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing result: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing result file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(requestID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("renaming result file: %w", err)
	}

	s.logger.Debug("stored result", "request_id", requestID, "bytes", len(data))
	return nil
}

// Fetch reads the stored result. Unknown or unsafe identifiers are ErrNotFound.
func (s *FileStore) Fetch(ctx context.Context, requestID string) ([]byte, error) {
	if !ValidID(requestID) {
		return nil, ErrNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(requestID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading result: %w", err)
	}
	return data, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
