// Package fsblob implements the blob store on a local directory.
package fsblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xrey167/molthub/blob"
)

// Store keeps each object in a file under baseDir, sharded by the first
// two characters of the id to keep directories small.
type Store struct {
	baseDir string
}

// New creates a filesystem-backed blob store rooted at baseDir.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Store{baseDir: baseDir}, nil
}

func (s *Store) objectPath(id string) string {
	shard := "00"
	if len(id) >= 2 {
		shard = id[:2]
	}

	return filepath.Join(s.baseDir, shard, id)
}

func (s *Store) Put(_ context.Context, id string, content io.Reader) error {
	path := s.objectPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create shard directory: %w", err)
	}

	// Write to a temp file first so readers never observe a partial
	// object under the final name.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to close temp file: %w", err)
	}

	return os.Rename(tmpName, path)
}

func (s *Store) Get(_ context.Context, id string) ([]byte, error) {
	content, err := os.ReadFile(s.objectPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, blob.ErrNotFound
		}

		return nil, fmt.Errorf("failed to read object: %w", err)
	}

	return content, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	err := os.Remove(s.objectPath(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

var _ blob.Store = (*Store)(nil)
