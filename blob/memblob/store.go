// Package memblob implements the blob store in process memory. It
// exists for tests and local development.
package memblob

import (
	"context"
	"io"
	"sync"

	"github.com/xrey167/molthub/blob"
)

type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

func (s *Store) Put(_ context.Context, id string, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[id] = data

	return nil
}

func (s *Store) Get(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[id]
	if !ok {
		return nil, blob.ErrNotFound
	}

	out := make([]byte, len(data))
	copy(out, data)

	return out, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, id)

	return nil
}

// Len reports how many objects are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.objects)
}

var _ blob.Store = (*Store)(nil)
