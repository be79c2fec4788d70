package repository

import (
	"context"
	"os"
	"path/filepath"
	"sync"
)

// BlobStore holds raw document bytes addressed by content hash, so the
// pipeline can re-read a document after registration.
type BlobStore interface {
	Put(ctx context.Context, hash string, raw []byte) error
	Get(ctx context.Context, hash string) ([]byte, error)
}

// FSBlobStore stores one file per hash under a root directory.
type FSBlobStore struct {
	root string
}

func NewFSBlobStore(root string) (*FSBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FSBlobStore{root: root}, nil
}

func (s *FSBlobStore) path(hash string) string {
	return filepath.Join(s.root, hash+".pdf")
}

func (s *FSBlobStore) Put(_ context.Context, hash string, raw []byte) error {
	return os.WriteFile(s.path(hash), raw, 0o644)
}

func (s *FSBlobStore) Get(_ context.Context, hash string) ([]byte, error) {
	raw, err := os.ReadFile(s.path(hash))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return raw, err
}

// MemoryBlobStore is the test double.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

func (s *MemoryBlobStore) Put(_ context.Context, hash string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(raw))
	copy(buf, raw)
	s.blobs[hash] = buf
	return nil
}

func (s *MemoryBlobStore) Get(_ context.Context, hash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.blobs[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return raw, nil
}
