package tracker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MemoryStorage keeps the visit flag for the lifetime of the process.
type MemoryStorage struct {
	mu      sync.Mutex
	visited bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) HasVisited() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visited, nil
}

func (s *MemoryStorage) MarkVisited() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visited = true
	return nil
}

// FileStorage persists the visit flag as a marker file. The file's
// existence is the flag.
type FileStorage struct {
	path string
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

func (s *FileStorage) HasVisited() (bool, error) {
	_, err := os.Stat(s.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat visit marker: %w", err)
}

func (s *FileStorage) MarkVisited() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create visit marker dir: %w", err)
	}
	stamp := []byte(time.Now().UTC().Format(time.RFC3339) + "\n")
	if err := os.WriteFile(s.path, stamp, 0o644); err != nil {
		return fmt.Errorf("write visit marker: %w", err)
	}
	return nil
}
