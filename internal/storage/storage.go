// Package storage provides file-based JSON storage with atomic writes.
//
// Values are addressed by a path slice, e.g. ["book", "3"] maps to
// <base>/book/3.json. Scans walk a directory in lexical key order, so
// callers that need append order encode a sortable sequence in the key.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("not found")

// Storage provides file-based JSON storage rooted at a base directory.
type Storage struct {
	basePath string
	mu       sync.Mutex
	locks    map[string]*FileLock
}

// New creates a new Storage instance.
func New(basePath string) *Storage {
	return &Storage{
		basePath: basePath,
		locks:    make(map[string]*FileLock),
	}
}

func (s *Storage) pathToFile(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...) + ".json"
}

func (s *Storage) pathToDir(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...)
}

// Get retrieves a value from storage.
func (s *Storage) Get(ctx context.Context, path []string, v any) error {
	data, err := os.ReadFile(s.pathToFile(path))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal: %w", err)
	}

	return nil
}

// Put stores a value, writing to a temp file and renaming for atomicity.
func (s *Storage) Put(ctx context.Context, path []string, v any) error {
	filePath := s.pathToFile(path)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	lock := s.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// Delete removes a value from storage. Deleting a missing key is a no-op.
func (s *Storage) Delete(ctx context.Context, path []string) error {
	filePath := s.pathToFile(path)

	lock := s.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// List returns the keys (files and subdirectories) at a path, sorted.
func (s *Storage) List(ctx context.Context, path []string) ([]string, error) {
	entries, err := os.ReadDir(s.pathToDir(path))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			keys = append(keys, name)
		} else if strings.HasSuffix(name, ".json") {
			keys = append(keys, strings.TrimSuffix(name, ".json"))
		}
	}

	return keys, nil
}

// Scan iterates over all values at a path in lexical key order.
func (s *Storage) Scan(ctx context.Context, path []string, fn func(key string, data json.RawMessage) error) error {
	dirPath := s.pathToDir(path)

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dirPath, name))
		if err != nil {
			continue
		}

		key := strings.TrimSuffix(name, ".json")
		if err := fn(key, json.RawMessage(data)); err != nil {
			return err
		}
	}

	return nil
}

// Exists checks if a key exists.
func (s *Storage) Exists(ctx context.Context, path []string) bool {
	_, err := os.Stat(s.pathToFile(path))
	return err == nil
}

func (s *Storage) getLock(filePath string) *FileLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[filePath]
	if !ok {
		lock = NewFileLock(filePath)
		s.locks[filePath] = lock
	}

	return lock
}
