// Package storage stores segment files by name.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned when a named segment does not exist.
var ErrNotFound = errors.New("segment not found")

// Store is the persistence abstraction for segment files.
// Names are flat; implementations reject names containing path separators.
type Store interface {
	// Create opens name for writing, truncating any previous content.
	Create(name string) (io.WriteCloser, error)

	// Open opens name for reading.
	Open(name string) (io.ReadSeekCloser, error)

	// Remove deletes name. Removing a missing segment is not an error.
	Remove(name string) error
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid segment name %q", name)
	}
	return nil
}

// DirStore implements Store on a local directory.
type DirStore struct {
	dir string
}

// NewDirStore returns a store rooted at dir, creating it if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create segment directory: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

// Path returns the filesystem path for name.
func (s *DirStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Create implements Store.Create.
func (s *DirStore) Create(name string) (io.WriteCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	return os.OpenFile(s.Path(name), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
}

// Open implements Store.Open.
func (s *DirStore) Open(name string) (io.ReadSeekCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Remove implements Store.Remove.
func (s *DirStore) Remove(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete segment: %w", err)
	}
	return nil
}

// MemStore is an in-memory implementation of Store.
type MemStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemStore returns a new empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{files: make(map[string][]byte)}
}

type memWriter struct {
	bytes.Buffer
	store  *MemStore
	name   string
	closed bool
}

func (w *memWriter) Close() error {
	if w.closed {
		return errors.New("already closed")
	}
	w.closed = true
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	w.store.files[w.name] = w.Bytes()
	return nil
}

type memReader struct {
	*bytes.Reader
}

func (memReader) Close() error { return nil }

// Create implements Store.Create. Content becomes visible on Close.
func (s *MemStore) Create(name string) (io.WriteCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	return &memWriter{store: s, name: name}, nil
}

// Open implements Store.Open.
func (s *MemStore) Open(name string) (io.ReadSeekCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.files[name]
	if !ok {
		return nil, ErrNotFound
	}
	return memReader{bytes.NewReader(b)}, nil
}

// Remove implements Store.Remove.
func (s *MemStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, name)
	return nil
}

// Bytes returns the stored content of name.
func (s *MemStore) Bytes(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.files[name]
	return b, ok
}
