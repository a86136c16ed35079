package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"wormchat/internal/logging"
)

// FileStore keeps state in a single JSON object on disk.
//
// Every operation re-reads the file so that changes made by another process
// (e.g. `wormchat logout` while the TUI is open) are observed. Writes go to a
// temp file in the same directory and are renamed into place.
type FileStore struct {
	mu   sync.Mutex
	path string
	// last is the file as this process knows it: the contents at open or at
	// the last Watch diff, plus the keys this process wrote since. Reads never
	// update it, so external changes stay visible to Watch.
	last   map[string]string
	closed bool
}

// NewFileStore opens (or prepares to create) the state file at path.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	s := &FileStore{path: path}
	data, err := s.read()
	if err != nil {
		return nil, err
	}
	s.last = data

	logging.StoreDebug("file store opened", zap.String("path", path), zap.Int("keys", len(data)))
	return s, nil
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}

	data, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := data[key]
	return v, ok, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	return s.update(func(data map[string]string) bool {
		if cur, ok := data[key]; ok && cur == value {
			return false
		}
		data[key] = value
		return true
	})
}

func (s *FileStore) Remove(_ context.Context, key string) error {
	return s.update(func(data map[string]string) bool {
		if _, ok := data[key]; !ok {
			return false
		}
		delete(data, key)
		return true
	})
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// update applies fn to the current contents and writes them back if fn
// reports a change. Only the keys fn changed are merged into the snapshot.
func (s *FileStore) update(fn func(map[string]string) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	data, err := s.read()
	if err != nil {
		return err
	}
	before := maps.Clone(data)
	if !fn(data) {
		return nil
	}
	if err := s.write(data); err != nil {
		return err
	}

	for k, v := range data {
		if old, ok := before[k]; !ok || old != v {
			s.last[k] = v
		}
	}
	for k := range before {
		if _, ok := data[k]; !ok {
			delete(s.last, k)
		}
	}
	return nil
}

// read loads the file. A missing or empty file is an empty map.
func (s *FileStore) read() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	data := map[string]string{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		// A corrupt state file is treated as empty; the next write replaces it.
		logging.Get(logging.CategoryStore).Warn("state file unreadable, treating as empty",
			zap.String("path", s.path), zap.Error(err))
		return map[string]string{}, nil
	}
	return data, nil
}

func (s *FileStore) write(data map[string]string) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set state permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	logging.StoreDebug("state written", zap.String("path", s.path), zap.Int("keys", len(data)))
	return nil
}
