package store

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"wormchat/internal/logging"
)

// watchDebounce batches the create+rename bursts produced by atomic writes.
const watchDebounce = 100 * time.Millisecond

// Watch reports keys whose value changed on disk since the snapshot, that is
// changes not made through this store. It blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file because atomic writes
// replace the inode.
func (s *FileStore) Watch(ctx context.Context, fn func(key string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logging.StoreDebug("watching state file", zap.String("path", s.path))

	base := filepath.Base(s.path)
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(watchDebounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryStore).Warn("state watcher error", zap.Error(err))

		case <-pending:
			pending = nil
			for _, key := range s.diffFromDisk() {
				fn(key)
			}
		}
	}
}

// diffFromDisk re-reads the file and returns keys that differ from the
// snapshot, then adopts the file as the new snapshot. Writes made through this
// store update the snapshot first, so they produce no diff.
func (s *FileStore) diffFromDisk() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	data, err := s.read()
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("state reload failed", zap.Error(err))
		return nil
	}

	var changed []string
	for k, v := range data {
		if old, ok := s.last[k]; !ok || old != v {
			changed = append(changed, k)
		}
	}
	for k := range s.last {
		if _, ok := data[k]; !ok {
			changed = append(changed, k)
		}
	}
	s.last = data

	if len(changed) > 0 {
		logging.StoreDebug("external state change", zap.Strings("keys", changed))
	}
	return changed
}
