// Package store persists WormChat's small client state: the signed-in email,
// the conversation id and the last-activity stamp.
//
// Every backend implements KV, a string-to-string map with get, set and
// remove. The default file backend also implements Watcher so a running TUI
// notices when another process signs the user out.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"wormchat/internal/config"
	"wormchat/internal/logging"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// KV is a persistent string key-value store.
type KV interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	Close() error
}

// Watcher is implemented by stores that can report changes made by other
// processes. fn receives the changed key; it is called from the watch goroutine.
type Watcher interface {
	Watch(ctx context.Context, fn func(key string)) error
}

// Open returns the backend selected by cfg. Relative paths resolve against home.
func Open(ctx context.Context, cfg config.StorageConfig, home string) (KV, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.Store("opening store", zap.String("backend", cfg.Backend))

	switch cfg.Backend {
	case config.StorageMemory:
		return NewMemoryStore(), nil
	case config.StorageSQLite:
		return NewSQLiteStore(cfg.ResolvePath(home))
	case config.StorageRedis:
		return NewRedisStore(ctx, cfg.RedisURL, cfg.RedisPrefix)
	case config.StorageFile, "":
		return NewFileStore(cfg.ResolvePath(home))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
