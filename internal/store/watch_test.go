package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestFileStore_WatchReportsExternalChanges(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "state.json")
	tui, err := NewFileStore(path)
	require.NoError(t, err)
	other, err := NewFileStore(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- tui.Watch(ctx, func(key string) {
			select {
			case changed <- key:
			default:
			}
		})
	}()

	// Keep writing until the watcher is armed and reports the change.
	i := 0
	assert.Eventually(t, func() bool {
		i++
		if err := other.Set(context.Background(), "wormchat_email", fmt.Sprintf("user%d@example.com", i)); err != nil {
			return false
		}
		select {
		case key := <-changed:
			return key == "wormchat_email"
		case <-time.After(300 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestFileStore_WatchIgnoresOwnWrites(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "state.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func(key string) {
			select {
			case changed <- key:
			default:
			}
		})
	}()

	require.NoError(t, s.Set(context.Background(), "wormchat_email", "ada@example.com"))

	select {
	case key := <-changed:
		t.Fatalf("unexpected change notification for own write: %s", key)
	case <-time.After(3 * watchDebounce):
	}

	cancel()
	require.NoError(t, <-done)
}

func TestFileStore_DiffFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	other, err := NewFileStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "wormchat_email", "ada@example.com"))
	require.NoError(t, s.Set(ctx, "wormchat_conversation_id", "c1"))

	require.NoError(t, other.Remove(ctx, "wormchat_email"))
	require.NoError(t, other.Set(ctx, "wormchat_conversation_id", "c2"))

	assert.ElementsMatch(t, []string{"wormchat_email", "wormchat_conversation_id"}, s.diffFromDisk())
	assert.Empty(t, s.diffFromDisk(), "snapshot is refreshed after a diff")
}

func TestFileStore_DiffSurvivesLocalWriteAfterExternalChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	other, err := NewFileStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "wormchat_email", "ada@example.com"))
	require.NoError(t, s.Set(ctx, "wormchat_conversation_id", "c1"))

	// Another process logs out, then this process writes and reads before
	// the watcher catches up.
	require.NoError(t, other.Remove(ctx, "wormchat_email"))
	require.NoError(t, other.Remove(ctx, "wormchat_conversation_id"))
	require.NoError(t, s.Set(ctx, "wormchat_last_active", "2025-03-01T12:00:00Z"))
	_, _, err = s.Get(ctx, "wormchat_email")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"wormchat_email", "wormchat_conversation_id"}, s.diffFromDisk())
}

func TestFileStore_WatchSeesExternalRemovalDespiteLocalWrite(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "state.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	other, err := NewFileStore(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Set(ctx, "wormchat_email", "ada@example.com"))

	changed := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func(key string) {
			select {
			case changed <- key:
			default:
			}
		})
	}()

	// Repeat until the watcher is armed: each round restores the email
	// externally, removes it externally, then writes locally inside the
	// debounce window.
	assert.Eventually(t, func() bool {
		if err := other.Set(context.Background(), "wormchat_email", "ada@example.com"); err != nil {
			return false
		}
		if err := other.Remove(context.Background(), "wormchat_email"); err != nil {
			return false
		}
		if err := s.Set(context.Background(), "wormchat_last_active", time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			return false
		}
		select {
		case key := <-changed:
			return key == "wormchat_email"
		case <-time.After(300 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
