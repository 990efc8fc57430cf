// Package lockfile enforces at most one running backup per destination. The
// engine's per-run counters and destination naming assume single flight, so
// overlapping triggers (manual run plus scheduler) must be rejected before
// they reach the engine.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/foldback/foldback/pkg/plog"
	"github.com/foldback/foldback/pkg/util"
)

const (
	heartbeatInterval = 30 * time.Second

	// A lock whose heartbeat is older than this belongs to a dead process
	// and may be taken over.
	staleAfter = 2 * time.Minute
)

// ErrLockActive reports a live lock held by another process.
var ErrLockActive = errors.New("another backup is already running")

// Lock is a held lock file. Release must be called exactly once.
type Lock struct {
	path string
	stop chan struct{}
	done chan struct{}
}

// Acquire takes the lock at path, creating it exclusively. A lock left
// behind by a crashed process is detected by its stale heartbeat and taken
// over. While held, the lock's modification time is refreshed periodically.
func Acquire(path string) (*Lock, error) {
	if err := tryCreate(path); err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file %s: %w", path, err)
		}

		info, statErr := os.Stat(path)
		if statErr == nil && time.Since(info.ModTime()) < staleAfter {
			return nil, fmt.Errorf("%w (lock %s, last heartbeat %s)",
				ErrLockActive, path, info.ModTime().Format(time.RFC3339))
		}

		plog.Warn("Taking over stale lock file", "path", path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock file %s: %w", path, err)
		}
		if err := tryCreate(path); err != nil {
			return nil, fmt.Errorf("failed to re-create lock file %s: %w", path, err)
		}
	}

	l := &Lock{
		path: path,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.heartbeat()
	return l, nil
}

func tryCreate(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return err
	}
	fmt.Fprintln(f, strconv.Itoa(os.Getpid()))
	return f.Close()
}

func (l *Lock) heartbeat() {
	defer close(l.done)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			now := time.Now()
			if err := os.Chtimes(l.path, now, now); err != nil {
				plog.Warn("Failed to refresh lock heartbeat", "path", l.path, "error", err)
			}
		}
	}
}

// Release stops the heartbeat and removes the lock file.
func (l *Lock) Release() {
	close(l.stop)
	<-l.done
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
	}
}
