package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireRejectsSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer l.Release()

	_, err = Acquire(path)
	if err == nil {
		t.Fatal("second acquire should fail while the lock is held")
	}
	if !errors.Is(err, ErrLockActive) {
		t.Errorf("expected ErrLockActive, got %v", err)
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	l.Release()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("lock file should be removed on release")
	}

	l2, err := Acquire(path)
	if err != nil {
		t.Fatalf("reacquire after release failed: %v", err)
	}
	l2.Release()
}

func TestStaleLockIsTakenOver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	if err := os.WriteFile(path, []byte("12345\n"), 0o644); err != nil {
		t.Fatalf("plant lock: %v", err)
	}
	old := time.Now().Add(-10 * time.Minute)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("age lock: %v", err)
	}

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("stale lock should be taken over: %v", err)
	}
	l.Release()
}
