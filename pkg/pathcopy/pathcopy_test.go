package pathcopy

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCopyRoundTrip(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "out")

	files := map[string]string{
		"a.txt":            "hello",
		"sub/b.txt":        "world",
		"sub/deep/c.bin":   "binary-ish content",
		"sub/deep/d.empty": "",
	}
	for rel, content := range files {
		writeFile(t, filepath.Join(src, rel), content)
	}

	res, err := NewCopier(64).Copy(context.Background(), src, dest, nil)
	if err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	if res.FilesCopied != 4 {
		t.Errorf("expected 4 files copied, got %d", res.FilesCopied)
	}
	if res.Failed != 0 {
		t.Errorf("expected no failures, got %d", res.Failed)
	}

	for rel, content := range files {
		got, err := os.ReadFile(filepath.Join(dest, rel))
		if err != nil {
			t.Fatalf("missing copy of %s: %v", rel, err)
		}
		if !bytes.Equal(got, []byte(content)) {
			t.Errorf("content mismatch for %s: got %q want %q", rel, got, content)
		}
	}
}

func TestCopyPreservesModTime(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "out")

	file := filepath.Join(src, "a.txt")
	writeFile(t, file, "data")
	modTime := time.Date(2020, 6, 15, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(file, modTime, modTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if _, err := NewCopier(64).Copy(context.Background(), src, dest, nil); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(dest, "a.txt"))
	if err != nil {
		t.Fatalf("stat copy: %v", err)
	}
	if !info.ModTime().Equal(modTime) {
		t.Errorf("mod time not preserved: got %v want %v", info.ModTime(), modTime)
	}
}

func TestCopyReportsProgress(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "out")
	writeFile(t, filepath.Join(src, "a.txt"), "12345")
	writeFile(t, filepath.Join(src, "sub", "b.txt"), "678")

	var calls int
	var total int64
	res, err := NewCopier(64).Copy(context.Background(), src, dest, func(relPath string, n int64) {
		calls++
		total += n
		if filepath.IsAbs(relPath) {
			t.Errorf("progress path should be relative, got %q", relPath)
		}
	})
	if err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 progress calls, got %d", calls)
	}
	if total != res.BytesCopied {
		t.Errorf("progress bytes %d != result bytes %d", total, res.BytesCopied)
	}
}

func TestCopySingleFileSource(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "out")
	file := filepath.Join(src, "only.txt")
	writeFile(t, file, "solo")

	res, err := NewCopier(64).Copy(context.Background(), file, dest, nil)
	if err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	if res.FilesCopied != 1 {
		t.Errorf("expected 1 file copied, got %d", res.FilesCopied)
	}
	got, err := os.ReadFile(filepath.Join(dest, "only.txt"))
	if err != nil || string(got) != "solo" {
		t.Errorf("copied file wrong: %q, %v", got, err)
	}
}

func TestCopyIsolatesFailingFile(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "out")
	writeFile(t, filepath.Join(src, "a.txt"), "doomed")
	writeFile(t, filepath.Join(src, "b.txt"), "fine")

	// Occupy a.txt's mirrored path with a directory so the final rename
	// cannot land there.
	if err := os.MkdirAll(filepath.Join(dest, "a.txt"), 0o755); err != nil {
		t.Fatalf("plant blocking directory: %v", err)
	}

	res, err := NewCopier(64).Copy(context.Background(), src, dest, nil)
	if err != nil {
		t.Fatalf("a single file's failure must not abort the run: %v", err)
	}
	if res.Failed != 1 || res.FilesCopied != 1 {
		t.Fatalf("expected 1 failed and 1 copied, got %+v", res)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "a.txt") {
		t.Errorf("error list should name the failing source file: %v", res.Errors)
	}

	got, err := os.ReadFile(filepath.Join(dest, "b.txt"))
	if err != nil || string(got) != "fine" {
		t.Errorf("healthy file should still be copied: %q, %v", got, err)
	}

	entries, err := os.ReadDir(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("failed copy left a temp file behind: %s", e.Name())
		}
	}
}

func TestCopyMissingSourceFails(t *testing.T) {
	_, err := NewCopier(64).Copy(context.Background(),
		filepath.Join(t.TempDir(), "nope"), filepath.Join(t.TempDir(), "out"), nil)
	if err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestCopyNoPartialFilesOnCancel(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "out")
	writeFile(t, filepath.Join(src, "a.txt"), "data")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewCopier(64).Copy(ctx, src, dest, nil); err == nil {
		t.Fatal("expected error from cancelled context")
	}

	entries, err := os.ReadDir(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	for _, e := range entries {
		t.Errorf("unexpected leftover entry in destination: %s", e.Name())
	}
}
