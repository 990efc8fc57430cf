package patharchive

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/pgzip"
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

func buildSource(t *testing.T) (string, map[string]string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "photos")
	files := map[string]string{
		"a.txt":          "hello",
		"sub/b.txt":      "world world world",
		"sub/deep/c.txt": "",
	}
	for rel, content := range files {
		writeFile(t, filepath.Join(root, rel), content)
	}
	return root, files
}

func TestArchiveZipRoundTrip(t *testing.T) {
	src, files := buildSource(t)
	dest := filepath.Join(t.TempDir(), "photos_20250101_120000.zip")

	res, err := NewArchiver(Zip, Default, 64).Archive(context.Background(), src, dest, nil)
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if res.FilesArchived != 3 || res.Failed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.ArchiveBytes <= 0 {
		t.Errorf("expected positive archive size, got %d", res.ArchiveBytes)
	}

	reader, err := zip.OpenReader(dest)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer reader.Close()

	got := map[string]string{}
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read entry %s: %v", f.Name, err)
		}
		got[f.Name] = string(data)
	}

	for rel, content := range files {
		// Entries carry the source folder name as their top level.
		name := "photos/" + filepath.ToSlash(rel)
		if got[name] != content {
			t.Errorf("entry %s: got %q want %q", name, got[name], content)
		}
	}
}

func TestArchiveTarGzRoundTrip(t *testing.T) {
	src, files := buildSource(t)
	dest := filepath.Join(t.TempDir(), "photos.tar.gz")

	res, err := NewArchiver(TarGz, Fastest, 64).Archive(context.Background(), src, dest, nil)
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if res.FilesArchived != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}

	f, err := os.Open(dest)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	tr := tar.NewReader(gz)

	got := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar next: %v", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			t.Fatalf("read entry %s: %v", hdr.Name, err)
		}
		got[hdr.Name] = buf.String()
	}

	for rel, content := range files {
		name := "photos/" + filepath.ToSlash(rel)
		if got[name] != content {
			t.Errorf("entry %s: got %q want %q", name, got[name], content)
		}
	}
}

func TestArchiveReportsProgress(t *testing.T) {
	src, _ := buildSource(t)
	dest := filepath.Join(t.TempDir(), "photos.zip")

	var names []string
	res, err := NewArchiver(Zip, Default, 64).Archive(context.Background(), src, dest,
		func(relPath string, bytes int64) {
			names = append(names, relPath)
		})
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if int64(len(names)) != res.FilesArchived {
		t.Errorf("expected %d progress calls, got %d", res.FilesArchived, len(names))
	}
	for _, n := range names {
		if strings.HasPrefix(n, "photos") || filepath.IsAbs(n) {
			t.Errorf("progress path should be relative to the source root, got %q", n)
		}
	}
}

func TestArchiveIsolatesUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses permission checks")
	}
	src, files := buildSource(t)
	locked := filepath.Join(src, "locked.txt")
	writeFile(t, locked, "secret")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o644) })

	dest := filepath.Join(t.TempDir(), "photos.zip")
	res, err := NewArchiver(Zip, Default, 64).Archive(context.Background(), src, dest, nil)
	if err != nil {
		t.Fatalf("a single entry's failure must not abort the run: %v", err)
	}
	if res.Failed != 1 || res.FilesArchived != int64(len(files)) {
		t.Fatalf("expected 1 failed and %d archived, got %+v", len(files), res)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "locked.txt") {
		t.Errorf("error list should name the failing file: %v", res.Errors)
	}

	// The degraded archive is still finalized and holds the healthy files.
	reader, err := zip.OpenReader(dest)
	if err != nil {
		t.Fatalf("degraded archive must remain readable: %v", err)
	}
	defer reader.Close()
	var regular int
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if f.Name == "photos/locked.txt" {
			t.Errorf("failed entry should not appear in the archive")
		}
		regular++
	}
	if regular != len(files) {
		t.Errorf("expected %d entries, got %d", len(files), regular)
	}
}

func TestArchiveMissingSourceFails(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.zip")
	_, err := NewArchiver(Zip, Default, 64).Archive(context.Background(),
		filepath.Join(t.TempDir(), "nope"), dest, nil)
	if err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("no archive file should exist after a failed run")
	}
}

func TestArchiveLeavesNoTempOnCancel(t *testing.T) {
	src, _ := buildSource(t)
	destDir := t.TempDir()
	dest := filepath.Join(destDir, "photos.zip")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewArchiver(Zip, Default, 64).Archive(ctx, src, dest, nil); err == nil {
		t.Fatal("expected error from cancelled context")
	}

	entries, err := os.ReadDir(destDir)
	if err != nil {
		t.Fatalf("read dest dir: %v", err)
	}
	for _, e := range entries {
		t.Errorf("unexpected leftover file: %s", e.Name())
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"zip", "TAR.GZ", " tar.zst "} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseFormat("rar"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestFormatExtension(t *testing.T) {
	cases := map[Format]string{Zip: ".zip", TarGz: ".tar.gz", TarZst: ".tar.zst"}
	for f, want := range cases {
		if got := f.Extension(); got != want {
			t.Errorf("%s extension: got %q want %q", f, got, want)
		}
		if back, ok := FormatFromExtension(want); !ok || back != f {
			t.Errorf("FormatFromExtension(%q) = %v, %v", want, back, ok)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"fastest", "Default", "BEST"} {
		if _, err := ParseLevel(s); err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseLevel("ultra"); err == nil {
		t.Error("expected error for unsupported level")
	}
}
