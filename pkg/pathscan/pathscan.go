// Package pathscan walks a directory tree up front to establish the size of
// the work ahead. The result feeds progress reporting during copy and
// archive runs.
package pathscan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/foldback/foldback/pkg/plog"
)

// Result holds the aggregate counts of a completed probe.
type Result struct {
	Files      int64
	Dirs       int64
	TotalBytes int64
	Skipped    int64
}

// Probe walks the tree rooted at root and sums up regular file sizes.
// Unreadable entries are skipped and counted, never fatal; only a missing or
// unreadable root fails the probe. Symlinks are neither followed nor
// counted.
func Probe(ctx context.Context, root string) (Result, error) {
	var res Result

	info, err := os.Lstat(root)
	if err != nil {
		return Result{}, fmt.Errorf("cannot access source %s: %w", root, err)
	}
	if !info.IsDir() {
		if info.Mode().IsRegular() {
			res.Files = 1
			res.TotalBytes = info.Size()
		}
		return res, nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			if path == root {
				return fmt.Errorf("cannot read source %s: %w", root, walkErr)
			}
			plog.Warn("Skipping unreadable entry during scan", "path", path, "error", walkErr)
			res.Skipped++
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			res.Dirs++
			return nil
		}

		if !d.Type().IsRegular() {
			// Symlinks and special files are not transferred, so they do
			// not count toward the work total.
			return nil
		}

		fileInfo, err := d.Info()
		if err != nil {
			plog.Warn("Skipping entry with unreadable metadata", "path", path, "error", err)
			res.Skipped++
			return nil
		}

		res.Files++
		res.TotalBytes += fileInfo.Size()
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	plog.Debug("Source scan complete",
		"path", root,
		"files", res.Files,
		"dirs", res.Dirs,
		"bytes", res.TotalBytes,
		"skipped", res.Skipped)
	return res, nil
}
