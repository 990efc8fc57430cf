// Package pathcopy mirrors a directory tree into a destination folder.
// The walk is sequential and deterministic; individual file failures are
// recorded and skipped so one unreadable file never aborts the run.
package pathcopy

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/foldback/foldback/pkg/plog"
	"github.com/foldback/foldback/pkg/pool"
	"github.com/foldback/foldback/pkg/util"
)

// ProgressFunc is called after each file is fully copied, with the path of
// the file relative to the source root and its size in bytes. May be nil.
type ProgressFunc func(relPath string, bytes int64)

// Result holds the aggregate counts of a completed copy run.
type Result struct {
	FilesCopied int64
	DirsCreated int64
	BytesCopied int64
	Failed      int64
	// Errors lists the per-entry failures in walk order, one line each.
	Errors []string
}

// Copier copies directory trees. It is stateless and safe for reuse across
// runs; all per-run state lives in copyRun.
type Copier struct {
	bufferPool *pool.FixedBufferPool
}

// NewCopier creates a Copier with an internal buffer pool of the given size.
func NewCopier(bufferSizeKB int) *Copier {
	if bufferSizeKB <= 0 {
		bufferSizeKB = 256
	}
	return &Copier{
		bufferPool: pool.NewFixedBuffer(int64(bufferSizeKB) * 1024),
	}
}

// copyRun is the per-run state of a single Copy invocation.
type copyRun struct {
	ctx      context.Context
	srcRoot  string
	destRoot string
	bufPool  *pool.FixedBufferPool
	progress ProgressFunc
	result   Result
}

// Copy mirrors the tree rooted at srcRoot into destRoot. destRoot is created
// if needed; failure to create it is fatal. If srcRoot is a single regular
// file it is copied into destRoot under its base name.
func (c *Copier) Copy(ctx context.Context, srcRoot, destRoot string, progress ProgressFunc) (Result, error) {
	srcInfo, err := os.Lstat(srcRoot)
	if err != nil {
		return Result{}, fmt.Errorf("cannot access source %s: %w", srcRoot, err)
	}

	if err := os.MkdirAll(destRoot, util.UserWritableDirPerms); err != nil {
		return Result{}, fmt.Errorf("failed to create destination %s: %w", destRoot, err)
	}

	run := &copyRun{
		ctx:      ctx,
		srcRoot:  srcRoot,
		destRoot: destRoot,
		bufPool:  c.bufferPool,
		progress: progress,
	}

	if !srcInfo.IsDir() {
		if !srcInfo.Mode().IsRegular() {
			return Result{}, fmt.Errorf("source %s is neither a directory nor a regular file", srcRoot)
		}
		dest := filepath.Join(destRoot, filepath.Base(srcRoot))
		if err := run.copyFile(srcRoot, dest, srcInfo); err != nil {
			return run.result, err
		}
		run.result.FilesCopied++
		run.result.BytesCopied += srcInfo.Size()
		run.report(filepath.Base(srcRoot), srcInfo.Size())
		return run.result, nil
	}

	if err := run.walk(); err != nil {
		return run.result, err
	}
	return run.result, nil
}

func (r *copyRun) walk() error {
	return filepath.WalkDir(r.srcRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if err := r.ctx.Err(); err != nil {
			return err
		}

		relPath, relErr := filepath.Rel(r.srcRoot, path)
		if relErr != nil {
			relPath = path
		}

		if walkErr != nil {
			if path == r.srcRoot {
				return fmt.Errorf("cannot read source %s: %w", r.srcRoot, walkErr)
			}
			plog.Warn("Skipping unreadable entry", "path", path, "error", walkErr)
			r.fail(path, walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		destPath := filepath.Join(r.destRoot, relPath)

		if d.IsDir() {
			if path == r.srcRoot {
				return nil
			}
			info, err := d.Info()
			perm := util.UserWritableDirPerms
			if err == nil {
				perm = util.WithUserWritePermission(info.Mode().Perm())
			}
			if err := os.MkdirAll(destPath, perm); err != nil {
				plog.Warn("Failed to create directory, skipping subtree", "path", destPath, "error", err)
				r.fail(path, err)
				return fs.SkipDir
			}
			r.result.DirsCreated++
			return nil
		}

		if !d.Type().IsRegular() {
			plog.Debug("Skipping non-regular file", "path", path)
			return nil
		}

		info, err := d.Info()
		if err != nil {
			plog.Warn("Skipping file with unreadable metadata", "path", path, "error", err)
			r.fail(path, err)
			return nil
		}

		if err := r.copyFile(path, destPath, info); err != nil {
			plog.Warn("Failed to copy file, continuing", "path", path, "error", err)
			r.fail(path, err)
			return nil
		}

		r.result.FilesCopied++
		r.result.BytesCopied += info.Size()
		r.report(relPath, info.Size())
		return nil
	})
}

func (r *copyRun) fail(path string, err error) {
	r.result.Failed++
	r.result.Errors = append(r.result.Errors, fmt.Sprintf("%s: %v", path, err))
}

func (r *copyRun) report(relPath string, bytes int64) {
	if r.progress != nil {
		r.progress(relPath, bytes)
	}
}

// copyFile copies src to dest via a temporary file in the destination
// directory, then renames it into place. Permissions and the modification
// time of the source are preserved, with the owner write bit forced so a
// later run can overwrite the copy.
func (r *copyRun) copyFile(src, dest string, srcInfo fs.FileInfo) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer srcFile.Close()

	destDir := filepath.Dir(dest)
	tmpFile, err := os.CreateTemp(destDir, filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", destDir, err)
	}
	tmpName := tmpFile.Name()

	removeTemp := true
	defer func() {
		if removeTemp {
			tmpFile.Close()
			os.Remove(tmpName)
		}
	}()

	buf := r.bufPool.Get()
	_, err = io.CopyBuffer(tmpFile, srcFile, *buf)
	r.bufPool.Put(buf)
	if err != nil {
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := tmpFile.Chmod(util.WithUserWritePermission(srcInfo.Mode().Perm())); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	modTime := srcInfo.ModTime()
	if err := os.Chtimes(tmpName, modTime, modTime); err != nil {
		return fmt.Errorf("failed to set modification time: %w", err)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("failed to move temp file into place: %w", err)
	}
	removeTemp = false
	return nil
}
