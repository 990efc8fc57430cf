// Package patharchive streams a directory tree into a single compressed
// container file. Supported containers are zip (deflate), tar.gz and
// tar.zst. Entries are named relative to the parent of the source folder so
// extraction reproduces the folder itself.
package patharchive

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/foldback/foldback/pkg/plog"
	"github.com/foldback/foldback/pkg/pool"
	"github.com/foldback/foldback/pkg/util"
)

// ProgressFunc is called after each file entry is written, with the path of
// the file relative to the source root and its uncompressed size. May be nil.
type ProgressFunc func(relPath string, bytes int64)

// Result holds the aggregate counts of a completed archive run.
type Result struct {
	FilesArchived int64
	Failed        int64
	BytesRead     int64
	// ArchiveBytes is the final size of the archive file on disk.
	ArchiveBytes int64
	// Errors lists the per-entry failures in walk order, one line each.
	Errors []string
}

// entryWriter abstracts the container format. Implementations are not safe
// for concurrent use; the archive walk is sequential.
type entryWriter interface {
	WriteDir(name string, info fs.FileInfo) error
	WriteFile(name string, info fs.FileInfo, src *os.File, buf []byte) error
	Close() error
}

// Archiver writes directory trees into archive files. It is stateless and
// safe for reuse across runs; all per-run state lives in archiveRun.
type Archiver struct {
	format     Format
	level      Level
	bufferPool *pool.FixedBufferPool
}

// NewArchiver creates an Archiver for the given format and compression
// level, with an internal buffer pool of the given size.
func NewArchiver(format Format, level Level, bufferSizeKB int) *Archiver {
	if bufferSizeKB <= 0 {
		bufferSizeKB = 256
	}
	return &Archiver{
		format:     format,
		level:      level,
		bufferPool: pool.NewFixedBuffer(int64(bufferSizeKB) * 1024),
	}
}

// Format returns the container format this Archiver writes.
func (a *Archiver) Format() Format {
	return a.format
}

// archiveRun is the per-run state of a single Archive invocation.
type archiveRun struct {
	ctx      context.Context
	srcRoot  string
	baseDir  string
	writer   entryWriter
	bufPool  *pool.FixedBufferPool
	progress ProgressFunc
	result   Result
}

// Archive writes the tree rooted at srcRoot into an archive file at
// destFile. The archive is assembled in a temporary file next to destFile
// and renamed into place on success, so a crashed run never leaves a
// half-written archive under the final name. Unreadable entries are skipped
// and counted; only a failure of the container itself is fatal.
func (a *Archiver) Archive(ctx context.Context, srcRoot, destFile string, progress ProgressFunc) (Result, error) {
	if _, err := os.Lstat(srcRoot); err != nil {
		return Result{}, fmt.Errorf("cannot access source %s: %w", srcRoot, err)
	}

	destDir := filepath.Dir(destFile)
	if err := os.MkdirAll(destDir, util.UserWritableDirPerms); err != nil {
		return Result{}, fmt.Errorf("failed to create archive directory %s: %w", destDir, err)
	}

	tmpFile, err := os.CreateTemp(destDir, filepath.Base(destFile)+".tmp-*")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create temp archive in %s: %w", destDir, err)
	}
	tmpName := tmpFile.Name()

	removeTemp := true
	defer func() {
		if removeTemp {
			tmpFile.Close()
			os.Remove(tmpName)
		}
	}()

	writer, err := a.newEntryWriter(tmpFile)
	if err != nil {
		return Result{}, err
	}

	run := &archiveRun{
		ctx:      ctx,
		srcRoot:  srcRoot,
		baseDir:  filepath.Dir(srcRoot),
		writer:   writer,
		bufPool:  a.bufferPool,
		progress: progress,
	}

	if err := run.walk(); err != nil {
		writer.Close()
		return run.result, err
	}

	if err := writer.Close(); err != nil {
		return run.result, fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return run.result, fmt.Errorf("failed to close archive file: %w", err)
	}
	if err := os.Chmod(tmpName, util.UserWritableFilePerms); err != nil {
		return run.result, fmt.Errorf("failed to set archive permissions: %w", err)
	}
	if err := os.Rename(tmpName, destFile); err != nil {
		return run.result, fmt.Errorf("failed to move archive into place: %w", err)
	}
	removeTemp = false

	if info, err := os.Stat(destFile); err == nil {
		run.result.ArchiveBytes = info.Size()
	}

	plog.Debug("Archive written",
		"path", destFile,
		"files", run.result.FilesArchived,
		"failed", run.result.Failed,
		"size", util.FormatBytes(run.result.ArchiveBytes))
	return run.result, nil
}

func (a *Archiver) newEntryWriter(dst *os.File) (entryWriter, error) {
	switch a.format {
	case Zip:
		return newZipEntryWriter(dst, a.level), nil
	case TarGz:
		return newTarGzEntryWriter(dst, a.level)
	case TarZst:
		return newTarZstEntryWriter(dst, a.level)
	}
	return nil, fmt.Errorf("invalid archive format: %q", string(a.format))
}

func (r *archiveRun) fail(path string, err error) {
	r.result.Failed++
	r.result.Errors = append(r.result.Errors, fmt.Sprintf("%s: %v", path, err))
}

func (r *archiveRun) walk() error {
	return filepath.WalkDir(r.srcRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if err := r.ctx.Err(); err != nil {
			return err
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

		// Entries are named below the parent of the source so the archive
		// unpacks into a folder carrying the source's name.
		entryName, err := filepath.Rel(r.baseDir, path)
		if err != nil {
			plog.Warn("Skipping entry with unresolvable name", "path", path, "error", err)
			r.fail(path, err)
			return nil
		}
		entryName = util.NormalizePath(entryName)

		info, err := d.Info()
		if err != nil {
			plog.Warn("Skipping entry with unreadable metadata", "path", path, "error", err)
			r.fail(path, err)
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if err := r.writer.WriteDir(entryName+"/", info); err != nil {
				return fmt.Errorf("failed to add directory entry %s: %w", entryName, err)
			}
			return nil
		}

		if !d.Type().IsRegular() {
			plog.Debug("Skipping non-regular file", "path", path)
			return nil
		}

		if err := r.addFile(path, entryName, info); err != nil {
			plog.Warn("Failed to archive file, continuing", "path", path, "error", err)
			r.fail(path, err)
			return nil
		}

		r.result.FilesArchived++
		r.result.BytesRead += info.Size()
		if r.progress != nil {
			relPath, relErr := filepath.Rel(r.srcRoot, path)
			if relErr != nil {
				relPath = filepath.Base(path)
			}
			r.progress(relPath, info.Size())
		}
		return nil
	})
}

func (r *archiveRun) addFile(path, entryName string, info fs.FileInfo) error {
	srcFile, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer srcFile.Close()

	buf := r.bufPool.Get()
	defer r.bufPool.Put(buf)

	return r.writer.WriteFile(entryName, info, srcFile, *buf)
}
