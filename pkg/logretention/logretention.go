// Package logretention prunes the daily log directory. Plain logs and
// compressed logs past the retention age are deleted; optionally, plain
// logs older than a week are compressed in place to an individual zip so
// long retention windows stay cheap on disk.
package logretention

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"

	"github.com/foldback/foldback/pkg/plog"
	"github.com/foldback/foldback/pkg/util"
)

const (
	logPattern     = "backup_*.log"
	archivePattern = "backup_*.zip"

	// Plain logs older than this are compressed when the policy is on,
	// regardless of the retention window.
	compressAfter = 7 * 24 * time.Hour
)

// Result holds the counts of one completed sweep.
type Result struct {
	DeletedLogs     int64
	DeletedArchives int64
	DeletedBytes    int64
	Compressed      int64
}

// LogFile describes one entry of the log directory for status reporting.
type LogFile struct {
	Name       string
	Path       string
	Size       int64
	Modified   time.Time
	Compressed bool
}

// Sweeper prunes log directories. It is stateless and safe for reuse.
type Sweeper struct {
	workers int
	now     func() time.Time
}

// NewSweeper creates a Sweeper that deletes with up to workers concurrent
// removals.
func NewSweeper(workers int) *Sweeper {
	if workers < 1 {
		workers = 1
	}
	return &Sweeper{workers: workers, now: time.Now}
}

// candidate is one file selected for deletion during a sweep.
type candidate struct {
	path    string
	size    int64
	archive bool
}

// Sweep deletes log-family files whose modification time is strictly older
// than retentionDays before now. A file aged exactly retentionDays is kept.
// Individual failures are logged and skipped; Sweep itself never fails.
func (s *Sweeper) Sweep(ctx context.Context, logDir string, retentionDays int, compress bool) Result {
	cutoff := s.now().AddDate(0, 0, -retentionDays)

	var doomed []candidate
	var compressible []string

	for _, path := range globSorted(logDir, logPattern) {
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		switch {
		case info.ModTime().Before(cutoff):
			doomed = append(doomed, candidate{path: path, size: info.Size()})
		case compress && s.now().Sub(info.ModTime()) > compressAfter:
			compressible = append(compressible, path)
		}
	}
	for _, path := range globSorted(logDir, archivePattern) {
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if info.ModTime().Before(cutoff) {
			doomed = append(doomed, candidate{path: path, size: info.Size(), archive: true})
		}
	}

	var res Result
	s.deleteAll(ctx, doomed, &res)

	for _, path := range compressible {
		if ctx.Err() != nil {
			break
		}
		if err := compressLog(path); err != nil {
			plog.Warn("Failed to compress old log, skipping", "path", path, "error", err)
			continue
		}
		res.Compressed++
	}

	if res.DeletedLogs+res.DeletedArchives+res.Compressed > 0 {
		plog.Notice("Log retention sweep finished",
			"deleted_logs", res.DeletedLogs,
			"deleted_archives", res.DeletedArchives,
			"freed", util.FormatBytes(res.DeletedBytes),
			"compressed", res.Compressed)
	}
	return res
}

// deleteAll removes the candidates with a bounded worker group. Failures
// are logged and skipped, so the group never carries an error.
func (s *Sweeper) deleteAll(ctx context.Context, doomed []candidate, res *Result) {
	var logs, archives, bytes atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, c := range doomed {
		c := c
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := os.Remove(c.path); err != nil {
				plog.Warn("Failed to delete expired log file, skipping", "path", c.path, "error", err)
				return nil
			}
			plog.Debug("Deleted expired log file", "path", c.path)
			if c.archive {
				archives.Add(1)
			} else {
				logs.Add(1)
			}
			bytes.Add(c.size)
			return nil
		})
	}
	g.Wait()

	res.DeletedLogs += logs.Load()
	res.DeletedArchives += archives.Load()
	res.DeletedBytes += bytes.Load()
}

// compressLog zips a single log file next to itself and removes the
// original. The zip inherits the log's modification time so retention age
// carries over.
func compressLog(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	zipPath := path + ".zip"
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(zipPath)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	removeTemp := true
	defer func() {
		if removeTemp {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	zw := zip.NewWriter(tmp)
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)
	hdr.Method = zip.Deflate
	entry, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if _, err := io.Copy(entry, src); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chtimes(tmpName, info.ModTime(), info.ModTime()); err != nil {
		return err
	}
	if err := os.Rename(tmpName, zipPath); err != nil {
		return err
	}
	removeTemp = false

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("compressed but failed to remove original: %w", err)
	}
	plog.Debug("Compressed old log file", "path", path, "zip", zipPath)
	return nil
}

// TotalLogSize sums the size of all log-family files in logDir, returned in
// bytes and megabytes.
func TotalLogSize(logDir string) (int64, float64) {
	var total int64
	for _, pattern := range []string{logPattern, archivePattern} {
		for _, path := range globSorted(logDir, pattern) {
			if info, err := os.Lstat(path); err == nil && info.Mode().IsRegular() {
				total += info.Size()
			}
		}
	}
	return total, float64(total) / (1024 * 1024)
}

// ListLogFiles returns the log-family files in logDir, newest first.
func ListLogFiles(logDir string) ([]LogFile, error) {
	if _, err := os.Stat(logDir); err != nil {
		return nil, fmt.Errorf("cannot access log directory %s: %w", logDir, err)
	}

	var files []LogFile
	for _, pattern := range []string{logPattern, archivePattern} {
		for _, path := range globSorted(logDir, pattern) {
			info, err := os.Lstat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			files = append(files, LogFile{
				Name:       filepath.Base(path),
				Path:       path,
				Size:       info.Size(),
				Modified:   info.ModTime(),
				Compressed: strings.HasSuffix(path, ".zip"),
			})
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Modified.After(files[j].Modified)
	})
	return files, nil
}

func globSorted(dir, pattern string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}
