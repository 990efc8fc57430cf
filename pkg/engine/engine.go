// Package engine orchestrates backup runs. One Engine handles one source
// folder at a time: it validates the source, sizes the work, delegates to
// the archive or copy transfer, and reduces everything to an Outcome value.
// The Engine itself is stateless between runs and may be reused, but a
// single run is synchronous and must not overlap with another on the same
// progress consumer.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/foldback/foldback/pkg/patharchive"
	"github.com/foldback/foldback/pkg/pathcopy"
	"github.com/foldback/foldback/pkg/pathscan"
	"github.com/foldback/foldback/pkg/plog"
	"github.com/foldback/foldback/pkg/preflight"
	"github.com/foldback/foldback/pkg/util"
)

// Transfer modes.
const (
	ModeArchive = "archive"
	ModeCopy    = "copy"
)

// destTimeFormat yields chronologically sortable artifact names.
const destTimeFormat = "20060102_150405"

// Options configures a new Engine. Zero values fall back to an archive-mode
// engine with default compression and a no-op logger.
type Options struct {
	Mode         string
	Format       patharchive.Format
	Level        patharchive.Level
	BufferSizeKB int
	Logger       Logger
	Progress     ProgressFunc
	// Now is the clock used for timestamps and elapsed measurement.
	// Overridable for tests.
	Now func() time.Time
}

// Engine runs backups. All per-run state lives on the stack of Backup, so a
// single Engine value can serve many sequential runs.
type Engine struct {
	mode     string
	archiver *patharchive.Archiver
	copier   *pathcopy.Copier
	log      Logger
	progress ProgressFunc
	now      func() time.Time
}

// New creates an Engine from opts.
func New(opts Options) (*Engine, error) {
	mode := opts.Mode
	if mode == "" {
		mode = ModeArchive
	}
	if mode != ModeArchive && mode != ModeCopy {
		return nil, fmt.Errorf("invalid mode: %q. Must be 'archive' or 'copy'", opts.Mode)
	}

	format := opts.Format
	if format == "" {
		format = patharchive.Zip
	}
	level := opts.Level
	if level == "" {
		level = patharchive.Default
	}

	log := opts.Logger
	if log == nil {
		log = nopLogger{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		mode:     mode,
		archiver: patharchive.NewArchiver(format, level, opts.BufferSizeKB),
		copier:   pathcopy.NewCopier(opts.BufferSizeKB),
		log:      log,
		progress: opts.Progress,
		now:      now,
	}, nil
}

// Backup runs one source folder into destRoot and reports the result as a
// value. Fatal problems are carried in Outcome.Err, never returned as a Go
// error, so callers always get counts to present.
func (e *Engine) Backup(ctx context.Context, source, destRoot string) Outcome {
	source = filepath.Clean(source)

	info, err := os.Stat(source)
	if err != nil {
		if os.IsNotExist(err) {
			return e.fatal(fmt.Sprintf("source not found: %s", source))
		}
		return e.fatal(fmt.Sprintf("cannot access source %s: %v", source, err))
	}
	if !info.IsDir() {
		return e.fatal(fmt.Sprintf("source is not a directory: %s", source))
	}

	start := e.now()

	e.log.Info(fmt.Sprintf("Counting files in %s...", source))
	probe, err := pathscan.Probe(ctx, source)
	if err != nil {
		return e.fatal(fmt.Sprintf("failed to scan source: %v", err))
	}
	e.log.Info(fmt.Sprintf("Found %d files (%s)", probe.Files, util.FormatBytes(probe.TotalBytes)))

	if probe.Files == 0 {
		e.log.Warn(fmt.Sprintf("No files found in %s, nothing to back up", source))
		return Outcome{
			Success: true,
			Elapsed: e.now().Sub(start),
		}
	}

	if err := preflight.CheckDestination(destRoot, probe.TotalBytes); err != nil {
		return e.fatal(err.Error())
	}

	var outcome Outcome
	switch e.mode {
	case ModeCopy:
		outcome = e.runCopy(ctx, source, destRoot, probe)
	default:
		outcome = e.runArchive(ctx, source, destRoot, probe)
	}
	outcome.Elapsed = e.now().Sub(start)

	e.summarize(source, outcome)
	return outcome
}

func (e *Engine) runArchive(ctx context.Context, source, destRoot string, probe pathscan.Result) Outcome {
	base := filepath.Base(source)
	container := filepath.Join(destRoot, "backup_"+base)
	destFile := uniqueDestPath(container, base, e.now(), e.archiver.Format().Extension())

	e.log.Info(fmt.Sprintf("Compressing %s -> %s", source, destFile))
	res, err := e.archiver.Archive(ctx, source, destFile, e.progressAdapter("Compressing", probe.Files))
	if err != nil {
		return Outcome{
			Err:              fmt.Sprintf("archive failed: %v", err),
			TotalFiles:       probe.Files,
			CopiedFiles:      res.FilesArchived,
			FailedFiles:      res.Failed,
			TotalBytes:       probe.TotalBytes,
			TransferredBytes: res.BytesRead,
			FileErrors:       res.Errors,
		}
	}

	return Outcome{
		Success:          res.Failed == 0,
		TotalFiles:       probe.Files,
		CopiedFiles:      res.FilesArchived,
		FailedFiles:      res.Failed,
		TotalBytes:       probe.TotalBytes,
		TransferredBytes: res.BytesRead,
		DestPath:         destFile,
		FileErrors:       res.Errors,
	}
}

func (e *Engine) runCopy(ctx context.Context, source, destRoot string, probe pathscan.Result) Outcome {
	base := filepath.Base(source)
	destDir := uniqueDestPath(destRoot, base, e.now(), "")

	e.log.Info(fmt.Sprintf("Copying %s -> %s", source, destDir))
	res, err := e.copier.Copy(ctx, source, destDir, e.progressAdapter("Copying", probe.Files))
	if err != nil {
		return Outcome{
			Err:              fmt.Sprintf("copy failed: %v", err),
			TotalFiles:       probe.Files,
			CopiedFiles:      res.FilesCopied,
			FailedFiles:      res.Failed,
			TotalBytes:       probe.TotalBytes,
			TransferredBytes: res.BytesCopied,
			FileErrors:       res.Errors,
		}
	}

	return Outcome{
		Success:          res.Failed == 0,
		TotalFiles:       probe.Files,
		CopiedFiles:      res.FilesCopied,
		FailedFiles:      res.Failed,
		TotalBytes:       probe.TotalBytes,
		TransferredBytes: res.BytesCopied,
		DestPath:         destDir,
		FileErrors:       res.Errors,
	}
}

// progressAdapter turns the per-file callbacks of the transfer packages into
// numbered ProgressEvents. Returns a nil callback when no consumer is
// registered so the transfer skips the bookkeeping entirely.
func (e *Engine) progressAdapter(verb string, total int64) func(relPath string, bytes int64) {
	if e.progress == nil {
		return nil
	}
	var done int64
	return func(relPath string, bytes int64) {
		done++
		var pct float64
		if total > 0 {
			pct = float64(done) / float64(total) * 100
		}
		e.progress(ProgressEvent{
			Current: done,
			Total:   total,
			Message: fmt.Sprintf("%s: %s (%.0f%%)", verb, filepath.Base(relPath), pct),
		})
	}
}

func (e *Engine) fatal(msg string) Outcome {
	e.log.Error(msg)
	return Outcome{Err: msg}
}

func (e *Engine) summarize(source string, o Outcome) {
	switch {
	case o.Err != "":
		e.log.Error(fmt.Sprintf("Backup of %s failed: %s", source, o.Err))
	case o.FailedFiles > 0:
		e.log.Warn(fmt.Sprintf("Backup of %s finished with %d of %d files failed (%s transferred in %s)",
			source, o.FailedFiles, o.TotalFiles, util.FormatBytes(o.TransferredBytes), o.Elapsed.Round(time.Millisecond)))
	default:
		e.log.Success(fmt.Sprintf("Backed up %s: %d files, %s in %s",
			source, o.CopiedFiles, util.FormatBytes(o.TransferredBytes), o.Elapsed.Round(time.Millisecond)))
	}
}

// BackupMultiple runs each source in order. A failing folder never stops the
// remaining folders from being attempted.
func (e *Engine) BackupMultiple(ctx context.Context, sources []string, destRoot string) MultiOutcome {
	start := e.now()
	multi := MultiOutcome{TotalFolders: len(sources)}

	for i, source := range sources {
		e.log.Info(fmt.Sprintf("--- Backup %d/%d: %s ---", i+1, len(sources), source))
		outcome := e.Backup(ctx, source, destRoot)
		multi.Outcomes = append(multi.Outcomes, FolderOutcome{Source: source, Outcome: outcome})
		if outcome.Success {
			multi.Succeeded++
		} else {
			multi.Failed++
		}
	}

	multi.Elapsed = e.now().Sub(start)

	if multi.Failed == 0 {
		e.log.Success(fmt.Sprintf("All %d backups completed in %s",
			multi.TotalFolders, multi.Elapsed.Round(time.Millisecond)))
	} else {
		e.log.Warn(fmt.Sprintf("%d of %d backups failed (%s elapsed)",
			multi.Failed, multi.TotalFolders, multi.Elapsed.Round(time.Millisecond)))
	}
	return multi
}

// uniqueDestPath builds dir/<base>_<timestamp><ext> and disambiguates with a
// numeric suffix when a run lands in the same second as a previous one.
func uniqueDestPath(dir, base string, t time.Time, ext string) string {
	stamp := t.Format(destTimeFormat)
	candidate := filepath.Join(dir, base+"_"+stamp+ext)
	for n := 1; ; n++ {
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
		plog.Debug("Destination name taken, disambiguating", "path", candidate)
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%s_%d%s", base, stamp, n, ext))
	}
}
