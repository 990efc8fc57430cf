package engine

import "time"

// ProgressEvent is emitted synchronously after each successfully transferred
// file. Current counts successful transfers so far; Total is the file count
// established before the transfer started. If the source changes between
// probing and transfer the percentage may drift, which is accepted.
type ProgressEvent struct {
	Current int64
	Total   int64
	Message string
}

// ProgressFunc receives progress events in transfer order. It is called on
// the goroutine running the backup; callers driving a UI must marshal
// updates themselves.
type ProgressFunc func(ProgressEvent)

// Outcome is the result of one source to destination run. It is constructed
// fresh per run and never retained by the engine.
type Outcome struct {
	Success          bool
	TotalFiles       int64
	CopiedFiles      int64
	FailedFiles      int64
	TotalBytes       int64
	TransferredBytes int64
	Elapsed          time.Duration
	// DestPath is the final artifact: the archive file or the mirrored
	// folder. Empty when nothing was written.
	DestPath string
	// Err is set only on a fatal failure; per-file problems land in
	// FileErrors instead.
	Err string
	// FileErrors lists non-fatal per-file failures in transfer order.
	FileErrors []string
}

// FolderOutcome pairs a source path with its run result.
type FolderOutcome struct {
	Source  string
	Outcome Outcome
}

// MultiOutcome aggregates the per-folder outcomes of one multi-source run.
type MultiOutcome struct {
	TotalFolders int
	Succeeded    int
	Failed       int
	Elapsed      time.Duration
	Outcomes     []FolderOutcome
}

// Success reports whether every folder in the run succeeded. A run over
// zero folders is vacuously successful.
func (m MultiOutcome) Success() bool {
	return m.Failed == 0
}
