// Command foldback backs up folders into timestamped archives or mirrored
// trees, with daily logs and retention cleanup.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/foldback/foldback/pkg/config"
	"github.com/foldback/foldback/pkg/engine"
	"github.com/foldback/foldback/pkg/lockfile"
	"github.com/foldback/foldback/pkg/logretention"
	"github.com/foldback/foldback/pkg/patharchive"
	"github.com/foldback/foldback/pkg/plog"
	"github.com/foldback/foldback/pkg/util"
)

// version is stamped by the build.
var version = "dev"

const lockFileName = ".foldback.lock"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", config.ConfigFileName, "path to the settings file")

	doBackup := flag.Bool("backup", false, "run the configured backups (default action)")
	doStatus := flag.Bool("status", false, "show configuration and log status")
	doCleanup := flag.Bool("cleanup-logs", false, "run the log retention sweep and exit")
	doInit := flag.Bool("init", false, "write a default settings file and exit")
	showVersion := flag.Bool("version", false, "print the version and exit")

	sources := flag.String("source", "", "comma-separated source folders (overrides settings)")
	target := flag.String("target", "", "destination root (overrides settings)")
	mode := flag.String("mode", "", "transfer mode: archive or copy")
	format := flag.String("format", "", "archive format: zip, tar.gz or tar.zst")
	level := flag.String("level", "", "compression level: fastest, default or best")
	logDir := flag.String("log-dir", "", "log directory")
	logLevel := flag.String("log-level", "", "log level: debug, notice, info, success, warn, error")
	retentionDays := flag.Int("retention-days", 0, "log retention in days")
	compressLogs := flag.Bool("compress-logs", false, "compress logs older than a week")
	bufferSizeKB := flag.Int("buffer-size-kb", 0, "copy buffer size in KB")
	deleteWorkers := flag.Int("delete-workers", 0, "concurrent deletions during the retention sweep")
	flag.Parse()

	if *showVersion {
		fmt.Printf("foldback %s\n", version)
		return 0
	}

	if *doInit {
		if _, err := os.Stat(*configPath); err == nil {
			plog.Error("Settings file already exists, refusing to overwrite", "path", *configPath)
			return 1
		}
		if err := config.Save(config.NewDefault(), *configPath); err != nil {
			plog.Error("Failed to write settings file", "error", err)
			return 1
		}
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		plog.Error("Failed to load settings", "error", err)
		return 1
	}

	setFlags := map[string]any{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "source":
			setFlags[f.Name] = splitSources(*sources)
		case "target":
			setFlags[f.Name] = *target
		case "mode":
			setFlags[f.Name] = *mode
		case "format":
			setFlags[f.Name] = *format
		case "level":
			setFlags[f.Name] = *level
		case "log-dir":
			setFlags[f.Name] = *logDir
		case "log-level":
			setFlags[f.Name] = *logLevel
		case "retention-days":
			setFlags[f.Name] = *retentionDays
		case "compress-logs":
			setFlags[f.Name] = *compressLogs
		case "buffer-size-kb":
			setFlags[f.Name] = *bufferSizeKB
		case "delete-workers":
			setFlags[f.Name] = *deleteWorkers
		}
	})
	cfg = config.MergeConfigWithFlags(cfg, setFlags)

	plog.SetLevel(plog.LevelFromString(cfg.LogLevel))
	if err := plog.AttachDailyFile(cfg.Logs.Dir); err != nil {
		plog.Warn("Continuing without a log file", "error", err)
	}
	defer plog.DetachFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *doStatus:
		return runStatus(cfg)
	case *doCleanup:
		return runCleanup(ctx, cfg)
	case *doBackup:
		return runBackup(ctx, cfg, *configPath)
	default:
		// Backup is the default action.
		return runBackup(ctx, cfg, *configPath)
	}
}

func splitSources(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runBackup(ctx context.Context, cfg config.Config, configPath string) int {
	if err := cfg.Validate(true); err != nil {
		plog.Error("Invalid configuration", "error", err)
		return 1
	}
	cfg.LogSummary()

	lock, err := lockfile.Acquire(filepath.Join(cfg.Backup.OutputPath, lockFileName))
	if err != nil {
		plog.Error("Cannot start backup", "error", err)
		return 1
	}
	defer lock.Release()

	// Prune old logs before the run so the log directory never grows
	// unbounded on a machine that only ever runs backups.
	sweeper := logretention.NewSweeper(cfg.Engine.Performance.DeleteWorkers)
	sweeper.Sweep(ctx, cfg.Logs.Dir, cfg.Logs.RetentionDays, cfg.Logs.CompressOldLogs)

	eng, err := engine.New(engine.Options{
		Mode:         cfg.Engine.Mode,
		Format:       parsedFormat(cfg),
		Level:        parsedLevel(cfg),
		BufferSizeKB: cfg.Engine.Performance.BufferSizeKB,
		Logger:       engine.PlogLogger{},
		Progress: func(ev engine.ProgressEvent) {
			plog.Notice(ev.Message)
		},
	})
	if err != nil {
		plog.Error("Invalid engine configuration", "error", err)
		return 1
	}

	multi := eng.BackupMultiple(ctx, cfg.Backup.InputPaths, cfg.Backup.OutputPath)
	for _, fo := range multi.Outcomes {
		for _, fe := range fo.Outcome.FileErrors {
			plog.Warn("File failed", "source", fo.Source, "detail", fe)
		}
	}

	if !multi.Success() {
		return 1
	}

	cfg.UpdateLastBackup(time.Now())
	if err := config.Save(cfg, configPath); err != nil {
		plog.Warn("Backup succeeded but settings could not be updated", "error", err)
	}
	return 0
}

func runCleanup(ctx context.Context, cfg config.Config) int {
	if err := cfg.Validate(false); err != nil {
		plog.Error("Invalid configuration", "error", err)
		return 1
	}

	sweeper := logretention.NewSweeper(cfg.Engine.Performance.DeleteWorkers)
	res := sweeper.Sweep(ctx, cfg.Logs.Dir, cfg.Logs.RetentionDays, cfg.Logs.CompressOldLogs)
	plog.Success(fmt.Sprintf("Cleanup done: %d logs and %d archives deleted (%s freed), %d compressed",
		res.DeletedLogs, res.DeletedArchives, util.FormatBytes(res.DeletedBytes), res.Compressed))
	return 0
}

func runStatus(cfg config.Config) int {
	fmt.Printf("foldback %s\n\n", version)

	last := cfg.Backup.LastBackup
	if last == "" {
		last = "never"
	}
	fmt.Printf("Last backup:   %s\n", last)
	fmt.Printf("Mode:          %s\n", cfg.Engine.Mode)
	if cfg.Engine.Mode == config.ModeArchive {
		fmt.Printf("Compression:   %s (%s)\n", cfg.Engine.Compression.Format, cfg.Engine.Compression.Level)
	}
	fmt.Printf("Destination:   %s\n", orUnset(cfg.Backup.OutputPath))
	fmt.Printf("Sources:\n")
	if len(cfg.Backup.InputPaths) == 0 {
		fmt.Printf("  (none configured)\n")
	}
	for _, p := range cfg.Backup.InputPaths {
		fmt.Printf("  %s\n", p)
	}

	bytes, mb := logretention.TotalLogSize(cfg.Logs.Dir)
	fmt.Printf("\nLogs in %s: %s (%.2f MB), retention %d days, per-file cap %d MB\n",
		cfg.Logs.Dir, util.FormatBytes(bytes), mb, cfg.Logs.RetentionDays, cfg.Logs.MaxFileSizeMB)

	files, err := logretention.ListLogFiles(cfg.Logs.Dir)
	if err != nil {
		fmt.Printf("  (log directory not readable: %v)\n", err)
		return 0
	}
	for i, f := range files {
		if i == 10 {
			fmt.Printf("  ... and %d more\n", len(files)-i)
			break
		}
		fmt.Printf("  %-28s %10s  %s\n", f.Name, util.FormatBytes(f.Size), f.Modified.Format("2006-01-02 15:04"))
	}
	return 0
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// Validate has already vetted the strings; parse errors cannot occur here.
func parsedFormat(cfg config.Config) patharchive.Format {
	f, _ := patharchive.ParseFormat(cfg.Engine.Compression.Format)
	return f
}

func parsedLevel(cfg config.Config) patharchive.Level {
	l, _ := patharchive.ParseLevel(cfg.Engine.Compression.Level)
	return l
}
