// Package config manages the JSON settings file shared by the CLI and any
// frontend driving the backup engine.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/foldback/foldback/pkg/patharchive"
	"github.com/foldback/foldback/pkg/plog"
	"github.com/foldback/foldback/pkg/util"
)

// ConfigFileName is the default name of the settings file.
const ConfigFileName = "foldback.settings.json"

// Transfer modes for a backup run.
const (
	ModeArchive = "archive" // compress the source tree into a single archive file
	ModeCopy    = "copy"    // mirror the source tree file by file
)

// ParseMode validates a transfer mode string.
func ParseMode(s string) (string, error) {
	switch s {
	case ModeArchive, ModeCopy:
		return s, nil
	}
	return "", fmt.Errorf("invalid mode: %q. Must be 'archive' or 'copy'", s)
}

type BackupConfig struct {
	// InputPaths is the ordered list of source directories to back up.
	InputPaths []string `json:"inputPaths"`
	// OutputPath is the destination root under which artifacts are written.
	OutputPath string `json:"outputPath"`
	// LastBackup records the completion time of the last fully successful
	// run as an RFC3339 string. Maintained by the CLI, not the engine.
	LastBackup string `json:"lastBackup,omitempty"`
}

type LogsConfig struct {
	Dir           string `json:"dir"`
	RetentionDays int    `json:"retentionDays"`
	// MaxFileSizeMB is informational only; it feeds the status display.
	MaxFileSizeMB   int  `json:"maxFileSizeMB"`
	CompressOldLogs bool `json:"compressOldLogs"`
}

type CompressionConfig struct {
	Format string `json:"format"`
	Level  string `json:"level"`
}

type PerformanceConfig struct {
	BufferSizeKB  int `json:"bufferSizeKB"`
	DeleteWorkers int `json:"deleteWorkers"`
}

type EngineConfig struct {
	Mode        string            `json:"mode"`
	Compression CompressionConfig `json:"compression"`
	Performance PerformanceConfig `json:"performance"`
}

type Config struct {
	LogLevel string       `json:"logLevel"`
	Backup   BackupConfig `json:"backup"`
	Logs     LogsConfig   `json:"logs"`
	Engine   EngineConfig `json:"engine"`
}

// NewDefault creates a Config with sensible defaults. Paths are intentionally
// empty to force user configuration.
func NewDefault() Config {
	return Config{
		LogLevel: "info",
		Backup: BackupConfig{
			InputPaths: []string{},
			OutputPath: "",
		},
		Logs: LogsConfig{
			Dir:             "logs",
			RetentionDays:   30,
			MaxFileSizeMB:   10,
			CompressOldLogs: false,
		},
		Engine: EngineConfig{
			Mode: ModeArchive,
			Compression: CompressionConfig{
				Format: string(patharchive.Zip),
				Level:  string(patharchive.Default),
			},
			Performance: PerformanceConfig{
				BufferSizeKB:  256, // Keep it between 64KB-4MB.
				DeleteWorkers: 4,
			},
		},
	}
}

// Load reads the settings file at the given path. A missing file is not an
// error; it returns the defaults so a first run works out of the box.
// Defaults are applied first and overlaid with the file's content, which
// keeps loading resilient to missing fields.
func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return Config{}, fmt.Errorf("error opening settings file %s: %w", path, err)
	}
	defer file.Close()

	plog.Info("Loading settings", "path", path)
	cfg := NewDefault()
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing settings file %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to the given path, creating parent
// directories as needed.
func Save(cfg Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
			return fmt.Errorf("failed to create settings directory %s: %w", dir, err)
		}
	}

	jsonData, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings to JSON: %w", err)
	}

	if err := os.WriteFile(path, jsonData, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	plog.Info("Saved settings file", "path", path)
	return nil
}

// Validate checks the configuration for logical errors. Source existence is
// checked only when checkSources is set, so cleanup-only invocations don't
// require configured backups.
func (c *Config) Validate(checkSources bool) error {
	if checkSources {
		if len(c.Backup.InputPaths) == 0 {
			return fmt.Errorf("backup.inputPaths cannot be empty")
		}
		if c.Backup.OutputPath == "" {
			return fmt.Errorf("backup.outputPath cannot be empty")
		}
	}

	var err error
	for i, p := range c.Backup.InputPaths {
		c.Backup.InputPaths[i], err = util.ExpandPath(p)
		if err != nil {
			return fmt.Errorf("could not expand source path %q: %w", p, err)
		}
		c.Backup.InputPaths[i] = filepath.Clean(c.Backup.InputPaths[i])
	}
	if c.Backup.OutputPath != "" {
		c.Backup.OutputPath, err = util.ExpandPath(c.Backup.OutputPath)
		if err != nil {
			return fmt.Errorf("could not expand output path: %w", err)
		}
		c.Backup.OutputPath = filepath.Clean(c.Backup.OutputPath)
	}

	if _, err := ParseMode(c.Engine.Mode); err != nil {
		return err
	}
	if _, err := patharchive.ParseFormat(c.Engine.Compression.Format); err != nil {
		return err
	}
	if _, err := patharchive.ParseLevel(c.Engine.Compression.Level); err != nil {
		return err
	}

	if c.Logs.RetentionDays < 0 {
		return fmt.Errorf("logs.retentionDays cannot be negative")
	}
	if c.Engine.Performance.BufferSizeKB <= 0 {
		return fmt.Errorf("engine.performance.bufferSizeKB must be greater than 0")
	}
	if c.Engine.Performance.DeleteWorkers < 1 {
		return fmt.Errorf("engine.performance.deleteWorkers must be at least 1")
	}
	return nil
}

// UpdateLastBackup stamps the last successful backup time.
func (c *Config) UpdateLastBackup(t time.Time) {
	c.Backup.LastBackup = t.Format(time.RFC3339)
}

// LogSummary prints a user-friendly summary of the effective configuration.
func (c *Config) LogSummary() {
	logArgs := []any{
		"mode", c.Engine.Mode,
		"log_level", c.LogLevel,
		"sources", len(c.Backup.InputPaths),
		"output", c.Backup.OutputPath,
		"log_dir", c.Logs.Dir,
		"retention_days", c.Logs.RetentionDays,
		"buffer_size_kb", c.Engine.Performance.BufferSizeKB,
		"delete_workers", c.Engine.Performance.DeleteWorkers,
	}
	if c.Engine.Mode == ModeArchive {
		logArgs = append(logArgs,
			"compression", fmt.Sprintf("%s (%s)", c.Engine.Compression.Format, c.Engine.Compression.Level))
	}
	if c.Logs.CompressOldLogs {
		logArgs = append(logArgs, "compress_old_logs", true)
	}
	plog.Info("Configuration loaded", logArgs...)
}

// MergeConfigWithFlags overlays configuration values from flags on top of a
// base configuration. setFlags contains only the flags explicitly provided by
// the user on the command line.
func MergeConfigWithFlags(base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "source":
			merged.Backup.InputPaths = value.([]string)
		case "target":
			merged.Backup.OutputPath = value.(string)
		case "log-level":
			merged.LogLevel = value.(string)
		case "log-dir":
			merged.Logs.Dir = value.(string)
		case "retention-days":
			merged.Logs.RetentionDays = value.(int)
		case "compress-logs":
			merged.Logs.CompressOldLogs = value.(bool)
		case "mode":
			merged.Engine.Mode = value.(string)
		case "format":
			merged.Engine.Compression.Format = value.(string)
		case "level":
			merged.Engine.Compression.Level = value.(string)
		case "buffer-size-kb":
			merged.Engine.Performance.BufferSizeKB = value.(int)
		case "delete-workers":
			merged.Engine.Performance.DeleteWorkers = value.(int)
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "flag", name)
		}
	}
	return merged
}
