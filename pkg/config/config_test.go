package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	def := NewDefault()
	if cfg.Logs.RetentionDays != def.Logs.RetentionDays {
		t.Errorf("expected default retention, got %d", cfg.Logs.RetentionDays)
	}
	if cfg.Engine.Mode != ModeArchive {
		t.Errorf("expected default archive mode, got %q", cfg.Engine.Mode)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	cfg := NewDefault()
	cfg.Backup.InputPaths = []string{"/data/photos", "/data/docs"}
	cfg.Backup.OutputPath = "/mnt/backup"
	cfg.Logs.RetentionDays = 14
	cfg.Engine.Compression.Format = "tar.zst"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Backup.InputPaths) != 2 || loaded.Backup.InputPaths[1] != "/data/docs" {
		t.Errorf("input paths lost: %v", loaded.Backup.InputPaths)
	}
	if loaded.Logs.RetentionDays != 14 {
		t.Errorf("retention lost: %d", loaded.Logs.RetentionDays)
	}
	if loaded.Engine.Compression.Format != "tar.zst" {
		t.Errorf("format lost: %q", loaded.Engine.Compression.Format)
	}
}

func TestLoadOverlaysPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	partial := `{"backup": {"inputPaths": ["/data"], "outputPath": "/mnt/backup"}}`
	if err := os.WriteFile(path, []byte(partial), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backup.OutputPath != "/mnt/backup" {
		t.Errorf("file value not applied: %q", cfg.Backup.OutputPath)
	}
	if cfg.Logs.RetentionDays != 30 {
		t.Errorf("missing section should keep defaults, got %d", cfg.Logs.RetentionDays)
	}
	if cfg.Engine.Performance.BufferSizeKB != 256 {
		t.Errorf("missing section should keep defaults, got %d", cfg.Engine.Performance.BufferSizeKB)
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed settings")
	}
}

func TestValidate(t *testing.T) {
	base := NewDefault()
	base.Backup.InputPaths = []string{"/data"}
	base.Backup.OutputPath = "/mnt/backup"

	if err := base.Validate(true); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty sources", func(c *Config) { c.Backup.InputPaths = nil }},
		{"empty output", func(c *Config) { c.Backup.OutputPath = "" }},
		{"bad mode", func(c *Config) { c.Engine.Mode = "sync" }},
		{"bad format", func(c *Config) { c.Engine.Compression.Format = "rar" }},
		{"bad level", func(c *Config) { c.Engine.Compression.Level = "ultra" }},
		{"negative retention", func(c *Config) { c.Logs.RetentionDays = -1 }},
		{"zero buffer", func(c *Config) { c.Engine.Performance.BufferSizeKB = 0 }},
		{"zero workers", func(c *Config) { c.Engine.Performance.DeleteWorkers = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefault()
			cfg.Backup.InputPaths = []string{"/data"}
			cfg.Backup.OutputPath = "/mnt/backup"
			tc.mutate(&cfg)
			if err := cfg.Validate(true); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateWithoutSourceCheck(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.Validate(false); err != nil {
		t.Fatalf("cleanup-only validation should pass with empty paths: %v", err)
	}
}

func TestMergeConfigWithFlags(t *testing.T) {
	base := NewDefault()
	base.Backup.OutputPath = "/from/file"
	base.Logs.RetentionDays = 30

	merged := MergeConfigWithFlags(base, map[string]any{
		"target":         "/from/flag",
		"retention-days": 7,
		"mode":           "copy",
		"compress-logs":  true,
	})

	if merged.Backup.OutputPath != "/from/flag" {
		t.Errorf("flag should win: %q", merged.Backup.OutputPath)
	}
	if merged.Logs.RetentionDays != 7 {
		t.Errorf("flag should win: %d", merged.Logs.RetentionDays)
	}
	if merged.Engine.Mode != "copy" {
		t.Errorf("flag should win: %q", merged.Engine.Mode)
	}
	if !merged.Logs.CompressOldLogs {
		t.Error("flag should win: CompressOldLogs")
	}
	if merged.LogLevel != base.LogLevel {
		t.Errorf("untouched values must survive: %q", merged.LogLevel)
	}
}

func TestUpdateLastBackup(t *testing.T) {
	cfg := NewDefault()
	stamp := time.Date(2025, 7, 1, 8, 30, 0, 0, time.UTC)
	cfg.UpdateLastBackup(stamp)

	parsed, err := time.Parse(time.RFC3339, cfg.Backup.LastBackup)
	if err != nil {
		t.Fatalf("last backup not RFC3339: %v", err)
	}
	if !parsed.Equal(stamp) {
		t.Errorf("got %v want %v", parsed, stamp)
	}
}
