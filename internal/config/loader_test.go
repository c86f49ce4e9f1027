package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.SyncInterval != 5*time.Minute {
		t.Errorf("Expected 5m sync interval, got %s", cfg.SyncInterval)
	}
	if cfg.HTTPTimeout != 0 {
		t.Errorf("Expected no http timeout, got %s", cfg.HTTPTimeout)
	}
	if cfg.Web.Port != 8000 {
		t.Errorf("Expected port 8000, got %d", cfg.Web.Port)
	}
	if !strings.HasSuffix(cfg.DBPath, "tasksync.db") {
		t.Errorf("Unexpected db path %q", cfg.DBPath)
	}
}

func TestLoadFromMissingFiles(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()

	cfg, err := LoadFrom(filepath.Join(tmpDir, "nope.yaml"), "")
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Web.Port != DefaultConfig().Web.Port {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestLoadFromOverrides(t *testing.T) {
	t.Parallel()

	global := writeConfig(t, t.TempDir(), `
db_path: /var/lib/tasksync/global.db
sync_interval: 10m
web:
  port: 9000
`)
	project := writeConfig(t, t.TempDir(), `
db_path: ./project.db
http_timeout: 30s
`)

	cfg, err := LoadFrom(global, project)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.DBPath != "./project.db" {
		t.Errorf("Expected project db path to win, got %q", cfg.DBPath)
	}
	if cfg.SyncInterval != 10*time.Minute {
		t.Errorf("Expected 10m from global config, got %s", cfg.SyncInterval)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %s", cfg.HTTPTimeout)
	}
	if cfg.Web.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.Web.Port)
	}
	if cfg.Web.Host != "127.0.0.1" {
		t.Errorf("Expected default host to survive, got %q", cfg.Web.Host)
	}
}

func TestLoadFromInvalidFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), "web: [unclosed\n")
	if _, err := LoadFrom(path); err == nil {
		t.Error("Expected error for malformed yaml")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("TASKSYNC_WEB_PORT", "9100")
	t.Setenv("TASKSYNC_SYNC_INTERVAL", "90s")
	t.Setenv("TASKSYNC_VERBOSE", "true")

	path := writeConfig(t, t.TempDir(), "web:\n  port: 9000\n")
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Web.Port != 9100 {
		t.Errorf("Expected env port 9100, got %d", cfg.Web.Port)
	}
	if cfg.SyncInterval != 90*time.Second {
		t.Errorf("Expected 90s interval, got %s", cfg.SyncInterval)
	}
	if !cfg.Verbose {
		t.Error("Expected verbose from env")
	}
	if cfg.Web.Host != "127.0.0.1" {
		t.Errorf("Env override must not reset other fields, got host %q", cfg.Web.Host)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.DBPath = "/tmp/tasks.db"
	cfg.SnapshotPath = "/tmp/tasks.jsonl"
	cfg.SyncInterval = 2 * time.Minute
	cfg.Web.Port = 8123

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if loaded.DBPath != cfg.DBPath || loaded.SnapshotPath != cfg.SnapshotPath {
		t.Errorf("Paths not preserved: %+v", loaded)
	}
	if loaded.SyncInterval != cfg.SyncInterval {
		t.Errorf("Expected interval %s, got %s", cfg.SyncInterval, loaded.SyncInterval)
	}
	if loaded.Web.Port != 8123 {
		t.Errorf("Expected port 8123, got %d", loaded.Web.Port)
	}
}
