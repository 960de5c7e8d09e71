package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}
	if cfg.Store.DBPath != "agora.db" || cfg.Store.CacheSize != 128 {
		t.Fatalf("unexpected store defaults: %+v", cfg.Store)
	}
	if cfg.Store.SweepInterval != time.Hour || cfg.Store.SweepTimeout != time.Minute {
		t.Fatalf("unexpected sweep defaults: %+v", cfg.Store)
	}
	if cfg.Telemetry.Exporter != "stdout" {
		t.Fatalf("unexpected telemetry default: %+v", cfg.Telemetry)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agora.yaml")
	doc := `
log:
  level: debug
store:
  db_path: /tmp/custom.db
  sweep_interval: 10m
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("file override not applied: %q", cfg.Log.Level)
	}
	if cfg.Store.DBPath != "/tmp/custom.db" {
		t.Fatalf("file override not applied: %q", cfg.Store.DBPath)
	}
	if cfg.Store.SweepInterval != 10*time.Minute {
		t.Fatalf("duration not parsed: %v", cfg.Store.SweepInterval)
	}
	// Untouched keys keep their defaults.
	if cfg.Store.CacheSize != 128 {
		t.Fatalf("default lost on partial file: %d", cfg.Store.CacheSize)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agora.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("AGORA_LOG_LEVEL", "warn")
	t.Setenv("AGORA_STORE_DB_PATH", "/var/lib/agora.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("env must win over file: %q", cfg.Log.Level)
	}
	// Multi-underscore keys split only at the section boundary.
	if cfg.Store.DBPath != "/var/lib/agora.db" {
		t.Fatalf("env key mapping broken: %q", cfg.Store.DBPath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
