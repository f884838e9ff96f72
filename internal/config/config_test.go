package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultDaemonConfig(t *testing.T) {
	cfg := DefaultDaemonConfig()

	if cfg == nil {
		t.Fatal("DefaultDaemonConfig returned nil")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level 'info', got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "pretty" {
		t.Errorf("expected log format 'pretty', got %q", cfg.Log.Format)
	}
	if cfg.Log.MaxSizeMB != 100 {
		t.Errorf("expected log max size 100, got %d", cfg.Log.MaxSizeMB)
	}
	if cfg.Endpoint.Name == "" {
		t.Error("expected a default endpoint name")
	}
	if !cfg.Endpoint.CurrentUserOnly {
		t.Error("expected current_user_only to default to true")
	}
	if cfg.Endpoint.Parallelism != 0 {
		t.Errorf("expected parallelism 0 (library default), got %d", cfg.Endpoint.Parallelism)
	}
	if cfg.Metrics.Enabled {
		t.Error("expected metrics disabled by default")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("expected metrics path '/metrics', got %q", cfg.Metrics.Path)
	}
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()

	if cfg.Endpoint == "" {
		t.Error("expected a default endpoint name")
	}
	if cfg.DialTimeout <= 0 {
		t.Error("expected a positive default dial timeout")
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected client log level 'warn', got %q", cfg.Log.Level)
	}
}

func TestLoadDaemonFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
log:
  level: debug
  format: json
endpoint:
  name: /run/conduit/test.sock
  parallelism: 4
  max_read_buffer_size: 65536
metrics:
  enabled: true
  port: 9999
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadDaemon(path)
	if err != nil {
		t.Fatalf("LoadDaemon: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log format = %q, want json", cfg.Log.Format)
	}
	if cfg.Endpoint.Name != "/run/conduit/test.sock" {
		t.Errorf("endpoint name = %q", cfg.Endpoint.Name)
	}
	if cfg.Endpoint.Parallelism != 4 {
		t.Errorf("parallelism = %d, want 4", cfg.Endpoint.Parallelism)
	}
	if cfg.Endpoint.MaxReadBufferSize != 65536 {
		t.Errorf("max read buffer = %d, want 65536", cfg.Endpoint.MaxReadBufferSize)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics not enabled")
	}
	if cfg.Metrics.Port != 9999 {
		t.Errorf("metrics port = %d, want 9999", cfg.Metrics.Port)
	}
	// Unset fields keep their defaults.
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("metrics path = %q, want default", cfg.Metrics.Path)
	}
}

func TestLoadDaemonMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadDaemon("")
	if err != nil {
		t.Fatalf("LoadDaemon: %v", err)
	}
	if cfg.Endpoint.Name == "" {
		t.Error("expected default endpoint name")
	}
}

func TestLoadDaemonMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log: [not a map"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadDaemon(path); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	var got *DaemonConfig
	w.OnChange(func(c *DaemonConfig) { got = c })

	if err := os.WriteFile(path, []byte("log:\n  level: error\n"), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := w.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if got == nil {
		t.Fatal("callback did not run")
	}
	if got.Log.Level != "error" {
		t.Errorf("reloaded level = %q, want error", got.Log.Level)
	}
	if w.Current() == nil {
		t.Error("Current returned nil after reload")
	}
}

func TestWatcherStopDetachesCallbacks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	calls := 0
	w.OnChange(func(*DaemonConfig) { calls++ })
	w.Stop()

	if err := os.WriteFile(path, []byte("log:\n  level: error\n"), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := w.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if calls != 0 {
		t.Errorf("callback ran %d times after Stop", calls)
	}
}
