package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", filepath.Join(t.TempDir(), "home"))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PageSize() != 100 {
		t.Fatalf("unexpected page size: %d", cfg.PageSize())
	}
	if !cfg.TruncateEnabled() {
		t.Fatalf("truncation should default to enabled")
	}
	if cfg.MaxArtifactBytes() != 20*1024 {
		t.Fatalf("unexpected artifact limit: %d", cfg.MaxArtifactBytes())
	}
	if cfg.StorageBackend() != "bbolt" {
		t.Fatalf("unexpected storage backend: %q", cfg.StorageBackend())
	}
	if cfg.PollInterval() != 3*time.Second {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval())
	}
}

func TestLoadFromTOML(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	t.Setenv("HOME", home)

	dataDir := filepath.Join(home, ".vantage")
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	content := []byte("[server]\naddress = \"https://coding.example.com/\"\napi_key = \"k-123\"\n\n[feed]\npage_size = 25\n\n[truncate]\nenabled = false\n")
	if err := os.WriteFile(filepath.Join(dataDir, "config.toml"), content, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerBaseURL() != "https://coding.example.com" {
		t.Fatalf("unexpected base url: %q", cfg.ServerBaseURL())
	}
	if cfg.APIKey() != "k-123" {
		t.Fatalf("unexpected api key: %q", cfg.APIKey())
	}
	if cfg.PageSize() != 25 {
		t.Fatalf("unexpected page size: %d", cfg.PageSize())
	}
	if cfg.TruncateEnabled() {
		t.Fatalf("truncation should be disabled by config")
	}
}

func TestPageSizeClamped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Feed.PageSize = 400
	if cfg.PageSize() != 100 {
		t.Fatalf("page size not clamped: %d", cfg.PageSize())
	}
	cfg.Feed.PageSize = -5
	if cfg.PageSize() != 100 {
		t.Fatalf("non-positive page size should fall back to default: %d", cfg.PageSize())
	}
}
