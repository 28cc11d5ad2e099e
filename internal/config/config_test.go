package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	t.Setenv("OGMA_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.NATS.Port != 4222 {
		t.Fatalf("expected default nats port 4222, got %d", cfg.NATS.Port)
	}
	if cfg.NATS.ChannelPrefix != "ogma:" {
		t.Fatalf("expected default prefix ogma:, got %q", cfg.NATS.ChannelPrefix)
	}
	if !cfg.Checkpoint.Enabled {
		t.Fatal("checkpoints should default on")
	}
	if cfg.Checkpoint.Retention != 7*24*time.Hour {
		t.Fatalf("unexpected default retention: %s", cfg.Checkpoint.Retention)
	}
	if cfg.Graph.MaxConcurrentAgents != 5 || cfg.Graph.MaxSteps != 50 {
		t.Fatalf("unexpected graph defaults: %+v", cfg.Graph)
	}
	if cfg.Gateway.Model == "" {
		t.Fatal("a default model must be set")
	}
	if cfg.Scheduler.PruneCron != "0 3 * * *" {
		t.Fatalf("unexpected prune cron: %q", cfg.Scheduler.PruneCron)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ogma.yaml")
	content := `
nats:
  port: 5222
  channel_prefix: "custom:"
gateway:
  base_url: https://gateway.example.com
  model: test-model
web:
  enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OGMA_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.NATS.Port != 5222 || cfg.NATS.ChannelPrefix != "custom:" {
		t.Fatalf("yaml values not applied: %+v", cfg.NATS)
	}
	if cfg.Gateway.BaseURL != "https://gateway.example.com" || cfg.Gateway.Model != "test-model" {
		t.Fatalf("gateway values not applied: %+v", cfg.Gateway)
	}
	if cfg.Web.Enabled {
		t.Fatal("web should be disabled by the file")
	}
	// Untouched sections keep their defaults.
	if cfg.Graph.MaxSteps != 50 {
		t.Fatalf("defaults lost on partial file: %+v", cfg.Graph)
	}
}

func TestLoadExpandsEnvInYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ogma.yaml")
	if err := os.WriteFile(path, []byte("store:\n  path: ${TEST_STORE_DIR}/ogma.db\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OGMA_CONFIG", path)
	t.Setenv("TEST_STORE_DIR", "/srv/data")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Path != "/srv/data/ogma.db" {
		t.Fatalf("env not expanded: %q", cfg.Store.Path)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ogma.yaml")
	if err := os.WriteFile(path, []byte("nats:\n  port: 5222\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OGMA_CONFIG", path)
	t.Setenv("OGMA_NATS_PORT", "6222")
	t.Setenv("OGMA_CHANNEL_PREFIX", "env:")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("OGMA_WEB_PASSWORD", "hunter2")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.NATS.Port != 6222 {
		t.Fatalf("env must override file, got port %d", cfg.NATS.Port)
	}
	if cfg.NATS.ChannelPrefix != "env:" {
		t.Fatalf("prefix override missing: %q", cfg.NATS.ChannelPrefix)
	}
	if cfg.Gateway.APIKey != "sk-test" {
		t.Fatalf("api key override missing: %q", cfg.Gateway.APIKey)
	}
	if cfg.Web.Auth != "hunter2" {
		t.Fatalf("web auth override missing: %q", cfg.Web.Auth)
	}
}

func TestMalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ogma.yaml")
	if err := os.WriteFile(path, []byte("nats: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OGMA_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatal("malformed yaml must fail")
	}
}
