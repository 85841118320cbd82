package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Decode(New())
	if err != nil {
		t.Fatalf("decode defaults: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Blob.Driver != "fs" || cfg.Metrics.Backend != "expvar" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.Session.AutoReconcile || cfg.Session.RunnerConcurrency != 4 {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	body := `
[storage]
driver = "memory"

[log]
level = "debug"

[session]
runner_concurrency = 2
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SKYLINK_LOG_LEVEL", "warn")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("file value not applied: %q", cfg.Storage.Driver)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("env override not applied: %q", cfg.Log.Level)
	}
	if cfg.Session.RunnerConcurrency != 2 {
		t.Fatalf("expected runner concurrency 2, got %d", cfg.Session.RunnerConcurrency)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	base, err := Decode(New())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	bad := []func(*Config){
		func(c *Config) { c.Storage.Driver = "mysql" },
		func(c *Config) { c.Blob.Driver = "gcs" },
		func(c *Config) { c.Blob.Driver = "s3"; c.Blob.S3.Bucket = "" },
		func(c *Config) { c.Metrics.Backend = "statsd" },
		func(c *Config) { c.Session.RunnerConcurrency = -1 },
	}
	for i, mutate := range bad {
		cfg := base
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	t.Setenv("SKYLINK_STORAGE_DRIVER", "postgres")
	cfg, err := Decode(New())
	if err != nil {
		t.Fatalf("decode with env: %v", err)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Fatalf("expected env driver, got %q", cfg.Storage.Driver)
	}
}
