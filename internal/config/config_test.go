package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tanq16/parafetch/internal/utils"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Connections != 8 {
		t.Errorf("expected default connections 8, got %d", cfg.Connections)
	}
	if cfg.MaxJobs != 10 || cfg.MaxScheduled != 5 {
		t.Errorf("unexpected pool sizes %d/%d", cfg.MaxJobs, cfg.MaxScheduled)
	}
	if cfg.BufferSize != 8192 {
		t.Errorf("expected buffer 8192, got %d", cfg.BufferSize)
	}
	if cfg.ProgressInterval != 500*time.Millisecond {
		t.Errorf("expected progress interval 500ms, got %v", cfg.ProgressInterval)
	}
	if cfg.OnConflict != utils.CollisionOverwrite {
		t.Errorf("expected overwrite policy, got %s", cfg.OnConflict)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
save_dir: /srv/downloads
connections: 4
max_jobs: 3
multi_threshold: 4MiB
buffer_size: 64KB
progress_interval: 250ms
on_conflict: rename
http:
  timeout: 30s
  proxy: http://proxy.local:3128
  user_agent: test-agent
  headers:
    X-Token: abc
ftp:
  timeout: 10s
s3:
  profile: backups
  region: eu-west-1
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.SaveDir != "/srv/downloads" || cfg.Connections != 4 || cfg.MaxJobs != 3 {
		t.Errorf("unexpected basics %+v", cfg)
	}
	if cfg.MaxScheduled != 5 {
		t.Errorf("unset field lost its default: %d", cfg.MaxScheduled)
	}
	if cfg.MultiThreshold != 4*1024*1024 || cfg.BufferSize != 64*1024 {
		t.Errorf("sizes = %d / %d", cfg.MultiThreshold, cfg.BufferSize)
	}
	if cfg.ProgressInterval != 250*time.Millisecond {
		t.Errorf("progress interval = %v", cfg.ProgressInterval)
	}
	if cfg.OnConflict != utils.CollisionRename {
		t.Errorf("on_conflict = %s", cfg.OnConflict)
	}
	if cfg.HTTP.Timeout != 30*time.Second || cfg.HTTP.KATimeout != 90*time.Second {
		t.Errorf("http timeouts = %v / %v", cfg.HTTP.Timeout, cfg.HTTP.KATimeout)
	}
	if cfg.HTTP.ProxyURL != "http://proxy.local:3128" || cfg.HTTP.UserAgent != "test-agent" || cfg.HTTP.Headers["X-Token"] != "abc" {
		t.Errorf("http config = %+v", cfg.HTTP)
	}
	if cfg.FTPTimeout != 10*time.Second {
		t.Errorf("ftp timeout = %v", cfg.FTPTimeout)
	}
	if cfg.S3.Profile != "backups" || cfg.S3.Region != "eu-west-1" {
		t.Errorf("s3 = %+v", cfg.S3)
	}

	opts := cfg.EngineOptions()
	if opts.Connections != 4 || opts.BufferSize != 64*1024 || opts.ProgressInterval != 250*time.Millisecond {
		t.Errorf("engine options = %+v", opts)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad size", "buffer_size: lots\n", "buffer_size"},
		{"bad duration", "progress_interval: soon\n", "progress_interval"},
		{"bad policy", "on_conflict: skip\n", "on_conflict"},
		{"too many connections", "connections: 500\n", "connections"},
		{"bad yaml", "connections: [1,\n", "parse config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			os.WriteFile(path, []byte(tt.content), 0644)
			_, err := LoadFromFile(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PARAFETCH_CONNECTIONS", "2")
	t.Setenv("PARAFETCH_SAVE_DIR", "/tmp/x")
	t.Setenv("PARAFETCH_S3_PROFILE", "dev")
	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Connections != 2 || cfg.SaveDir != "/tmp/x" || cfg.S3.Profile != "dev" {
		t.Errorf("env not applied: %+v", cfg)
	}

	t.Setenv("PARAFETCH_CONNECTIONS", "many")
	if err := cfg.LoadFromEnv(); err == nil {
		t.Fatal("expected parse error")
	}
}
