package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
}

func TestLoadValidFile(t *testing.T) {
	content := `
server:
  udp_port: 9000
  bind_address: "127.0.0.1"
audio:
  sample_rate: 8000
  chunk_ms: 20
  stream_timeout: 2.5
status:
  path: "status.txt"
logging:
  level: "debug"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.UDPPort != 9000 {
		t.Errorf("UDPPort = %d, want 9000", cfg.Server.UDPPort)
	}
	if cfg.Audio.ChunkMS != 20 {
		t.Errorf("ChunkMS = %d, want 20", cfg.Audio.ChunkMS)
	}
	if cfg.Audio.StreamTimeout != 2.5 {
		t.Errorf("StreamTimeout = %f, want 2.5", cfg.Audio.StreamTimeout)
	}

	// Sections absent from the file keep their defaults.
	if cfg.Server.Workers != 4 {
		t.Errorf("Workers = %d, want default 4", cfg.Server.Workers)
	}
	if cfg.Pan.EdgeMargin != 0.1 {
		t.Errorf("EdgeMargin = %f, want default 0.1", cfg.Pan.EdgeMargin)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [broken"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for malformed yaml, got nil")
	}
	if !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "udp port zero",
			mutate:  func(c *Config) { c.Server.UDPPort = 0 },
			wantErr: "udp_port",
		},
		{
			name:    "empty bind address",
			mutate:  func(c *Config) { c.Server.BindAddress = "" },
			wantErr: "bind_address",
		},
		{
			name:    "tiny read buffer",
			mutate:  func(c *Config) { c.Server.ReadBuffer = 100 },
			wantErr: "read_buffer",
		},
		{
			name:    "no workers",
			mutate:  func(c *Config) { c.Server.Workers = 0 },
			wantErr: "workers",
		},
		{
			name:    "http enabled without port",
			mutate:  func(c *Config) { c.HTTP.Enabled = true; c.HTTP.Port = 0 },
			wantErr: "http port",
		},
		{
			name:    "sample rate too low",
			mutate:  func(c *Config) { c.Audio.SampleRate = 4000 },
			wantErr: "sample_rate",
		},
		{
			name:    "chunk not whole samples",
			mutate:  func(c *Config) { c.Audio.SampleRate = 22050; c.Audio.ChunkMS = 25 },
			wantErr: "whole number of samples",
		},
		{
			name:    "negative stream timeout",
			mutate:  func(c *Config) { c.Audio.StreamTimeout = -1 },
			wantErr: "stream_timeout",
		},
		{
			name:    "ring too small",
			mutate:  func(c *Config) { c.Audio.MaxBufferChunks = 1 },
			wantErr: "max_buffer_chunks",
		},
		{
			name:    "edge margin half",
			mutate:  func(c *Config) { c.Pan.EdgeMargin = 0.5 },
			wantErr: "edge_margin",
		},
		{
			name:    "empty status path",
			mutate:  func(c *Config) { c.Status.Path = "" },
			wantErr: "path cannot be empty",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "level must be one of",
		},
		{
			name:    "log output stdout",
			mutate:  func(c *Config) { c.Logging.Output = "stdout" },
			wantErr: "audio stream owns it",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()

	if got := cfg.Audio.ChunkFrames(); got != 320 {
		t.Errorf("ChunkFrames = %d, want 320 (40ms at 8kHz)", got)
	}
	if got := cfg.Audio.ChunkDuration(); got != 40*time.Millisecond {
		t.Errorf("ChunkDuration = %v, want 40ms", got)
	}
	if got := cfg.Audio.StreamTimeoutDuration(); got != 5*time.Second {
		t.Errorf("StreamTimeoutDuration = %v, want 5s", got)
	}
	if got := cfg.Audio.SweepInterval(); got != 250*time.Millisecond {
		t.Errorf("SweepInterval = %v, want 250ms", got)
	}
	if got := cfg.Status.Interval(); got != time.Second {
		t.Errorf("Status.Interval = %v, want 1s", got)
	}
}
