package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	HTTP    HTTPConfig    `yaml:"http"`
	Audio   AudioConfig   `yaml:"audio"`
	Pan     PanConfig     `yaml:"pan"`
	Status  StatusConfig  `yaml:"status"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains UDP server configuration
type ServerConfig struct {
	UDPPort     int    `yaml:"udp_port"`
	BindAddress string `yaml:"bind_address"`
	ReadBuffer  int    `yaml:"read_buffer"`
	QueueSize   int    `yaml:"queue_size"`
	Workers     int    `yaml:"workers"`
}

// HTTPConfig contains the monitoring HTTP API configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// AudioConfig contains the audio format and timing parameters
type AudioConfig struct {
	SampleRate      int     `yaml:"sample_rate"`       // Hz, mono input and quad output
	ChunkMS         int     `yaml:"chunk_ms"`          // output block duration
	StreamTimeout   float64 `yaml:"stream_timeout"`    // seconds of inactivity before a call is culled
	SweepIntervalMS int     `yaml:"sweep_interval_ms"` // how often the timeout sweep runs
	MaxBufferChunks int     `yaml:"max_buffer_chunks"` // mix ring capacity in output blocks
	KeepaliveFloor  int     `yaml:"keepalive_floor"`   // audio payloads under this many bytes only refresh activity
}

// PanConfig contains pan assignment parameters
type PanConfig struct {
	EdgeMargin float64 `yaml:"edge_margin"` // keeps coordinates away from 100% corners
}

// StatusConfig contains the active-talkgroups status file configuration
type StatusConfig struct {
	Path       string `yaml:"path"`
	IntervalMS int    `yaml:"interval_ms"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no config file is given.
// The values match a stock trunk-recorder simpleStream setup: 8 kHz s16le
// mono in, 40 ms output blocks, 5 s stream timeout.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			UDPPort:     7355,
			BindAddress: "0.0.0.0",
			ReadBuffer:  1048576,
			QueueSize:   1000,
			Workers:     4,
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Address: "127.0.0.1",
			Port:    8080,
		},
		Audio: AudioConfig{
			SampleRate:      8000,
			ChunkMS:         40,
			StreamTimeout:   5.0,
			SweepIntervalMS: 250,
			MaxBufferChunks: 8,
			KeepaliveFloor:  100,
		},
		Pan: PanConfig{
			EdgeMargin: 0.1,
		},
		Status: StatusConfig{
			Path:       "active-talkgroups.txt",
			IntervalMS: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Pan.Validate(); err != nil {
		return fmt.Errorf("pan config: %w", err)
	}

	if err := c.Status.Validate(); err != nil {
		return fmt.Errorf("status config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.ReadBuffer < 1024 {
		return fmt.Errorf("read_buffer must be at least 1024 bytes, got %d", s.ReadBuffer)
	}

	if s.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", s.QueueSize)
	}

	if s.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", s.Workers)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.ChunkMS < 10 || a.ChunkMS > 500 {
		return fmt.Errorf("chunk_ms must be between 10 and 500, got %d", a.ChunkMS)
	}

	if a.SampleRate*a.ChunkMS%1000 != 0 {
		return fmt.Errorf("chunk_ms %d does not yield a whole number of samples at %d Hz", a.ChunkMS, a.SampleRate)
	}

	if a.StreamTimeout <= 0 {
		return fmt.Errorf("stream_timeout must be positive, got %f", a.StreamTimeout)
	}

	if a.SweepIntervalMS < 50 {
		return fmt.Errorf("sweep_interval_ms must be at least 50, got %d", a.SweepIntervalMS)
	}

	if a.MaxBufferChunks < 2 {
		return fmt.Errorf("max_buffer_chunks must be at least 2, got %d", a.MaxBufferChunks)
	}

	if a.KeepaliveFloor < 0 {
		return fmt.Errorf("keepalive_floor cannot be negative, got %d", a.KeepaliveFloor)
	}

	return nil
}

// Validate validates pan configuration
func (p *PanConfig) Validate() error {
	if p.EdgeMargin < 0 || p.EdgeMargin >= 0.5 {
		return fmt.Errorf("edge_margin must be in [0, 0.5), got %f", p.EdgeMargin)
	}

	return nil
}

// Validate validates status file configuration
func (s *StatusConfig) Validate() error {
	if s.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	if s.IntervalMS < 100 {
		return fmt.Errorf("interval_ms must be at least 100, got %d", s.IntervalMS)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// stdout carries the PCM stream, logs must not be interleaved into it
	if l.Output == "stdout" {
		return fmt.Errorf("output cannot be 'stdout', the audio stream owns it")
	}

	return nil
}

// ChunkFrames returns the number of output frames in one pacing block.
func (a *AudioConfig) ChunkFrames() int {
	return a.SampleRate * a.ChunkMS / 1000
}

// ChunkDuration returns the pacing block duration as a time.Duration.
func (a *AudioConfig) ChunkDuration() time.Duration {
	return time.Duration(a.ChunkMS) * time.Millisecond
}

// StreamTimeoutDuration returns the stream timeout as a time.Duration.
func (a *AudioConfig) StreamTimeoutDuration() time.Duration {
	return time.Duration(a.StreamTimeout * float64(time.Second))
}

// SweepInterval returns the timeout sweep interval as a time.Duration.
func (a *AudioConfig) SweepInterval() time.Duration {
	return time.Duration(a.SweepIntervalMS) * time.Millisecond
}

// Interval returns the status rewrite interval as a time.Duration.
func (s *StatusConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMS) * time.Millisecond
}
