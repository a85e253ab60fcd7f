// Package config loads the framebench run configuration. The configuration
// is read once at start and is immutable for the duration of the run.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config represents the complete framebench configuration
type Config struct {
	Capture    CaptureConfig    `json:"capture" yaml:"capture" toml:"capture"`
	Buffer     BufferConfig     `json:"buffer" yaml:"buffer" toml:"buffer"`
	Processing ProcessingConfig `json:"processing" yaml:"processing" toml:"processing"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics" toml:"metrics"`
	Display    DisplayConfig    `json:"display" yaml:"display" toml:"display"`
	Run        RunConfig        `json:"run" yaml:"run" toml:"run"`
	Log        LogConfig        `json:"log" yaml:"log" toml:"log"`
}

// CaptureConfig selects the device and the capture method
type CaptureConfig struct {
	Device     string  `json:"device" yaml:"device" toml:"device"`             // synthetic, gstreamer
	Source     string  `json:"source" yaml:"source" toml:"source"`             // gstreamer: "test" or /dev/videoN
	Method     string  `json:"method" yaml:"method" toml:"method"`             // video-element, grab-frame, take-photo, on-frame
	Resolution string  `json:"resolution" yaml:"resolution" toml:"resolution"` // 480p, 720p, 1080p
	FrameRate  float64 `json:"frame_rate" yaml:"frame_rate" toml:"frame_rate"` // device rate in Hz
	Buffers    int     `json:"buffers" yaml:"buffers" toml:"buffers"`          // device buffer ring
	Handles    bool    `json:"handles" yaml:"handles" toml:"handles"`          // emit external-handle frames
}

// BufferConfig sizes the push-buffered frame queue
type BufferConfig struct {
	Capacity int `json:"capacity" yaml:"capacity" toml:"capacity"`
}

// ProcessingConfig selects how frames reach the processing context
type ProcessingConfig struct {
	Encoding    string `json:"encoding" yaml:"encoding" toml:"encoding"` // raw, handle, noop
	Method      string `json:"method" yaml:"method" toml:"method"`       // handle only: offscreen, bitmap
	ReuseBuffer bool   `json:"reuse_buffer" yaml:"reuse_buffer" toml:"reuse_buffer"`
	Neuter      bool   `json:"neuter" yaml:"neuter" toml:"neuter"`
}

// MetricsConfig contains the aggregator constants and exporter output
type MetricsConfig struct {
	WindowMS       int    `json:"window_ms" yaml:"window_ms" toml:"window_ms"`                   // 1000 or 2000
	LatencySamples int    `json:"latency_samples" yaml:"latency_samples" toml:"latency_samples"` // 30 or 60
	Textfile       string `json:"textfile" yaml:"textfile" toml:"textfile"`                      // prometheus textfile path, optional
}

// DisplayConfig enables the result sinks
type DisplayConfig struct {
	Terminal       bool   `json:"terminal" yaml:"terminal" toml:"terminal"`
	SnapshotDir    string `json:"snapshot_dir" yaml:"snapshot_dir" toml:"snapshot_dir"`
	SnapshotFormat string `json:"snapshot_format" yaml:"snapshot_format" toml:"snapshot_format"` // png, jpeg
	SnapshotEvery  int    `json:"snapshot_every" yaml:"snapshot_every" toml:"snapshot_every"`
	LogEvery       int    `json:"log_every" yaml:"log_every" toml:"log_every"`
}

// RunConfig controls the loop
type RunConfig struct {
	Policy         string `json:"policy" yaml:"policy" toml:"policy"` // lenient, strict
	MaxIterations  uint64 `json:"max_iterations" yaml:"max_iterations" toml:"max_iterations"`
	WarmupS        int    `json:"warmup_s" yaml:"warmup_s" toml:"warmup_s"`
	StatsIntervalS int    `json:"stats_interval_s" yaml:"stats_interval_s" toml:"stats_interval_s"`
}

// LogConfig contains logger settings
type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`    // debug, info, warn, error
	Format string `json:"format" yaml:"format" toml:"format"` // text, json
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Capture: CaptureConfig{
			Device:     "synthetic",
			Source:     "test",
			Method:     "on-frame",
			Resolution: "720p",
			FrameRate:  30,
			Buffers:    3,
		},
		Buffer:     BufferConfig{Capacity: 2},
		Processing: ProcessingConfig{Encoding: "raw", Method: "bitmap"},
		Metrics:    MetricsConfig{WindowMS: 2000, LatencySamples: 60},
		Display: DisplayConfig{
			Terminal:       true,
			SnapshotFormat: "png",
			SnapshotEvery:  100,
			LogEvery:       100,
		},
		Run: RunConfig{Policy: "lenient", StatsIntervalS: 5},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file based on its extension and overlays it on
// Default(). Supports: .yaml/.yml, .json, .toml
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("empty config path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
