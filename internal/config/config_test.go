package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Formats(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"yaml", "bench.yaml", `
capture:
  method: grab-frame
  frame_rate: 60
processing:
  encoding: handle
  reuse_buffer: true
metrics:
  window_ms: 1000
  latency_samples: 30
`},
		{"toml", "bench.toml", `
[capture]
method = "grab-frame"
frame_rate = 60.0

[processing]
encoding = "handle"
reuse_buffer = true

[metrics]
window_ms = 1000
latency_samples = 30
`},
		{"json", "bench.json", `{
  "capture": {"method": "grab-frame", "frame_rate": 60},
  "processing": {"encoding": "handle", "reuse_buffer": true},
  "metrics": {"window_ms": 1000, "latency_samples": 30}
}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tt.file, tt.body))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Capture.Method != "grab-frame" || cfg.Capture.FrameRate != 60 {
				t.Errorf("capture = %+v", cfg.Capture)
			}
			if cfg.Processing.Encoding != "handle" || !cfg.Processing.ReuseBuffer {
				t.Errorf("processing = %+v", cfg.Processing)
			}
			if cfg.Metrics.WindowMS != 1000 || cfg.Metrics.LatencySamples != 30 {
				t.Errorf("metrics = %+v", cfg.Metrics)
			}
			// Untouched sections keep their defaults.
			if cfg.Buffer.Capacity != 2 || cfg.Capture.Device != "synthetic" || cfg.Log.Format != "text" {
				t.Errorf("defaults lost: buffer=%+v capture=%+v log=%+v", cfg.Buffer, cfg.Capture, cfg.Log)
			}
			t.Logf("✅ %s config loaded", tt.name)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeFile(t, "bench.ini", "x=1")); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("ini: got %v", err)
	}
	if _, err := Load(writeFile(t, "bench.yaml", "capture: [")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(writeFile(t, "bench.yaml", "metrics:\n  window_ms: 1500\n")); err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("window 1500: got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default is valid", func(*Config) {}, ""},
		{"zero config gets defaults", func(c *Config) { *c = Config{} }, ""},
		{"unknown device", func(c *Config) { c.Capture.Device = "webcam" }, "device"},
		{"unknown method", func(c *Config) { c.Capture.Method = "poll" }, "capture method"},
		{"unknown resolution", func(c *Config) { c.Capture.Resolution = "4k" }, "resolution"},
		{"one device buffer", func(c *Config) { c.Capture.Buffers = 1 }, "buffers"},
		{"negative capacity", func(c *Config) { c.Buffer.Capacity = -1 }, "buffer.capacity"},
		{"unknown encoding", func(c *Config) { c.Processing.Encoding = "base64" }, "encoding"},
		{"neuter offscreen", func(c *Config) { c.Processing.Method = "offscreen"; c.Processing.Neuter = true }, "neuter"},
		{"latency 45", func(c *Config) { c.Metrics.LatencySamples = 45 }, "latency_samples"},
		{"snapshot gif", func(c *Config) { c.Display.SnapshotFormat = "gif" }, "snapshot_format"},
		{"policy", func(c *Config) { c.Run.Policy = "yolo" }, "policy"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_FillsDefaults(t *testing.T) {
	cfg := &Config{}
	if err := Validate(cfg); err != nil {
		t.Fatal(err)
	}
	d := Default()
	if cfg.Capture.Method != d.Capture.Method || cfg.Processing.Encoding != d.Processing.Encoding ||
		cfg.Metrics.WindowMS != d.Metrics.WindowMS || cfg.Metrics.LatencySamples != d.Metrics.LatencySamples ||
		cfg.Buffer.Capacity != d.Buffer.Capacity {
		t.Errorf("filled = %+v", cfg)
	}
}
