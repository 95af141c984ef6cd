// Package config loads facewatch configuration.
//
// Priority (highest to lowest): CLI flags > FACEWATCH_* environment
// variables > config file > defaults. The default file is
// ~/.facewatch/config.json and may be absent.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/teslashibe/facewatch/pkg/camera"
	"github.com/teslashibe/facewatch/pkg/detection"
	"github.com/teslashibe/facewatch/pkg/monitor"
	"github.com/teslashibe/facewatch/pkg/scheduler"
)

// DefaultListen is the overlay server address.
const DefaultListen = "127.0.0.1:7420"

// Config is the complete daemon configuration.
type Config struct {
	Listen    string
	LogLevel  string
	LogFormat string
	Preset    string
	Monitor   monitor.Config
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:   DefaultListen,
		LogLevel: "info",
		Preset:   camera.PresetDefault,
		Monitor:  monitor.DefaultConfig(),
	}
}

// Timing holds every duration, in milliseconds, so the file stays plain JSON.
type Timing struct {
	AbsenceWindowMs int64 `json:"absence_window_ms,omitempty"`
	TickIntervalMs  int64 `json:"tick_interval_ms,omitempty"`
	PushTimeoutMs   int64 `json:"push_timeout_ms,omitempty"`
	PausedRetryMs   int64 `json:"paused_retry_ms,omitempty"`
	ReadTimeoutMs   int64 `json:"read_timeout_ms,omitempty"`
}

// File is the on-disk layout of config.json.
type File struct {
	Listen    string           `json:"listen,omitempty"`
	LogLevel  string           `json:"log_level,omitempty"`
	LogFormat string           `json:"log_format,omitempty"`
	Preset    string           `json:"preset,omitempty"`
	Camera    camera.Config    `json:"camera"`
	Detection detection.Config `json:"detection"`
	Scheduler schedulerFile    `json:"scheduler"`
	Timing    Timing           `json:"timing"`
}

type schedulerFile struct {
	Strategy         string  `json:"strategy,omitempty"`
	ConfidenceThresh float64 `json:"confidence_threshold,omitempty"`
}

// DefaultPath returns ~/.facewatch/config.json.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".facewatch", "config.json")
	}
	return filepath.Join(homeDir, ".facewatch", "config.json")
}

// Load reads the config file at path over the defaults and applies the
// environment. An empty path means DefaultPath, which may be missing;
// an explicit path must exist.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.merge(data); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// merge overlays a config file. Fields absent from the file keep their
// current values.
func (c *Config) merge(data []byte) error {
	var probe struct {
		Preset string `json:"preset"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Preset != "" {
		if err := c.UsePreset(probe.Preset); err != nil {
			return err
		}
	}

	f := c.toFile()
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	c.fromFile(f)
	return nil
}

// UsePreset replaces the camera settings with a named preset.
func (c *Config) UsePreset(name string) error {
	preset := camera.GetPreset(name)
	if preset == nil {
		return fmt.Errorf("unknown camera preset %q (have %v)", name, camera.PresetNames())
	}
	readTimeout := c.Monitor.Camera.ReadTimeout
	c.Monitor.Camera = *preset
	c.Monitor.Camera.ReadTimeout = readTimeout
	c.Preset = name
	return nil
}

func (c *Config) toFile() File {
	m := c.Monitor
	return File{
		Listen:    c.Listen,
		LogLevel:  c.LogLevel,
		LogFormat: c.LogFormat,
		Preset:    c.Preset,
		Camera:    m.Camera,
		Detection: m.Detection,
		Scheduler: schedulerFile{
			Strategy:         string(m.Scheduler.Strategy),
			ConfidenceThresh: m.Scheduler.ConfidenceThresh,
		},
		Timing: Timing{
			AbsenceWindowMs: m.Presence.AbsenceWindow.Milliseconds(),
			TickIntervalMs:  m.Scheduler.TickInterval.Milliseconds(),
			PushTimeoutMs:   m.Scheduler.PushTimeout.Milliseconds(),
			PausedRetryMs:   m.Scheduler.PausedRetry.Milliseconds(),
			ReadTimeoutMs:   m.Camera.ReadTimeout.Milliseconds(),
		},
	}
}

func (c *Config) fromFile(f File) {
	c.Listen = f.Listen
	c.LogLevel = f.LogLevel
	c.LogFormat = f.LogFormat
	c.Preset = f.Preset

	m := &c.Monitor
	prevDetection, prevScheduler := m.Detection.ConfidenceThresh, m.Scheduler.ConfidenceThresh
	m.Camera = f.Camera
	m.Detection = f.Detection
	m.Scheduler.Strategy = scheduler.Strategy(f.Scheduler.Strategy)

	// One threshold drives both the detector and the scheduler. The
	// scheduler section wins when a file sets both.
	switch {
	case f.Scheduler.ConfidenceThresh != prevScheduler:
		c.SetConfidence(f.Scheduler.ConfidenceThresh)
	case f.Detection.ConfidenceThresh != prevDetection:
		c.SetConfidence(f.Detection.ConfidenceThresh)
	default:
		c.SetConfidence(prevScheduler)
	}

	m.Presence.AbsenceWindow = ms(f.Timing.AbsenceWindowMs)
	m.Scheduler.TickInterval = ms(f.Timing.TickIntervalMs)
	m.Scheduler.PushTimeout = ms(f.Timing.PushTimeoutMs)
	m.Scheduler.PausedRetry = ms(f.Timing.PausedRetryMs)
	m.Camera.ReadTimeout = ms(f.Timing.ReadTimeoutMs)
	normalizeDetection(&m.Detection)
}

// Marshal renders cfg in the config file format.
func Marshal(cfg Config) ([]byte, error) {
	return json.MarshalIndent(cfg.toFile(), "", "  ")
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return c.Monitor.Validate()
}

// normalizeDetection swaps in the SSD weights when the backend was
// switched to ssd but the URLs still point at the YuNet defaults.
func normalizeDetection(d *detection.Config) {
	if d.Backend != detection.BackendSSD {
		return
	}
	ssd := detection.SSDConfig()
	if d.ModelURL == detection.DefaultYuNetURL || d.ModelURL == "" {
		d.ModelURL = ssd.ModelURL
	}
	if d.ProtoURL == "" {
		d.ProtoURL = ssd.ProtoURL
	}
}

func ms(v int64) time.Duration {
	return time.Duration(v) * time.Millisecond
}
