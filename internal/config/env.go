package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/teslashibe/facewatch/pkg/camera"
	"github.com/teslashibe/facewatch/pkg/detection"
	"github.com/teslashibe/facewatch/pkg/scheduler"
)

// EnvPrefix prefixes every environment variable the daemon reads.
const EnvPrefix = "FACEWATCH_"

// ApplyEnv applies FACEWATCH_* overrides read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	env := func(name string) string { return getenv(EnvPrefix + name) }

	if v := env("PRESET"); v != "" {
		if err := c.UsePreset(v); err != nil {
			return err
		}
	}

	setString(&c.Listen, env("LISTEN"))
	setString(&c.LogLevel, env("LOG_LEVEL"))
	setString(&c.LogFormat, env("LOG_FORMAT"))

	m := &c.Monitor
	if v := env("CAMERA_BACKEND"); v != "" {
		m.Camera.Backend = camera.Backend(v)
	}
	setString(&m.Camera.Device, env("DEVICE"))
	if v := env("PREVIEW"); v != "" {
		m.Camera.Preview = camera.PreviewMode(v)
	}
	if err := setBool(&m.Camera.Mirror, "MIRROR", env("MIRROR")); err != nil {
		return err
	}

	if v := env("MODEL_BACKEND"); v != "" {
		m.Detection.Backend = detection.Backend(v)
	}
	setString(&m.Detection.ModelURL, env("MODEL_URL"))
	setString(&m.Detection.ModelPath, env("MODEL_PATH"))
	setString(&m.Detection.CacheDir, env("CACHE_DIR"))

	if v := env("STRATEGY"); v != "" {
		m.Scheduler.Strategy = scheduler.Strategy(v)
	}
	if v := env("CONFIDENCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sCONFIDENCE: %w", EnvPrefix, err)
		}
		c.SetConfidence(f)
	}

	if err := setMillis(&m.Presence.AbsenceWindow, "ABSENCE_WINDOW_MS", env("ABSENCE_WINDOW_MS")); err != nil {
		return err
	}
	if err := setMillis(&m.Scheduler.TickInterval, "TICK_INTERVAL_MS", env("TICK_INTERVAL_MS")); err != nil {
		return err
	}

	normalizeDetection(&m.Detection)
	return nil
}

// SetConfidence sets the presence threshold used by both the detector and
// the scheduler.
func (c *Config) SetConfidence(v float64) {
	c.Monitor.Detection.ConfidenceThresh = v
	c.Monitor.Scheduler.ConfidenceThresh = v
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, name, v string) error {
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = b
	return nil
}

func setMillis(dst *time.Duration, name, v string) error {
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = time.Duration(n) * time.Millisecond
	return nil
}
