// Package camera acquires a live video stream from a local capture device
// and publishes JPEG frames to a Surface for the inference scheduler and
// the overlay preview.
//
// This package supports multiple backends:
//   - gocv (OpenCV VideoCapture) - default, any platform OpenCV supports
//   - v4l2 (Linux only) - direct MJPEG capture, no OpenCV in the capture path
//   - mock - CI/testing without hardware
package camera

import (
	"fmt"
	"time"
)

// Backend represents the capture backend type.
type Backend string

const (
	// BackendAuto picks the best available backend.
	BackendAuto Backend = "auto"
	// BackendGoCV uses OpenCV's VideoCapture.
	BackendGoCV Backend = "gocv"
	// BackendV4L2 talks to a Video4Linux2 device directly.
	BackendV4L2 Backend = "v4l2"
	// BackendMock generates synthetic frames.
	BackendMock Backend = "mock"
)

// PreviewMode controls whether preview frames reach the overlay.
type PreviewMode string

const (
	// PreviewVisible broadcasts the preview to overlay clients.
	PreviewVisible PreviewMode = "visible"
	// PreviewHidden keeps capturing but never broadcasts frames.
	PreviewHidden PreviewMode = "hidden"
)

// Config holds capture configuration.
type Config struct {
	// Backend specifies which capture backend to use.
	Backend Backend `json:"backend"`

	// Device identifies the capture device.
	// Examples: "0" (first camera), "/dev/video2".
	Device string `json:"device"`

	// Resolution and rate requested from the device. Devices may
	// negotiate something else; the stream reports what it got.
	Width     int `json:"width"`
	Height    int `json:"height"`
	Framerate int `json:"framerate"`

	// Quality is the JPEG quality (1-100) used when encoding frames.
	Quality int `json:"quality"`

	// Mirror flips frames horizontally, matching a selfie-style preview.
	Mirror bool `json:"mirror"`

	// Preview selects visible or hidden preview.
	Preview PreviewMode `json:"preview"`

	// ReadTimeout bounds a single wait for a frame. A timeout marks the
	// stream paused rather than ended.
	ReadTimeout time.Duration `json:"-"`

	// MaxReadFailures is how many consecutive read failures end the stream.
	MaxReadFailures int `json:"max_read_failures"`
}

// DefaultConfig returns the overlay defaults: a small 320x240 capture.
func DefaultConfig() Config {
	return Config{
		Backend:         BackendAuto,
		Device:          "0",
		Width:           320,
		Height:          240,
		Framerate:       30,
		Quality:         80,
		Mirror:          true,
		Preview:         PreviewVisible,
		ReadTimeout:     time.Second,
		MaxReadFailures: 30,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendGoCV, BackendV4L2, BackendMock:
	default:
		return fmt.Errorf("unknown camera backend %q", c.Backend)
	}
	if c.Width < 16 || c.Height < 16 {
		return fmt.Errorf("resolution too small: %dx%d", c.Width, c.Height)
	}
	if c.Framerate < 1 || c.Framerate > 120 {
		return fmt.Errorf("framerate must be between 1 and 120, got %d", c.Framerate)
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", c.Quality)
	}
	switch c.Preview {
	case PreviewVisible, PreviewHidden:
	default:
		return fmt.Errorf("preview must be visible or hidden, got %q", c.Preview)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive, got %v", c.ReadTimeout)
	}
	if c.MaxReadFailures < 1 {
		return fmt.Errorf("max_read_failures must be at least 1, got %d", c.MaxReadFailures)
	}
	return nil
}

// FrameInterval is the nominal time between frames.
func (c *Config) FrameInterval() time.Duration {
	if c.Framerate <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(c.Framerate)
}
