package camera

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"
)

// MockStream is a capture stream for testing and camera-less demos.
// Frames are pushed by hand with Push or generated on a ticker.
type MockStream struct {
	*pump
	cfg Config

	mu       sync.Mutex
	interval time.Duration
	still    []byte

	stops atomic.Int32
}

// MockOption configures a MockStream.
type MockOption func(*MockStream)

// WithSyntheticFrames makes the mock publish a gray frame every interval.
func WithSyntheticFrames(interval time.Duration) MockOption {
	return func(m *MockStream) {
		m.interval = interval
	}
}

// NewMockStream creates a mock stream that is already active.
func NewMockStream(cfg Config, opts ...MockOption) *MockStream {
	m := &MockStream{
		pump: newPump(cfg.Width, cfg.Height),
		cfg:  cfg,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.still = SolidJPEG(cfg.Width, cfg.Height, color.RGBA{128, 128, 128, 255})
	m.surface.SetState(StateActive)

	go m.run()
	return m
}

func (m *MockStream) run() {
	defer func() {
		m.mu.Lock()
		m.finish()
		m.mu.Unlock()
	}()

	if m.interval <= 0 {
		<-m.stopCh
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Push(nil)
		}
	}
}

// Push publishes a frame. A nil jpeg publishes the synthetic still.
// Pushing to a stopped stream is a no-op.
func (m *MockStream) Push(jpeg []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopping() {
		return
	}
	if jpeg == nil {
		jpeg = m.still
	}
	m.publish(jpeg, m.width, m.height)
}

// Pause marks the surface paused, as if the device stalled.
func (m *MockStream) Pause() {
	m.surface.SetState(StatePaused)
}

// Resume marks the surface active again.
func (m *MockStream) Resume() {
	m.surface.SetState(StateActive)
}

// Name returns "mock".
func (m *MockStream) Name() string {
	return string(BackendMock)
}

// Stop ends the stream.
func (m *MockStream) Stop() error {
	m.stops.Add(1)
	m.stop()
	return nil
}

// Stops returns how many times Stop was called.
func (m *MockStream) Stops() int {
	return int(m.stops.Load())
}

// Stopped reports whether the stream has been stopped.
func (m *MockStream) Stopped() bool {
	return m.stopping()
}

// SolidJPEG encodes a single-color image. Useful for fixtures.
func SolidJPEG(width, height int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}
