package detection

import (
	"sync"
	"sync/atomic"
	"time"
)

// MockResponse is one scripted Detect outcome.
type MockResponse struct {
	Detections []Detection
	Err        error
}

// MockDetector is a scripted detector for tests.
// Queued responses are returned in order, then the fallback forever.
type MockDetector struct {
	mu       sync.Mutex
	queue    []MockResponse
	fallback MockResponse
	delay    time.Duration
	gate     <-chan struct{}

	calls       atomic.Int64
	inflight    atomic.Int32
	maxInflight atomic.Int32
	closed      atomic.Bool
}

// MockOption configures a MockDetector.
type MockOption func(*MockDetector)

// WithFallback sets the response used once the queue is empty.
func WithFallback(resp MockResponse) MockOption {
	return func(m *MockDetector) {
		m.fallback = resp
	}
}

// WithDelay makes every Detect take at least d.
func WithDelay(d time.Duration) MockOption {
	return func(m *MockDetector) {
		m.delay = d
	}
}

// WithGate makes every Detect wait for a value (or close) on gate.
func WithGate(gate <-chan struct{}) MockOption {
	return func(m *MockDetector) {
		m.gate = gate
	}
}

// NewMockDetector creates a mock that reports no faces unless told otherwise.
func NewMockDetector(opts ...MockOption) *MockDetector {
	m := &MockDetector{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Face returns a centered detection with the given confidence.
func Face(confidence float64) Detection {
	return Detection{X: 0.35, Y: 0.3, W: 0.3, H: 0.4, Confidence: confidence}
}

// Enqueue appends scripted responses.
func (m *MockDetector) Enqueue(resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, resps...)
}

// SetFallback replaces the fallback response.
func (m *MockDetector) SetFallback(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = resp
}

// Detect returns the next scripted response.
func (m *MockDetector) Detect(jpeg []byte) ([]Detection, error) {
	if m.closed.Load() {
		return nil, ErrDetectorClosed
	}

	n := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		cur := m.maxInflight.Load()
		if n <= cur || m.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	m.calls.Add(1)

	if m.gate != nil {
		<-m.gate
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	resp := m.fallback
	if len(m.queue) > 0 {
		resp = m.queue[0]
		m.queue = m.queue[1:]
	}
	m.mu.Unlock()

	return resp.Detections, resp.Err
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.closed.Store(true)
	return nil
}

// Calls returns how many times Detect was called.
func (m *MockDetector) Calls() int {
	return int(m.calls.Load())
}

// MaxInFlight returns the highest number of concurrent Detect calls seen.
func (m *MockDetector) MaxInFlight() int {
	return int(m.maxInflight.Load())
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	return m.closed.Load()
}
