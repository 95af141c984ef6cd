// Package monitor mounts the face-presence pipeline: it acquires the
// camera, loads the detection model, schedules inference and debounces
// the results, and tears all of it down in one place.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/teslashibe/facewatch/pkg/camera"
	"github.com/teslashibe/facewatch/pkg/detection"
	"github.com/teslashibe/facewatch/pkg/presence"
	"github.com/teslashibe/facewatch/pkg/scheduler"
)

// ErrAlreadyMounted is returned by Mount on a monitor that was mounted
// before. Create a new Monitor to remount.
var ErrAlreadyMounted = errors.New("monitor: already mounted")

// ErrUnmounted is returned by Mount on a monitor that was already torn down.
var ErrUnmounted = errors.New("monitor: unmounted")

// Config groups the configuration of each stage.
type Config struct {
	Camera    camera.Config    `json:"camera"`
	Detection detection.Config `json:"detection"`
	Scheduler scheduler.Config `json:"scheduler"`
	Presence  presence.Config  `json:"presence"`
}

// DefaultConfig returns defaults for every stage.
func DefaultConfig() Config {
	return Config{
		Camera:    camera.DefaultConfig(),
		Detection: detection.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Presence:  presence.DefaultConfig(),
	}
}

// Validate checks every stage.
func (c *Config) Validate() error {
	if err := c.Camera.Validate(); err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	if err := c.Detection.Validate(); err != nil {
		return fmt.Errorf("detection: %w", err)
	}
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if err := c.Presence.Validate(); err != nil {
		return fmt.Errorf("presence: %w", err)
	}
	return nil
}

// ModelLoader makes a detector ready. detection.Load is the default.
type ModelLoader func(ctx context.Context, cfg detection.Config, logger *slog.Logger) (detection.Detector, error)

// Deps are the monitor's collaborators. Zero values select the real ones.
type Deps struct {
	OpenCamera camera.Opener
	LoadModel  ModelLoader
	Clock      clock.Clock
	Sink       EventSink
}

// Monitor is one mounted instance of the pipeline.
type Monitor struct {
	id     string
	cfg    Config
	deps   Deps
	logger *slog.Logger

	alive    atomic.Bool
	finished bool
	cancel   context.CancelFunc
	done     chan struct{}

	mountOnce    sync.Once
	teardownOnce sync.Once

	// mu guards the snapshot, the lifecycle fields above and the
	// resources below. It is never held while calling into the debouncer.
	mu           sync.Mutex
	snap         Snapshot
	stream       camera.Stream
	detector     detection.Detector
	debouncer    *presence.Debouncer
	unsubPreview func()
}

// New creates an unmounted monitor.
func New(cfg Config, deps Deps, logger *slog.Logger) *Monitor {
	if deps.OpenCamera == nil {
		deps.OpenCamera = camera.Open
	}
	if deps.LoadModel == nil {
		deps.LoadModel = detection.Load
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Sink == nil {
		deps.Sink = NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	m := &Monitor{
		id:     id,
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "monitor", "instance", id[:8]),
	}
	m.snap = Snapshot{
		Instance:     id,
		Availability: AvailabilityStarting,
		Preview:      cfg.Camera.Preview,
		Mirror:       cfg.Camera.Mirror,
		Since:        deps.Clock.Now(),
		UpdatedAt:    deps.Clock.Now(),
	}
	return m
}

// ID returns the instance id.
func (m *Monitor) ID() string {
	return m.id
}

// Config returns the configuration the monitor was built with.
func (m *Monitor) Config() Config {
	return m.cfg
}

// Snapshot returns the current state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Alive reports whether the monitor is mounted and not torn down.
func (m *Monitor) Alive() bool {
	return m.alive.Load()
}

// Mount starts the pipeline in the background and returns immediately.
// Failures are reported through the snapshot, never to the caller.
// Canceling ctx tears the monitor down like Unmount.
func (m *Monitor) Mount(ctx context.Context) error {
	mounted := false
	m.mountOnce.Do(func() {
		mounted = true
		done := make(chan struct{})
		m.mu.Lock()
		ctx, m.cancel = context.WithCancel(ctx)
		m.done = done
		m.alive.Store(true)
		m.mu.Unlock()

		go func() {
			defer close(done)
			m.run(ctx)
			// A failed stage leaves the preview up until the owner leaves.
			<-ctx.Done()
			m.teardownOnce.Do(m.teardown)
		}()
	})
	if mounted {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished {
		return ErrUnmounted
	}
	return ErrAlreadyMounted
}

// Done is closed once the monitor has been torn down and its pipeline
// goroutine has exited. It is nil before Mount.
func (m *Monitor) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

func (m *Monitor) run(ctx context.Context) {
	m.logger.Info("mounting",
		"camera", m.cfg.Camera.Backend,
		"model", m.cfg.Detection.Backend,
		"strategy", m.cfg.Scheduler.Strategy,
		"absence_window", m.cfg.Presence.AbsenceWindow,
	)
	m.emit(func(s *Snapshot) {})

	stream, err := m.deps.OpenCamera(ctx, m.cfg.Camera, m.logger)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Error("camera unavailable", "error", err)
		m.emit(func(s *Snapshot) {
			s.Availability = AvailabilityCameraUnavailable
			s.LastError = err.Error()
		})
		return
	}
	if !m.adopt(func() { m.stream = stream }) {
		stream.Stop()
		return
	}
	m.logger.Info("camera acquired", "backend", stream.Name(), "width", stream.Width(), "height", stream.Height())

	if m.cfg.Camera.Preview != camera.PreviewHidden {
		unsub := stream.Surface().Subscribe(func(f camera.Frame) {
			if m.alive.Load() {
				m.deps.Sink.OnPreview(f)
			}
		})
		if !m.adopt(func() { m.unsubPreview = unsub }) {
			unsub()
			return
		}
	}

	m.emit(func(s *Snapshot) {
		s.Availability = AvailabilityLoading
		s.Camera = stream.Name()
		s.Width = stream.Width()
		s.Height = stream.Height()
	})

	det, err := m.deps.LoadModel(ctx, m.cfg.Detection, m.logger)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// The preview keeps running; only inference is off.
		m.logger.Error("model unavailable", "error", err)
		m.emit(func(s *Snapshot) {
			s.Availability = AvailabilityModelUnavailable
			s.LastError = err.Error()
		})
		return
	}
	if !m.adopt(func() { m.detector = det }) {
		det.Close()
		return
	}

	deb := presence.New(m.cfg.Presence, m.deps.Clock, m.logger)
	deb.Subscribe(func(t presence.Transition) {
		m.emit(func(s *Snapshot) {
			s.Presence = t.To
			s.Since = t.At
		})
	})
	if !m.adopt(func() { m.debouncer = deb }) {
		deb.Close()
		return
	}

	sched := scheduler.New(m.cfg.Scheduler, det,
		scheduler.NewSource(m.cfg.Scheduler, stream, m.deps.Clock),
		&resultSink{m: m, debouncer: deb},
		scheduler.WithClock(m.deps.Clock),
		scheduler.WithLogger(m.logger),
	)

	state, since := deb.State(), deb.Since()
	m.emit(func(s *Snapshot) {
		s.Availability = AvailabilityMonitoring
		s.Presence = state
		s.Since = since
		s.LastError = ""
	})

	if err := sched.Run(ctx); err != nil {
		m.logger.Error("scheduler exited", "error", err)
	}
}

// adopt hands a resource to the monitor for teardown. It returns false if
// teardown already ran, in which case the caller releases the resource.
func (m *Monitor) adopt(set func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.alive.Load() {
		return false
	}
	set()
	return true
}

// emit applies fn to the snapshot and publishes the result. It does
// nothing once the monitor is no longer alive.
func (m *Monitor) emit(fn func(s *Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.alive.Load() {
		return
	}
	fn(&m.snap)
	m.snap.Version++
	m.snap.UpdatedAt = m.deps.Clock.Now()
	m.deps.Sink.OnSnapshot(m.snap)
}

// Unmount tears the pipeline down and waits for it to exit. Every exit
// path goes through here; it is safe to call more than once, or without
// a prior Mount.
func (m *Monitor) Unmount() {
	m.teardownOnce.Do(m.teardown)
	if done := m.Done(); done != nil {
		<-done
	}
}

func (m *Monitor) teardown() {
	// Closes the mount window so a later Mount cannot start a pipeline
	// nobody will tear down.
	m.mountOnce.Do(func() {})

	m.mu.Lock()
	m.finished = true
	m.alive.Store(false)
	if m.cancel != nil {
		m.cancel()
	}
	stream, det, deb, unsub := m.stream, m.detector, m.debouncer, m.unsubPreview
	m.stream, m.detector, m.debouncer, m.unsubPreview = nil, nil, nil, nil

	m.snap.Availability = AvailabilityStopped
	m.snap.Version++
	m.snap.UpdatedAt = m.deps.Clock.Now()
	final := m.snap
	m.mu.Unlock()

	if deb != nil {
		deb.Close()
	}
	if unsub != nil {
		unsub()
	}
	if stream != nil {
		if err := stream.Stop(); err != nil {
			m.logger.Warn("stream stop failed", "error", err)
		}
	}
	if det != nil {
		if err := det.Close(); err != nil {
			m.logger.Warn("model close failed", "error", err)
		}
	}

	m.deps.Sink.OnSnapshot(final)
	m.logger.Info("unmounted", "frames", final.Frames, "inference_errors", final.InferenceErrors)
}

// resultSink feeds scheduler output into the debouncer and snapshot.
type resultSink struct {
	m         *Monitor
	debouncer *presence.Debouncer
}

func (r *resultSink) OnResult(res scheduler.Result) {
	if !r.m.alive.Load() {
		return
	}
	r.debouncer.Observe(res.Present)
	r.m.emit(func(s *Snapshot) {
		s.Frames++
		s.Confidence = res.Confidence
		s.Faces = res.Faces
	})
	r.m.logger.Debug("result",
		"seq", res.Seq,
		"present", res.Present,
		"confidence", fmt.Sprintf("%.2f", res.Confidence),
		"latency", res.Latency.Round(time.Millisecond),
	)
}

func (r *resultSink) OnInferenceError(err error) {
	if !r.m.alive.Load() {
		return
	}
	r.m.emit(func(s *Snapshot) {
		s.InferenceErrors++
		s.LastError = err.Error()
	})
}
