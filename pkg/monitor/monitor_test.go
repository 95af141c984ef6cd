package monitor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/facewatch/internal/log"
	"github.com/teslashibe/facewatch/pkg/camera"
	"github.com/teslashibe/facewatch/pkg/detection"
	"github.com/teslashibe/facewatch/pkg/presence"
)

type recordingSink struct {
	mu       sync.Mutex
	snaps    []Snapshot
	previews int
}

func (r *recordingSink) OnSnapshot(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recordingSink) OnPreview(camera.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.previews++
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recordingSink) previewCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.previews
}

func (r *recordingSink) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

type fixture struct {
	cfg      Config
	stream   *camera.MockStream
	detector *detection.MockDetector
	sink     *recordingSink
	opens    atomic.Int32
	loads    atomic.Int32
	cameraFn func() (camera.Stream, error)
	modelFn  func(ctx context.Context) (detection.Detector, error)
}

func newFixture() *fixture {
	cfg := DefaultConfig()
	cfg.Camera.Backend = camera.BackendMock
	cfg.Detection.Backend = detection.BackendMock
	cfg.Scheduler.TickInterval = 5 * time.Millisecond
	cfg.Scheduler.PausedRetry = 10 * time.Millisecond
	cfg.Presence.AbsenceWindow = 60 * time.Millisecond

	f := &fixture{
		cfg:    cfg,
		stream: camera.NewMockStream(cfg.Camera, camera.WithSyntheticFrames(2*time.Millisecond)),
		detector: detection.NewMockDetector(detection.WithFallback(detection.MockResponse{
			Detections: []detection.Detection{detection.Face(0.9)},
		})),
		sink: &recordingSink{},
	}
	f.cameraFn = func() (camera.Stream, error) { return f.stream, nil }
	f.modelFn = func(context.Context) (detection.Detector, error) { return f.detector, nil }
	return f
}

func (f *fixture) deps() Deps {
	return Deps{
		OpenCamera: func(ctx context.Context, cfg camera.Config, logger *slog.Logger) (camera.Stream, error) {
			f.opens.Add(1)
			return f.cameraFn()
		},
		LoadModel: func(ctx context.Context, cfg detection.Config, logger *slog.Logger) (detection.Detector, error) {
			f.loads.Add(1)
			return f.modelFn(ctx)
		},
		Sink: f.sink,
	}
}

func (f *fixture) mount(t *testing.T) *Monitor {
	t.Helper()
	m := New(f.cfg, f.deps(), log.Discard())
	if err := m.Mount(context.Background()); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	t.Cleanup(m.Unmount)
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitAvailability(t *testing.T, m *Monitor, want Availability) {
	t.Helper()
	waitFor(t, string(want), func() bool { return m.Snapshot().Availability == want })
}

func TestMonitor_MonitorsPresence(t *testing.T) {
	f := newFixture()
	m := f.mount(t)

	waitAvailability(t, m, AvailabilityMonitoring)
	waitFor(t, "results", func() bool { return m.Snapshot().Frames >= 3 })

	s := m.Snapshot()
	if s.Presence != presence.Visible {
		t.Errorf("presence = %q, want VISIBLE", s.Presence)
	}
	if s.Confidence != 0.9 || s.Faces != 1 {
		t.Errorf("snapshot = %+v", s)
	}
	if s.Camera != "mock" || s.Width != 320 || s.Height != 240 {
		t.Errorf("camera info = %q %dx%d", s.Camera, s.Width, s.Height)
	}
	if f.sink.previewCount() == 0 {
		t.Error("no preview frames reached the sink")
	}

	f.detector.SetFallback(detection.MockResponse{})
	waitFor(t, "NOT_VISIBLE", func() bool { return m.Snapshot().Presence == presence.NotVisible })
	if !m.Snapshot().Alerting() {
		t.Error("snapshot should be alerting")
	}

	f.detector.SetFallback(detection.MockResponse{Detections: []detection.Detection{detection.Face(0.9)}})
	waitFor(t, "VISIBLE again", func() bool { return m.Snapshot().Presence == presence.Visible })
}

func TestMonitor_InferenceErrorsKeepMonitoring(t *testing.T) {
	f := newFixture()
	f.detector.Enqueue(
		detection.MockResponse{Err: errors.New("bad frame")},
		detection.MockResponse{Err: errors.New("bad frame")},
	)
	m := f.mount(t)

	waitFor(t, "results after errors", func() bool { return m.Snapshot().Frames >= 1 })
	s := m.Snapshot()
	if s.InferenceErrors != 2 {
		t.Errorf("InferenceErrors = %d, want 2", s.InferenceErrors)
	}
	if s.Availability != AvailabilityMonitoring || s.Presence != presence.Visible {
		t.Errorf("errors changed state: %+v", s)
	}
}

func TestMonitor_CameraDenied(t *testing.T) {
	f := newFixture()
	f.cameraFn = func() (camera.Stream, error) {
		return nil, &camera.Error{
			Kind:    camera.KindPermissionDenied,
			Device:  "/dev/video0",
			Backend: camera.BackendGoCV,
			Err:     os.ErrPermission,
		}
	}
	m := f.mount(t)

	waitAvailability(t, m, AvailabilityCameraUnavailable)
	time.Sleep(20 * time.Millisecond)

	s := m.Snapshot()
	if s.Presence != "" {
		t.Errorf("presence = %q, a monitor without a camera must not claim presence", s.Presence)
	}
	if !strings.Contains(s.LastError, "permission_denied") {
		t.Errorf("LastError = %q", s.LastError)
	}
	if f.loads.Load() != 0 {
		t.Error("model was loaded without a camera")
	}
	if f.detector.Calls() != 0 {
		t.Error("inference ran without a camera")
	}
	if s.Alerting() {
		t.Error("camera_unavailable must not show the absence banner")
	}
}

func TestMonitor_ModelLoadFails(t *testing.T) {
	f := newFixture()
	f.modelFn = func(context.Context) (detection.Detector, error) {
		return nil, &detection.ModelLoadError{Backend: detection.BackendYuNet, Source: "https://cdn.example/model.onnx", Err: errors.New("connection refused")}
	}
	m := f.mount(t)

	waitAvailability(t, m, AvailabilityModelUnavailable)

	before := f.sink.previewCount()
	waitFor(t, "preview to keep running", func() bool { return f.sink.previewCount() > before })

	time.Sleep(30 * time.Millisecond)
	s := m.Snapshot()
	if s.Availability != AvailabilityModelUnavailable {
		t.Errorf("availability = %s", s.Availability)
	}
	if s.Frames != 0 || s.Presence != "" {
		t.Errorf("results produced without a model: %+v", s)
	}
	if f.stream.Stopped() {
		t.Error("stream stopped before unmount")
	}

	m.Unmount()
	if !f.stream.Stopped() {
		t.Error("Unmount did not stop the stream")
	}
}

func TestMonitor_PreviewHidden(t *testing.T) {
	f := newFixture()
	f.cfg.Camera.Preview = camera.PreviewHidden
	m := f.mount(t)

	waitFor(t, "results", func() bool { return m.Snapshot().Frames >= 2 })
	if n := f.sink.previewCount(); n != 0 {
		t.Errorf("hidden preview sent %d frames", n)
	}
	if m.Snapshot().Preview != camera.PreviewHidden {
		t.Error("snapshot should report hidden preview")
	}
}

func TestMonitor_UnmountDuringModelLoad(t *testing.T) {
	f := newFixture()
	loading := make(chan struct{})
	f.modelFn = func(ctx context.Context) (detection.Detector, error) {
		close(loading)
		<-ctx.Done()
		return nil, &detection.ModelLoadError{Backend: detection.BackendYuNet, Source: "cdn", Err: ctx.Err()}
	}
	m := f.mount(t)

	<-loading
	m.Unmount()

	if !f.stream.Stopped() {
		t.Error("stream not stopped")
	}
	if got := m.Snapshot().Availability; got != AvailabilityStopped {
		t.Errorf("availability = %s, want stopped", got)
	}
	if f.detector.Calls() != 0 {
		t.Error("inference ran during teardown")
	}
}

func TestMonitor_UnmountDuringAbsenceCountdown(t *testing.T) {
	f := newFixture()
	f.cfg.Presence.AbsenceWindow = 150 * time.Millisecond
	f.detector.SetFallback(detection.MockResponse{})
	m := f.mount(t)

	waitFor(t, "absent results", func() bool { return m.Snapshot().Frames >= 1 })
	m.Unmount()

	count := f.sink.count()
	final := m.Snapshot()
	time.Sleep(250 * time.Millisecond)

	if m.Snapshot() != final {
		t.Error("snapshot mutated after teardown")
	}
	if f.sink.count() != count {
		t.Error("events emitted after teardown")
	}
	if final.Presence != presence.Visible {
		t.Errorf("presence = %s, countdown should not have completed", final.Presence)
	}
	if !f.detector.Closed() || !f.stream.Stopped() {
		t.Error("resources not released")
	}
}

func TestMonitor_UnmountMidInference(t *testing.T) {
	f := newFixture()
	gate := make(chan struct{})
	f.detector = detection.NewMockDetector(detection.WithGate(gate))
	m := f.mount(t)

	waitFor(t, "inference to start", func() bool { return f.detector.Calls() == 1 })
	m.Unmount()

	count := f.sink.count()
	close(gate)
	time.Sleep(30 * time.Millisecond)

	if f.sink.count() != count {
		t.Error("late inference result mutated state")
	}
	s := m.Snapshot()
	if s.Frames != 0 || s.Availability != AvailabilityStopped {
		t.Errorf("snapshot = %+v", s)
	}
	if f.sink.last().Availability != AvailabilityStopped {
		t.Error("last event should be the stopped snapshot")
	}
}

func TestMonitor_UnmountIsIdempotent(t *testing.T) {
	f := newFixture()
	m := f.mount(t)
	waitAvailability(t, m, AvailabilityMonitoring)

	m.Unmount()
	m.Unmount()

	if f.stream.Stops() != 1 {
		t.Errorf("stream stopped %d times, want 1", f.stream.Stops())
	}
	if m.Alive() {
		t.Error("monitor still alive")
	}

	unmounted := New(f.cfg, f.deps(), log.Discard())
	unmounted.Unmount()
}

func TestMonitor_MountTwice(t *testing.T) {
	f := newFixture()
	m := f.mount(t)
	if err := m.Mount(context.Background()); !errors.Is(err, ErrAlreadyMounted) {
		t.Errorf("second Mount = %v, want ErrAlreadyMounted", err)
	}
}

func TestMonitor_Remount(t *testing.T) {
	f := newFixture()
	first := f.mount(t)
	waitAvailability(t, first, AvailabilityMonitoring)
	first.Unmount()

	f.stream = camera.NewMockStream(f.cfg.Camera, camera.WithSyntheticFrames(2*time.Millisecond))
	f.detector = detection.NewMockDetector()
	second := f.mount(t)
	waitAvailability(t, second, AvailabilityMonitoring)

	if f.opens.Load() != 2 {
		t.Errorf("camera opened %d times, want 2", f.opens.Load())
	}
	if first.ID() == second.ID() {
		t.Error("instances share an id")
	}
}

func TestMonitor_ParentContextCanceled(t *testing.T) {
	f := newFixture()
	f.detector = detection.NewMockDetector()
	f.cfg.Presence.AbsenceWindow = 200 * time.Millisecond
	m := New(f.cfg, f.deps(), log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Mount(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Unmount)
	waitAvailability(t, m, AvailabilityMonitoring)
	waitFor(t, "absence countdown", func() bool { return f.detector.Calls() > 0 })

	cancel()
	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("monitor did not tear down on parent cancel")
	}
	if !f.stream.Stopped() {
		t.Error("stream not stopped")
	}
	if m.Alive() {
		t.Error("monitor still alive after parent cancel")
	}

	before := m.Snapshot()
	time.Sleep(3 * f.cfg.Presence.AbsenceWindow)
	after := m.Snapshot()
	if after.Availability != AvailabilityStopped {
		t.Errorf("availability = %s, want stopped", after.Availability)
	}
	if after.Presence != before.Presence || after.Version != before.Version {
		t.Errorf("snapshot changed after teardown: %+v -> %+v", before, after)
	}
	if after.Presence == presence.NotVisible || after.Alerting() {
		t.Error("absence fired after the parent context was canceled")
	}
}

func TestMonitor_ModelFailureTornDownByParent(t *testing.T) {
	f := newFixture()
	f.modelFn = func(context.Context) (detection.Detector, error) {
		return nil, &detection.ModelLoadError{Backend: detection.BackendYuNet, Err: errors.New("no such file")}
	}
	m := New(f.cfg, f.deps(), log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Mount(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Unmount)
	waitAvailability(t, m, AvailabilityModelUnavailable)

	cancel()
	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("monitor did not tear down on parent cancel")
	}
	if !f.stream.Stopped() {
		t.Error("preview stream left running after parent cancel")
	}
}

func TestMonitor_MountAfterUnmount(t *testing.T) {
	f := newFixture()
	m := New(f.cfg, f.deps(), log.Discard())
	m.Unmount()

	if err := m.Mount(context.Background()); !errors.Is(err, ErrUnmounted) {
		t.Fatalf("Mount after Unmount = %v, want ErrUnmounted", err)
	}
	if m.Alive() {
		t.Error("monitor alive after Mount on a torn-down instance")
	}

	returned := make(chan struct{})
	go func() {
		m.Unmount()
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("second Unmount blocked")
	}
	time.Sleep(20 * time.Millisecond)
	if f.opens.Load() != 0 {
		t.Errorf("camera opened %d times by a torn-down monitor", f.opens.Load())
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg.Presence.AbsenceWindow = 0
	if err := cfg.Validate(); err == nil || !strings.HasPrefix(err.Error(), "presence:") {
		t.Errorf("expected presence error, got %v", err)
	}
}
