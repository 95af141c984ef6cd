package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/facewatch/pkg/camera"
)

// ErrSourcePaused means the surface isn't producing frames right now.
// The scheduler backs off and asks again later without running inference.
var ErrSourcePaused = errors.New("scheduler: frame source paused")

// FrameSource hands the scheduler its next frame. It hides whether frames
// are pushed by the camera or sampled from the surface on a timer.
type FrameSource interface {
	// Next blocks until a frame is available, the source pauses
	// (ErrSourcePaused), or ctx is done.
	Next(ctx context.Context) (camera.Frame, error)

	// Name identifies the strategy ("push" or "tick").
	Name() string
}

// PushSource forwards every frame the camera pushes. Frames that arrive
// while inference is busy are dropped by the stream's latest-wins channel,
// so the detector's own throughput sets the effective rate.
type PushSource struct {
	stream  camera.Stream
	timeout time.Duration
	clock   clock.Clock
}

// NewPushSource creates a push-driven source. If no frame arrives within
// timeout the source reports itself paused.
func NewPushSource(stream camera.Stream, timeout time.Duration, clk clock.Clock) *PushSource {
	if clk == nil {
		clk = clock.New()
	}
	return &PushSource{stream: stream, timeout: timeout, clock: clk}
}

// Next waits for the next pushed frame.
func (p *PushSource) Next(ctx context.Context) (camera.Frame, error) {
	timer := p.clock.Timer(p.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return camera.Frame{}, ctx.Err()
	case f, ok := <-p.stream.Frames():
		if !ok {
			return camera.Frame{}, fmt.Errorf("%w: %w", ErrSourcePaused, camera.ErrStreamStopped)
		}
		return f, nil
	case <-timer.C:
		return camera.Frame{}, fmt.Errorf("%w: no frame for %v (%s)", ErrSourcePaused, p.timeout, p.stream.State())
	}
}

// Name returns "push".
func (p *PushSource) Name() string {
	return string(StrategyPush)
}

// TickSource samples the surface's current frame on a fixed interval,
// regardless of the native capture rate. The interval is measured from
// the call to Next, i.e. from when the previous inference resolved.
type TickSource struct {
	surface  *camera.Surface
	interval time.Duration
	clock    clock.Clock
	lastSeq  uint64
}

// NewTickSource creates a self-paced source.
func NewTickSource(surface *camera.Surface, interval time.Duration, clk clock.Clock) *TickSource {
	if clk == nil {
		clk = clock.New()
	}
	return &TickSource{surface: surface, interval: interval, clock: clk}
}

// Next waits one interval and returns the surface's current frame. A frame
// already handed out is not returned twice; Next keeps ticking instead.
func (t *TickSource) Next(ctx context.Context) (camera.Frame, error) {
	timer := t.clock.Timer(t.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return camera.Frame{}, ctx.Err()
		case <-timer.C:
		}

		if state := t.surface.State(); state != camera.StateActive {
			return camera.Frame{}, fmt.Errorf("%w: surface %s", ErrSourcePaused, state)
		}

		f, ok := t.surface.Latest()
		if ok && f.Seq != t.lastSeq {
			t.lastSeq = f.Seq
			return f, nil
		}
		timer.Reset(t.interval)
	}
}

// Name returns "tick".
func (t *TickSource) Name() string {
	return string(StrategyTick)
}

// NewSource builds the frame source selected by cfg.Strategy.
func NewSource(cfg Config, stream camera.Stream, clk clock.Clock) FrameSource {
	if cfg.Strategy == StrategyPush {
		return NewPushSource(stream, cfg.PushTimeout, clk)
	}
	return NewTickSource(stream.Surface(), cfg.TickInterval, clk)
}
