package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/facewatch/pkg/camera"
	"github.com/teslashibe/facewatch/pkg/detection"
)

// Result is the outcome of one inference.
type Result struct {
	Seq        uint64        `json:"seq"`
	Present    bool          `json:"present"`
	Confidence float64       `json:"confidence"`
	Faces      int           `json:"faces"`
	CapturedAt time.Time     `json:"captured_at"`
	Latency    time.Duration `json:"latency"`
}

// InferenceError wraps a detector failure on a single frame.
type InferenceError struct {
	Seq uint64
	Err error
}

// Error implements the error interface.
func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference on frame %d: %v", e.Seq, e.Err)
}

// Unwrap returns the underlying error.
func (e *InferenceError) Unwrap() error {
	return e.Err
}

// Sink receives scheduler output.
type Sink interface {
	OnResult(Result)
	OnInferenceError(error)
}

// Stats counts scheduler activity.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Results   uint64 `json:"results"`
	Errors    uint64 `json:"errors"`
	Paused    uint64 `json:"paused"`
	Discarded uint64 `json:"discarded"`
}

// Scheduler submits frames from a FrameSource to a Detector strictly one
// at a time: the next frame is not requested until the previous inference
// has resolved.
type Scheduler struct {
	cfg      Config
	detector detection.Detector
	source   FrameSource
	sink     Sink
	logger   *slog.Logger
	clock    clock.Clock

	submitted atomic.Uint64
	results   atomic.Uint64
	errors    atomic.Uint64
	paused    atomic.Uint64
	discarded atomic.Uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock substitutes the clock used for back-off.
func WithClock(clk clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = clk
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// New creates a scheduler. detector must already be loaded: holding a
// Detector is what gates frame submission on model readiness.
func New(cfg Config, detector detection.Detector, source FrameSource, sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		detector: detector,
		source:   source,
		sink:     sink,
		logger:   slog.Default(),
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run schedules inference until ctx is done. Detector errors are reported
// to the sink and scheduling continues; a result that resolves after ctx
// is done is discarded.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"strategy", s.source.Name(),
		"tick", s.cfg.TickInterval,
		"paused_retry", s.cfg.PausedRetry,
	)
	defer s.logger.Info("scheduler stopped", "submitted", s.submitted.Load(), "errors", s.errors.Load())

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := s.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrSourcePaused) {
				s.paused.Add(1)
				s.logger.Debug("frame source paused, backing off", "reason", err, "retry", s.cfg.PausedRetry)
			} else {
				s.logger.Warn("frame source error", "error", err)
			}
			if !s.sleep(ctx, s.cfg.PausedRetry) {
				return nil
			}
			continue
		}

		res, err := s.submit(ctx, frame)
		if ctx.Err() != nil {
			s.discarded.Add(1)
			return nil
		}
		if err != nil {
			s.errors.Add(1)
			ierr := &InferenceError{Seq: frame.Seq, Err: err}
			s.logger.Warn("inference failed", "seq", frame.Seq, "error", err)
			s.sink.OnInferenceError(ierr)
			continue
		}

		s.results.Add(1)
		s.sink.OnResult(res)
	}
}

type outcome struct {
	dets []detection.Detection
	err  error
}

// submit runs one inference. It returns early if ctx is done; the detector
// call finishes in the background and its result is dropped.
func (s *Scheduler) submit(ctx context.Context, frame camera.Frame) (Result, error) {
	s.submitted.Add(1)
	start := time.Now()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("detector panic: %v", r)}
			}
		}()
		dets, err := s.detector.Detect(frame.JPEG)
		done <- outcome{dets: dets, err: err}
	}()

	var out outcome
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case out = <-done:
	}
	if out.err != nil {
		return Result{}, out.err
	}

	return Evaluate(frame, out.dets, s.cfg.ConfidenceThresh, time.Since(start)), nil
}

// Evaluate turns raw detections into a Result.
func Evaluate(frame camera.Frame, dets []detection.Detection, threshold float64, latency time.Duration) Result {
	res := Result{
		Seq:        frame.Seq,
		Faces:      len(dets),
		CapturedAt: frame.CapturedAt,
		Latency:    latency,
	}
	if best := detection.SelectBest(dets); best != nil {
		res.Confidence = best.Confidence
		res.Present = best.Confidence >= threshold
	}
	return res
}

// sleep waits d on the scheduler's clock. It returns false if ctx ended first.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	timer := s.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Submitted: s.submitted.Load(),
		Results:   s.results.Load(),
		Errors:    s.errors.Load(),
		Paused:    s.paused.Load(),
		Discarded: s.discarded.Load(),
	}
}
