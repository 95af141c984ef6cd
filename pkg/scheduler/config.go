// Package scheduler feeds camera frames to the detection model, one at a
// time, and reports a Result per frame.
package scheduler

import (
	"fmt"
	"time"
)

// Strategy selects how frames reach the scheduler.
type Strategy string

const (
	// StrategyPush forwards every frame the camera pushes.
	StrategyPush Strategy = "push"
	// StrategyTick samples the surface on a fixed interval.
	StrategyTick Strategy = "tick"
)

// Config holds scheduling parameters.
type Config struct {
	Strategy Strategy `json:"strategy"`

	// TickInterval is the sampling period for StrategyTick (~10fps).
	TickInterval time.Duration `json:"-"`

	// PushTimeout is how long StrategyPush waits for a frame before
	// treating the surface as paused.
	PushTimeout time.Duration `json:"-"`

	// PausedRetry is the back-off after the source reports a pause.
	PausedRetry time.Duration `json:"-"`

	// ConfidenceThresh is the minimum best-face confidence that counts
	// as present.
	ConfidenceThresh float64 `json:"confidence_threshold"`
}

// DefaultConfig returns the self-paced defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:         StrategyTick,
		TickInterval:     100 * time.Millisecond,
		PushTimeout:      2 * time.Second,
		PausedRetry:      time.Second,
		ConfidenceThresh: 0.5,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Strategy {
	case StrategyPush, StrategyTick:
	default:
		return fmt.Errorf("strategy must be push or tick, got %q", c.Strategy)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %v", c.TickInterval)
	}
	if c.PushTimeout <= 0 {
		return fmt.Errorf("push_timeout must be positive, got %v", c.PushTimeout)
	}
	if c.PausedRetry <= 0 {
		return fmt.Errorf("paused_retry must be positive, got %v", c.PausedRetry)
	}
	if c.ConfidenceThresh < 0 || c.ConfidenceThresh > 1 {
		return fmt.Errorf("confidence_threshold must be in [0,1], got %v", c.ConfidenceThresh)
	}
	return nil
}
