// Package presence debounces per-frame face detections into a stable
// VISIBLE / NOT_VISIBLE signal: recovery is instant, the alarm is delayed.
package presence

import (
	"fmt"
	"time"
)

// State is the debounced presence.
type State string

const (
	// Visible is the initial state and is restored by any present result.
	Visible State = "VISIBLE"
	// NotVisible is entered once absence has lasted a full window.
	NotVisible State = "NOT_VISIBLE"
)

// DefaultAbsenceWindow is how long a face must be missing before alarming.
const DefaultAbsenceWindow = 3000 * time.Millisecond

// Config holds debouncer parameters.
type Config struct {
	// AbsenceWindow is the minimum uninterrupted run of absent results
	// before the state becomes NotVisible.
	AbsenceWindow time.Duration `json:"-"`
}

// DefaultConfig returns the standard 3s window.
func DefaultConfig() Config {
	return Config{AbsenceWindow: DefaultAbsenceWindow}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.AbsenceWindow <= 0 {
		return fmt.Errorf("absence_window must be positive, got %v", c.AbsenceWindow)
	}
	return nil
}

// Transition describes a state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}
