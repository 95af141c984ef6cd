package detection

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrModelNotFound is returned when the model file is missing and
	// there is no URL to fetch it from.
	ErrModelNotFound = errors.New("detection: model file not found")

	// ErrDetectorClosed is returned by Detect after Close.
	ErrDetectorClosed = errors.New("detection: detector closed")

	// ErrEmptyImage is returned when a frame decodes to nothing.
	ErrEmptyImage = errors.New("detection: empty image")
)

// ModelLoadError is returned when the detection model can't be made ready,
// whether the fetch or the native load failed.
type ModelLoadError struct {
	Backend Backend
	Source  string
	Err     error
}

// Error implements the error interface.
func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("detection [%s]: load model %s: %v", e.Backend, e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e *ModelLoadError) Unwrap() error {
	return e.Err
}
