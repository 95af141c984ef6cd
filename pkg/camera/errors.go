package camera

import (
	"errors"
	"fmt"
	"os"
)

// Sentinel errors for common conditions.
var (
	// ErrPermissionDenied is returned when the OS refuses access to the device.
	ErrPermissionDenied = errors.New("camera: permission denied")

	// ErrNoDevice is returned when no capture device can be opened.
	ErrNoDevice = errors.New("camera: no capture device")

	// ErrUnsupported is returned when the device can't deliver a usable format.
	ErrUnsupported = errors.New("camera: unsupported device or format")

	// ErrStreamStopped is returned when reading from a stopped stream.
	ErrStreamStopped = errors.New("camera: stream stopped")
)

// ErrorKind classifies camera failures.
type ErrorKind string

const (
	KindPermissionDenied ErrorKind = "permission_denied"
	KindNoDevice         ErrorKind = "no_device"
	KindUnsupported      ErrorKind = "unsupported"
	KindOther            ErrorKind = "other"
)

// Error is returned by Open when the camera can't be acquired.
type Error struct {
	Kind    ErrorKind
	Device  string
	Backend Backend
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("camera [%s %s]: %s: %v", e.Backend, e.Device, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindPermissionDenied:
		return target == ErrPermissionDenied
	case KindNoDevice:
		return target == ErrNoDevice
	case KindUnsupported:
		return target == ErrUnsupported
	}
	return false
}

// classifyOpenError turns a backend open failure into an *Error.
func classifyOpenError(backend Backend, device string, err error) *Error {
	kind := KindOther
	switch {
	case errors.Is(err, os.ErrPermission):
		kind = KindPermissionDenied
	case errors.Is(err, os.ErrNotExist):
		kind = KindNoDevice
	case errors.Is(err, ErrNoDevice):
		kind = KindNoDevice
	case errors.Is(err, ErrUnsupported):
		kind = KindUnsupported
	}
	return &Error{Kind: kind, Device: device, Backend: backend, Err: err}
}
