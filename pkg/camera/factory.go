package camera

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Opener acquires a stream. Open satisfies it; tests substitute their own.
type Opener func(ctx context.Context, cfg Config, logger *slog.Logger) (Stream, error)

// Open acquires the capture device described by cfg and starts streaming.
// If cfg.Backend is BackendAuto, the gocv backend is used.
// Acquisition failures are returned as *Error.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = BackendGoCV
	}

	logger.Info("opening camera",
		"backend", backend,
		"device", cfg.Device,
		"width", cfg.Width,
		"height", cfg.Height,
		"framerate", cfg.Framerate,
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch backend {
	case BackendMock:
		m := NewMockStream(cfg, WithSyntheticFrames(cfg.FrameInterval()))
		return m, nil
	case BackendGoCV:
		return openGoCV(cfg, logger)
	case BackendV4L2:
		return openV4L2(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// deviceIndex returns the numeric index for devices like "0" or "/dev/video2".
func deviceIndex(device string) (int, bool) {
	d := strings.TrimPrefix(device, "/dev/video")
	n, err := strconv.Atoi(d)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// devicePath returns the /dev node for a device identifier.
func devicePath(device string) string {
	if strings.HasPrefix(device, "/") {
		return device
	}
	if n, ok := deviceIndex(device); ok {
		return "/dev/video" + strconv.Itoa(n)
	}
	return device
}
