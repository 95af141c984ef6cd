//go:build !linux

package camera

import (
	"fmt"
	"log/slog"
)

// openV4L2 returns an error on non-Linux platforms.
func openV4L2(cfg Config, logger *slog.Logger) (Stream, error) {
	return nil, classifyOpenError(BackendV4L2, cfg.Device,
		fmt.Errorf("%w: v4l2 is only available on Linux", ErrUnsupported))
}
