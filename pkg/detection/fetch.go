package detection

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/teslashibe/facewatch/internal/httpc"
)

// Fetch makes sure dest exists, downloading it from url if it doesn't.
// Downloads go to a temp file in the same directory and are renamed into
// place, so a canceled fetch never leaves a truncated model behind.
func Fetch(ctx context.Context, url, dest string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		logger.Debug("model cached", "path", dest)
		return nil
	}
	if url == "" {
		return fmt.Errorf("%w: %s", ErrModelNotFound, dest)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	logger.Info("downloading model", "url", url, "dest", dest)

	n, err := httpc.Download(ctx, nil, url, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	if n == 0 {
		return fmt.Errorf("download %s: empty body", url)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("install model: %w", err)
	}

	logger.Info("model downloaded", "path", dest, "bytes", n)
	return nil
}
