package detection

import (
	"context"
	"log/slog"
)

// Load fetches the model described by cfg if needed and returns a ready
// detector. Every failure comes back as a *ModelLoadError.
func Load(ctx context.Context, cfg Config, logger *slog.Logger) (Detector, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fail := func(source string, err error) (Detector, error) {
		return nil, &ModelLoadError{Backend: cfg.Backend, Source: source, Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return fail("config", err)
	}

	logger.Info("loading detection model",
		"backend", cfg.Backend,
		"confidence", cfg.ConfidenceThresh,
		"input_size", cfg.InputSize,
	)

	switch cfg.Backend {
	case BackendMock:
		return NewMockDetector(WithFallback(MockResponse{Detections: []Detection{Face(0.9)}})), nil

	case BackendSSD:
		cfg.ProtoPath = cfg.ResolvedProtoPath()
		if err := Fetch(ctx, cfg.ProtoURL, cfg.ProtoPath, logger); err != nil {
			return fail(cfg.ProtoURL, err)
		}
		cfg.ModelPath = cfg.ResolvedModelPath()
		if err := Fetch(ctx, cfg.ModelURL, cfg.ModelPath, logger); err != nil {
			return fail(cfg.ModelURL, err)
		}
		if err := ctx.Err(); err != nil {
			return fail(cfg.ModelPath, err)
		}
		d, err := NewSSD(cfg, logger)
		if err != nil {
			return fail(cfg.ModelPath, err)
		}
		return d, nil

	default:
		cfg.ModelPath = cfg.ResolvedModelPath()
		if err := Fetch(ctx, cfg.ModelURL, cfg.ModelPath, logger); err != nil {
			return fail(cfg.ModelURL, err)
		}
		if err := ctx.Err(); err != nil {
			return fail(cfg.ModelPath, err)
		}
		d, err := NewYuNet(cfg, logger)
		if err != nil {
			return fail(cfg.ModelPath, err)
		}
		return d, nil
	}
}
