// facewatch - face presence monitor
// Owns the camera and the face detector, and serves an overlay that warns
// when nobody has been in front of the camera for the absence window.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/teslashibe/facewatch/internal/config"
	"github.com/teslashibe/facewatch/internal/log"
	"github.com/teslashibe/facewatch/pkg/camera"
	"github.com/teslashibe/facewatch/pkg/detection"
	"github.com/teslashibe/facewatch/pkg/monitor"
	"github.com/teslashibe/facewatch/pkg/scheduler"
	"github.com/teslashibe/facewatch/pkg/web"
)

func main() {
	cfg, exit := parseFlags()
	if exit {
		return
	}

	log.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Error("facewatch failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := log.L()

	server := web.NewServer(cfg.Listen, cfg.Monitor, logger)
	mon := monitor.New(cfg.Monitor, monitor.Deps{Sink: server}, logger)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Run(ctx) }()

	if err := mon.Mount(ctx); err != nil {
		return err
	}
	defer mon.Unmount()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("sd_notify failed", "error", err)
	} else if ok {
		logger.Debug("notified systemd")
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down", "reason", context.Cause(ctx))
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("overlay server: %w", err)
		}
	}

	daemon.SdNotify(false, daemon.SdNotifyStopping)
	return nil
}

// parseFlags loads the config file and environment, then applies flags.
// exit is true when a flag asked for output instead of a run.
func parseFlags() (cfg config.Config, exit bool) {
	configPath := flag.String("config", "", "Config file (default ~/.facewatch/config.json)")
	listen := flag.String("listen", "", "Overlay server address")
	preset := flag.String("preset", "", fmt.Sprintf("Camera preset: %v", camera.PresetNames()))
	cameraBackend := flag.String("camera", "", "Camera backend: auto, gocv, v4l2, mock")
	device := flag.String("device", "", "Camera device, e.g. 0 or /dev/video2")
	preview := flag.String("preview", "", "Preview: visible or hidden")
	mirror := flag.Bool("mirror", true, "Mirror the preview horizontally")
	modelBackend := flag.String("model", "", "Detector: yunet, ssd, mock")
	modelPath := flag.String("model-path", "", "Local model file (skips the download)")
	strategy := flag.String("strategy", "", "Frame source: tick or push")
	absence := flag.Duration("absence-window", 0, "Absence before alerting, e.g. 3s or 300ms")
	confidence := flag.Float64("confidence", 0, "Minimum face confidence (0-1)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "", "Log format: text or json")
	debug := flag.Bool("debug", false, "Shorthand for -log-level debug")
	printConfig := flag.Bool("print-config", false, "Print the effective config as JSON and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["preset"] {
		if err := cfg.UsePreset(*preset); err != nil {
			fatal(err)
		}
	}
	m := &cfg.Monitor
	if set["listen"] {
		cfg.Listen = *listen
	}
	if set["camera"] {
		m.Camera.Backend = camera.Backend(*cameraBackend)
	}
	if set["device"] {
		m.Camera.Device = *device
	}
	if set["preview"] {
		m.Camera.Preview = camera.PreviewMode(*preview)
	}
	if set["mirror"] {
		m.Camera.Mirror = *mirror
	}
	if set["model"] {
		m.Detection.Backend = detection.Backend(*modelBackend)
		if m.Detection.Backend == detection.BackendSSD && m.Detection.ModelURL == detection.DefaultYuNetURL {
			ssd := detection.SSDConfig()
			m.Detection.ModelURL, m.Detection.ProtoURL = ssd.ModelURL, ssd.ProtoURL
		}
	}
	if set["model-path"] {
		m.Detection.ModelPath = *modelPath
	}
	if set["strategy"] {
		m.Scheduler.Strategy = scheduler.Strategy(*strategy)
	}
	if set["absence-window"] {
		m.Presence.AbsenceWindow = *absence
	}
	if set["confidence"] {
		cfg.SetConfidence(*confidence)
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}
	if set["log-format"] {
		cfg.LogFormat = *logFormat
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		fatal(fmt.Errorf("configuration error: %w", err))
	}

	if *printConfig {
		data, err := config.Marshal(cfg)
		if err != nil {
			fatal(err)
		}
		fmt.Println(string(data))
		return cfg, true
	}
	return cfg, false
}

func fatal(err error) {
	var perr *os.PathError
	if errors.As(err, &perr) {
		fmt.Fprintf(os.Stderr, "facewatch: %v (see -config)\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "facewatch: %v\n", err)
	}
	os.Exit(2)
}
