package camera

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"gocv.io/x/gocv"
)

// GoCVStream captures frames with OpenCV's VideoCapture.
type GoCVStream struct {
	*pump
	cfg    Config
	logger *slog.Logger
	vc     *gocv.VideoCapture
}

func openGoCV(cfg Config, logger *slog.Logger) (Stream, error) {
	// OpenCV reports a bare "can't open" for every failure; probe the
	// device node first so permission problems are reported as such.
	if _, isIndex := deviceIndex(cfg.Device); runtime.GOOS == "linux" && isIndex {
		if err := probeDevice(devicePath(cfg.Device)); err != nil {
			return nil, classifyOpenError(BackendGoCV, cfg.Device, err)
		}
	}

	var source interface{} = cfg.Device
	if n, ok := deviceIndex(cfg.Device); ok {
		source = n
	}

	vc, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, classifyOpenError(BackendGoCV, cfg.Device, fmt.Errorf("%w: %v", ErrNoDevice, err))
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, classifyOpenError(BackendGoCV, cfg.Device, ErrNoDevice)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	width := int(vc.Get(gocv.VideoCaptureFrameWidth))
	height := int(vc.Get(gocv.VideoCaptureFrameHeight))
	if width == 0 || height == 0 {
		width, height = cfg.Width, cfg.Height
	}

	s := &GoCVStream{
		pump:   newPump(width, height),
		cfg:    cfg,
		logger: logger,
		vc:     vc,
	}
	go s.captureLoop()

	logger.Info("camera started", "backend", BackendGoCV, "width", width, "height", height)
	return s, nil
}

func (s *GoCVStream) captureLoop() {
	defer s.finish()
	defer s.vc.Close()

	img := gocv.NewMat()
	defer img.Close()

	failures := 0
	for !s.stopping() {
		if ok := s.vc.Read(&img); !ok {
			failures++
			s.surface.SetState(StatePaused)
			if failures >= s.cfg.MaxReadFailures {
				s.logger.Warn("camera read failing, ending stream", "failures", failures)
				return
			}
			time.Sleep(s.cfg.FrameInterval())
			continue
		}
		if img.Empty() {
			s.surface.SetState(StatePaused)
			time.Sleep(s.cfg.FrameInterval())
			continue
		}
		failures = 0

		if s.cfg.Mirror {
			gocv.Flip(img, &img, 1)
		}

		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, s.cfg.Quality})
		if err != nil {
			s.logger.Debug("jpeg encode failed", "error", err)
			continue
		}
		data := bytes.Clone(buf.GetBytes())
		buf.Close()

		s.publish(data, img.Cols(), img.Rows())
	}
}

// Name returns "gocv".
func (s *GoCVStream) Name() string {
	return string(BackendGoCV)
}

// Stop halts capture and releases the device.
func (s *GoCVStream) Stop() error {
	s.stop()
	s.logger.Info("camera stopped", "backend", BackendGoCV, "frames", s.seq)
	return nil
}

// probeDevice opens and closes a device node to surface ENOENT/EACCES.
func probeDevice(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}
