//go:build linux

package camera

import (
	"fmt"
	"log/slog"

	"github.com/blackjack/webcam"
)

// pixelFormatMJPEG is the V4L2 fourcc for Motion-JPEG ('MJPG').
const pixelFormatMJPEG webcam.PixelFormat = 0x47504A4D

// V4L2Stream captures MJPEG frames straight from a Video4Linux2 device.
// Frames are already JPEG, so nothing is decoded in the capture path.
type V4L2Stream struct {
	*pump
	cfg    Config
	logger *slog.Logger
	cam    *webcam.Webcam
}

func openV4L2(cfg Config, logger *slog.Logger) (Stream, error) {
	path := devicePath(cfg.Device)

	cam, err := webcam.Open(path)
	if err != nil {
		return nil, classifyOpenError(BackendV4L2, cfg.Device, err)
	}

	formats := cam.GetSupportedFormats()
	if _, ok := formats[pixelFormatMJPEG]; !ok {
		cam.Close()
		return nil, classifyOpenError(BackendV4L2, cfg.Device,
			fmt.Errorf("%w: device has no MJPEG format (%d formats)", ErrUnsupported, len(formats)))
	}

	_, w, h, err := cam.SetImageFormat(pixelFormatMJPEG, uint32(cfg.Width), uint32(cfg.Height))
	if err != nil {
		cam.Close()
		return nil, classifyOpenError(BackendV4L2, cfg.Device, fmt.Errorf("set format: %w", err))
	}

	if err := cam.SetBufferCount(2); err != nil {
		logger.Debug("v4l2: could not set buffer count", "error", err)
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, classifyOpenError(BackendV4L2, cfg.Device, fmt.Errorf("start streaming: %w", err))
	}

	if cfg.Mirror {
		logger.Warn("v4l2 backend does not mirror frames; preview will not be flipped")
	}

	s := &V4L2Stream{
		pump:   newPump(int(w), int(h)),
		cfg:    cfg,
		logger: logger,
		cam:    cam,
	}
	go s.captureLoop()

	logger.Info("camera started", "backend", BackendV4L2, "device", path, "width", w, "height", h)
	return s, nil
}

func (s *V4L2Stream) captureLoop() {
	defer s.finish()
	defer s.cam.Close()
	defer s.cam.StopStreaming()

	timeout := uint32(s.cfg.ReadTimeout.Seconds())
	if timeout == 0 {
		timeout = 1
	}

	failures := 0
	for !s.stopping() {
		err := s.cam.WaitForFrame(timeout)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			s.surface.SetState(StatePaused)
			continue
		default:
			failures++
			if failures >= s.cfg.MaxReadFailures {
				s.logger.Warn("v4l2 wait failing, ending stream", "error", err)
				return
			}
			continue
		}

		frame, err := s.cam.ReadFrame()
		if err != nil {
			failures++
			if failures >= s.cfg.MaxReadFailures {
				s.logger.Warn("v4l2 read failing, ending stream", "error", err)
				return
			}
			continue
		}
		if len(frame) == 0 {
			continue
		}
		failures = 0

		// ReadFrame returns the driver's mmap buffer; it's reused.
		data := make([]byte, len(frame))
		copy(data, frame)
		s.publish(data, s.width, s.height)
	}
}

// Name returns "v4l2".
func (s *V4L2Stream) Name() string {
	return string(BackendV4L2)
}

// Stop halts capture and releases the device.
func (s *V4L2Stream) Stop() error {
	s.stop()
	s.logger.Info("camera stopped", "backend", BackendV4L2, "frames", s.seq)
	return nil
}
