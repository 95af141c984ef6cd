package detection

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// SSDDetector runs the ResNet-10 SSD face model through OpenCV DNN.
type SSDDetector struct {
	net    gocv.Net
	config Config
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
}

// NewSSD loads the Caffe network from cfg.ProtoPath and cfg.ModelPath.
func NewSSD(cfg Config, logger *slog.Logger) (*SSDDetector, error) {
	if logger == nil {
		logger = slog.Default()
	}

	for _, p := range []string{cfg.ProtoPath, cfg.ModelPath} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, p)
		}
	}

	net := gocv.ReadNetFromCaffe(cfg.ProtoPath, cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load SSD model from %s", cfg.ModelPath)
	}

	return &SSDDetector{
		net:    net,
		config: cfg,
		logger: logger,
	}, nil
}

// Detect finds faces in the JPEG image
func (d *SSDDetector) Detect(jpeg []byte) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDetectorClosed
	}

	img, err := decodeScaled(jpeg, 0)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	size := d.config.InputSize
	blob := gocv.BlobFromImage(img, 1.0, image.Pt(size, size),
		gocv.NewScalar(104, 177, 123, 0), false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	// Output is [1, 1, N, 7]: image id, class, score, x1, y1, x2, y2.
	rows := gocv.GetBlobChannel(out, 0, 0)
	defer rows.Close()

	var detections []Detection
	for r := 0; r < rows.Rows(); r++ {
		score := float64(rows.GetFloatAt(r, 2))
		if score < d.config.ConfidenceThresh {
			continue
		}
		x1 := clamp01(float64(rows.GetFloatAt(r, 3)))
		y1 := clamp01(float64(rows.GetFloatAt(r, 4)))
		x2 := clamp01(float64(rows.GetFloatAt(r, 5)))
		y2 := clamp01(float64(rows.GetFloatAt(r, 6)))
		if x2 <= x1 || y2 <= y1 {
			continue
		}
		detections = append(detections, Detection{
			X:          x1,
			Y:          y1,
			W:          x2 - x1,
			H:          y2 - y1,
			Confidence: score,
		})
	}

	if len(detections) > 0 {
		d.logger.Debug("ssd found faces", "count", len(detections))
	}

	return detections, nil
}

// Close releases the network. It waits for an in-flight Detect.
func (d *SSDDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.net.Close()
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
