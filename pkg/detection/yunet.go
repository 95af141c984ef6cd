package detection

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// YuNetDetector uses OpenCV's FaceDetectorYN for face detection
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   Config
	logger   *slog.Logger
	mu       sync.Mutex // Protects inference and Close
	closed   bool
}

// NewYuNet creates a new YuNet face detector using GoCV's built-in FaceDetectorYN.
// cfg.ModelPath must point at an existing ONNX file.
func NewYuNet(cfg Config, logger *slog.Logger) (*YuNetDetector, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, cfg.ModelPath)
	}

	// Input size is updated per image in Detect.
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"", // No config file needed for ONNX
		image.Pt(cfg.InputSize, cfg.InputSize),
		float32(cfg.ConfidenceThresh),
		float32(cfg.NMSThresh),
		cfg.TopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		detector: detector,
		config:   cfg,
		logger:   logger,
	}, nil
}

// Detect finds faces in the JPEG image
func (d *YuNetDetector) Detect(jpeg []byte) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDetectorClosed
	}

	img, err := decodeScaled(jpeg, d.config.InputSize)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	imgW := float64(img.Cols())
	imgH := float64(img.Rows())

	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()

	d.detector.Detect(img, &faces)

	var detections []Detection
	for r := 0; r < faces.Rows(); r++ {
		// YuNet output format (15 columns):
		// 0-3: x, y, w, h (bounding box in pixels)
		// 4-13: 5 facial landmarks (x,y pairs)
		// 14: face score
		x := float64(faces.GetFloatAt(r, 0))
		y := float64(faces.GetFloatAt(r, 1))
		w := float64(faces.GetFloatAt(r, 2))
		h := float64(faces.GetFloatAt(r, 3))
		score := float64(faces.GetFloatAt(r, 14))

		detections = append(detections, Detection{
			X:          x / imgW,
			Y:          y / imgH,
			W:          w / imgW,
			H:          h / imgH,
			Confidence: score,
		})
	}

	if len(detections) > 0 {
		d.logger.Debug("yunet found faces", "count", len(detections))
	}

	return detections, nil
}

// Close releases the detector resources. It waits for an in-flight Detect.
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.detector.Close()
	return nil
}

// decodeScaled decodes a JPEG and shrinks it so its longest side is at
// most maxSide. The caller owns the returned Mat.
func decodeScaled(jpeg []byte, maxSide int) (gocv.Mat, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("decode image: %w", err)
	}
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, ErrEmptyImage
	}

	longest := img.Cols()
	if img.Rows() > longest {
		longest = img.Rows()
	}
	if maxSide <= 0 || longest <= maxSide {
		return img, nil
	}

	scale := float64(maxSide) / float64(longest)
	size := image.Pt(int(float64(img.Cols())*scale), int(float64(img.Rows())*scale))

	scaled := gocv.NewMat()
	gocv.Resize(img, &scaled, size, 0, 0, gocv.InterpolationLinear)
	img.Close()
	return scaled, nil
}
