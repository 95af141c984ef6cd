// Package detection provides face detection over JPEG frames.
package detection

import (
	"fmt"
	"path"
	"path/filepath"
)

// Detection represents a detected face
type Detection struct {
	X, Y       float64 // Top-left corner (0-1 normalized)
	W, H       float64 // Width and height (0-1 normalized)
	Confidence float64 // Detection confidence (0-1)
}

// Center returns the center point of the detection
func (d Detection) Center() (x, y float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// Area returns the area of the bounding box
func (d Detection) Area() float64 {
	return d.W * d.H
}

// Detector is the interface for face detection backends.
// Implementations serialize Detect calls and make Close wait for an
// in-flight Detect before releasing native resources.
type Detector interface {
	// Detect finds faces in the image and returns their positions
	Detect(jpeg []byte) ([]Detection, error)

	// Close releases resources
	Close() error
}

// Backend selects the detection model.
type Backend string

const (
	// BackendYuNet uses OpenCV's FaceDetectorYN with the YuNet ONNX model.
	BackendYuNet Backend = "yunet"
	// BackendSSD uses the ResNet-10 SSD Caffe face model through OpenCV DNN.
	BackendSSD Backend = "ssd"
	// BackendMock always reports one face. For camera-less demos.
	BackendMock Backend = "mock"
)

// Model download locations.
const (
	DefaultYuNetURL    = "https://github.com/opencv/opencv_zoo/raw/main/models/face_detection_yunet/face_detection_yunet_2023mar.onnx"
	DefaultSSDModelURL = "https://raw.githubusercontent.com/opencv/opencv_3rdparty/dnn_samples_face_detector_20170830/res10_300x300_ssd_iter_140000.caffemodel"
	DefaultSSDProtoURL = "https://raw.githubusercontent.com/opencv/opencv/4.x/samples/dnn/face_detector/deploy.prototxt"
)

// Config holds detector configuration
type Config struct {
	Backend Backend `json:"backend"`

	// ModelURL is where the weights are fetched from when ModelPath
	// doesn't exist yet.
	ModelURL string `json:"model_url"`
	// ModelPath is the local weights file. Empty means CacheDir plus the
	// URL's file name.
	ModelPath string `json:"model_path"`

	// ProtoURL/ProtoPath describe the network definition (SSD only).
	ProtoURL  string `json:"proto_url"`
	ProtoPath string `json:"proto_path"`

	// CacheDir holds downloaded models.
	CacheDir string `json:"cache_dir"`

	ConfidenceThresh float64 `json:"confidence_threshold"` // Minimum confidence (default 0.5)
	NMSThresh        float64 `json:"nms_threshold"`
	TopK             int     `json:"top_k"`

	// InputSize is the longest image side fed to the network. Larger
	// frames are scaled down first.
	InputSize int `json:"input_size"`
}

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		Backend:          BackendYuNet,
		ModelURL:         DefaultYuNetURL,
		CacheDir:         "models",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.3,
		TopK:             5000,
		InputSize:        224,
	}
}

// SSDConfig returns defaults for the SSD backend.
func SSDConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendSSD
	cfg.ModelURL = DefaultSSDModelURL
	cfg.ProtoURL = DefaultSSDProtoURL
	return cfg
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendYuNet, BackendSSD, BackendMock:
	default:
		return fmt.Errorf("unknown detector backend %q", c.Backend)
	}
	if c.ConfidenceThresh < 0 || c.ConfidenceThresh > 1 {
		return fmt.Errorf("confidence_threshold must be in [0,1], got %v", c.ConfidenceThresh)
	}
	if c.InputSize < 32 {
		return fmt.Errorf("input_size must be at least 32, got %d", c.InputSize)
	}
	if c.Backend == BackendMock {
		return nil
	}
	if c.ModelPath == "" && c.ModelURL == "" {
		return fmt.Errorf("model_path or model_url is required")
	}
	if c.Backend == BackendSSD && c.ProtoPath == "" && c.ProtoURL == "" {
		return fmt.Errorf("proto_path or proto_url is required for ssd")
	}
	return nil
}

// ResolvedModelPath returns where the weights live on disk.
func (c *Config) ResolvedModelPath() string {
	return resolve(c.ModelPath, c.ModelURL, c.CacheDir)
}

// ResolvedProtoPath returns where the network definition lives on disk.
func (c *Config) ResolvedProtoPath() string {
	return resolve(c.ProtoPath, c.ProtoURL, c.CacheDir)
}

func resolve(local, url, cacheDir string) string {
	if local != "" {
		return local
	}
	if url == "" {
		return ""
	}
	return filepath.Join(cacheDir, path.Base(url))
}

// SelectBest picks the best face from multiple detections
// Priority: confidence * 0.7 + area * 0.3
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}

	if len(dets) == 1 {
		return &dets[0]
	}

	// Find max area for normalization
	maxArea := 0.0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}

	bestScore := -1.0
	var best *Detection

	for i := range dets {
		areaScore := 0.0
		if maxArea > 0 {
			areaScore = dets[i].Area() / maxArea
		}
		score := dets[i].Confidence*0.7 + areaScore*0.3
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}

	return best
}
