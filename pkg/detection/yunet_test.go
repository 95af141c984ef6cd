package detection

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/teslashibe/facewatch/pkg/camera"
)

func yunetConfig(t *testing.T) Config {
	t.Helper()
	modelPath := findModelPath()
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}
	cfg := DefaultConfig()
	cfg.ModelPath = modelPath
	return cfg
}

func TestYuNetNewInvalidPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"

	_, err := NewYuNet(cfg, nil)
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got %v", err)
	}
}

func TestYuNetDetect_InvalidImage(t *testing.T) {
	detector, err := NewYuNet(yunetConfig(t), nil)
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	defer detector.Close()

	if _, err := detector.Detect([]byte{}); err == nil {
		t.Error("Expected error for empty image")
	}
	if _, err := detector.Detect([]byte("not a jpeg")); err == nil {
		t.Error("Expected error for invalid JPEG")
	}
}

func TestYuNetDetect_SolidImage(t *testing.T) {
	detector, err := NewYuNet(yunetConfig(t), nil)
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	defer detector.Close()

	// 320x240 is scaled down to the 224 input size first.
	jpeg := camera.SolidJPEG(320, 240, color.RGBA{0, 0, 255, 255})

	detections, err := detector.Detect(jpeg)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(detections) > 0 {
		t.Errorf("Expected no detections in solid color image, got %d", len(detections))
	}
}

func TestYuNetClose(t *testing.T) {
	detector, err := NewYuNet(yunetConfig(t), nil)
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}

	if err := detector.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := detector.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	jpeg := camera.SolidJPEG(64, 64, color.Black)
	if _, err := detector.Detect(jpeg); !errors.Is(err, ErrDetectorClosed) {
		t.Errorf("expected ErrDetectorClosed after Close, got %v", err)
	}
}

func TestYuNetConcurrency(t *testing.T) {
	detector, err := NewYuNet(yunetConfig(t), nil)
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	defer detector.Close()

	jpeg := camera.SolidJPEG(320, 240, color.RGBA{100, 100, 100, 255})

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			if _, err := detector.Detect(jpeg); err != nil {
				t.Errorf("Concurrent detection failed: %v", err)
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func findModelPath() string {
	if p := os.Getenv("FACEWATCH_TEST_MODEL"); p != "" {
		return p
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	// Walk up to find models directory
	for dir := cwd; dir != "/"; dir = filepath.Dir(dir) {
		modelPath := filepath.Join(dir, "models", "face_detection_yunet_2023mar.onnx")
		if _, err := os.Stat(modelPath); err == nil {
			return modelPath
		}
	}
	return ""
}
