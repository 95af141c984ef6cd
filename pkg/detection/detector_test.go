package detection

import (
	"path/filepath"
	"testing"
)

func TestSelectBest_Empty(t *testing.T) {
	if SelectBest(nil) != nil {
		t.Error("expected nil for no detections")
	}
}

func TestSelectBest_PrefersConfidenceAndSize(t *testing.T) {
	dets := []Detection{
		{W: 0.1, H: 0.1, Confidence: 0.95},
		{W: 0.4, H: 0.4, Confidence: 0.90},
		{W: 0.2, H: 0.2, Confidence: 0.55},
	}

	best := SelectBest(dets)
	if best == nil {
		t.Fatal("expected a detection")
	}
	if best.Confidence != 0.90 {
		t.Errorf("expected the large confident face, got %+v", *best)
	}
}

func TestSelectBest_ZeroArea(t *testing.T) {
	dets := []Detection{{Confidence: 0.6}, {Confidence: 0.8}}
	if best := SelectBest(dets); best.Confidence != 0.8 {
		t.Errorf("expected 0.8, got %v", best.Confidence)
	}
}

func TestDetectionGeometry(t *testing.T) {
	d := Detection{X: 0.2, Y: 0.4, W: 0.2, H: 0.4}
	x, y := d.Center()
	if x < 0.299 || x > 0.301 || y < 0.599 || y > 0.601 {
		t.Errorf("Center = %v, %v", x, y)
	}
	if a := d.Area(); a < 0.0799 || a > 0.0801 {
		t.Errorf("Area = %v", a)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.InputSize != 224 || cfg.ConfidenceThresh != 0.5 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	ssd := SSDConfig()
	if err := ssd.Validate(); err != nil {
		t.Errorf("ssd config invalid: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Backend = "mediapipe" }},
		{"threshold above one", func(c *Config) { c.ConfidenceThresh = 1.5 }},
		{"tiny input", func(c *Config) { c.InputSize = 8 }},
		{"no model source", func(c *Config) { c.ModelURL = ""; c.ModelPath = "" }},
		{"ssd without proto", func(c *Config) { c.Backend = BackendSSD; c.ProtoURL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestResolvedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheDir = "/var/cache/facewatch"

	want := filepath.Join("/var/cache/facewatch", "face_detection_yunet_2023mar.onnx")
	if got := cfg.ResolvedModelPath(); got != want {
		t.Errorf("ResolvedModelPath = %q, want %q", got, want)
	}

	cfg.ModelPath = "/opt/model.onnx"
	if got := cfg.ResolvedModelPath(); got != "/opt/model.onnx" {
		t.Errorf("explicit path ignored: %q", got)
	}

	if got := cfg.ResolvedProtoPath(); got != "" {
		t.Errorf("expected empty proto path, got %q", got)
	}
}
