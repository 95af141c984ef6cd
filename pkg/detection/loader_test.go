package detection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoad_Mock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock

	d, err := Load(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer d.Close()

	dets, err := d.Detect(nil)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(dets) != 1 {
		t.Errorf("mock backend should report one face, got %d", len(dets))
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InputSize = 0

	_, err := Load(context.Background(), cfg, nil)

	var loadErr *ModelLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected ModelLoadError, got %v", err)
	}
	if loadErr.Source != "config" {
		t.Errorf("Source = %q, want config", loadErr.Source)
	}
}

func TestLoad_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.ModelURL = srv.URL + "/face.onnx"
	cfg.CacheDir = t.TempDir()

	_, err := Load(context.Background(), cfg, nil)

	var loadErr *ModelLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected ModelLoadError, got %v", err)
	}
	if loadErr.Backend != BackendYuNet {
		t.Errorf("Backend = %q", loadErr.Backend)
	}
	if loadErr.Source != cfg.ModelURL {
		t.Errorf("Source = %q, want %q", loadErr.Source, cfg.ModelURL)
	}
}

func TestLoad_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultConfig()
	cfg.ModelURL = "http://127.0.0.1:1/face.onnx"
	cfg.CacheDir = t.TempDir()

	if _, err := Load(ctx, cfg, nil); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
