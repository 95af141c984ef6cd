package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/facewatch/pkg/camera"
	"github.com/teslashibe/facewatch/pkg/hub"
	"github.com/teslashibe/facewatch/pkg/monitor"
)

// Settings are the effective constants, as reported by /api/config.
type Settings struct {
	CameraBackend       camera.Backend     `json:"camera_backend"`
	CaptureWidth        int                `json:"capture_width"`
	CaptureHeight       int                `json:"capture_height"`
	Preview             camera.PreviewMode `json:"preview"`
	Mirror              bool               `json:"mirror"`
	ModelBackend        string             `json:"model_backend"`
	InputSize           int                `json:"input_size"`
	ConfidenceThreshold float64            `json:"confidence_threshold"`
	Strategy            string             `json:"strategy"`
	TickIntervalMs      int64              `json:"tick_interval_ms"`
	PausedRetryMs       int64              `json:"paused_retry_ms"`
	AbsenceWindowMs     int64              `json:"absence_window_ms"`
}

// NewSettings flattens a monitor configuration.
func NewSettings(cfg monitor.Config) Settings {
	return Settings{
		CameraBackend:       cfg.Camera.Backend,
		CaptureWidth:        cfg.Camera.Width,
		CaptureHeight:       cfg.Camera.Height,
		Preview:             cfg.Camera.Preview,
		Mirror:              cfg.Camera.Mirror,
		ModelBackend:        string(cfg.Detection.Backend),
		InputSize:           cfg.Detection.InputSize,
		ConfidenceThreshold: cfg.Scheduler.ConfidenceThresh,
		Strategy:            string(cfg.Scheduler.Strategy),
		TickIntervalMs:      cfg.Scheduler.TickInterval.Milliseconds(),
		PausedRetryMs:       cfg.Scheduler.PausedRetry.Milliseconds(),
		AbsenceWindowMs:     cfg.Presence.AbsenceWindow.Milliseconds(),
	}
}

// handleOverlay serves the overlay page
func (s *Server) handleOverlay(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.Send(overlayHTML)
}

// handleStatus returns the latest snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Latest())
}

// handleConfig returns the effective constants
func (s *Server) handleConfig(c *fiber.Ctx) error {
	return c.JSON(s.settings)
}

// handleHealth always answers 200 while the process serves. Monitoring
// failures are reported in the body, not as an unhealthy server.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	snap := s.Latest()
	return c.JSON(fiber.Map{
		"status":       "ok",
		"availability": snap.Availability,
		"alerting":     snap.Alerting(),
		"clients":      s.statusHub.ClientCount() + s.previewHub.ClientCount(),
		"dropped":      s.statusHub.Dropped() + s.previewHub.Dropped(),
		"time":         time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatusWS streams snapshots; the hub replays the latest on connect
func (s *Server) handleStatusWS(c *websocket.Conn) {
	s.serveWS(s.statusHub, c)
}

// handlePreviewWS streams preview frames as binary JPEG
func (s *Server) handlePreviewWS(c *websocket.Conn) {
	s.serveWS(s.previewHub, c)
}

func (s *Server) serveWS(h *hub.Hub, c *websocket.Conn) {
	client := hub.NewClient(h, c)
	if client == nil {
		return
	}
	client.Run()
}
