// Package web serves the presence overlay: a small camera preview, the
// absence banner and the monitor's status over REST and websockets.
package web

import (
	"context"
	_ "embed"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/facewatch/pkg/camera"
	"github.com/teslashibe/facewatch/pkg/hub"
	"github.com/teslashibe/facewatch/pkg/monitor"
)

//go:embed overlay.html
var overlayHTML []byte

// Server is the overlay web server. It implements monitor.EventSink.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	settings Settings

	// Latest snapshot from the monitor
	latest   monitor.Snapshot
	latestMu sync.RWMutex

	// Hubs for websocket broadcast
	statusHub  *hub.Hub
	previewHub *hub.Hub
}

var _ monitor.EventSink = (*Server)(nil)

// NewServer creates the overlay server for a monitor configured with cfg.
func NewServer(addr string, cfg monitor.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		addr:       addr,
		logger:     logger,
		settings:   NewSettings(cfg),
		latest:     monitor.Snapshot{Availability: monitor.AvailabilityStarting, Preview: cfg.Camera.Preview},
		statusHub:  hub.New("status", hub.WithLogger(logger), hub.WithRetainLast()),
		previewHub: hub.New("preview", hub.WithLogger(logger)),
	}

	app := fiber.New(fiber.Config{
		AppName:               "facewatch",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	// The overlay is embedded by the dashboard shell, which may live on
	// another origin
	app.Use(cors.New())

	app.Get("/", s.handleOverlay)
	app.Get("/healthz", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/config", s.handleConfig)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	if cfg.Camera.Preview != camera.PreviewHidden {
		app.Get("/ws/preview", websocket.New(s.handlePreviewWS))
	}

	s.app = app
	s.statusHub.BroadcastJSON(s.latest)
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the hubs and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go s.previewHub.Run(ctx)

	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown failed", "error", err)
		}
	}()

	s.logger.Info("overlay listening", "url", "http://"+displayAddr(s.addr))
	return s.app.Listen(s.addr)
}

// OnSnapshot records and broadcasts a monitor snapshot.
func (s *Server) OnSnapshot(snap monitor.Snapshot) {
	s.latestMu.Lock()
	s.latest = snap
	s.latestMu.Unlock()

	if err := s.statusHub.BroadcastJSON(snap); err != nil {
		s.logger.Warn("encode snapshot", "error", err)
	}
}

// OnPreview broadcasts a preview frame.
func (s *Server) OnPreview(f camera.Frame) {
	if s.settings.Preview == camera.PreviewHidden {
		return
	}
	s.previewHub.BroadcastBinary(f.JPEG)
}

// Latest returns the most recent snapshot.
func (s *Server) Latest() monitor.Snapshot {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	return s.latest
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
