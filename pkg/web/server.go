// Package web serves a live status dashboard for a running pipeline.
//
// The server implements pipeline.StatusSink and pipeline.FrameSink, so it can
// be passed straight to pipeline.WithSink. Publishing never blocks: snapshots
// are fanned out to websocket clients through hubs.
package web

import (
	"context"
	"embed"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"

	"github.com/teslashibe/go-itemsense/pkg/actuation"
	"github.com/teslashibe/go-itemsense/pkg/hub"
	"github.com/teslashibe/go-itemsense/pkg/pipeline"
	"github.com/teslashibe/go-itemsense/pkg/vision"
)

//go:embed static
var static embed.FS

// Server is the dashboard server.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	labels vision.Labels
	pins   actuation.PinMap

	status   pipeline.Snapshot
	statusMu sync.RWMutex

	statusHub *hub.Hub
	frameHub  *hub.Hub
}

var (
	_ pipeline.StatusSink = (*Server)(nil)
	_ pipeline.FrameSink  = (*Server)(nil)
)

// NewServer creates a dashboard listening on addr (e.g. ":8090"). pins may be
// nil when actuation is disabled. If logger is nil, slog.Default() is used.
func NewServer(addr string, labels vision.Labels, pins actuation.PinMap, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		addr:      addr,
		logger:    logger,
		labels:    labels,
		pins:      pins,
		statusHub: hub.New("status", hub.StatusBuffer, logger),
		frameHub:  hub.New("frames", hub.PreviewBuffer, logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "itemsense",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/labels", s.handleLabels)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleHubWS(s.statusHub)))
	app.Get("/ws/frames", websocket.New(s.handleHubWS(s.frameHub)))

	app.Use("/", filesystem.New(filesystem.Config{
		Root:       http.FS(static),
		PathPrefix: "static",
		Index:      "index.html",
	}))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Start listens on the configured address until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hubs and serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.statusHub.Run(ctx)
	go s.frameHub.Run(ctx)
	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("dashboard shutdown", "error", err)
		}
	}()

	s.logger.Info("dashboard listening", "url", "http://"+ln.Addr().String())
	return s.app.Listener(ln)
}

// PublishStatus implements pipeline.StatusSink.
func (s *Server) PublishStatus(snap pipeline.Snapshot) {
	s.statusMu.Lock()
	s.status = snap
	s.statusMu.Unlock()

	if err := s.statusHub.BroadcastJSON(snap); err != nil {
		s.logger.Debug("encode snapshot", "error", err)
	}
}

// PublishFrame implements pipeline.FrameSink.
func (s *Server) PublishFrame(jpeg []byte) {
	s.frameHub.BroadcastBinary(jpeg)
}
