// Package web serves the toggle page, its JSON API and the websocket
// feeds for the preview and annotated frames.
package web

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-facecam/pkg/hub"
	"github.com/teslashibe/go-facecam/pkg/metrics"
	"github.com/teslashibe/go-facecam/pkg/viewer"
)

//go:embed static/index.html
var indexHTML []byte

const shutdownTimeout = 5 * time.Second

// Page is the controller behind the toggle button.
type Page interface {
	Toggle(ctx context.Context) error
	Status() viewer.Status
}

// Config configures a Server.
type Config struct {
	Port    string
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server is the HTTP front end.
type Server struct {
	app  *fiber.App
	port string
	log  *slog.Logger

	mu   sync.RWMutex
	page Page

	videoHub  *hub.Hub
	canvasHub *hub.Hub
	statusHub *hub.Hub
	hubsOnce  sync.Once
}

// NewServer creates the server and its hubs. Attach a Page before
// serving; until then the API answers 503.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		port:      cfg.Port,
		log:       cfg.Logger.With("component", "web"),
		videoHub:  hub.New("video", cfg.Logger),
		canvasHub: hub.New("canvas", cfg.Logger),
		statusHub: hub.New("status", cfg.Logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "facecam",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/", s.handleIndex)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/toggle", s.handleToggle)

	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/video", websocket.New(s.hubHandler(s.videoHub)))
	app.Get("/ws/canvas", websocket.New(s.hubHandler(s.canvasHub)))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// Attach sets the page the API drives.
func (s *Server) Attach(p Page) {
	s.mu.Lock()
	s.page = p
	s.mu.Unlock()
}

func (s *Server) currentPage() Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page
}

// StartHubs runs the broadcast hubs until ctx is done. Only the first
// call has an effect.
func (s *Server) StartHubs(ctx context.Context) {
	s.hubsOnce.Do(func() {
		go s.videoHub.Run(ctx)
		go s.canvasHub.Run(ctx)
		go s.statusHub.Run(ctx)
	})
}

// Run listens on the configured port until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.StartHubs(ctx)

	errc := make(chan error, 1)
	go func() {
		errc <- s.app.Listener(ln)
	}()
	s.log.Info("web server listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		s.log.Info("web server shutting down")
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return err
		}
		return nil
	case err := <-errc:
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	}
}

// PublishStatus pushes st to every status subscriber. It matches the
// viewer's OnChange hook.
func (s *Server) PublishStatus(st viewer.Status) {
	if err := s.statusHub.BroadcastJSON(st); err != nil {
		s.log.Warn("encode status", "error", err)
	}
}

// VideoHub carries live preview frames.
func (s *Server) VideoHub() *hub.Hub { return s.videoHub }

// CanvasHub carries annotated frames.
func (s *Server) CanvasHub() *hub.Hub { return s.canvasHub }

// StatusHub carries status JSON.
func (s *Server) StatusHub() *hub.Hub { return s.statusHub }

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }
