// Package web serves the state feed: REST snapshots of the connection and
// particle state, session control, a websocket that pushes every change,
// and Prometheus metrics.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/hub"
	"github.com/teslashibe/go-gesture/pkg/metrics"
	"github.com/teslashibe/go-gesture/pkg/sink"
)

const shutdownTimeout = 5 * time.Second

// StateReader exposes the observable state.
type StateReader interface {
	Snapshot() sink.Snapshot
}

// Controller starts and stops live sessions.
type Controller interface {
	Connect(ctx context.Context) error
	Disconnect() error
}

// Server is the state feed HTTP server.
type Server struct {
	app     *fiber.App
	addr    string
	log     *slog.Logger
	state   StateReader
	control Controller
	metrics *metrics.Metrics
	feed    *hub.Hub
}

// NewServer creates a server listening on addr once started.
// control may be nil, in which case session routes answer 501.
func NewServer(addr string, state StateReader, control Controller, m *metrics.Metrics) *Server {
	s := &Server{
		addr:    addr,
		log:     log.Component("web"),
		state:   state,
		control: control,
		metrics: m,
	}
	s.feed = hub.New("state", hub.WithClientCount(m.SetFeedClients))

	app := fiber.New(fiber.Config{
		AppName:               "go-gesture",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	// CORS for the renderer during local development
	app.Use(cors.New())

	app.Get("/healthz", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/particles", s.handleParticles)
	api.Get("/connection", s.handleConnection)
	api.Post("/session/connect", s.handleConnect)
	api.Post("/session/disconnect", s.handleDisconnect)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.feed.Serve))

	s.app = app
	return s
}

// Publish pushes snap to every state feed subscriber.
func (s *Server) Publish(snap sink.Snapshot) {
	if err := s.feed.BroadcastJSON(snap); err != nil {
		s.log.Warn("encode snapshot", "error", err)
	}
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.feed.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		s.log.Info("state feed listening", "addr", ln.Addr().String())
		errc <- s.app.Listener(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			s.log.Warn("shutdown", "error", err)
		}
		<-s.feed.Done()
		return nil
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
