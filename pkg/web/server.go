// Package web serves fall detection sessions over HTTP and websockets.
package web

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/teslashibe/go-falldetect/internal/log"
	"github.com/teslashibe/go-falldetect/pkg/hub"
)

// SessionHeader selects the session a request applies to
const SessionHeader = "X-Session-ID"

// Options configures the HTTP server
type Options struct {
	// CORSOrigins lists the allowed browser origins. Empty allows all.
	CORSOrigins    []string
	RequestLogging bool
	BodyLimit      int // bytes
	SessionIdle    time.Duration
	Logger         *slog.Logger
}

// DefaultOptions returns options for local development
func DefaultOptions() Options {
	return Options{
		CORSOrigins: []string{"http://localhost:3000"},
		BodyLimit:   16 * 1024 * 1024,
		SessionIdle: 10 * time.Minute,
	}
}

// Server is the fall detection HTTP server
type Server struct {
	app      *fiber.App
	sessions *Registry
	events   *hub.Hub
	logger   *slog.Logger
}

// NewServer creates the server. factory builds the engine for each session.
func NewServer(opts Options, factory Factory) *Server {
	lg := opts.Logger
	if lg == nil {
		lg = log.Component("web")
	}
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = DefaultOptions().BodyLimit
	}

	s := &Server{
		sessions: NewRegistry(factory, opts.SessionIdle, lg),
		events:   hub.New(lg.With("component", "hub")),
		logger:   lg,
	}

	app := fiber.New(fiber.Config{
		AppName:               "falld",
		DisableStartupMessage: true,
		BodyLimit:             opts.BodyLimit,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	if opts.RequestLogging {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency}\n",
			Output: os.Stdout,
		}))
	}

	origins := "*"
	if len(opts.CORSOrigins) > 0 {
		origins = strings.Join(opts.CORSOrigins, ",")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Content-Type," + SessionHeader,
		MaxAge:       3600,
	}))

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/hello", s.handleHello)
	api.Post("/sessions", s.handleCreateSession)
	api.Delete("/sessions/:id", s.handleDeleteSession)
	api.Get("/session", s.handleSessionStats)
	api.Post("/detect_fall", s.handleDetectFall)
	api.Post("/toggle_pause", s.handleTogglePause)
	api.Get("/get_previous_frames", s.handlePreviousFrames)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.events.Serve))

	s.app = app
	return s
}

// App exposes the fiber app for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Sessions returns the session registry
func (s *Server) Sessions() *Registry {
	return s.sessions
}

// Events returns the fall event hub
func (s *Server) Events() *hub.Hub {
	return s.events
}

// Run starts the background loops and serves on addr until ctx is
// cancelled, then shuts down and closes every session.
func (s *Server) Run(ctx context.Context, addr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.events.Run(ctx)
	go s.sessions.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- s.app.Listen(addr)
	}()

	var listenErr error
	select {
	case <-ctx.Done():
	case listenErr = <-errCh:
	}

	return errors.Join(listenErr, s.Shutdown())
}

// Shutdown stops the HTTP server and closes every session
func (s *Server) Shutdown() error {
	shutdownErr := s.app.ShutdownWithTimeout(5 * time.Second)
	closeErr := s.sessions.Close()
	if closeErr != nil {
		s.logger.Error("session teardown failed", "error", closeErr)
	}
	return errors.Join(shutdownErr, closeErr)
}
