// Package server wires the HTTP app: the duplex voice WebSocket endpoint
// plus health and session stats routes.
package server

import (
	"log/slog"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/samaira-ai/voicegate/internal/log"
	"github.com/samaira-ai/voicegate/pkg/session"
)

// Server is the voicegate HTTP/WebSocket server.
type Server struct {
	app      *fiber.App
	registry *session.Registry
	logger   *slog.Logger
}

// New builds the fiber app around the session registry.
func New(registry *session.Registry) *Server {
	s := &Server{
		registry: registry,
		logger:   log.With("component", "server"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voicegate",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Get("/sessions", s.handleSessions)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/voice", websocket.New(registry.Handle))

	s.app = app
	return s
}

func (s *Server) handleSessions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"sessions": s.registry.Infos(),
		"count":    s.registry.Count(),
	})
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on the given address until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
