package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-facecam/pkg/hub"
)

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.Send(indexHTML)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	p := s.currentPage()
	if p == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "not ready"})
	}
	return c.JSON(p.Status())
}

// handleToggle flips the session. The response always carries the new
// status; a refused camera also sets 503 so scripts can tell.
func (s *Server) handleToggle(c *fiber.Ctx) error {
	p := s.currentPage()
	if p == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "not ready"})
	}
	if err := p.Toggle(c.UserContext()); err != nil {
		s.log.Warn("toggle failed", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(p.Status())
	}
	return c.JSON(p.Status())
}

func (s *Server) hubHandler(h *hub.Hub) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		client, err := hub.NewClient(h, conn)
		if err != nil {
			return
		}
		client.Run()
	}
}

// handleStatusWS sends the current status on connect, then every change.
func (s *Server) handleStatusWS(conn *websocket.Conn) {
	var initial []hub.Message
	if p := s.currentPage(); p != nil {
		if msg, err := hub.JSON(p.Status()); err == nil {
			initial = append(initial, msg)
		}
	}
	client, err := hub.NewClient(s.statusHub, conn, initial...)
	if err != nil {
		return
	}
	client.Run()
}
