package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-gesture/pkg/live"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleState returns connection and particle state together
func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.state.Snapshot())
}

func (s *Server) handleParticles(c *fiber.Ctx) error {
	return c.JSON(s.state.Snapshot().Particles)
}

func (s *Server) handleConnection(c *fiber.Ctx) error {
	return c.JSON(s.state.Snapshot().Connection)
}

// handleConnect starts a session and reports the resulting connection state.
func (s *Server) handleConnect(c *fiber.Ctx) error {
	if s.control == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "session control not configured")
	}

	if err := s.control.Connect(c.UserContext()); err != nil {
		return c.Status(connectStatus(err)).JSON(fiber.Map{
			"error": live.Reason(err),
			"kind":  string(live.KindOf(err)),
		})
	}
	return c.JSON(s.state.Snapshot().Connection)
}

func (s *Server) handleDisconnect(c *fiber.Ctx) error {
	if s.control == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "session control not configured")
	}

	if err := s.control.Disconnect(); err != nil {
		return err
	}
	return c.JSON(s.state.Snapshot().Connection)
}

func connectStatus(err error) int {
	switch {
	case errors.Is(err, live.ErrAlreadyConnected):
		return fiber.StatusConflict
	case errors.Is(err, live.ErrClientClosed):
		return fiber.StatusGone
	case live.IsKind(err, live.KindAcquisition):
		return fiber.StatusServiceUnavailable
	case live.IsKind(err, live.KindTransport), live.IsKind(err, live.KindProtocol):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}
