package web

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-itemsense/pkg/actuation"
	"github.com/teslashibe/go-itemsense/pkg/hub"
)

// LabelsResponse is returned by GET /api/labels.
type LabelsResponse struct {
	Labels []string         `json:"labels"`
	Pins   actuation.PinMap `json:"pins"`
}

// handleStatus returns the last published snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return c.JSON(s.status)
}

// handleLabels returns the model's labels and the pin map
func (s *Server) handleLabels(c *fiber.Ctx) error {
	pins := s.pins
	if pins == nil {
		pins = actuation.PinMap{}
	}
	return c.JSON(LabelsResponse{Labels: s.labels, Pins: pins})
}

// handleHubWS attaches a websocket connection to h until it closes
func (s *Server) handleHubWS(h *hub.Hub) func(*websocket.Conn) {
	return h.Serve
}
