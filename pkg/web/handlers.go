package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-plantbot/pkg/camera"
	"github.com/teslashibe/go-plantbot/pkg/hub"
	"github.com/teslashibe/go-plantbot/pkg/protocol"
	"github.com/teslashibe/go-plantbot/pkg/radio"
)

const defaultHistoryLimit = 50

// handleStatus returns the controller snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Status())
}

// handleDecisions returns recent watering decisions, oldest first
func (s *Server) handleDecisions(c *fiber.Ctx) error {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()
	return c.JSON(s.decisions)
}

// handleTransitions returns recent state transitions, oldest first
func (s *Server) handleTransitions(c *fiber.Ctx) error {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()
	return c.JSON(s.transitions)
}

// CommandRequest is the optional body of the command endpoints
type CommandRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	s.ctrl.RequestStart()
	s.logger.Info("start requested from dashboard", "ip", c.IP())
	return s.ack(c, protocol.ActionStart)
}

func (s *Server) handleEStop(c *fiber.Ctx) error {
	var req CommandRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid body: " + err.Error(),
			})
		}
	}
	reason := req.Reason
	if reason == "" {
		reason = "dashboard"
	}
	s.ctrl.EmergencyStop(reason)
	return s.ack(c, protocol.ActionEStop)
}

func (s *Server) handleExit(c *fiber.Ctx) error {
	s.ctrl.RequestExit()
	return s.ack(c, protocol.ActionExit)
}

func (s *Server) ack(c *fiber.Ctx, action string) error {
	return c.Status(fiber.StatusAccepted).JSON(protocol.AckData{
		Action: action,
		State:  s.ctrl.Status().State.String(),
	})
}

// HumidityResponse is the body of GET /api/humidity
type HumidityResponse struct {
	Humidity map[int]float64 `json:"humidity"`
	Radio    *radio.Stats    `json:"radio,omitempty"`
}

// handleHumidity returns the latest radio readings per plant and the
// bridge frame counters when a receiver is running
func (s *Server) handleHumidity(c *fiber.Ctx) error {
	if s.RadioSnapshot == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "radio not configured",
		})
	}
	resp := HumidityResponse{Humidity: s.RadioSnapshot()}
	if s.RadioStats != nil {
		stats := s.RadioStats()
		resp.Radio = &stats
	}
	return c.JSON(resp)
}

func (s *Server) historyLimit(c *fiber.Ctx) int {
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 || limit > 1000 {
		limit = defaultHistoryLimit
	}
	return limit
}

func (s *Server) handleHistoryWaterings(c *fiber.Ctx) error {
	if s.History == nil {
		return noHistory(c)
	}
	records, err := s.History.RecentWaterings(s.historyLimit(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(records)
}

func (s *Server) handleHistoryTransitions(c *fiber.Ctx) error {
	if s.History == nil {
		return noHistory(c)
	}
	records, err := s.History.RecentTransitions(s.historyLimit(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(records)
}

func (s *Server) handleHistorySummary(c *fiber.Ctx) error {
	if s.History == nil {
		return noHistory(c)
	}
	summary, err := s.History.Summary()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(summary)
}

// handleHistoryRun returns one run's waterings, oldest first
func (s *Server) handleHistoryRun(c *fiber.Ctx) error {
	if s.History == nil {
		return noHistory(c)
	}
	records, err := s.History.RunWaterings(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(records)
}

func noHistory(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "history not configured",
	})
}

// handleGetCamera returns the greenery camera config
func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.Camera == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "camera not configured"})
	}
	return c.JSON(s.Camera.GetConfigJSON())
}

// handleUpdateCamera applies a partial camera config update
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	if s.Camera == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "camera not configured"})
	}

	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body: " + err.Error()})
	}
	if err := s.Camera.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s.Camera.GetConfigJSON())
}

// handleCameraPresets lists the available band presets
func (s *Server) handleCameraPresets(c *fiber.Ctx) error {
	return c.JSON(camera.Presets())
}

// handleStatusWS streams controller snapshots, starting with the current one
func (s *Server) handleStatusWS(c *websocket.Conn) {
	var initial []hub.Message
	if msg, err := protocol.NewStatusMessage(s.ctrl.Status()); err == nil {
		if raw, err := msg.Bytes(); err == nil {
			initial = append(initial, hub.NewJSONMessage(raw))
		}
	}
	if client := hub.NewClient(s.statusHub, c, initial...); client != nil {
		client.Run()
	}
}

// handleEventsWS streams state and watering events
func (s *Server) handleEventsWS(c *websocket.Conn) {
	if client := hub.NewClient(s.eventHub, c); client != nil {
		client.Run()
	}
}
