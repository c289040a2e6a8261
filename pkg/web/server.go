// Package web provides the operator dashboard: controller status, recent
// watering decisions, run history and start / e-stop / exit controls.
package web

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-plantbot/internal/log"
	"github.com/teslashibe/go-plantbot/pkg/camera"
	"github.com/teslashibe/go-plantbot/pkg/history"
	"github.com/teslashibe/go-plantbot/pkg/hub"
	"github.com/teslashibe/go-plantbot/pkg/protocol"
	"github.com/teslashibe/go-plantbot/pkg/radio"
	"github.com/teslashibe/go-plantbot/pkg/statemachine"
)

// Controller is the part of the state machine the dashboard drives.
type Controller interface {
	Status() statemachine.Status
	RequestStart()
	RequestExit()
	EmergencyStop(reason string)
}

// History is the read side of the run history.
type History interface {
	RecentWaterings(limit int) ([]history.WateringRecord, error)
	RecentTransitions(limit int) ([]history.TransitionRecord, error)
	RunWaterings(runID string) ([]history.WateringRecord, error)
	Summary() ([]history.PlantSummary, error)
}

const (
	maxDecisions   = 100
	maxTransitions = 200
)

// Server is the web dashboard server
type Server struct {
	app    *fiber.App
	port   string
	ctrl   Controller
	logger *slog.Logger

	// Optional collaborators, set before Start
	History       History
	Camera        *camera.Manager
	RadioSnapshot func() map[int]float64
	RadioStats    func() radio.Stats

	// Recent events kept in memory for page loads
	decisions   []protocol.WateringData
	transitions []protocol.StateData
	eventsMu    sync.RWMutex

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	eventHub  *hub.Hub
}

var _ statemachine.Observer = (*Server)(nil)

// NewServer creates a new web dashboard server
func NewServer(port string, ctrl Controller) *Server {
	s := &Server{
		port:        port,
		ctrl:        ctrl,
		logger:      log.Component("web"),
		decisions:   make([]protocol.WateringData, 0, maxDecisions),
		transitions: make([]protocol.StateData, 0, maxTransitions),
		statusHub:   hub.New("status"),
		eventHub:    hub.New("events"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Plantbot Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/decisions", s.handleDecisions)
	api.Get("/transitions", s.handleTransitions)
	api.Post("/start", s.handleStart)
	api.Post("/estop", s.handleEStop)
	api.Post("/exit", s.handleExit)
	api.Get("/humidity", s.handleHumidity)

	api.Get("/history/waterings", s.handleHistoryWaterings)
	api.Get("/history/transitions", s.handleHistoryTransitions)
	api.Get("/history/summary", s.handleHistorySummary)
	api.Get("/history/runs/:id", s.handleHistoryRun)

	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handleUpdateCamera)
	api.Get("/camera/presets", s.handleCameraPresets)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// App exposes the fiber app for mounting extra routes.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hubs and serves until the listener fails or Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("web dashboard", "url", "http://localhost:"+s.port)

	go s.statusHub.Run(ctx)
	go s.eventHub.Run(ctx)

	return s.app.Listen(":" + s.port)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Error("web server stopped", "error", err)
		}
	}()
}

// OnStateChange records and broadcasts a transition.
func (s *Server) OnStateChange(t statemachine.Transition) {
	data := protocol.StateData{
		RunID:  t.RunID,
		From:   t.From.String(),
		To:     t.To.String(),
		Reason: t.Reason,
	}

	s.eventsMu.Lock()
	s.transitions = appendBounded(s.transitions, data, maxTransitions)
	s.eventsMu.Unlock()

	s.publish(s.eventHub, protocol.TypeState, data)
	s.publishStatus()
}

// OnWatering records and broadcasts a watering.
func (s *Server) OnWatering(e statemachine.WateringEvent) {
	data := wateringData(e)

	s.eventsMu.Lock()
	s.decisions = appendBounded(s.decisions, data, maxDecisions)
	s.eventsMu.Unlock()

	s.publish(s.eventHub, protocol.TypeWatering, data)
	s.publishStatus()
}

func (s *Server) publishStatus() {
	if s.ctrl == nil {
		return
	}
	s.publish(s.statusHub, protocol.TypeStatus, s.ctrl.Status())
}

func (s *Server) publish(h *hub.Hub, t protocol.MessageType, data interface{}) {
	msg, err := protocol.NewMessage(t, data)
	if err != nil {
		s.logger.Error("encode message", "type", t, "error", err)
		return
	}
	raw, err := msg.Bytes()
	if err != nil {
		s.logger.Error("encode message", "type", t, "error", err)
		return
	}
	h.Broadcast(hub.NewJSONMessage(raw))
}

func wateringData(e statemachine.WateringEvent) protocol.WateringData {
	return protocol.WateringData{
		RunID:            e.RunID,
		Phase:            e.Phase,
		PlantIndex:       e.PlantIndex,
		HumidityPercent:  e.Decision.HumidityPercent,
		GreeneryPercent:  e.Decision.GreeneryPercent,
		VolumeMl:         e.Decision.VolumeMl,
		ValveOpenSeconds: e.ValveOpen.Seconds(),
		InRange:          e.Decision.InRange,
		HumiditySource:   e.HumiditySource,
		Degraded:         e.Degraded,
		Interrupted:      e.Interrupted,
	}
}

func appendBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
