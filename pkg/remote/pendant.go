// Package remote accepts operator pendants over websocket. A pendant can
// start the run, raise an emergency stop, request exit, tune the greenery
// camera and receives every state and watering event.
package remote

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-plantbot/internal/log"
	"github.com/teslashibe/go-plantbot/pkg/camera"
	"github.com/teslashibe/go-plantbot/pkg/protocol"
	"github.com/teslashibe/go-plantbot/pkg/statemachine"
)

// Controller is what a pendant can drive.
type Controller interface {
	Status() statemachine.Status
	RequestStart()
	RequestExit()
	EmergencyStop(reason string)
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer is the per-pendant outbound queue length
	sendBuffer = 64
)

var (
	// ErrQueueFull is returned by Send when the pendant writer is behind.
	ErrQueueFull = errors.New("remote: pendant send queue full")
	// ErrClosed is returned by Send after the pendant disconnected.
	ErrClosed = errors.New("remote: pendant closed")
)

// Conn is the subset of a websocket connection a pendant uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Pendant represents a connected operator pendant. Only its writer
// goroutine touches the connection for writes.
type Pendant struct {
	ID        string
	Connected time.Time
	LastSeen  time.Time

	conn      Conn
	send      chan []byte
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
}

func newPendant(id string, conn Conn) *Pendant {
	now := time.Now()
	return &Pendant{
		ID:        id,
		Connected: now,
		LastSeen:  now,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Send queues a message for the pendant without blocking.
func (p *Pendant) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.send <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// writePump drains the send queue and keeps the link alive with pings.
func (p *Pendant) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
		close(p.stopped)
	}()

	for {
		select {
		case data := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-p.done:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			p.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// close stops the writer and waits for it to release the connection.
func (p *Pendant) close() {
	p.closeOnce.Do(func() { close(p.done) })
	<-p.stopped
}

func (p *Pendant) touch() {
	p.mu.Lock()
	p.LastSeen = time.Now()
	p.mu.Unlock()
}

// Hub manages pendant connections
type Hub struct {
	mu       sync.RWMutex
	pendants map[string]*Pendant
	ctrl     Controller
	camera   *camera.Manager
	logger   *slog.Logger

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	dropped          atomic.Uint64
	commands         atomic.Uint64
}

var _ statemachine.Observer = (*Hub)(nil)

// NewHub creates a pendant hub. cam may be nil when no camera is fitted.
func NewHub(ctrl Controller, cam *camera.Manager) *Hub {
	return &Hub{
		pendants: make(map[string]*Pendant),
		ctrl:     ctrl,
		camera:   cam,
		logger:   log.Component("remote"),
	}
}

// RegisterRoutes registers the pendant websocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/pendant", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/pendant", websocket.New(h.handlePendant))
	app.Get("/ws/pendant/:id", websocket.New(h.handlePendant))
}

func (h *Hub) handlePendant(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}
	h.serve(newPendant(id, c))
}

// serve registers p, runs its writer and reads until the link drops.
func (h *Hub) serve(p *Pendant) {
	h.mu.Lock()
	h.pendants[p.ID] = p
	count := len(h.pendants)
	h.mu.Unlock()
	h.logger.Info("pendant connected", "id", p.ID, "total", count)

	go p.writePump()

	defer func() {
		h.mu.Lock()
		if h.pendants[p.ID] == p {
			delete(h.pendants, p.ID)
		}
		count := len(h.pendants)
		h.mu.Unlock()
		p.close()
		h.logger.Info("pendant disconnected", "id", p.ID, "total", count)
	}()

	if msg, err := protocol.NewStatusMessage(h.ctrl.Status()); err == nil {
		h.send(p, msg)
	}

	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			h.logger.Debug("pendant read ended", "id", p.ID, "error", err)
			return
		}
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		p.touch()
		h.messagesReceived.Add(1)
		h.handleMessage(p, data)
	}
}

func (h *Hub) handleMessage(p *Pendant, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.replyError(p, "invalid message: "+err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeCommand:
		cmd, err := msg.GetCommand()
		if err != nil || !cmd.Valid() {
			h.replyError(p, "invalid command")
			return
		}
		h.commands.Add(1)
		h.dispatch(p.ID, cmd)
		if ack, err := protocol.NewAckMessage(cmd.Action, h.ctrl.Status().State.String()); err == nil {
			h.send(p, ack)
		}

	case protocol.TypeConfig:
		update, err := msg.GetConfigUpdate()
		if err != nil {
			h.replyError(p, "invalid config: "+err.Error())
			return
		}
		if update.Camera != nil {
			if h.camera == nil {
				h.replyError(p, "camera not configured")
				return
			}
			if err := h.camera.UpdateConfig(update.Camera); err != nil {
				h.replyError(p, err.Error())
				return
			}
		}
		if ack, err := protocol.NewAckMessage("config", h.ctrl.Status().State.String()); err == nil {
			h.send(p, ack)
		}

	case protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			return
		}
		if pong, err := protocol.NewPongMessage(ping.ID, ping.Timestamp, time.Now().UnixMilli()); err == nil {
			h.send(p, pong)
		}

	default:
		h.replyError(p, "unsupported message type: "+string(msg.Type))
	}
}

func (h *Hub) dispatch(pendantID string, cmd *protocol.CommandData) {
	h.logger.Info("pendant command", "id", pendantID, "action", cmd.Action)
	switch cmd.Action {
	case protocol.ActionStart:
		h.ctrl.RequestStart()
	case protocol.ActionEStop:
		reason := cmd.Reason
		if reason == "" {
			reason = "pendant " + pendantID
		}
		h.ctrl.EmergencyStop(reason)
	case protocol.ActionExit:
		h.ctrl.RequestExit()
	}
}

func (h *Hub) replyError(p *Pendant, text string) {
	if msg, err := protocol.NewErrorMessage(text); err == nil {
		h.send(p, msg)
	}
}

// send queues msg for p. A full queue drops the message so the caller
// never waits on a slow pendant.
func (h *Hub) send(p *Pendant, msg *protocol.Message) {
	if err := p.Send(msg); err != nil {
		if errors.Is(err, ErrQueueFull) {
			h.dropped.Add(1)
		}
		h.logger.Debug("pendant send failed", "id", p.ID, "error", err)
		return
	}
	h.messagesSent.Add(1)
}

// Broadcast queues a message for all connected pendants. It does not block.
func (h *Hub) Broadcast(msg *protocol.Message) {
	h.mu.RLock()
	pendants := make([]*Pendant, 0, len(h.pendants))
	for _, p := range h.pendants {
		pendants = append(pendants, p)
	}
	h.mu.RUnlock()

	for _, p := range pendants {
		h.send(p, msg)
	}
}

// OnStateChange forwards a transition to every pendant
func (h *Hub) OnStateChange(t statemachine.Transition) {
	msg, err := protocol.NewStateMessage(protocol.StateData{
		RunID:  t.RunID,
		From:   t.From.String(),
		To:     t.To.String(),
		Reason: t.Reason,
	})
	if err != nil {
		return
	}
	h.Broadcast(msg)
}

// OnWatering forwards a watering to every pendant
func (h *Hub) OnWatering(e statemachine.WateringEvent) {
	msg, err := protocol.NewWateringMessage(protocol.WateringData{
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
	})
	if err != nil {
		return
	}
	h.Broadcast(msg)
}

// PendantCount returns the number of connected pendants
func (h *Hub) PendantCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pendants)
}

// GetPendant returns a pendant by ID
func (h *Hub) GetPendant(id string) *Pendant {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.pendants[id]
}

// Stats contains hub statistics
type Stats struct {
	PendantCount     int    `json:"pendant_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	Dropped          uint64 `json:"dropped"`
	Commands         uint64 `json:"commands"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		PendantCount:     h.PendantCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		Dropped:          h.dropped.Load(),
		Commands:         h.commands.Load(),
	}
}

// RegisterAPIRoutes exposes pendant stats on the dashboard API
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	api.Get("/pendants", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}
