package remote

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-plantbot/pkg/camera"
	"github.com/teslashibe/go-plantbot/pkg/protocol"
	"github.com/teslashibe/go-plantbot/pkg/statemachine"
)

type mockController struct {
	mu     sync.Mutex
	state  statemachine.RobotState
	starts int
	exits  int
	estops []string
}

func (m *mockController) Status() statemachine.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return statemachine.Status{State: m.state}
}

func (m *mockController) RequestStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
}

func (m *mockController) RequestExit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exits++
}

func (m *mockController) EmergencyStop(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.estops = append(m.estops, reason)
	m.state = statemachine.EmergencyStopped
}

func TestNewHub(t *testing.T) {
	hub := NewHub(&mockController{}, nil)
	if hub.PendantCount() != 0 {
		t.Error("PendantCount should be 0 initially")
	}
	if hub.GetPendant("nonexistent") != nil {
		t.Error("GetPendant should return nil for unknown id")
	}
	stats := hub.GetStats()
	if stats.MessagesReceived != 0 || stats.MessagesSent != 0 || stats.Commands != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBroadcastWithoutPendants(t *testing.T) {
	hub := NewHub(&mockController{}, nil)
	// Should not panic
	hub.OnStateChange(statemachine.Transition{From: statemachine.Standby, To: statemachine.DrivingToPlant})
	hub.OnWatering(statemachine.WateringEvent{PlantIndex: 1})
	if hub.GetStats().MessagesSent != 0 {
		t.Error("nothing should be sent without pendants")
	}
}

func readMessage(t *testing.T, ws *websocket.Conn) *protocol.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.ParseMessage(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return msg
}

func writeMessage(t *testing.T, ws *websocket.Conn, msg *protocol.Message) {
	t.Helper()
	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestPendantConnection(t *testing.T) {
	ctrl := &mockController{state: statemachine.Standby}
	cam := camera.NewManager(camera.DefaultConfig())
	hub := NewHub(ctrl, cam)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	hub.RegisterRoutes(app)

	go app.Listen(":18190")
	defer app.Shutdown()
	time.Sleep(100 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18190/ws/pendant/test-pendant", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	if msg := readMessage(t, ws); msg.Type != protocol.TypeStatus {
		t.Fatalf("first message = %v, want status", msg.Type)
	}
	if hub.GetPendant("test-pendant") == nil {
		t.Fatal("pendant not registered")
	}

	// Commands are acked with the resulting state
	cmd, _ := protocol.NewCommandMessage(protocol.ActionEStop, "")
	writeMessage(t, ws, cmd)
	msg := readMessage(t, ws)
	ack, err := msg.GetAckData()
	if msg.Type != protocol.TypeAck || err != nil {
		t.Fatalf("reply = %v (%v)", msg.Type, err)
	}
	if ack.Action != protocol.ActionEStop || ack.State != "emergency_stopped" {
		t.Errorf("ack = %+v", ack)
	}

	bad, _ := protocol.NewCommandMessage("dance", "")
	writeMessage(t, ws, bad)
	if msg := readMessage(t, ws); msg.Type != protocol.TypeError {
		t.Errorf("invalid command reply = %v, want error", msg.Type)
	}

	ping, _ := protocol.NewPingMessage("p1")
	writeMessage(t, ws, ping)
	msg = readMessage(t, ws)
	pong, err := msg.GetPongData()
	if msg.Type != protocol.TypePong || err != nil || pong.ID != "p1" {
		t.Errorf("pong = %v %+v (%v)", msg.Type, pong, err)
	}

	update, _ := protocol.NewMessage(protocol.TypeConfig, protocol.ConfigUpdate{
		Camera: map[string]interface{}{"preset": "wide"},
	})
	writeMessage(t, ws, update)
	if msg := readMessage(t, ws); msg.Type != protocol.TypeAck {
		t.Errorf("config reply = %v, want ack", msg.Type)
	}
	if cam.GetConfig().Lower.H != 30 {
		t.Errorf("camera preset not applied: %+v", cam.GetConfig())
	}

	hub.OnStateChange(statemachine.Transition{RunID: "r", From: statemachine.Standby, To: statemachine.EmergencyStopped})
	msg = readMessage(t, ws)
	state, err := msg.GetStateData()
	if msg.Type != protocol.TypeState || err != nil || state.To != "emergency_stopped" {
		t.Errorf("broadcast = %v %+v (%v)", msg.Type, state, err)
	}

	ctrl.mu.Lock()
	if len(ctrl.estops) != 1 || ctrl.estops[0] != "pendant test-pendant" {
		t.Errorf("estops = %v", ctrl.estops)
	}
	ctrl.mu.Unlock()

	if hub.GetStats().Commands != 1 {
		t.Errorf("Commands = %d, want 1", hub.GetStats().Commands)
	}

	ws.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.PendantCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.PendantCount() != 0 {
		t.Errorf("PendantCount = %d after close", hub.PendantCount())
	}
}

func TestRegisterRoutes(t *testing.T) {
	hub := NewHub(&mockController{}, nil)
	app := fiber.New()
	hub.RegisterRoutes(app)
	// Should not panic
	hub.RegisterAPIRoutes(app.Group("/api"))
}

// stalledConn never completes a write until released, like a pendant that
// dropped off the network without closing the socket.
type stalledConn struct {
	release chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func newStalledConn() *stalledConn {
	return &stalledConn{release: make(chan struct{}), closed: make(chan struct{})}
}

func (s *stalledConn) ReadMessage() (int, []byte, error) {
	<-s.closed
	return 0, nil, errors.New("closed")
}

func (s *stalledConn) SetReadDeadline(time.Time) error   { return nil }
func (s *stalledConn) SetPongHandler(func(string) error) {}
func (s *stalledConn) SetWriteDeadline(time.Time) error  { return nil }

func (s *stalledConn) WriteMessage(int, []byte) error {
	select {
	case <-s.release:
		return nil
	case <-s.closed:
		return errors.New("closed")
	}
}

func (s *stalledConn) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func TestStalledPendantDoesNotBlockObserver(t *testing.T) {
	hub := NewHub(&mockController{state: statemachine.DrivingToPlant}, nil)
	conn := newStalledConn()
	p := newPendant("stalled", conn)

	served := make(chan struct{})
	go func() {
		hub.serve(p)
		close(served)
	}()

	// the initial status is queued once the pendant is registered
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetStats().MessagesSent == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if hub.PendantCount() != 1 {
		t.Fatal("pendant not registered")
	}

	const events = 200
	done := make(chan struct{})
	go func() {
		for i := 0; i < events; i++ {
			hub.OnStateChange(statemachine.Transition{From: statemachine.DrivingToPlant, To: statemachine.EvaluatingProximity})
		}
		hub.OnWatering(statemachine.WateringEvent{PlantIndex: 1})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("observer callbacks blocked on a stalled pendant")
	}

	stats := hub.GetStats()
	if stats.Dropped == 0 {
		t.Error("expected dropped messages for a stalled pendant")
	}
	// status + events + watering, each either queued or dropped
	if stats.MessagesSent+stats.Dropped != events+2 {
		t.Errorf("sent %d + dropped %d, want %d", stats.MessagesSent, stats.Dropped, events+2)
	}
	if stats.MessagesSent > sendBuffer+1 {
		t.Errorf("MessagesSent = %d, want at most %d", stats.MessagesSent, sendBuffer+1)
	}

	conn.Close()
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after the connection closed")
	}
	if hub.PendantCount() != 0 {
		t.Errorf("PendantCount = %d after close", hub.PendantCount())
	}
	if err := p.Send(mustPong(t)); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after close = %v, want ErrClosed", err)
	}
}

func mustPong(t *testing.T) *protocol.Message {
	t.Helper()
	msg, err := protocol.NewPongMessage("x", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	return msg
}
