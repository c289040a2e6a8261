package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-plantbot/pkg/camera"
	"github.com/teslashibe/go-plantbot/pkg/history"
	"github.com/teslashibe/go-plantbot/pkg/protocol"
	"github.com/teslashibe/go-plantbot/pkg/radio"
	"github.com/teslashibe/go-plantbot/pkg/statemachine"
	"github.com/teslashibe/go-plantbot/pkg/watering"
)

// mockController records dashboard commands.
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
	return statemachine.Status{RunID: "run-1", State: m.state, Emergency: len(m.estops) > 0}
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

type mockHistory struct {
	waterings []history.WateringRecord
	err       error
	limit     int
	runID     string
}

func (m *mockHistory) RecentWaterings(limit int) ([]history.WateringRecord, error) {
	m.limit = limit
	return m.waterings, m.err
}

func (m *mockHistory) RecentTransitions(limit int) ([]history.TransitionRecord, error) {
	m.limit = limit
	return nil, m.err
}

func (m *mockHistory) RunWaterings(runID string) ([]history.WateringRecord, error) {
	m.runID = runID
	return m.waterings, m.err
}

func (m *mockHistory) Summary() ([]history.PlantSummary, error) {
	return []history.PlantSummary{{PlantIndex: 0, Waterings: 3}}, m.err
}

func doRequest(t *testing.T, s *Server, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func TestStatusEndpoint(t *testing.T) {
	ctrl := &mockController{state: statemachine.Standby}
	s := NewServer("0", ctrl)

	code, body := doRequest(t, s, "GET", "/api/status", "")
	if code != 200 {
		t.Fatalf("status code = %d", code)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["state"] != "standby" || got["run_id"] != "run-1" {
		t.Errorf("status = %v", got)
	}
}

func TestCommandEndpoints(t *testing.T) {
	ctrl := &mockController{state: statemachine.Standby}
	s := NewServer("0", ctrl)

	if code, _ := doRequest(t, s, "POST", "/api/start", ""); code != 202 {
		t.Errorf("start = %d", code)
	}
	if code, _ := doRequest(t, s, "POST", "/api/exit", ""); code != 202 {
		t.Errorf("exit = %d", code)
	}
	code, body := doRequest(t, s, "POST", "/api/estop", `{"reason":"operator saw a leak"}`)
	if code != 202 {
		t.Errorf("estop = %d", code)
	}
	var ack protocol.AckData
	json.Unmarshal(body, &ack)
	if ack.Action != protocol.ActionEStop || ack.State != "emergency_stopped" {
		t.Errorf("ack = %+v", ack)
	}

	if code, _ := doRequest(t, s, "POST", "/api/estop", ""); code != 202 {
		t.Errorf("estop without body = %d", code)
	}

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if ctrl.starts != 1 || ctrl.exits != 1 {
		t.Errorf("starts=%d exits=%d", ctrl.starts, ctrl.exits)
	}
	if len(ctrl.estops) != 2 || ctrl.estops[0] != "operator saw a leak" || ctrl.estops[1] != "dashboard" {
		t.Errorf("estops = %v", ctrl.estops)
	}
}

func TestDecisionsFromObserver(t *testing.T) {
	s := NewServer("0", &mockController{})

	d := watering.ComputeDecision(75, 20)
	s.OnWatering(statemachine.WateringEvent{
		RunID:          "run-1",
		Phase:          1,
		PlantIndex:     0,
		Decision:       d,
		ValveOpen:      d.Duration(),
		HumiditySource: statemachine.HumidityFromSensor,
	})
	s.OnStateChange(statemachine.Transition{RunID: "run-1", From: statemachine.Standby, To: statemachine.DrivingToPlant})

	_, body := doRequest(t, s, "GET", "/api/decisions", "")
	var decisions []protocol.WateringData
	if err := json.Unmarshal(body, &decisions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decisions) != 1 || decisions[0].HumidityPercent != 75 || !decisions[0].InRange {
		t.Errorf("decisions = %+v", decisions)
	}

	_, body = doRequest(t, s, "GET", "/api/transitions", "")
	var transitions []protocol.StateData
	json.Unmarshal(body, &transitions)
	if len(transitions) != 1 || transitions[0].To != "driving_to_plant" {
		t.Errorf("transitions = %+v", transitions)
	}
}

func TestAppendBounded(t *testing.T) {
	var s []int
	for i := 0; i < 5; i++ {
		s = appendBounded(s, i, 3)
	}
	if len(s) != 3 || s[0] != 2 || s[2] != 4 {
		t.Errorf("appendBounded = %v", s)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	s := NewServer("0", &mockController{})

	if code, _ := doRequest(t, s, "GET", "/api/history/waterings", ""); code != 503 {
		t.Errorf("without history = %d, want 503", code)
	}

	h := &mockHistory{waterings: []history.WateringRecord{{ID: "a", PlantIndex: 1}}}
	s.History = h

	code, body := doRequest(t, s, "GET", "/api/history/waterings?limit=5", "")
	if code != 200 || h.limit != 5 {
		t.Errorf("code=%d limit=%d", code, h.limit)
	}
	var records []history.WateringRecord
	json.Unmarshal(body, &records)
	if len(records) != 1 || records[0].ID != "a" {
		t.Errorf("records = %+v", records)
	}

	doRequest(t, s, "GET", "/api/history/transitions?limit=-3", "")
	if h.limit != defaultHistoryLimit {
		t.Errorf("bad limit not replaced: %d", h.limit)
	}

	if code, _ := doRequest(t, s, "GET", "/api/history/summary", ""); code != 200 {
		t.Errorf("summary = %d", code)
	}

	code, body = doRequest(t, s, "GET", "/api/history/runs/run-7", "")
	records = nil
	json.Unmarshal(body, &records)
	if code != 200 || h.runID != "run-7" || len(records) != 1 {
		t.Errorf("run waterings: code=%d run=%q records=%+v", code, h.runID, records)
	}

	h.err = errors.New("disk gone")
	if code, _ := doRequest(t, s, "GET", "/api/history/waterings", ""); code != 500 {
		t.Errorf("failing history = %d, want 500", code)
	}
}

func TestCameraEndpoints(t *testing.T) {
	s := NewServer("0", &mockController{})
	if code, _ := doRequest(t, s, "GET", "/api/camera", ""); code != 503 {
		t.Errorf("without camera = %d", code)
	}

	s.Camera = camera.NewManager(camera.DefaultConfig())
	code, body := doRequest(t, s, "PUT", "/api/camera", `{"preset":"wide","upper_v":240}`)
	if code != 200 {
		t.Fatalf("update = %d %s", code, body)
	}
	cfg := s.Camera.GetConfig()
	if cfg.Lower.H != 30 || cfg.Upper.V != 240 {
		t.Errorf("camera config = %+v", cfg)
	}

	if code, _ := doRequest(t, s, "PUT", "/api/camera", `{"lower_h":120}`); code != 400 {
		t.Errorf("invalid update = %d, want 400", code)
	}
	if code, _ := doRequest(t, s, "GET", "/api/camera/presets", ""); code != 200 {
		t.Errorf("presets = %d", code)
	}
}

func TestHumidityEndpoint(t *testing.T) {
	s := NewServer("0", &mockController{})
	if code, _ := doRequest(t, s, "GET", "/api/humidity", ""); code != 503 {
		t.Errorf("without radio = %d", code)
	}
	s.RadioSnapshot = func() map[int]float64 { return map[int]float64{0: 41.5} }
	code, body := doRequest(t, s, "GET", "/api/humidity", "")
	if code != 200 || !strings.Contains(string(body), "41.5") {
		t.Errorf("humidity = %d %s", code, body)
	}
	if strings.Contains(string(body), "decode_errors") {
		t.Errorf("radio stats without a receiver: %s", body)
	}

	s.RadioStats = func() radio.Stats { return radio.Stats{Frames: 12, DecodeErrors: 3} }
	code, body = doRequest(t, s, "GET", "/api/humidity", "")
	var resp HumidityResponse
	if err := json.Unmarshal(body, &resp); err != nil || code != 200 {
		t.Fatalf("humidity = %d %s (%v)", code, body, err)
	}
	if resp.Humidity[0] != 41.5 || resp.Radio == nil || resp.Radio.Frames != 12 || resp.Radio.DecodeErrors != 3 {
		t.Errorf("response = %+v radio=%+v", resp, resp.Radio)
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s := NewServer("0", &mockController{})
	if code, _ := doRequest(t, s, "GET", "/ws/status", ""); code != 426 {
		t.Errorf("plain GET /ws/status = %d, want 426", code)
	}
}

func TestStatusWebSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl := &mockController{state: statemachine.Standby}
	s := NewServer("18191", ctrl)
	go s.Start(ctx)
	defer s.Shutdown()
	time.Sleep(100 * time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws://localhost:18191/ws/status", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read initial status: %v", err)
	}
	msg, err := protocol.ParseMessage(raw)
	if err != nil || msg.Type != protocol.TypeStatus {
		t.Fatalf("initial message = %s (%v)", raw, err)
	}

	ctrl.EmergencyStop("test")
	s.OnStateChange(statemachine.Transition{From: statemachine.Standby, To: statemachine.EmergencyStopped})

	_, raw, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read update: %v", err)
	}
	if !strings.Contains(string(raw), `"emergency_stopped"`) {
		t.Errorf("update = %s", raw)
	}
}
