package protocol

import (
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "state message",
			msgType: TypeState,
			data:    StateData{From: "standby", To: "driving_to_plant"},
		},
		{
			name:    "command message",
			msgType: TypeCommand,
			data:    CommandData{Action: ActionStart},
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeStatus,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    MessageType
		wantErr bool
	}{
		{"command", `{"type":"command","data":{"action":"estop"}}`, TypeCommand, false},
		{"ping without data", `{"type":"ping"}`, TypePing, false},
		{"missing type", `{"data":{}}`, "", true},
		{"not json", `estop`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && msg.Type != tt.want {
				t.Errorf("Type = %v, want %v", msg.Type, tt.want)
			}
		})
	}
}

func TestWateringMessage(t *testing.T) {
	msg, err := NewWateringMessage(WateringData{
		RunID:            "run-1",
		Phase:            2,
		PlantIndex:       1,
		HumidityPercent:  75,
		GreeneryPercent:  20,
		VolumeMl:         69.64,
		ValveOpenSeconds: 1.35,
		InRange:          true,
		HumiditySource:   "sensor",
	})
	if err != nil {
		t.Fatalf("NewWateringMessage() error = %v", err)
	}

	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if parsed.Type != TypeWatering {
		t.Errorf("Type = %v, want %v", parsed.Type, TypeWatering)
	}

	data, err := parsed.GetWateringData()
	if err != nil {
		t.Fatalf("GetWateringData() error = %v", err)
	}
	if data.PlantIndex != 1 || data.ValveOpenSeconds != 1.35 || !data.InRange {
		t.Errorf("watering data = %+v", data)
	}
}

func TestCommandMessage(t *testing.T) {
	tests := []struct {
		action string
		valid  bool
	}{
		{ActionStart, true},
		{ActionEStop, true},
		{ActionExit, true},
		{"dance", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			msg, err := NewCommandMessage(tt.action, "pendant")
			if err != nil {
				t.Fatalf("NewCommandMessage() error = %v", err)
			}
			cmd, err := msg.GetCommand()
			if err != nil {
				t.Fatalf("GetCommand() error = %v", err)
			}
			if cmd.Action != tt.action || cmd.Reason != "pendant" {
				t.Errorf("command = %+v", cmd)
			}
			if cmd.Valid() != tt.valid {
				t.Errorf("Valid() = %v, want %v", cmd.Valid(), tt.valid)
			}
		})
	}
}

func TestConfigUpdate(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"config","data":{"camera":{"preset":"wide","lower_h":40}}}`))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	update, err := msg.GetConfigUpdate()
	if err != nil {
		t.Fatalf("GetConfigUpdate() error = %v", err)
	}
	if update.Camera["preset"] != "wide" || update.Camera["lower_h"] != float64(40) {
		t.Errorf("camera update = %v", update.Camera)
	}
}

func TestAckMessage(t *testing.T) {
	msg, err := NewAckMessage(ActionEStop, "emergency_stopped")
	if err != nil {
		t.Fatalf("NewAckMessage() error = %v", err)
	}
	ack, err := msg.GetAckData()
	if err != nil {
		t.Fatalf("GetAckData() error = %v", err)
	}
	if ack.Action != ActionEStop || ack.State != "emergency_stopped" {
		t.Errorf("ack = %+v", ack)
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage("test-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}

	if pingMsg.Type != TypePing {
		t.Errorf("Type = %v, want %v", pingMsg.Type, TypePing)
	}

	pingData, err := pingMsg.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}

	if pingData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pingData.ID)
	}

	// Create pong response
	now := time.Now().UnixMilli()
	pongMsg, err := NewPongMessage("test-123", pingData.Timestamp, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}

	pongData, err := pongMsg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}

	if pongData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pongData.ID)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, should be >= 0", pongData.LatencyMs)
	}
}
