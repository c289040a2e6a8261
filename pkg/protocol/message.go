// Package protocol defines the WebSocket messages exchanged between the
// robot, the dashboard and the operator pendant.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Robot → client messages
	TypeState    MessageType = "state"    // State transition
	TypeWatering MessageType = "watering" // Watering decision and outcome
	TypeStatus   MessageType = "status"   // Full controller snapshot
	TypeAck      MessageType = "ack"      // Command accepted
	TypeError    MessageType = "error"    // Command rejected

	// Client → robot messages
	TypeCommand MessageType = "command" // start / estop / exit
	TypeConfig  MessageType = "config"  // Camera configuration update

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Robot → Client Message Types
// =============================================================================

// StateData reports a state transition
type StateData struct {
	RunID  string `json:"run_id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// WateringData reports one watering
type WateringData struct {
	RunID            string  `json:"run_id"`
	Phase            int     `json:"phase"`
	PlantIndex       int     `json:"plant_index"`
	HumidityPercent  float64 `json:"humidity_percent"`
	GreeneryPercent  float64 `json:"greenery_percent"`
	VolumeMl         float64 `json:"volume_ml"`
	ValveOpenSeconds float64 `json:"valve_open_seconds"` // applied duration
	InRange          bool    `json:"in_range"`
	HumiditySource   string  `json:"humidity_source"`
	Degraded         string  `json:"degraded,omitempty"`
	Interrupted      bool    `json:"interrupted,omitempty"`
}

// AckData confirms a command
type AckData struct {
	Action string `json:"action"`
	State  string `json:"state"`
}

// ErrorData explains a rejected message
type ErrorData struct {
	Message string `json:"message"`
}

// =============================================================================
// Client → Robot Message Types
// =============================================================================

// Command actions
const (
	ActionStart = "start"
	ActionEStop = "estop"
	ActionExit  = "exit"
)

// CommandData asks the controller to act
type CommandData struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// Valid reports whether the action is known.
func (c CommandData) Valid() bool {
	switch c.Action {
	case ActionStart, ActionEStop, ActionExit:
		return true
	}
	return false
}

// ConfigUpdate carries partial camera settings, keyed as the camera
// manager expects ("preset", "lower_h", ...).
type ConfigUpdate struct {
	Camera map[string]interface{} `json:"camera,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
