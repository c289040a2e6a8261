package protocol

import "time"

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewStateMessage creates a state transition message
func NewStateMessage(data StateData) (*Message, error) {
	return NewMessage(TypeState, data)
}

// NewWateringMessage creates a watering message
func NewWateringMessage(data WateringData) (*Message, error) {
	return NewMessage(TypeWatering, data)
}

// NewStatusMessage wraps a controller snapshot
func NewStatusMessage(status interface{}) (*Message, error) {
	return NewMessage(TypeStatus, status)
}

// NewCommandMessage creates a command message
func NewCommandMessage(action, reason string) (*Message, error) {
	return NewMessage(TypeCommand, CommandData{Action: action, Reason: reason})
}

// NewAckMessage confirms a command
func NewAckMessage(action, state string) (*Message, error) {
	return NewMessage(TypeAck, AckData{Action: action, State: state})
}

// NewErrorMessage reports a rejected message
func NewErrorMessage(msg string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: msg})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetStateData extracts state data from a message
func (m *Message) GetStateData() (*StateData, error) {
	var data StateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetWateringData extracts watering data from a message
func (m *Message) GetWateringData() (*WateringData, error) {
	var data WateringData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetCommand extracts a command from a message
func (m *Message) GetCommand() (*CommandData, error) {
	var data CommandData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetConfigUpdate extracts config update from a message
func (m *Message) GetConfigUpdate() (*ConfigUpdate, error) {
	var data ConfigUpdate
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAckData extracts an acknowledgement from a message
func (m *Message) GetAckData() (*AckData, error) {
	var data AckData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
