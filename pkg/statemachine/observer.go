package statemachine

import (
	"time"

	"github.com/teslashibe/go-plantbot/pkg/watering"
)

// Transition records one state change.
type Transition struct {
	RunID  string     `json:"run_id"`
	From   RobotState `json:"from"`
	To     RobotState `json:"to"`
	Reason string     `json:"reason,omitempty"`
	At     time.Time  `json:"at"`
}

// Humidity sources reported with a watering event.
const (
	HumidityFromSensor    = "sensor"
	HumidityFromLastKnown = "last_known"
	HumidityFromDefault   = "default"
)

// WateringEvent describes one plant watering.
type WateringEvent struct {
	RunID            string            `json:"run_id"`
	Phase            int               `json:"phase"`
	PlantIndex       int               `json:"plant_index"`
	Decision         watering.Decision `json:"decision"`
	ValveOpen        time.Duration     `json:"valve_open"`
	HumiditySource   string            `json:"humidity_source"`
	GreeneryFallback bool              `json:"greenery_fallback"`
	Degraded         string            `json:"degraded,omitempty"` // fallback or cap applied
	Interrupted      bool              `json:"interrupted"`
	At               time.Time         `json:"at"`
}

// Observer receives controller events on the control goroutine.
// Implementations must not block.
type Observer interface {
	OnStateChange(Transition)
	OnWatering(WateringEvent)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	StateChange func(Transition)
	Watering    func(WateringEvent)
}

func (o ObserverFuncs) OnStateChange(t Transition) {
	if o.StateChange != nil {
		o.StateChange(t)
	}
}

func (o ObserverFuncs) OnWatering(e WateringEvent) {
	if o.Watering != nil {
		o.Watering(e)
	}
}
