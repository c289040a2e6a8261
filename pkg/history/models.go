// Package history persists watering decisions and state transitions in a
// local SQLite database so runs can be reviewed from the dashboard.
package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-plantbot/pkg/statemachine"
)

// WateringRecord is one plant watering.
type WateringRecord struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	RunID            string    `gorm:"index;size:36" json:"run_id"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
	Phase            int       `json:"phase"`
	PlantIndex       int       `json:"plant_index"`
	HumidityPercent  float64   `json:"humidity_percent"`
	GreeneryPercent  float64   `json:"greenery_percent"`
	VolumeMl         float64   `json:"volume_ml"`
	ValveOpenSeconds float64   `json:"valve_open_seconds"`
	InRange          bool      `json:"in_range"`
	AppliedSeconds   float64   `json:"applied_seconds"`
	HumiditySource   string    `gorm:"size:16" json:"humidity_source"`
	GreeneryFallback bool      `json:"greenery_fallback"`
	Degraded         string    `json:"degraded,omitempty"`
	Interrupted      bool      `json:"interrupted"`
}

// TransitionRecord is one state change.
type TransitionRecord struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	RunID     string    `gorm:"index;size:36" json:"run_id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	FromState string    `gorm:"size:32" json:"from"`
	ToState   string    `gorm:"size:32" json:"to"`
	Reason    string    `json:"reason,omitempty"`
}

// NewWateringRecord converts a controller event.
func NewWateringRecord(e statemachine.WateringEvent) WateringRecord {
	return WateringRecord{
		ID:               uuid.NewString(),
		RunID:            e.RunID,
		CreatedAt:        e.At,
		Phase:            e.Phase,
		PlantIndex:       e.PlantIndex,
		HumidityPercent:  e.Decision.HumidityPercent,
		GreeneryPercent:  e.Decision.GreeneryPercent,
		VolumeMl:         e.Decision.VolumeMl,
		ValveOpenSeconds: e.Decision.ValveOpenSeconds,
		InRange:          e.Decision.InRange,
		AppliedSeconds:   e.ValveOpen.Seconds(),
		HumiditySource:   e.HumiditySource,
		GreeneryFallback: e.GreeneryFallback,
		Degraded:         e.Degraded,
		Interrupted:      e.Interrupted,
	}
}

// NewTransitionRecord converts a controller transition.
func NewTransitionRecord(t statemachine.Transition) TransitionRecord {
	return TransitionRecord{
		ID:        uuid.NewString(),
		RunID:     t.RunID,
		CreatedAt: t.At,
		FromState: t.From.String(),
		ToState:   t.To.String(),
		Reason:    t.Reason,
	}
}
