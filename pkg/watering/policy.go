package watering

import (
	"fmt"
	"time"
)

// Policy turns a Decision into the time the valve is actually held open.
type Policy struct {
	// Fallback is used when the volume has no solution on the valve curve.
	Fallback time.Duration `json:"fallback"`

	// Max caps any single opening. Zero disables the cap.
	Max time.Duration `json:"max"`
}

// DefaultPolicy keeps the valve shut for unsolvable volumes and never
// holds it open longer than 30 seconds.
func DefaultPolicy() Policy {
	return Policy{
		Fallback: 0,
		Max:      30 * time.Second,
	}
}

// Apply returns the valve time for d. The returned error is informational:
// ErrOutOfCalibrationRange or ErrDurationCapped, with a usable duration.
func (p Policy) Apply(d Decision) (time.Duration, error) {
	if !d.InRange {
		return p.Fallback, fmt.Errorf("%w: %.2f ml, using %s", ErrOutOfCalibrationRange, d.VolumeMl, p.Fallback)
	}

	dur := d.Duration()
	if p.Max > 0 && dur > p.Max {
		return p.Max, fmt.Errorf("%w: %s > %s", ErrDurationCapped, dur, p.Max)
	}
	return dur, nil
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.Fallback < 0 {
		return fmt.Errorf("watering: fallback must not be negative, got %s", p.Fallback)
	}
	if p.Max < 0 {
		return fmt.Errorf("watering: max must not be negative, got %s", p.Max)
	}
	if p.Max > 0 && p.Fallback > p.Max {
		return fmt.Errorf("watering: fallback %s exceeds max %s", p.Fallback, p.Max)
	}
	return nil
}
