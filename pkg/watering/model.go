// Package watering converts soil humidity and leaf coverage into a valve-open time.
//
// The volume predictor is a linear fit and the valve curve a quadratic fit,
// both calibrated offline. The literals below must not be rounded.
package watering

import (
	"errors"
	"math"
	"time"
)

// Volume predictor coefficients.
const (
	VolumeIntercept = 261.83
	MlPerHumidity   = 3.13314695
	MlPerGreenery   = 2.13997997
)

// Valve response curve: volume = ValveA*t² + ValveB*t + ValveC0.
const (
	ValveA  = 0.11455309
	ValveB  = 36.75567689
	ValveC0 = 19.817595
)

var (
	// ErrOutOfCalibrationRange is returned when a volume has no real valve time.
	ErrOutOfCalibrationRange = errors.New("watering: volume outside calibrated valve range")

	// ErrDurationCapped is returned when a valve time exceeded the configured maximum.
	ErrDurationCapped = errors.New("watering: valve time capped")
)

// PredictVolumeMl returns the target volume for a plant.
// Any input is accepted, including physically impossible ones.
func PredictVolumeMl(humidityPercent, greeneryPercent float64) float64 {
	return VolumeIntercept - humidityPercent*MlPerHumidity + greeneryPercent*MlPerGreenery
}

// ValveOpenSeconds inverts the valve curve for the given volume.
// It returns false when the discriminant is negative. A negative root is
// returned as is; callers clamp.
func ValveOpenSeconds(volumeMl float64) (float64, bool) {
	c := ValveC0 - volumeMl
	disc := ValveB*ValveB - 4*ValveA*c
	if disc < 0 {
		return 0, false
	}
	return (-ValveB + math.Sqrt(disc)) / (2 * ValveA), true
}

// VolumeForSeconds evaluates the valve curve forward.
func VolumeForSeconds(seconds float64) float64 {
	return ValveA*seconds*seconds + ValveB*seconds + ValveC0
}

// Decision is the outcome of evaluating one plant.
type Decision struct {
	HumidityPercent  float64 `json:"humidity_percent"`
	GreeneryPercent  float64 `json:"greenery_percent"`
	VolumeMl         float64 `json:"volume_ml"`
	ValveOpenSeconds float64 `json:"valve_open_seconds"`
	InRange          bool    `json:"in_range"`
}

// ComputeDecision predicts the volume and the valve time for one plant.
// Out-of-range volumes yield InRange=false and a zero valve time;
// negative roots are clamped to zero.
func ComputeDecision(humidityPercent, greeneryPercent float64) Decision {
	d := Decision{
		HumidityPercent: humidityPercent,
		GreeneryPercent: greeneryPercent,
		VolumeMl:        PredictVolumeMl(humidityPercent, greeneryPercent),
	}

	t, ok := ValveOpenSeconds(d.VolumeMl)
	if !ok {
		return d
	}
	d.InRange = true
	d.ValveOpenSeconds = math.Max(t, 0)
	return d
}

// Duration returns the valve time as a time.Duration.
func (d Decision) Duration() time.Duration {
	return time.Duration(d.ValveOpenSeconds * float64(time.Second))
}
