// Package proximity classifies the chassis position from two ultrasonic rangers.
package proximity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/teslashibe/go-plantbot/internal/log"
	"github.com/teslashibe/go-plantbot/pkg/robot"
)

// ErrSensorTimeout is returned after too many consecutive failed polls.
var ErrSensorTimeout = errors.New("proximity: distance sensor timed out")

// Reading is one poll of both channels. An unreadable channel is NaN.
type Reading struct {
	FrontCm float64 `json:"front_cm"`
	RearCm  float64 `json:"rear_cm"`
}

// Classification is the driving context derived from a Reading.
type Classification int

const (
	Continue Classification = iota
	PlantDetected
	EndOfTable
)

func (c Classification) String() string {
	switch c {
	case Continue:
		return "continue"
	case PlantDetected:
		return "plant_detected"
	case EndOfTable:
		return "end_of_table"
	default:
		return fmt.Sprintf("classification(%d)", int(c))
	}
}

// Classify applies the thresholds in priority order: a plant in reach
// wins over the end of the table.
func Classify(r Reading, cfg Config) Classification {
	if r.FrontCm < cfg.PlantThresholdCm {
		return PlantDetected
	}
	if cfg.TableEnd.Match(r.RearCm) {
		return EndOfTable
	}
	return Continue
}

// Stopper halts the chassis.
type Stopper interface {
	StopDrive() error
}

// Monitor polls the rangers while the chassis drives.
type Monitor struct {
	sensor robot.DistanceSensor
	drive  Stopper
	cfg    Config
	logger *slog.Logger
}

// NewMonitor creates a monitor that stops drive when it returns.
func NewMonitor(sensor robot.DistanceSensor, drive Stopper, cfg Config) *Monitor {
	return &Monitor{
		sensor: sensor,
		drive:  drive,
		cfg:    cfg,
		logger: log.Component("proximity"),
	}
}

// Config returns the monitor configuration.
func (m *Monitor) Config() Config {
	return m.cfg
}

// Poll reads both channels once. A failed channel reads as NaN and its
// error is returned alongside the partial reading.
func (m *Monitor) Poll(ctx context.Context) (Reading, error) {
	front, errFront := m.sensor.MeasureDistance(ctx, robot.DistanceFront)
	if errFront != nil {
		front = math.NaN()
		errFront = fmt.Errorf("front: %w", errFront)
	}
	rear, errRear := m.sensor.MeasureDistance(ctx, robot.DistanceRear)
	if errRear != nil {
		rear = math.NaN()
		errRear = fmt.Errorf("rear: %w", errRear)
	}
	return Reading{FrontCm: front, RearCm: rear}, errors.Join(errFront, errRear)
}

// Classify classifies r with the monitor thresholds.
func (m *Monitor) Classify(r Reading) Classification {
	return Classify(r, m.cfg)
}

// AwaitStopCondition polls until a plant or the end of the table is seen,
// stops the chassis and returns the classification. The chassis is also
// stopped when the context ends or the sensor keeps failing.
func (m *Monitor) AwaitStopCondition(ctx context.Context) (Classification, error) {
	return m.await(ctx, false)
}

// AwaitNextPlant is AwaitStopCondition for a chassis leaving a plant it
// has just served: PlantDetected only counts once the front channel has
// read at or beyond the plant threshold. The end of the table still fires
// while the previous plant is in view.
func (m *Monitor) AwaitNextPlant(ctx context.Context) (Classification, error) {
	return m.await(ctx, true)
}

func (m *Monitor) await(ctx context.Context, clearing bool) (Classification, error) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		reading, err := m.Poll(ctx)
		if ctx.Err() != nil {
			m.stop()
			return Continue, ctx.Err()
		}
		class := m.Classify(reading)
		if clearing {
			if reading.FrontCm >= m.cfg.PlantThresholdCm {
				clearing = false
				m.logger.Debug("previous plant cleared", "front_cm", reading.FrontCm)
			} else if class == PlantDetected {
				class = Continue
				if m.cfg.TableEnd.Match(reading.RearCm) {
					class = EndOfTable
				}
			}
		}

		if class != Continue {
			m.stop()
			m.logger.Info("stop condition", "class", class.String(),
				"front_cm", reading.FrontCm, "rear_cm", reading.RearCm)
			return class, nil
		}

		if err != nil {
			failures++
			m.logger.Warn("sensor read failed", "error", err, "consecutive", failures)
			if failures >= m.cfg.MaxConsecutiveFailures {
				m.stop()
				return Continue, fmt.Errorf("%w after %d polls: %v", ErrSensorTimeout, failures, err)
			}
		} else {
			failures = 0
			m.logger.Debug("reading", "front_cm", reading.FrontCm, "rear_cm", reading.RearCm)
		}

		select {
		case <-ctx.Done():
			m.stop()
			return Continue, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) stop() {
	if err := m.drive.StopDrive(); err != nil {
		m.logger.Error("stop drive failed", "error", err)
	}
}
