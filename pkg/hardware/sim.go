package hardware

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-plantbot/pkg/robot"
)

// SimConfig describes a simulated table.
type SimConfig struct {
	TableLengthCm   float64
	PlantsAtCm      []float64
	PotWidthCm      float64
	FullSpeedCmPerS float64 // chassis speed at 100% duty

	NearCm float64 // front reading while a pot is in view
	FarCm  float64 // reading with nothing in view
	EdgeCm float64 // rear reading past the table end
}

// DefaultSimConfig returns a two-metre table with three pots.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		TableLengthCm:   200,
		PlantsAtCm:      []float64{40, 100, 160},
		PotWidthCm:      10,
		FullSpeedCmPerS: 25,
		NearCm:          3,
		FarCm:           40,
		EdgeCm:          3,
	}
}

// Sim is an in-memory robot for bench runs without a Pi. A pot stays in
// the front sensor's view until the chassis has driven past it, watered or
// not.
type Sim struct {
	cfg SimConfig
	now func() time.Time

	mu        sync.Mutex
	position  float64
	velocity  float64
	updatedAt time.Time
	angles    map[robot.ServoAxis]int
	valveOpen bool
	watered   map[int]int
	start     bool
	stop      bool
}

var _ robot.Hardware = (*Sim)(nil)

// NewSim creates a simulator parked at the start of the table.
func NewSim(cfg SimConfig) *Sim {
	return &Sim{
		cfg:       cfg,
		now:       time.Now,
		updatedAt: time.Now(),
		angles:    make(map[robot.ServoAxis]int),
		watered:   make(map[int]int),
	}
}

func (s *Sim) advance() {
	now := s.now()
	s.position += s.velocity * now.Sub(s.updatedAt).Seconds()
	s.updatedAt = now
}

// potInView returns the index of the pot in front of the sensor, or -1.
func (s *Sim) potInView() int {
	for i, at := range s.cfg.PlantsAtCm {
		if s.position >= at && s.position < at+s.cfg.PotWidthCm {
			return i
		}
	}
	return -1
}

// SetMotorDuty sets the chassis velocity. Both channels are treated as one
// axle; the last command wins.
func (s *Sim) SetMotorDuty(_ robot.MotorChannel, dir robot.Direction, dutyPercent float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()

	v := dutyPercent / 100 * s.cfg.FullSpeedCmPerS
	switch dir {
	case robot.Forward:
		s.velocity = v
	case robot.Backward:
		s.velocity = -v
	default:
		s.velocity = 0
	}
	return nil
}

// SetServoAngle records the angle.
func (s *Sim) SetServoAngle(axis robot.ServoAxis, angleDeg int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.angles[axis] = angleDeg
	return nil
}

// ServoAngle returns the last commanded angle.
func (s *Sim) ServoAngle(axis robot.ServoAxis) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angles[axis]
}

// SetValve opens or closes the valve. Closing it in front of a pot counts
// a watering for that pot.
func (s *Sim) SetValve(open bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	if s.valveOpen && !open {
		if i := s.potInView(); i >= 0 {
			s.watered[i]++
		}
	}
	s.valveOpen = open
	return nil
}

// ValveOpen reports the valve state.
func (s *Sim) ValveOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valveOpen
}

// Waterings returns how often the pot at index i was watered.
func (s *Sim) Waterings(i int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watered[i]
}

// Position returns the chassis position along the table.
func (s *Sim) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	return s.position
}

// MeasureDistance reports the simulated range.
func (s *Sim) MeasureDistance(ctx context.Context, ch robot.DistanceChannel) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()

	if ch == robot.DistanceRear {
		if s.position >= s.cfg.TableLengthCm {
			return s.cfg.EdgeCm, nil
		}
		return s.cfg.FarCm, nil
	}
	if s.potInView() >= 0 {
		return s.cfg.NearCm, nil
	}
	return s.cfg.FarCm, nil
}

// PressStart holds the start button down.
func (s *Sim) PressStart(pressed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start = pressed
}

// PressStop latches the stop signal.
func (s *Sim) PressStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop = true
}

// IsStartButtonPressed reports the simulated start button.
func (s *Sim) IsStartButtonPressed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.start
}

// IsStopSignalAsserted reports the simulated stop signal.
func (s *Sim) IsStopSignalAsserted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop
}
