package arm

import (
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/go-plantbot/internal/log"
	"github.com/teslashibe/go-plantbot/pkg/robot"
)

// Pose is the pair of servo angles describing the arm.
type Pose struct {
	RotateDeg int `json:"rotate_deg"`
	ExtendDeg int `json:"extend_deg"`
}

// Validate checks both angles against the servo travel.
func (p Pose) Validate() error {
	if err := CheckAngle(p.RotateDeg); err != nil {
		return fmt.Errorf("rotate: %w", err)
	}
	if err := CheckAngle(p.ExtendDeg); err != nil {
		return fmt.Errorf("extend: %w", err)
	}
	return nil
}

// Positions are the named arm angles used by the watering sequence.
type Positions struct {
	DetectionRotate int `json:"detection_rotate"` // arm swung over the plant side
	TransportRotate int `json:"transport_rotate"` // arm folded along the chassis
	FirstReach      int `json:"first_reach"`      // extension for the near plant
	SecondReach     int `json:"second_reach"`     // extension for the far plant
	Retracted       int `json:"retracted"`
}

// DefaultPositions returns the angles of the current arm build.
func DefaultPositions() Positions {
	return Positions{
		DetectionRotate: 0,
		TransportRotate: 90,
		FirstReach:      160,
		SecondReach:     180,
		Retracted:       0,
	}
}

// Rest is the pose the arm is homed to at power-up.
func (p Positions) Rest() Pose {
	return Pose{RotateDeg: p.TransportRotate, ExtendDeg: p.Retracted}
}

// Validate checks every named angle.
func (p Positions) Validate() error {
	named := map[string]int{
		"detection_rotate": p.DetectionRotate,
		"transport_rotate": p.TransportRotate,
		"first_reach":      p.FirstReach,
		"second_reach":     p.SecondReach,
		"retracted":        p.Retracted,
	}
	for name, v := range named {
		if err := CheckAngle(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// MotionConfig controls how sweeps are sliced.
type MotionConfig struct {
	StepDeg         int           `json:"step_deg"`
	RotateStepDelay time.Duration `json:"rotate_step_delay"`
	ExtendStepDelay time.Duration `json:"extend_step_delay"`
}

// DefaultMotionConfig sweeps one degree at a time; the rotate axis carries
// the whole arm and moves slower.
func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		StepDeg:         1,
		RotateStepDelay: 50 * time.Millisecond,
		ExtendStepDelay: 20 * time.Millisecond,
	}
}

// FastMotionConfig is for bench testing without the water line attached.
func FastMotionConfig() MotionConfig {
	return MotionConfig{
		StepDeg:         5,
		RotateStepDelay: 10 * time.Millisecond,
		ExtendStepDelay: 5 * time.Millisecond,
	}
}

// Validate checks the sweep parameters.
func (c MotionConfig) Validate() error {
	if c.StepDeg < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidStep, c.StepDeg)
	}
	if c.RotateStepDelay < 0 || c.ExtendStepDelay < 0 {
		return fmt.Errorf("arm: step delays must not be negative")
	}
	return nil
}

// Arm owns the servo pair and the tracked pose.
// Moves are issued from one goroutine; Pose may be read from any.
type Arm struct {
	servo robot.ServoController
	cfg   MotionConfig

	mu   sync.RWMutex
	pose Pose
}

// New creates an arm. The pose is unknown until Home is called.
func New(servo robot.ServoController, cfg MotionConfig) *Arm {
	return &Arm{servo: servo, cfg: cfg}
}

// Home commands both axes directly to p without sweeping.
func (a *Arm) Home(p Pose) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := a.servo.SetServoAngle(robot.AxisRotate, p.RotateDeg); err != nil {
		return fmt.Errorf("arm: home rotate: %w", err)
	}
	if err := a.servo.SetServoAngle(robot.AxisExtend, p.ExtendDeg); err != nil {
		return fmt.Errorf("arm: home extend: %w", err)
	}

	a.mu.Lock()
	a.pose = p
	a.mu.Unlock()

	log.Component("arm").Debug("homed", "rotate", p.RotateDeg, "extend", p.ExtendDeg)
	return nil
}

// Rotate sweeps the rotate axis to target.
func (a *Arm) Rotate(target int) error {
	return a.move(robot.AxisRotate, target, a.cfg.RotateStepDelay)
}

// Extend sweeps the extend axis to target.
func (a *Arm) Extend(target int) error {
	return a.move(robot.AxisExtend, target, a.cfg.ExtendStepDelay)
}

func (a *Arm) move(axis robot.ServoAxis, target int, delay time.Duration) error {
	current := a.angle(axis)
	_, err := MoveAxis(current, target, a.cfg.StepDeg, delay, func(angle int) error {
		if err := a.servo.SetServoAngle(axis, angle); err != nil {
			return err
		}
		a.setAngle(axis, angle)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", axis, err)
	}
	log.Component("arm").Debug("moved", "axis", axis.String(), "from", current, "to", target)
	return nil
}

func (a *Arm) angle(axis robot.ServoAxis) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if axis == robot.AxisRotate {
		return a.pose.RotateDeg
	}
	return a.pose.ExtendDeg
}

func (a *Arm) setAngle(axis robot.ServoAxis, angle int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if axis == robot.AxisRotate {
		a.pose.RotateDeg = angle
	} else {
		a.pose.ExtendDeg = angle
	}
}

// Pose returns the last commanded pose.
func (a *Arm) Pose() Pose {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pose
}
