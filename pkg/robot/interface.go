// Package robot defines the hardware capabilities the plantbot controller consumes.
//
// This package follows the Interface Segregation Principle (ISP) by defining
// small, focused interfaces that can be composed as needed. Consumers should
// depend only on the interfaces they actually use.
package robot

import (
	"context"
	"fmt"
)

// MotorChannel selects one side of the differential drive.
type MotorChannel int

const (
	MotorLeft MotorChannel = iota
	MotorRight
)

func (c MotorChannel) String() string {
	switch c {
	case MotorLeft:
		return "left"
	case MotorRight:
		return "right"
	default:
		return fmt.Sprintf("motor(%d)", int(c))
	}
}

// Direction is the commanded rotation of a drive motor.
type Direction int

const (
	Stop Direction = iota
	Forward
	Backward
)

func (d Direction) String() string {
	switch d {
	case Stop:
		return "stop"
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection parses "forward" or "backward".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "forward":
		return Forward, nil
	case "backward":
		return Backward, nil
	default:
		return Stop, fmt.Errorf("robot: unknown drive direction %q", s)
	}
}

// ServoAxis selects one of the two arm servos.
type ServoAxis int

const (
	AxisRotate ServoAxis = iota
	AxisExtend
)

func (a ServoAxis) String() string {
	switch a {
	case AxisRotate:
		return "rotate"
	case AxisExtend:
		return "extend"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// DistanceChannel selects one of the two ultrasonic rangers.
type DistanceChannel int

const (
	// DistanceFront faces the plant row.
	DistanceFront DistanceChannel = iota
	// DistanceRear watches for the end of the table.
	DistanceRear
)

func (c DistanceChannel) String() string {
	switch c {
	case DistanceFront:
		return "front"
	case DistanceRear:
		return "rear"
	default:
		return fmt.Sprintf("distance(%d)", int(c))
	}
}

// Servo travel limits in degrees.
const (
	MinServoAngle = 0
	MaxServoAngle = 180
)

// DriveController sets the duty cycle of one drive motor.
// dutyPercent is in [0, 100]; Stop ignores it.
type DriveController interface {
	SetMotorDuty(channel MotorChannel, dir Direction, dutyPercent float64) error
}

// ServoController moves one arm axis to an absolute angle.
type ServoController interface {
	SetServoAngle(axis ServoAxis, angleDeg int) error
}

// DistanceSensor measures one ranging channel in centimeters.
// Implementations must return within a bounded time; ctx cancels the wait.
type DistanceSensor interface {
	MeasureDistance(ctx context.Context, channel DistanceChannel) (float64, error)
}

// Buttons exposes the operator inputs.
type Buttons interface {
	IsStartButtonPressed() bool
	IsStopSignalAsserted() bool
}

// Valve drives the watering solenoid.
type Valve interface {
	SetValve(open bool) error
}

// HumiditySource returns the latest soil humidity for a plant, if any.
type HumiditySource interface {
	ReadHumidity(plantIndex int) (float64, bool)
}

// GreeneryEstimator returns the leaf coverage of the current view in percent.
type GreeneryEstimator interface {
	EstimateGreeneryPercent() (float64, error)
}

// Actuators groups everything that must be cut off on an emergency stop.
type Actuators interface {
	DriveController
	Valve
}

// Hardware is the composite interface for a complete robot.
// Use this when wiring a controller; individual components should take
// only the capability they need.
type Hardware interface {
	DriveController
	ServoController
	DistanceSensor
	Buttons
	Valve
}
