// Package statemachine sequences the plantbot: drive to a plant, position
// the arm, water two plants, retract, repeat. An emergency stop from any
// goroutine preempts the sequence and cuts the actuators off immediately.
package statemachine

import "fmt"

// RobotState is the controller phase. Exactly one is active at a time.
type RobotState int

const (
	Uninitialized RobotState = iota
	Standby
	DrivingToPlant
	EvaluatingProximity
	PositioningArmPhase1
	WateringPhase1
	PositioningArmPhase2
	WateringPhase2
	RetractingArm
	ReturningToTransport
	EmergencyStopped
	Terminated
)

var stateNames = [...]string{
	Uninitialized:        "uninitialized",
	Standby:              "standby",
	DrivingToPlant:       "driving_to_plant",
	EvaluatingProximity:  "evaluating_proximity",
	PositioningArmPhase1: "positioning_arm_phase1",
	WateringPhase1:       "watering_phase1",
	PositioningArmPhase2: "positioning_arm_phase2",
	WateringPhase2:       "watering_phase2",
	RetractingArm:        "retracting_arm",
	ReturningToTransport: "returning_to_transport",
	EmergencyStopped:     "emergency_stopped",
	Terminated:           "terminated",
}

func (s RobotState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s RobotState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsTerminal reports whether the controller has stopped for good.
func (s RobotState) IsTerminal() bool {
	return s == Terminated
}

// EndOfTablePolicy decides what happens when the table has been traversed.
type EndOfTablePolicy int

const (
	// EndOfTableStandby parks the robot and waits for the next start press.
	EndOfTableStandby EndOfTablePolicy = iota
	// EndOfTableTerminate shuts the run down.
	EndOfTableTerminate
)

func (p EndOfTablePolicy) String() string {
	if p == EndOfTableTerminate {
		return "terminate"
	}
	return "standby"
}

// ParseEndOfTablePolicy accepts "standby" and "terminate".
func ParseEndOfTablePolicy(s string) (EndOfTablePolicy, error) {
	switch s {
	case "standby":
		return EndOfTableStandby, nil
	case "terminate":
		return EndOfTableTerminate, nil
	default:
		return EndOfTableStandby, fmt.Errorf("statemachine: unknown end-of-table policy %q", s)
	}
}
