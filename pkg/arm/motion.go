// Package arm drives the two-axis watering arm (rotate + extend).
//
// Every move is a blocking sweep of small steps instead of a single jump,
// which keeps the servos from snapping and makes the timing of the watering
// sequence predictable.
package arm

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-plantbot/pkg/robot"
)

var (
	// ErrInvalidStep is returned for a step size below one degree.
	ErrInvalidStep = errors.New("arm: step must be at least 1 degree")

	// ErrAngleOutOfRange is returned for angles outside the servo travel.
	ErrAngleOutOfRange = errors.New("arm: angle outside servo travel")
)

// CheckAngle rejects angles outside [robot.MinServoAngle, robot.MaxServoAngle].
func CheckAngle(angle int) error {
	if angle < robot.MinServoAngle || angle > robot.MaxServoAngle {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrAngleOutOfRange, angle, robot.MinServoAngle, robot.MaxServoAngle)
	}
	return nil
}

// Steps returns the angles a sweep from current to target commands.
// The sequence includes both ends; when step does not divide the span the
// target is appended as the last element. current == target yields one element.
func Steps(current, target, step int) ([]int, error) {
	if step < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidStep, step)
	}
	if err := CheckAngle(current); err != nil {
		return nil, err
	}
	if err := CheckAngle(target); err != nil {
		return nil, err
	}

	if current == target {
		return []int{current}, nil
	}

	dir := 1
	if target < current {
		dir = -1
	}
	span := (target - current) * dir
	seq := make([]int, 0, span/step+2)
	for a := current; (a-target)*dir < 0; a += dir * step {
		seq = append(seq, a)
	}
	return append(seq, target), nil
}

// MoveAxis sweeps one axis from current to target, calling setAngle for
// every step and sleeping stepDelay after each call. It returns the new
// tracked angle: target on success, or the last angle set before an error.
// Invalid arguments are rejected before any command is issued.
func MoveAxis(current, target, stepDeg int, stepDelay time.Duration, setAngle func(int) error) (int, error) {
	seq, err := Steps(current, target, stepDeg)
	if err != nil {
		return current, err
	}

	reached := current
	for _, angle := range seq {
		if err := setAngle(angle); err != nil {
			return reached, fmt.Errorf("arm: set angle %d: %w", angle, err)
		}
		reached = angle
		if stepDelay > 0 {
			time.Sleep(stepDelay)
		}
	}
	return target, nil
}
