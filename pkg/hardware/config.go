// Package hardware binds the controller interfaces to the Raspberry Pi.
//
// Motors, the valve relay, the buttons and the PCA9685 servo HAT are driven
// through gobot's raspi adaptor, which addresses pins by their physical
// header number. The HC-SR04 rangefinders need microsecond edge timing and
// are read through periph, which addresses pins by BCM name.
package hardware

import (
	"errors"
	"fmt"
	"time"
)

// MotorPins wires one L298N channel.
type MotorPins struct {
	Forward  string // IN1
	Backward string // IN2
	Enable   string // EN, PWM
}

// RangerPins wires one HC-SR04 (BCM names, e.g. "GPIO5").
type RangerPins struct {
	Trigger string
	Echo    string
}

// Config holds the pin map and driver settings.
type Config struct {
	LeftMotor  MotorPins
	RightMotor MotorPins

	Valve       string
	ValveActive bool // level that opens the valve; false for active-low relay boards
	StartButton string
	StopButton  string

	// PCA9685 channels
	RotateChannel string
	ExtendChannel string
	ServoFreqHz   float32

	Front RangerPins
	Rear  RangerPins

	// EchoTimeout bounds each edge wait of a range measurement.
	EchoTimeout time.Duration
}

// DefaultConfig returns the pin map of the greenhouse robot.
// BCM 23/22/24 and 27/18/17 drive the motors, 21 the valve relay,
// 20 and 16 the start and stop buttons.
func DefaultConfig() Config {
	return Config{
		LeftMotor:     MotorPins{Forward: "16", Backward: "15", Enable: "18"},
		RightMotor:    MotorPins{Forward: "13", Backward: "12", Enable: "11"},
		Valve:         "40",
		ValveActive:   true,
		StartButton:   "38",
		StopButton:    "36",
		RotateChannel: "0",
		ExtendChannel: "1",
		ServoFreqHz:   50,
		Front:         RangerPins{Trigger: "GPIO5", Echo: "GPIO6"},
		Rear:          RangerPins{Trigger: "GPIO12", Echo: "GPIO13"},
		EchoTimeout:   50 * time.Millisecond,
	}
}

// Validate reports missing pins.
func (c Config) Validate() error {
	var errs []error
	for _, p := range []struct{ name, pin string }{
		{"left_motor.forward", c.LeftMotor.Forward},
		{"left_motor.backward", c.LeftMotor.Backward},
		{"left_motor.enable", c.LeftMotor.Enable},
		{"right_motor.forward", c.RightMotor.Forward},
		{"right_motor.backward", c.RightMotor.Backward},
		{"right_motor.enable", c.RightMotor.Enable},
		{"valve", c.Valve},
		{"start_button", c.StartButton},
		{"stop_button", c.StopButton},
		{"rotate_channel", c.RotateChannel},
		{"extend_channel", c.ExtendChannel},
		{"front.trigger", c.Front.Trigger},
		{"front.echo", c.Front.Echo},
		{"rear.trigger", c.Rear.Trigger},
		{"rear.echo", c.Rear.Echo},
	} {
		if p.pin == "" {
			errs = append(errs, fmt.Errorf("hardware: %s pin not set", p.name))
		}
	}
	if c.ServoFreqHz <= 0 {
		errs = append(errs, errors.New("hardware: servo frequency must be positive"))
	}
	if c.EchoTimeout <= 0 {
		errs = append(errs, errors.New("hardware: echo timeout must be positive"))
	}
	return errors.Join(errs...)
}
