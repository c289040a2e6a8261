package statemachine

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-plantbot/pkg/arm"
	"github.com/teslashibe/go-plantbot/pkg/proximity"
	"github.com/teslashibe/go-plantbot/pkg/robot"
	"github.com/teslashibe/go-plantbot/pkg/watering"
)

// Plant indices on the humidity link, one per watering phase.
const (
	NearPlantIndex = 0
	FarPlantIndex  = 1
)

// Config holds everything the controller needs besides its collaborators.
type Config struct {
	// Chassis
	DriveSpeedPercent   float64         // duty while searching for plants
	DriveDirection      robot.Direction // Forward or Backward along the table
	StandbyPollInterval time.Duration   // start button poll cadence

	// Arm
	Motion    arm.MotionConfig
	Positions arm.Positions

	// Proximity
	Proximity  proximity.Config
	EndOfTable EndOfTablePolicy

	// Watering
	Watering                watering.Policy
	DefaultHumidityPercent  float64       // used before the first radio sample
	MinGreeneryPercent      float64       // estimates below this are treated as a miss
	FallbackGreeneryPercent float64       // used when the estimate is missing
	SettleDelay             time.Duration // arm settle time before opening and after closing the valve
}

// DefaultConfig returns the settings of the current robot build.
func DefaultConfig() Config {
	return Config{
		DriveSpeedPercent:   80,
		DriveDirection:      robot.Forward,
		StandbyPollInterval: 100 * time.Millisecond,

		Motion:    arm.DefaultMotionConfig(),
		Positions: arm.DefaultPositions(),

		Proximity:  proximity.DefaultConfig(),
		EndOfTable: EndOfTableStandby,

		Watering:                watering.DefaultPolicy(),
		DefaultHumidityPercent:  75.0,
		MinGreeneryPercent:      1.0,
		FallbackGreeneryPercent: 20.0,
		SettleDelay:             time.Second,
	}
}

// Validate checks the configuration and every nested section.
func (c Config) Validate() error {
	var errs []error
	if c.DriveSpeedPercent <= 0 || c.DriveSpeedPercent > 100 {
		errs = append(errs, fmt.Errorf("drive speed must be in (0, 100], got %v", c.DriveSpeedPercent))
	}
	if c.DriveDirection != robot.Forward && c.DriveDirection != robot.Backward {
		errs = append(errs, fmt.Errorf("drive direction must be forward or backward, got %s", c.DriveDirection))
	}
	if c.StandbyPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("standby poll interval must be positive, got %s", c.StandbyPollInterval))
	}
	if c.FallbackGreeneryPercent < 0 || c.FallbackGreeneryPercent > 100 {
		errs = append(errs, fmt.Errorf("fallback greenery must be in [0, 100], got %v", c.FallbackGreeneryPercent))
	}
	if c.DefaultHumidityPercent < 0 || c.DefaultHumidityPercent > 100 {
		errs = append(errs, fmt.Errorf("default humidity must be in [0, 100], got %v", c.DefaultHumidityPercent))
	}
	if c.MinGreeneryPercent < 0 || c.MinGreeneryPercent > 100 {
		errs = append(errs, fmt.Errorf("min greenery must be in [0, 100], got %v", c.MinGreeneryPercent))
	}
	if c.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("settle delay must not be negative, got %s", c.SettleDelay))
	}
	if c.EndOfTable != EndOfTableStandby && c.EndOfTable != EndOfTableTerminate {
		errs = append(errs, fmt.Errorf("invalid end-of-table policy %d", c.EndOfTable))
	}
	errs = append(errs,
		c.Motion.Validate(),
		c.Positions.Validate(),
		c.Proximity.Validate(),
		c.Watering.Validate(),
	)
	return errors.Join(errs...)
}
