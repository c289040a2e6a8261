// Package config provides the plantbot runtime configuration.
// Values come from defaults, then a .env file and the environment, then
// command line flags parsed in cmd/plantbot.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/teslashibe/go-plantbot/pkg/camera"
	"github.com/teslashibe/go-plantbot/pkg/hardware"
	"github.com/teslashibe/go-plantbot/pkg/history"
	"github.com/teslashibe/go-plantbot/pkg/proximity"
	"github.com/teslashibe/go-plantbot/pkg/radio"
	"github.com/teslashibe/go-plantbot/pkg/robot"
	"github.com/teslashibe/go-plantbot/pkg/statemachine"
)

// Default service settings.
const (
	DefaultDashboardPort = "8080"
	DefaultLogLevel      = "info"
)

// Config holds all configuration for the plantbot controller.
// Flag parsing is done in cmd/plantbot/main.go; this struct is data only.
type Config struct {
	LogLevel string

	// Sim replaces the GPIO board with the in-memory table simulation.
	Sim bool

	Controller statemachine.Config
	Hardware   hardware.Config
	Radio      radio.Config
	History    history.Config

	// Camera enables the gocv estimator. Without it FixedGreenery is used.
	Camera        bool
	CameraConfig  camera.Config
	FixedGreenery float64

	DashboardPort string
}

// DefaultConfig returns the settings of the current robot build.
func DefaultConfig() Config {
	return Config{
		LogLevel:      DefaultLogLevel,
		Controller:    statemachine.DefaultConfig(),
		Hardware:      hardware.DefaultConfig(),
		Radio:         radio.DefaultConfig(),
		History:       history.DefaultConfig(),
		Camera:        true,
		CameraConfig:  camera.DefaultConfig(),
		FixedGreenery: 20,
		DashboardPort: DefaultDashboardPort,
	}
}

// Load returns DefaultConfig with .env and environment overrides applied.
func Load() (Config, error) {
	cfg := DefaultConfig()
	if err := LoadDotEnv(".env"); err != nil {
		return cfg, err
	}
	err := cfg.LoadEnv()
	return cfg, err
}

// LoadDotEnv reads KEY=VALUE pairs from the given files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// LoadEnv applies PLANTBOT_* environment overrides.
// It stops at the first value that does not parse.
func (c *Config) LoadEnv() error {
	e := envReader{}

	e.str("PLANTBOT_LOG_LEVEL", &c.LogLevel)
	e.boolean("PLANTBOT_SIM", &c.Sim)

	// Chassis and arm
	e.float("PLANTBOT_DRIVE_SPEED", &c.Controller.DriveSpeedPercent)
	e.parse("PLANTBOT_DRIVE_DIRECTION", func(v string) error {
		dir, err := robot.ParseDirection(v)
		c.Controller.DriveDirection = dir
		return err
	})
	e.duration("PLANTBOT_STANDBY_POLL", &c.Controller.StandbyPollInterval)
	e.integer("PLANTBOT_ARM_STEP_DEG", &c.Controller.Motion.StepDeg)
	e.duration("PLANTBOT_ROTATE_STEP_DELAY", &c.Controller.Motion.RotateStepDelay)
	e.duration("PLANTBOT_EXTEND_STEP_DELAY", &c.Controller.Motion.ExtendStepDelay)

	// Proximity
	e.float("PLANTBOT_PLANT_THRESHOLD_CM", &c.Controller.Proximity.PlantThresholdCm)
	e.float("PLANTBOT_TABLE_END_CM", &c.Controller.Proximity.TableEnd.Cm)
	e.parse("PLANTBOT_TABLE_END_COMPARATOR", func(v string) error {
		cmp, err := proximity.ParseComparator(v)
		c.Controller.Proximity.TableEnd.Comparator = cmp
		return err
	})
	e.duration("PLANTBOT_POLL_INTERVAL", &c.Controller.Proximity.PollInterval)
	e.parse("PLANTBOT_END_OF_TABLE", func(v string) error {
		p, err := statemachine.ParseEndOfTablePolicy(v)
		c.Controller.EndOfTable = p
		return err
	})

	// Watering
	e.duration("PLANTBOT_VALVE_FALLBACK", &c.Controller.Watering.Fallback)
	e.duration("PLANTBOT_VALVE_MAX", &c.Controller.Watering.Max)
	e.float("PLANTBOT_DEFAULT_HUMIDITY", &c.Controller.DefaultHumidityPercent)
	e.float("PLANTBOT_MIN_GREENERY", &c.Controller.MinGreeneryPercent)
	e.float("PLANTBOT_FALLBACK_GREENERY", &c.Controller.FallbackGreeneryPercent)
	e.duration("PLANTBOT_SETTLE_DELAY", &c.Controller.SettleDelay)

	// Radio
	e.str("PLANTBOT_SERIAL_PORT", &c.Radio.Port)
	e.integer("PLANTBOT_SERIAL_BAUD", &c.Radio.BaudRate)
	e.duration("PLANTBOT_HUMIDITY_MAX_AGE", &c.Radio.MaxAge)

	// Camera
	e.boolean("PLANTBOT_CAMERA", &c.Camera)
	e.parse("PLANTBOT_CAMERA_PRESET", func(v string) error {
		p := camera.GetPreset(v)
		if p == nil {
			return fmt.Errorf("unknown preset %q", v)
		}
		p.Device = c.CameraConfig.Device
		c.CameraConfig = *p
		return nil
	})
	e.integer("PLANTBOT_CAMERA_DEVICE", &c.CameraConfig.Device)
	e.float("PLANTBOT_FIXED_GREENERY", &c.FixedGreenery)

	// Services
	e.str("PLANTBOT_DASHBOARD_PORT", &c.DashboardPort)
	e.str("PLANTBOT_HISTORY_DB", &c.History.Path)

	return e.err
}

// Validate checks the configuration and every nested section.
func (c *Config) Validate() error {
	if c.DashboardPort != "" {
		if p, err := strconv.Atoi(c.DashboardPort); err != nil || p < 0 || p > 65535 {
			return &ConfigError{Field: "DashboardPort", Message: fmt.Sprintf("invalid dashboard port %q", c.DashboardPort)}
		}
	}
	if c.FixedGreenery < 0 || c.FixedGreenery > 100 {
		return &ConfigError{Field: "FixedGreenery", Message: fmt.Sprintf("fixed greenery must be in [0, 100], got %v", c.FixedGreenery)}
	}
	if c.Radio.Port == "" {
		return &ConfigError{Field: "Radio.Port", Message: "serial port is required"}
	}
	if c.Radio.BaudRate <= 0 {
		return &ConfigError{Field: "Radio.BaudRate", Message: fmt.Sprintf("baud rate must be positive, got %d", c.Radio.BaudRate)}
	}
	if err := c.Controller.Validate(); err != nil {
		return &ConfigError{Field: "Controller", Message: err.Error()}
	}
	if !c.Sim {
		if err := c.Hardware.Validate(); err != nil {
			return &ConfigError{Field: "Hardware", Message: err.Error()}
		}
	}
	if c.Camera {
		if errs := c.CameraConfig.Validate(); len(errs) > 0 {
			return &ConfigError{Field: "Camera", Message: strings.Join(errs, "; ")}
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

// envReader applies environment variables, keeping the first parse error.
type envReader struct {
	err error
}

func (e *envReader) parse(key string, apply func(string) error) {
	if e.err != nil {
		return
	}
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	if err := apply(strings.TrimSpace(v)); err != nil {
		e.err = &ConfigError{Field: key, Message: err.Error()}
	}
}

func (e *envReader) str(key string, dst *string) {
	e.parse(key, func(v string) error {
		*dst = v
		return nil
	})
}

func (e *envReader) boolean(key string, dst *bool) {
	e.parse(key, func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	})
}

func (e *envReader) integer(key string, dst *int) {
	e.parse(key, func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	})
}

func (e *envReader) float(key string, dst *float64) {
	e.parse(key, func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	})
}

func (e *envReader) duration(key string, dst *time.Duration) {
	e.parse(key, func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	})
}
