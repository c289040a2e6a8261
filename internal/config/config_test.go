package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-plantbot/pkg/proximity"
	"github.com/teslashibe/go-plantbot/pkg/robot"
	"github.com/teslashibe/go-plantbot/pkg/statemachine"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	if cfg.Controller.DriveSpeedPercent != 80 {
		t.Errorf("DriveSpeedPercent = %v, want 80", cfg.Controller.DriveSpeedPercent)
	}
	if cfg.Controller.EndOfTable != statemachine.EndOfTableStandby {
		t.Errorf("EndOfTable = %v, want standby", cfg.Controller.EndOfTable)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("PLANTBOT_SIM", "true")
	t.Setenv("PLANTBOT_DRIVE_SPEED", "60")
	t.Setenv("PLANTBOT_TABLE_END_CM", "80")
	t.Setenv("PLANTBOT_TABLE_END_COMPARATOR", ">")
	t.Setenv("PLANTBOT_END_OF_TABLE", "terminate")
	t.Setenv("PLANTBOT_VALVE_MAX", "10s")
	t.Setenv("PLANTBOT_SERIAL_PORT", "/dev/ttyUSB1")
	t.Setenv("PLANTBOT_CAMERA_PRESET", "wide")
	t.Setenv("PLANTBOT_CAMERA_DEVICE", "2")
	t.Setenv("PLANTBOT_DASHBOARD_PORT", "9090")
	t.Setenv("PLANTBOT_DRIVE_DIRECTION", "backward")
	t.Setenv("PLANTBOT_MIN_GREENERY", "2.5")
	t.Setenv("PLANTBOT_SETTLE_DELAY", "500ms")

	cfg := DefaultConfig()
	if err := cfg.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() = %v", err)
	}

	if !cfg.Sim {
		t.Error("Sim not applied")
	}
	if cfg.Controller.DriveSpeedPercent != 60 {
		t.Errorf("DriveSpeedPercent = %v", cfg.Controller.DriveSpeedPercent)
	}
	end := cfg.Controller.Proximity.TableEnd
	if end.Cm != 80 || end.Comparator != proximity.Above {
		t.Errorf("TableEnd = %v", end)
	}
	if cfg.Controller.EndOfTable != statemachine.EndOfTableTerminate {
		t.Errorf("EndOfTable = %v", cfg.Controller.EndOfTable)
	}
	if cfg.Controller.Watering.Max != 10*time.Second {
		t.Errorf("Watering.Max = %v", cfg.Controller.Watering.Max)
	}
	if cfg.Radio.Port != "/dev/ttyUSB1" {
		t.Errorf("Radio.Port = %q", cfg.Radio.Port)
	}
	if cfg.CameraConfig.Lower.H != 30 || cfg.CameraConfig.Device != 2 {
		t.Errorf("CameraConfig = %+v", cfg.CameraConfig)
	}
	if cfg.DashboardPort != "9090" {
		t.Errorf("DashboardPort = %q", cfg.DashboardPort)
	}
	if cfg.Controller.DriveDirection != robot.Backward {
		t.Errorf("DriveDirection = %v", cfg.Controller.DriveDirection)
	}
	if cfg.Controller.MinGreeneryPercent != 2.5 {
		t.Errorf("MinGreeneryPercent = %v", cfg.Controller.MinGreeneryPercent)
	}
	if cfg.Controller.SettleDelay != 500*time.Millisecond {
		t.Errorf("SettleDelay = %v", cfg.Controller.SettleDelay)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadEnvErrors(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"PLANTBOT_DRIVE_SPEED", "fast"},
		{"PLANTBOT_SIM", "maybe"},
		{"PLANTBOT_POLL_INTERVAL", "100"},
		{"PLANTBOT_TABLE_END_COMPARATOR", "sideways"},
		{"PLANTBOT_END_OF_TABLE", "loop"},
		{"PLANTBOT_CAMERA_PRESET", "infrared"},
		{"PLANTBOT_SERIAL_BAUD", "9600.5"},
		{"PLANTBOT_DRIVE_DIRECTION", "sideways"},
		{"PLANTBOT_SETTLE_DELAY", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg := DefaultConfig()
			err := cfg.LoadEnv()
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("LoadEnv() = %v, want *ConfigError", err)
			}
			if ce.Field != tt.key {
				t.Errorf("Field = %q, want %q", ce.Field, tt.key)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"bad port", func(c *Config) { c.DashboardPort = "http" }, "DashboardPort"},
		{"greenery out of range", func(c *Config) { c.FixedGreenery = 120 }, "FixedGreenery"},
		{"no serial port", func(c *Config) { c.Radio.Port = "" }, "Radio.Port"},
		{"zero baud", func(c *Config) { c.Radio.BaudRate = 0 }, "Radio.BaudRate"},
		{"zero speed", func(c *Config) { c.Controller.DriveSpeedPercent = 0 }, "Controller"},
		{"min greenery out of range", func(c *Config) { c.Controller.MinGreeneryPercent = 150 }, "Controller"},
		{"default humidity out of range", func(c *Config) { c.Controller.DefaultHumidityPercent = -1 }, "Controller"},
		{"missing valve pin", func(c *Config) { c.Hardware.Valve = "" }, "Hardware"},
		{"inverted band", func(c *Config) { c.CameraConfig.Lower.H = 100 }, "Camera"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestValidateSkipsDisabledSections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sim = true
	cfg.Hardware.Valve = ""
	cfg.Camera = false
	cfg.CameraConfig.Lower.H = 100
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("PLANTBOT_TEST_DOTENV=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PLANTBOT_TEST_DOTENV", "")
	os.Unsetenv("PLANTBOT_TEST_DOTENV")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv() = %v", err)
	}
	if got := os.Getenv("PLANTBOT_TEST_DOTENV"); got != "from-file" {
		t.Errorf("PLANTBOT_TEST_DOTENV = %q", got)
	}
}
