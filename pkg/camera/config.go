// Package camera estimates plant leaf coverage from camera frames.
// A frame is converted to HSV and the share of pixels inside a green band
// is reported as the greenery percentage.
package camera

import "fmt"

// HSV is an OpenCV hue/saturation/value triple (H in [0,180], S and V in [0,255]).
type HSV struct {
	H float64 `json:"h"`
	S float64 `json:"s"`
	V float64 `json:"v"`
}

// Config holds the capture and segmentation parameters.
// These can be modified via the dashboard at runtime.
type Config struct {
	// === Capture ===
	Device int `json:"device"` // V4L2 device index
	Width  int `json:"width"`  // Frame width in pixels
	Height int `json:"height"` // Frame height in pixels

	// WarmupFrames are read and discarded before the measured frame so
	// auto exposure can settle.
	WarmupFrames int `json:"warmup_frames"`

	// === Segmentation ===
	Lower HSV `json:"lower"` // inclusive lower bound of the leaf band
	Upper HSV `json:"upper"` // inclusive upper bound of the leaf band
}

// OpenCV HSV channel limits for 8-bit images.
const (
	MaxHue        = 180
	MaxSaturation = 255
	MaxValue      = 255
)

// DefaultConfig returns the leaf band calibrated on the greenhouse table.
func DefaultConfig() Config {
	return Config{
		Device:       0,
		Width:        640,
		Height:       480,
		WarmupFrames: 5,
		Lower:        HSV{H: 46, S: 53, V: 53},
		Upper:        HSV{H: 70, S: 255, V: 255},
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device < 0 {
		errors = append(errors, "device must not be negative")
	}
	if c.Width < 160 || c.Width > 4096 {
		errors = append(errors, "width must be between 160 and 4096")
	}
	if c.Height < 120 || c.Height > 3072 {
		errors = append(errors, "height must be between 120 and 3072")
	}
	if c.WarmupFrames < 0 || c.WarmupFrames > 60 {
		errors = append(errors, "warmup_frames must be between 0 and 60")
	}

	for _, b := range []struct {
		name string
		v    HSV
	}{{"lower", c.Lower}, {"upper", c.Upper}} {
		if b.v.H < 0 || b.v.H > MaxHue {
			errors = append(errors, fmt.Sprintf("%s.h must be between 0 and %d", b.name, MaxHue))
		}
		if b.v.S < 0 || b.v.S > MaxSaturation {
			errors = append(errors, fmt.Sprintf("%s.s must be between 0 and %d", b.name, MaxSaturation))
		}
		if b.v.V < 0 || b.v.V > MaxValue {
			errors = append(errors, fmt.Sprintf("%s.v must be between 0 and %d", b.name, MaxValue))
		}
	}

	if c.Lower.H > c.Upper.H || c.Lower.S > c.Upper.S || c.Lower.V > c.Upper.V {
		errors = append(errors, "lower bound must not exceed upper bound")
	}

	return errors
}
