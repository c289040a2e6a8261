package proximity

import (
	"fmt"
	"time"
)

// Comparator says on which side of a threshold a reading fires.
type Comparator int

const (
	// Below fires when the distance is less than the threshold.
	Below Comparator = iota
	// Above fires when the distance is greater than the threshold.
	Above
)

func (c Comparator) String() string {
	if c == Above {
		return "above"
	}
	return "below"
}

// ParseComparator accepts "below", "<", "above" and ">".
func ParseComparator(s string) (Comparator, error) {
	switch s {
	case "below", "<":
		return Below, nil
	case "above", ">":
		return Above, nil
	default:
		return Below, fmt.Errorf("proximity: unknown comparator %q", s)
	}
}

// Threshold is a distance limit plus the side it fires on.
type Threshold struct {
	Cm         float64    `json:"cm"`
	Comparator Comparator `json:"comparator"`
}

// Match reports whether v fires the threshold. NaN never matches.
func (t Threshold) Match(v float64) bool {
	if t.Comparator == Above {
		return v > t.Cm
	}
	return v < t.Cm
}

func (t Threshold) String() string {
	if t.Comparator == Above {
		return fmt.Sprintf("> %.1f cm", t.Cm)
	}
	return fmt.Sprintf("< %.1f cm", t.Cm)
}

// Config holds the tunable parameters of the monitor.
type Config struct {
	PlantThresholdCm float64 // front reading below this means a plant is in reach

	// TableEnd fires on the rear reading. Its direction depends on how the
	// rear sensor is mounted.
	TableEnd Threshold

	PollInterval           time.Duration // cadence of AwaitStopCondition
	MaxConsecutiveFailures int           // failed ticks before ErrSensorTimeout
}

// DefaultConfig is for a rear sensor facing a backstop: the end of the
// table is reached when the backstop is closer than 5 cm.
func DefaultConfig() Config {
	return Config{
		PlantThresholdCm:       5.0,
		TableEnd:               Threshold{Cm: 5.0, Comparator: Below},
		PollInterval:           100 * time.Millisecond,
		MaxConsecutiveFailures: 3,
	}
}

// EdgeConfig is for a rear sensor looking down past the table edge: the
// end is reached when the floor is further than 80 cm away.
func EdgeConfig() Config {
	cfg := DefaultConfig()
	cfg.TableEnd = Threshold{Cm: 80.0, Comparator: Above}
	return cfg
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if c.PlantThresholdCm <= 0 {
		return fmt.Errorf("proximity: plant threshold must be positive, got %v", c.PlantThresholdCm)
	}
	if c.TableEnd.Cm <= 0 {
		return fmt.Errorf("proximity: table end threshold must be positive, got %v", c.TableEnd.Cm)
	}
	if c.TableEnd.Comparator != Below && c.TableEnd.Comparator != Above {
		return fmt.Errorf("proximity: invalid comparator %d", c.TableEnd.Comparator)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("proximity: poll interval must be positive, got %s", c.PollInterval)
	}
	if c.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("proximity: max consecutive failures must be at least 1, got %d", c.MaxConsecutiveFailures)
	}
	return nil
}
