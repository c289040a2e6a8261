package hardware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"

	"github.com/teslashibe/go-plantbot/pkg/robot"
)

// SpeedOfSound in m/s at 21 °C.
const SpeedOfSound = 344.0

// ErrNoEcho is returned when the echo pulse does not start or end in time.
var ErrNoEcho = errors.New("hardware: no echo")

// TimeToCentimeters converts a round-trip time of flight to a distance.
func TimeToCentimeters(timeOfFlight time.Duration) float64 {
	return timeOfFlight.Seconds() / 2 * SpeedOfSound * 100
}

// Ranger is one HC-SR04 rangefinder.
type Ranger struct {
	trigger gpio.PinIO
	echo    gpio.PinIO
	timeout time.Duration
	mu      sync.Mutex
}

// NewRanger claims the trigger and echo pins. host.Init must have run.
func NewRanger(pins RangerPins, timeout time.Duration) (*Ranger, error) {
	r := &Ranger{
		trigger: gpioreg.ByName(pins.Trigger),
		echo:    gpioreg.ByName(pins.Echo),
		timeout: timeout,
	}
	if r.trigger == nil {
		return nil, fmt.Errorf("hardware: no GPIO trigger pin named %s", pins.Trigger)
	}
	if r.echo == nil {
		return nil, fmt.Errorf("hardware: no GPIO echo pin named %s", pins.Echo)
	}
	if err := r.trigger.Out(gpio.Low); err != nil {
		return nil, err
	}
	if err := r.echo.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, err
	}
	return r, nil
}

// Measure fires one ping and returns the distance in centimeters. Each edge
// wait is bounded by the ranger timeout.
func (r *Ranger) Measure() (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.echo.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return 0, err
	}

	if err := r.trigger.Out(gpio.High); err != nil {
		return 0, err
	}
	time.Sleep(10 * time.Microsecond)
	if err := r.trigger.Out(gpio.Low); err != nil {
		return 0, err
	}

	if ok := r.echo.WaitForEdge(r.timeout); !ok {
		return 0, fmt.Errorf("%w: pulse did not start", ErrNoEcho)
	}
	start := time.Now()

	if err := r.echo.In(gpio.PullDown, gpio.FallingEdge); err != nil {
		return 0, err
	}
	if ok := r.echo.WaitForEdge(r.timeout); !ok {
		return 0, fmt.Errorf("%w: pulse did not end", ErrNoEcho)
	}

	return TimeToCentimeters(time.Since(start)), nil
}

// Rangers pairs the front and rear sensors.
type Rangers struct {
	front *Ranger
	rear  *Ranger
}

var _ robot.DistanceSensor = (*Rangers)(nil)

// NewRangers initializes periph and both sensors.
func NewRangers(cfg Config) (*Rangers, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("hardware: periph init: %w", err)
	}
	front, err := NewRanger(cfg.Front, cfg.EchoTimeout)
	if err != nil {
		return nil, fmt.Errorf("front ranger: %w", err)
	}
	rear, err := NewRanger(cfg.Rear, cfg.EchoTimeout)
	if err != nil {
		return nil, fmt.Errorf("rear ranger: %w", err)
	}
	return &Rangers{front: front, rear: rear}, nil
}

// MeasureDistance reads one channel.
func (r *Rangers) MeasureDistance(ctx context.Context, ch robot.DistanceChannel) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	switch ch {
	case robot.DistanceFront:
		return r.front.Measure()
	case robot.DistanceRear:
		return r.rear.Measure()
	default:
		return 0, fmt.Errorf("hardware: unknown distance channel %v", ch)
	}
}
