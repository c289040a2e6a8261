package hardware

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"gobot.io/x/gobot"
	"gobot.io/x/gobot/drivers/gpio"
	"gobot.io/x/gobot/drivers/i2c"
	"gobot.io/x/gobot/platforms/raspi"

	"github.com/teslashibe/go-plantbot/internal/log"
	"github.com/teslashibe/go-plantbot/pkg/robot"
)

// DutyToSpeed maps a duty cycle in percent to gobot's 0-255 PWM scale.
func DutyToSpeed(dutyPercent float64) byte {
	if math.IsNaN(dutyPercent) || dutyPercent <= 0 {
		return 0
	}
	if dutyPercent >= 100 {
		return 255
	}
	return byte(math.Round(dutyPercent * 255 / 100))
}

// ServoValue clamps an angle to the servo's travel.
func ServoValue(angleDeg int) byte {
	switch {
	case angleDeg < robot.MinServoAngle:
		return robot.MinServoAngle
	case angleDeg > robot.MaxServoAngle:
		return robot.MaxServoAngle
	}
	return byte(angleDeg)
}

// Board drives the robot's actuators and sensors on a Raspberry Pi.
type Board struct {
	cfg Config

	adaptor *raspi.Adaptor
	left    *gpio.MotorDriver
	right   *gpio.MotorDriver
	valve   *gpio.RelayDriver
	start   *gpio.ButtonDriver
	stop    *gpio.ButtonDriver
	servos  *i2c.PCA9685Driver
	rangers *Rangers
	bot     *gobot.Robot

	startPressed atomic.Bool
	stopAsserted atomic.Bool
	onStop       atomic.Value // func()
}

var _ robot.Hardware = (*Board)(nil)

// NewBoard creates the drivers. Nothing touches the pins until Start.
func NewBoard(cfg Config) (*Board, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	adaptor := raspi.NewAdaptor()
	b := &Board{
		cfg:     cfg,
		adaptor: adaptor,
		left:    newMotor(adaptor, cfg.LeftMotor),
		right:   newMotor(adaptor, cfg.RightMotor),
		valve:   gpio.NewRelayDriver(adaptor, cfg.Valve),
		start:   gpio.NewButtonDriver(adaptor, cfg.StartButton),
		stop:    gpio.NewButtonDriver(adaptor, cfg.StopButton),
		servos:  i2c.NewPCA9685Driver(adaptor),
	}
	b.valve.Inverted = !cfg.ValveActive

	// Buttons are wired to ground with pull-ups.
	b.start.DefaultState = 1
	b.stop.DefaultState = 1

	b.bot = gobot.NewRobot("plantbot",
		[]gobot.Connection{adaptor},
		[]gobot.Device{b.left, b.right, b.valve, b.start, b.stop, b.servos},
	)
	return b, nil
}

func newMotor(a *raspi.Adaptor, pins MotorPins) *gpio.MotorDriver {
	m := gpio.NewMotorDriver(a, pins.Enable)
	m.ForwardPin = pins.Forward
	m.BackwardPin = pins.Backward
	return m
}

// OnStopButton registers the emergency callback for the stop button.
// It runs on gobot's event goroutine.
func (b *Board) OnStopButton(f func()) {
	b.onStop.Store(f)
}

// Start connects the adaptor, starts the drivers and the rangefinders, and
// leaves every actuator off.
func (b *Board) Start() error {
	logger := log.Component("hardware")

	if err := b.bot.Start(false); err != nil {
		return fmt.Errorf("hardware: start gobot: %w", err)
	}
	if err := b.servos.SetPWMFreq(b.cfg.ServoFreqHz); err != nil {
		return fmt.Errorf("hardware: servo frequency: %w", err)
	}

	rangers, err := NewRangers(b.cfg)
	if err != nil {
		return err
	}
	b.rangers = rangers

	b.start.On(gpio.ButtonPush, func(interface{}) { b.startPressed.Store(true) })
	b.start.On(gpio.ButtonRelease, func(interface{}) { b.startPressed.Store(false) })
	b.stop.On(gpio.ButtonPush, func(interface{}) {
		if b.stopAsserted.Swap(true) {
			return
		}
		logger.Warn("stop button pressed")
		if f, ok := b.onStop.Load().(func()); ok && f != nil {
			f()
		}
	})

	logger.Info("board started", "servo_hz", b.cfg.ServoFreqHz)
	return nil
}

// Stop turns every actuator off and releases the adaptor.
func (b *Board) Stop() error {
	b.left.Off()
	b.right.Off()
	b.valve.Off()
	return b.bot.Stop()
}

// SetMotorDuty drives one motor channel.
func (b *Board) SetMotorDuty(ch robot.MotorChannel, dir robot.Direction, dutyPercent float64) error {
	m := b.left
	if ch == robot.MotorRight {
		m = b.right
	}
	speed := DutyToSpeed(dutyPercent)

	switch dir {
	case robot.Forward:
		return m.Forward(speed)
	case robot.Backward:
		return m.Backward(speed)
	case robot.Stop:
		if err := m.Direction("none"); err != nil {
			return err
		}
		return m.Speed(0)
	default:
		return fmt.Errorf("hardware: unknown direction %v", dir)
	}
}

// SetServoAngle positions one arm servo.
func (b *Board) SetServoAngle(axis robot.ServoAxis, angleDeg int) error {
	channel := b.cfg.RotateChannel
	if axis == robot.AxisExtend {
		channel = b.cfg.ExtendChannel
	}
	return b.servos.ServoWrite(channel, ServoValue(angleDeg))
}

// SetValve switches the solenoid relay.
func (b *Board) SetValve(open bool) error {
	if open {
		return b.valve.On()
	}
	return b.valve.Off()
}

// MeasureDistance reads a rangefinder.
func (b *Board) MeasureDistance(ctx context.Context, ch robot.DistanceChannel) (float64, error) {
	if b.rangers == nil {
		return 0, fmt.Errorf("hardware: board not started")
	}
	return b.rangers.MeasureDistance(ctx, ch)
}

// IsStartButtonPressed reports the current start button level.
func (b *Board) IsStartButtonPressed() bool {
	return b.startPressed.Load()
}

// IsStopSignalAsserted latches once the stop button has been pressed.
func (b *Board) IsStopSignalAsserted() bool {
	return b.stopAsserted.Load()
}
