package robot

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-plantbot/internal/log"
)

// ErrInterlocked is returned when a drive or valve "on" command is refused
// after the interlock has tripped.
var ErrInterlocked = errors.New("robot: actuators interlocked after emergency stop")

// Duty cycle limits in percent.
const (
	MinDuty = 0.0
	MaxDuty = 100.0
)

// clamp restricts v to the range [min, max].
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Interlock sits between the controller and the drive/valve hardware.
// Once tripped it never resets: only stop and close commands pass through.
// Commands and the trip are serialized, so no "on" command can reach the
// hardware after Trip returns.
type Interlock struct {
	out Actuators

	mu      sync.Mutex
	tripped bool
	reason  string

	refused atomic.Uint64
}

// NewInterlock wraps the given actuators.
func NewInterlock(out Actuators) *Interlock {
	return &Interlock{out: out}
}

// SetMotorDuty forwards a drive command unless the interlock has tripped.
// Duty is clamped to [0, 100]; Stop always sends zero duty.
func (i *Interlock) SetMotorDuty(channel MotorChannel, dir Direction, dutyPercent float64) error {
	duty := clamp(dutyPercent, MinDuty, MaxDuty)
	if dir == Stop {
		duty = 0
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.tripped && dir != Stop {
		i.refused.Add(1)
		return fmt.Errorf("%w: %s %s refused", ErrInterlocked, channel, dir)
	}
	return i.out.SetMotorDuty(channel, dir, duty)
}

// SetValve forwards a valve command unless it would open a tripped interlock.
func (i *Interlock) SetValve(open bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.tripped && open {
		i.refused.Add(1)
		return fmt.Errorf("%w: valve open refused", ErrInterlocked)
	}
	return i.out.SetValve(open)
}

// Drive commands both motors with the same direction and duty.
func (i *Interlock) Drive(dir Direction, dutyPercent float64) error {
	return errors.Join(
		i.SetMotorDuty(MotorLeft, dir, dutyPercent),
		i.SetMotorDuty(MotorRight, dir, dutyPercent),
	)
}

// StopDrive zeroes both motors.
func (i *Interlock) StopDrive() error {
	return i.Drive(Stop, 0)
}

// Trip latches the interlock and immediately stops both motors and closes
// the valve. It is safe to call from any goroutine and more than once;
// the cutoff is re-issued on every call.
func (i *Interlock) Trip(reason string) error {
	i.mu.Lock()
	first := !i.tripped
	i.tripped = true
	if first {
		i.reason = reason
	}
	err := errors.Join(
		i.out.SetMotorDuty(MotorLeft, Stop, 0),
		i.out.SetMotorDuty(MotorRight, Stop, 0),
		i.out.SetValve(false),
	)
	i.mu.Unlock()

	if first {
		log.Component("interlock").Warn("actuators cut off", "reason", reason, "error", err)
	}
	return err
}

// Tripped reports whether the interlock has latched.
func (i *Interlock) Tripped() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.tripped
}

// Reason returns the reason given to the first Trip call.
func (i *Interlock) Reason() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.reason
}

// Refused returns how many "on" commands were blocked after tripping.
func (i *Interlock) Refused() uint64 {
	return i.refused.Load()
}

var _ Actuators = (*Interlock)(nil)
