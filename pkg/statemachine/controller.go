package statemachine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-plantbot/internal/log"
	"github.com/teslashibe/go-plantbot/pkg/arm"
	"github.com/teslashibe/go-plantbot/pkg/proximity"
	"github.com/teslashibe/go-plantbot/pkg/robot"
	"github.com/teslashibe/go-plantbot/pkg/watering"
)

// ErrEmergencyStop is returned by Run after an emergency stop.
var ErrEmergencyStop = errors.New("statemachine: emergency stop")

// Option configures a Controller.
type Option func(*Controller)

// WithObserver adds an observer of state changes and waterings.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observers = append(c.observers, o)
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(c *Controller) {
		c.runID = id
	}
}

// Controller is the top-level control loop. State, pose and humidity are
// mutated only by the goroutine running Run; EmergencyStop, RequestStart,
// RequestExit and Status may be called from anywhere.
type Controller struct {
	cfg       Config
	hw        robot.Hardware
	interlock *robot.Interlock
	arm       *arm.Arm
	monitor   *proximity.Monitor
	humidity  robot.HumiditySource
	greenery  robot.GreeneryEstimator
	observers []Observer
	logger    *slog.Logger
	runID     string
	homed     bool // control goroutine only
	pairDone  bool // control goroutine only; the served pot may still face the front ranger

	mu            sync.RWMutex
	state         RobotState
	lastHumidity  map[int]float64
	lastDecision  *watering.Decision
	plantsWatered int
	stopReason    string

	emergency atomic.Bool
	estop     chan struct{}
	estopOnce sync.Once

	startReq atomic.Bool
	exitReq  atomic.Bool
	wake     chan struct{}
}

// New creates a controller in the Uninitialized state. humidity and
// greenery may be nil; the configured defaults are used instead.
func New(hw robot.Hardware, humidity robot.HumiditySource, greenery robot.GreeneryEstimator, cfg Config, opts ...Option) (*Controller, error) {
	if hw == nil {
		return nil, errors.New("statemachine: hardware is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("statemachine: invalid config: %w", err)
	}

	interlock := robot.NewInterlock(hw)
	c := &Controller{
		cfg:          cfg,
		hw:           hw,
		interlock:    interlock,
		arm:          arm.New(hw, cfg.Motion),
		monitor:      proximity.NewMonitor(hw, interlock, cfg.Proximity),
		humidity:     humidity,
		greenery:     greenery,
		logger:       log.Component("controller"),
		runID:        uuid.NewString(),
		state:        Uninitialized,
		lastHumidity: make(map[int]float64),
		estop:        make(chan struct{}),
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("run_id", c.runID)
	return c, nil
}

// AddObserver registers o. Call before Run.
func (c *Controller) AddObserver(o Observer) {
	c.observers = append(c.observers, o)
}

// RunID identifies this controller run in logs and history.
func (c *Controller) RunID() string {
	return c.runID
}

// State returns the current state.
func (c *Controller) State() RobotState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// EmergencyStop cuts the drive and the valve off immediately and latches
// the emergency flag. The control loop retracts the arm and terminates at
// its next check. Safe to call from any goroutine, any number of times.
func (c *Controller) EmergencyStop(reason string) {
	// Trip before publishing the flag so no "on" command slips in between.
	if err := c.interlock.Trip(reason); err != nil {
		c.logger.Error("actuator cutoff reported errors", "error", err)
	}
	if !c.emergency.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	c.stopReason = reason
	c.mu.Unlock()

	c.estopOnce.Do(func() { close(c.estop) })
	c.logger.Warn("emergency stop", "reason", reason)
}

// Emergency reports whether the emergency flag is set.
func (c *Controller) Emergency() bool {
	return c.emergency.Load()
}

// RequestStart acts like a start button press while in Standby.
func (c *Controller) RequestStart() {
	c.startReq.Store(true)
	c.poke()
}

// RequestExit asks the controller to shut down safely and terminate.
func (c *Controller) RequestExit() {
	c.exitReq.Store(true)
	c.poke()
}

func (c *Controller) poke() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Run drives the state machine until it terminates or ctx ends.
// It returns nil after an operator exit or an end-of-table termination,
// an error wrapping ErrEmergencyStop after an emergency stop, and
// ctx.Err() after cancellation.
func (c *Controller) Run(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Blocking waits end as soon as the emergency flag is set.
	go func() {
		select {
		case <-c.estop:
			cancel()
		case <-loopCtx.Done():
		}
	}()

	c.logger.Info("controller started", "state", c.State().String())
	for {
		next, err := c.Step(loopCtx)
		if next.IsTerminal() {
			return err
		}
		if ctx.Err() != nil && !c.emergency.Load() {
			c.shutdown("context canceled")
			return ctx.Err()
		}
	}
}

// Step runs one iteration: the emergency check first, then the handler of
// the current state. It returns the state the controller is in afterwards.
func (c *Controller) Step(ctx context.Context) (RobotState, error) {
	state := c.State()
	if state.IsTerminal() {
		return state, c.terminalErr()
	}

	if state != EmergencyStopped {
		if c.hw.IsStopSignalAsserted() {
			c.EmergencyStop("stop signal asserted")
		}
		if c.emergency.Load() {
			c.setState(EmergencyStopped, c.reason())
			return EmergencyStopped, nil
		}
		if c.exitReq.Load() {
			c.shutdown("operator exit")
			return Terminated, nil
		}
	}

	switch state {
	case Uninitialized:
		c.initialize()
	case Standby:
		c.standby(ctx)
	case DrivingToPlant:
		c.driveToPlant()
	case EvaluatingProximity:
		c.evaluateProximity(ctx)
	case PositioningArmPhase1:
		c.positionArm(WateringPhase1, c.cfg.Positions.DetectionRotate, c.cfg.Positions.FirstReach)
	case WateringPhase1:
		c.water(ctx, 1, NearPlantIndex, PositioningArmPhase2)
	case PositioningArmPhase2:
		c.extendArm(WateringPhase2, c.cfg.Positions.SecondReach)
	case WateringPhase2:
		c.water(ctx, 2, FarPlantIndex, RetractingArm)
	case RetractingArm:
		c.extendArm(ReturningToTransport, c.cfg.Positions.Retracted)
	case ReturningToTransport:
		c.returnToTransport()
	case EmergencyStopped:
		c.emergencyShutdown()
	}

	next := c.State()
	if next.IsTerminal() {
		return next, c.terminalErr()
	}
	return next, nil
}

func (c *Controller) terminalErr() error {
	if c.emergency.Load() {
		return fmt.Errorf("%w: %s", ErrEmergencyStop, c.reason())
	}
	return nil
}

func (c *Controller) reason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopReason
}

// fault escalates an actuator failure to an emergency stop.
func (c *Controller) fault(what string, err error) {
	if errors.Is(err, robot.ErrInterlocked) {
		return
	}
	c.EmergencyStop(fmt.Sprintf("%s: %v", what, err))
}

func (c *Controller) setState(next RobotState, reason string) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()

	if prev == next {
		return
	}

	c.logger.Info("state", "from", prev.String(), "to", next.String(), "reason", reason)
	t := Transition{RunID: c.runID, From: prev, To: next, Reason: reason, At: time.Now()}
	for _, o := range c.observers {
		o.OnStateChange(t)
	}
}

// sleep waits for d, a wake-up poke, an emergency stop or the end of ctx.
// It returns true if the full duration elapsed.
func (c *Controller) sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-wake:
		return false
	case <-c.estop:
		return false
	case <-ctx.Done():
		return false
	}
}

// Status is a race-free snapshot for dashboards.
type Status struct {
	RunID         string             `json:"run_id"`
	State         RobotState         `json:"state"`
	Pose          arm.Pose           `json:"pose"`
	Emergency     bool               `json:"emergency"`
	StopReason    string             `json:"stop_reason,omitempty"`
	Humidity      map[int]float64    `json:"humidity"`
	LastDecision  *watering.Decision `json:"last_decision,omitempty"`
	PlantsWatered int                `json:"plants_watered"`
	Refused       uint64             `json:"refused_commands"`
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	humidity := make(map[int]float64, len(c.lastHumidity))
	for k, v := range c.lastHumidity {
		humidity[k] = v
	}
	var last *watering.Decision
	if c.lastDecision != nil {
		d := *c.lastDecision
		last = &d
	}
	return Status{
		RunID:         c.runID,
		State:         c.state,
		Pose:          c.arm.Pose(),
		Emergency:     c.emergency.Load(),
		StopReason:    c.stopReason,
		Humidity:      humidity,
		LastDecision:  last,
		PlantsWatered: c.plantsWatered,
		Refused:       c.interlock.Refused(),
	}
}
