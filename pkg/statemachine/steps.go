package statemachine

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/teslashibe/go-plantbot/pkg/proximity"
	"github.com/teslashibe/go-plantbot/pkg/watering"
)

func (c *Controller) initialize() {
	if err := c.interlock.StopDrive(); err != nil {
		c.fault("zero motors", err)
		return
	}
	if err := c.interlock.SetValve(false); err != nil {
		c.fault("close valve", err)
		return
	}
	if err := c.arm.Home(c.cfg.Positions.Rest()); err != nil {
		c.fault("home arm", err)
		return
	}
	c.homed = true
	c.setState(Standby, "initialized")
}

func (c *Controller) standby(ctx context.Context) {
	if c.startReq.Swap(false) {
		c.setState(DrivingToPlant, "start requested")
		return
	}
	if c.hw.IsStartButtonPressed() {
		c.setState(DrivingToPlant, "start button")
		return
	}
	c.sleep(ctx, c.cfg.StandbyPollInterval, c.wake)
}

func (c *Controller) driveToPlant() {
	if err := c.interlock.Drive(c.cfg.DriveDirection, c.cfg.DriveSpeedPercent); err != nil {
		c.fault("drive "+c.cfg.DriveDirection.String(), err)
		return
	}
	c.setState(EvaluatingProximity, "driving")
}

// evaluateProximity waits for the next stop condition. After a pair was
// watered the pot it served must leave the front ranger before another
// plant counts.
func (c *Controller) evaluateProximity(ctx context.Context) {
	await := c.monitor.AwaitStopCondition
	if c.pairDone {
		await = c.monitor.AwaitNextPlant
	}
	class, err := await(ctx)
	switch {
	case errors.Is(err, proximity.ErrSensorTimeout):
		c.EmergencyStop(err.Error())
		return
	case err != nil:
		// Context ended; Run decides between emergency and shutdown.
		return
	}

	c.pairDone = false
	switch class {
	case proximity.PlantDetected:
		c.setState(PositioningArmPhase1, "plant detected")
	case proximity.EndOfTable:
		if c.cfg.EndOfTable == EndOfTableTerminate {
			c.shutdown("end of table")
			return
		}
		c.setState(Standby, "end of table")
	}
}

// positionArm swings the arm out and extends it to the first reach.
// The emergency flag is checked between the two motions.
func (c *Controller) positionArm(next RobotState, rotate, extend int) {
	if err := c.arm.Rotate(rotate); err != nil {
		c.fault("rotate arm", err)
		return
	}
	if c.emergency.Load() {
		return
	}
	c.extendArm(next, extend)
}

func (c *Controller) extendArm(next RobotState, extend int) {
	if err := c.arm.Extend(extend); err != nil {
		c.fault("extend arm", err)
		return
	}
	c.setState(next, "arm positioned")
}

func (c *Controller) returnToTransport() {
	if err := c.arm.Rotate(c.cfg.Positions.TransportRotate); err != nil {
		c.fault("rotate arm", err)
		return
	}
	c.mu.Lock()
	c.plantsWatered += 2
	c.mu.Unlock()
	c.pairDone = true
	c.setState(DrivingToPlant, "plant pair done")
}

// water samples the plant, computes the decision and holds the valve open
// between two settle delays. Every wait ends early on an emergency stop or
// when ctx ends; the valve is not opened if the first settle is cut short.
func (c *Controller) water(ctx context.Context, phase, plantIndex int, next RobotState) {
	humidity, source := c.humidityFor(plantIndex)
	greenery, greeneryFallback := c.greeneryPercent()

	decision := watering.ComputeDecision(humidity, greenery)
	dur, policyErr := c.cfg.Watering.Apply(decision)

	event := WateringEvent{
		RunID:            c.runID,
		Phase:            phase,
		PlantIndex:       plantIndex,
		Decision:         decision,
		ValveOpen:        dur,
		HumiditySource:   source,
		GreeneryFallback: greeneryFallback,
		At:               time.Now(),
	}
	if policyErr != nil {
		event.Degraded = policyErr.Error()
		c.logger.Warn("watering degraded", "plant", plantIndex, "error", policyErr)
	}
	c.logger.Info("watering decision",
		"phase", phase,
		"plant", plantIndex,
		"humidity", decision.HumidityPercent,
		"humidity_source", source,
		"greenery", decision.GreeneryPercent,
		"volume_ml", decision.VolumeMl,
		"in_range", decision.InRange,
		"valve_open", dur,
	)

	if dur > 0 {
		completed := c.settle(ctx)
		if completed {
			if err := c.interlock.SetValve(true); err != nil {
				c.fault("open valve", err)
				return
			}
			completed = c.sleep(ctx, dur, nil)
			if err := c.interlock.SetValve(false); err != nil {
				c.fault("close valve", err)
			}
		}
		if !completed {
			event.Interrupted = true
			c.logger.Warn("watering interrupted", "plant", plantIndex)
		}
	}

	c.mu.Lock()
	c.lastDecision = &decision
	c.mu.Unlock()
	for _, o := range c.observers {
		o.OnWatering(event)
	}

	if event.Interrupted {
		return
	}
	if dur > 0 && !c.settle(ctx) {
		return
	}
	c.setState(next, "watered")
}

// settle holds the arm still for the configured settle delay.
func (c *Controller) settle(ctx context.Context) bool {
	if c.cfg.SettleDelay <= 0 {
		return true
	}
	return c.sleep(ctx, c.cfg.SettleDelay, nil)
}

// humidityFor returns the freshest humidity for a plant and where it came from.
func (c *Controller) humidityFor(plantIndex int) (float64, string) {
	if c.humidity != nil {
		if v, ok := c.humidity.ReadHumidity(plantIndex); ok {
			c.mu.Lock()
			c.lastHumidity[plantIndex] = v
			c.mu.Unlock()
			return v, HumidityFromSensor
		}
	}

	c.mu.RLock()
	v, ok := c.lastHumidity[plantIndex]
	c.mu.RUnlock()
	if ok {
		return v, HumidityFromLastKnown
	}
	return c.cfg.DefaultHumidityPercent, HumidityFromDefault
}

// greeneryPercent returns the leaf coverage estimate, or the fallback when
// the estimator fails or sees almost nothing.
func (c *Controller) greeneryPercent() (float64, bool) {
	if c.greenery == nil {
		return c.cfg.FallbackGreeneryPercent, true
	}
	v, err := c.greenery.EstimateGreeneryPercent()
	if err != nil {
		c.logger.Warn("greenery estimate failed, using fallback", "error", err, "fallback", c.cfg.FallbackGreeneryPercent)
		return c.cfg.FallbackGreeneryPercent, true
	}
	if math.IsNaN(v) || v < c.cfg.MinGreeneryPercent {
		c.logger.Warn("greenery below minimum, using fallback", "estimate", v, "fallback", c.cfg.FallbackGreeneryPercent)
		return c.cfg.FallbackGreeneryPercent, true
	}
	return v, false
}

// emergencyShutdown retracts the arm into the body and terminates.
// The drive and valve were already cut off by EmergencyStop.
func (c *Controller) emergencyShutdown() {
	c.cutoff()
	c.stow()
	c.setState(Terminated, c.reason())
}

// shutdown parks the robot safely and terminates without an emergency.
func (c *Controller) shutdown(reason string) {
	c.cutoff()
	c.stow()
	c.setState(Terminated, reason)
}

func (c *Controller) cutoff() {
	if err := c.interlock.StopDrive(); err != nil {
		c.logger.Error("stop drive failed", "error", err)
	}
	if err := c.interlock.SetValve(false); err != nil {
		c.logger.Error("close valve failed", "error", err)
	}
}

// stow retracts the extend axis first so the arm clears the plants while
// rotating. Nothing moves if the arm was never homed.
func (c *Controller) stow() {
	if !c.homed {
		return
	}
	if err := c.arm.Extend(c.cfg.Positions.Retracted); err != nil {
		c.logger.Error("retract arm failed", "error", err)
	}
	if err := c.arm.Rotate(c.cfg.Positions.TransportRotate); err != nil {
		c.logger.Error("rotate arm failed", "error", err)
	}
}
