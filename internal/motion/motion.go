// Package motion provides distance and rotation helpers on top of the raw
// robot actions: dead-reckoned straight moves and gyro-feedback turns.
package motion

import (
	"fmt"
	"math"
	"time"

	"github.com/opendog/pupbridge/internal/monitoring"
	"github.com/opendog/pupbridge/internal/robot"
	"github.com/opendog/pupbridge/internal/timeutil"
)

// Calibrated gait speeds, in centimeters per second.
const (
	ForwardSpeedCMPerSec  = 15.0
	BackwardSpeedCMPerSec = 20.0
)

// commandRetries is how many times a movement command is retried before the
// whole operation is abandoned.
const commandRetries = 3

const (
	commandRetryDelay = 200 * time.Millisecond
	stopRetryDelay    = 100 * time.Millisecond
	rotatePollDelay   = 100 * time.Millisecond
	resetRetryDelay   = 500 * time.Millisecond
)

// Driver is the subset of robot actions the helpers need. *robot.Client
// satisfies it.
type Driver interface {
	Forward() error
	Backward() error
	StopFB() error
	Left() error
	Right() error
	StopLR() error
	ResetGyro() error
	GyroData() (robot.GyroReading, error)
}

// Mover executes calibrated movements against a Driver.
type Mover struct {
	drv   Driver
	clock timeutil.Clock
}

// NewMover creates a Mover. A nil clock selects the real clock.
func NewMover(drv Driver, clock timeutil.Clock) *Mover {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Mover{drv: drv, clock: clock}
}

// MoveDistance moves the robot forward (positive) or backward (negative) by
// distanceCM centimeters using dead reckoning, capping the run at timeout.
// The stop command is always attempted, even if the run errors.
func (m *Mover) MoveDistance(distanceCM float64, timeout time.Duration) error {
	var start func() error
	var expected time.Duration

	if distanceCM >= 0 {
		start = m.drv.Forward
		expected = time.Duration(distanceCM / ForwardSpeedCMPerSec * float64(time.Second))
	} else {
		start = m.drv.Backward
		expected = time.Duration(-distanceCM / BackwardSpeedCMPerSec * float64(time.Second))
	}

	monitoring.Logf("moving %.1f cm (expected %.2fs)", distanceCM, expected.Seconds())

	if err := m.withRetries(start, commandRetryDelay); err != nil {
		return fmt.Errorf("failed to start movement: %w", err)
	}

	if expected > timeout {
		expected = timeout
	}
	m.clock.Sleep(expected)

	if err := m.withRetries(m.drv.StopFB, stopRetryDelay); err != nil {
		return fmt.Errorf("movement completed but stop command failed: %w", err)
	}

	monitoring.Logf("moved %.1f cm", distanceCM)
	return nil
}

// RotationResult reports how a rotation ended.
type RotationResult struct {
	Target  float64
	Final   float64
	Elapsed time.Duration
}

// RotateToAngle turns the robot until the gyroscope's cumulative Z angle is
// within tolerance degrees of target (positive = clockwise), bounded by
// timeout. The gyro is reset first so angles start from zero.
func (m *Mover) RotateToAngle(target, tolerance float64, timeout time.Duration) (RotationResult, error) {
	if err := m.withRetries(m.drv.ResetGyro, resetRetryDelay); err != nil {
		return RotationResult{}, fmt.Errorf("failed to reset gyroscope angles: %w", err)
	}
	m.clock.Sleep(rotatePollDelay * 2)

	initial, err := m.readGyro()
	if err != nil {
		return RotationResult{}, fmt.Errorf("could not initialise gyroscope: %w", err)
	}
	startAngle := initial.AngleZ

	rotate := m.drv.Right
	if target < 0 {
		rotate = m.drv.Left
	}

	start := m.clock.Now()
	current := startAngle

	for m.clock.Since(start) < timeout {
		if err := m.withRetries(rotate, stopRetryDelay); err != nil {
			m.stopRotation()
			return RotationResult{}, fmt.Errorf("failed to send rotation command: %w", err)
		}

		m.clock.Sleep(rotatePollDelay)

		reading, err := m.readGyro()
		if err != nil {
			monitoring.Logf("gyro read failed mid-rotation, continuing: %v", err)
			continue
		}
		current = reading.AngleZ

		turned := current - startAngle
		if math.Abs(target-turned) <= tolerance {
			if err := m.withRetries(m.drv.StopLR, stopRetryDelay); err != nil {
				return RotationResult{}, fmt.Errorf("reached target but stop command failed: %w", err)
			}
			elapsed := m.clock.Since(start)
			monitoring.Logf("rotation complete: turned %.1f° of %.1f° in %.2fs", turned, target, elapsed.Seconds())
			return RotationResult{Target: target, Final: turned, Elapsed: elapsed}, nil
		}
	}

	m.stopRotation()
	elapsed := m.clock.Since(start)
	return RotationResult{Target: target, Final: current - startAngle, Elapsed: elapsed},
		fmt.Errorf("rotation timed out after %.2fs at %.1f° of %.1f°", elapsed.Seconds(), current-startAngle, target)
}

// withRetries runs fn up to commandRetries times with a short delay between
// failures.
func (m *Mover) withRetries(fn func() error, delay time.Duration) error {
	var err error
	for attempt := 1; attempt <= commandRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		monitoring.Logf("command failed, retrying (%d/%d): %v", attempt, commandRetries, err)
		m.clock.Sleep(delay)
	}
	return fmt.Errorf("failed after %d attempts: %w", commandRetries, err)
}

func (m *Mover) readGyro() (robot.GyroReading, error) {
	var reading robot.GyroReading
	err := m.withRetries(func() error {
		var rerr error
		reading, rerr = m.drv.GyroData()
		return rerr
	}, commandRetryDelay)
	return reading, err
}

// stopRotation is the best-effort stop used on error paths.
func (m *Mover) stopRotation() {
	if err := m.withRetries(m.drv.StopLR, stopRetryDelay); err != nil {
		monitoring.Logf("emergency rotation stop failed: %v", err)
	}
}
