// Package robot maps named quadruped actions onto the wire commands the
// firmware understands and submits them through the serial bridge.
package robot

import (
	"fmt"
	"time"

	"github.com/opendog/pupbridge/internal/monitoring"
	"github.com/opendog/pupbridge/internal/serialbridge"
)

// DefaultTimeout bounds how long a caller waits for a command's result. The
// execution protocol itself stops retrying well before this.
const DefaultTimeout = 15 * time.Second

// Movement values for the "move" variable.
const (
	moveForward  = 1
	moveLeft     = 2
	moveStopFB   = 3
	moveRight    = 4
	moveBackward = 5
	moveStopLR   = 6
)

// Gesture values for the "ges" variable.
const (
	gesLookUp     = 1
	gesLookDown   = 2
	gesLookStopUD = 3
	gesLookLeft   = 4
	gesLookRight  = 5
	gesLookStopLR = 6
)

// Function-mode values for the "funcMode" variable.
const (
	funcSteady    = 1
	funcStayLow   = 2
	funcHandshake = 3
	funcJump      = 4
	funcActionA   = 5
	funcActionB   = 6
	funcActionC   = 7
)

// lightColors maps colour names to the firmware's "light" values.
var lightColors = map[string]int{
	"off":     0,
	"blue":    1,
	"red":     2,
	"green":   3,
	"yellow":  4,
	"cyan":    5,
	"magenta": 6,
	"cyber":   7,
}

// GyroReading is one parsed GYRO_DATA sample: instantaneous rates in
// degrees/second and cumulative angles in degrees.
type GyroReading struct {
	GyroX, GyroY, GyroZ    float64
	AngleX, AngleY, AngleZ float64
}

// AccelReading is one parsed ACCEL_DATA sample.
type AccelReading struct {
	AccX, AccY, AccZ float64
}

// Client submits robot actions through a bridge. Safe for concurrent use.
type Client struct {
	bridge  serialbridge.Sender
	timeout time.Duration
}

// NewClient creates a Client over bridge with the default result timeout.
func NewClient(bridge serialbridge.Sender) *Client {
	return &Client{bridge: bridge, timeout: DefaultTimeout}
}

// SetTimeout overrides the per-command result timeout.
func (c *Client) SetTimeout(d time.Duration) { c.timeout = d }

// Connected reports whether the link is open.
func (c *Client) Connected() bool { return c.bridge.Connected() }

func (c *Client) sendJSON(varName string, val int, action string) error {
	res := c.bridge.Send(serialbridge.JSONCommand(varName, val), c.timeout)
	if res.Err != nil {
		return fmt.Errorf("failed to send %s command: %w", action, res.Err)
	}
	monitoring.Logf("command sent: robot-%s", action)
	return nil
}

// Movement.

func (c *Client) Forward() error  { return c.sendJSON("move", moveForward, "forward") }
func (c *Client) Backward() error { return c.sendJSON("move", moveBackward, "backward") }
func (c *Client) Left() error     { return c.sendJSON("move", moveLeft, "left") }
func (c *Client) Right() error    { return c.sendJSON("move", moveRight, "right") }
func (c *Client) StopFB() error   { return c.sendJSON("move", moveStopFB, "stopFB") }
func (c *Client) StopLR() error   { return c.sendJSON("move", moveStopLR, "stopLR") }

// Head gestures.

func (c *Client) LookUp() error     { return c.sendJSON("ges", gesLookUp, "lookUp") }
func (c *Client) LookDown() error   { return c.sendJSON("ges", gesLookDown, "lookDown") }
func (c *Client) LookStopUD() error { return c.sendJSON("ges", gesLookStopUD, "lookStopUD") }
func (c *Client) LookLeft() error   { return c.sendJSON("ges", gesLookLeft, "lookLeft") }
func (c *Client) LookRight() error  { return c.sendJSON("ges", gesLookRight, "lookRight") }
func (c *Client) LookStopLR() error { return c.sendJSON("ges", gesLookStopLR, "lookStopLR") }

// Function modes.

func (c *Client) SteadyMode() error { return c.sendJSON("funcMode", funcSteady, "steady") }
func (c *Client) StayLow() error    { return c.sendJSON("funcMode", funcStayLow, "stayLow") }
func (c *Client) HandShake() error  { return c.sendJSON("funcMode", funcHandshake, "handshake") }
func (c *Client) Jump() error       { return c.sendJSON("funcMode", funcJump, "jump") }
func (c *Client) ActionA() error    { return c.sendJSON("funcMode", funcActionA, "actionA") }
func (c *Client) ActionB() error    { return c.sendJSON("funcMode", funcActionB, "actionB") }
func (c *Client) ActionC() error    { return c.sendJSON("funcMode", funcActionC, "actionC") }

// LightCtrl sets the LED strip to the named colour. Unknown colour names
// turn the lights off, matching the firmware's treatment of value 0.
func (c *Client) LightCtrl(colorName string) error {
	val := lightColors[colorName]
	return c.sendJSON("light", val, "light-"+colorName)
}

// BuzzerCtrl drives the buzzer with the given value.
func (c *Client) BuzzerCtrl(val int) error {
	return c.sendJSON("buzzer", val, "buzzer")
}

// Ping probes the link; the firmware answers PONG.
func (c *Client) Ping() error {
	res := c.bridge.Send(serialbridge.TextCommand(serialbridge.CmdPing), c.timeout)
	if res.Err != nil {
		return fmt.Errorf("ping failed: %w", res.Err)
	}
	return nil
}

// ResetGyro resets the robot's internal gyroscope angle tracking.
func (c *Client) ResetGyro() error {
	res := c.bridge.Send(serialbridge.TextCommand(serialbridge.CmdResetGyro), c.timeout)
	if res.Err != nil {
		return fmt.Errorf("failed to reset gyro angles: %w", res.Err)
	}
	monitoring.Logf("gyroscope angles reset")
	return nil
}

// GyroData queries the gyroscope.
func (c *Client) GyroData() (GyroReading, error) {
	res := c.bridge.Send(serialbridge.TextCommand(serialbridge.CmdGetGyro), c.timeout)
	if res.Err != nil {
		return GyroReading{}, fmt.Errorf("failed to get gyro data: %w", res.Err)
	}
	return GyroReading{
		GyroX:  res.Data["gyro_x"],
		GyroY:  res.Data["gyro_y"],
		GyroZ:  res.Data["gyro_z"],
		AngleX: res.Data["angle_x"],
		AngleY: res.Data["angle_y"],
		AngleZ: res.Data["angle_z"],
	}, nil
}

// AccelData queries the accelerometer.
func (c *Client) AccelData() (AccelReading, error) {
	res := c.bridge.Send(serialbridge.TextCommand(serialbridge.CmdGetAccel), c.timeout)
	if res.Err != nil {
		return AccelReading{}, fmt.Errorf("failed to get accelerometer data: %w", res.Err)
	}
	return AccelReading{
		AccX: res.Data["acc_x"],
		AccY: res.Data["acc_y"],
		AccZ: res.Data["acc_z"],
	}, nil
}
