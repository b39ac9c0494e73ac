package serialbridge

import (
	"fmt"
	"time"
)

// Sender is the command submission surface shared by the real bridge and the
// disabled stand-in.
type Sender interface {
	// Send enqueues a command and blocks for its result up to timeout.
	Send(cmd Command, timeout time.Duration) Result
	// Enqueue appends a command without blocking; cb receives its result.
	Enqueue(cmd Command, cb func(Result)) error
	// Connected reports whether the link is open.
	Connected() bool
	// State returns a snapshot of the link.
	State() ConnState
	// Close stops the dispatcher and closes the link.
	Close() error
}

// DisabledBridge is a no-op Sender used when the robot hardware is absent
// (for -disable-serial). Every command reports success immediately so
// higher-level flows can be exercised without a device.
type DisabledBridge struct{}

// NewDisabledBridge creates a DisabledBridge.
func NewDisabledBridge() *DisabledBridge { return &DisabledBridge{} }

func (d *DisabledBridge) Send(cmd Command, _ time.Duration) Result {
	if _, err := cmd.Encode(); err != nil {
		return Result{Err: err}
	}
	return Result{OK: true, Response: fmt.Sprintf("disabled: %s", cmd.Describe()), Attempts: 1}
}

func (d *DisabledBridge) Enqueue(cmd Command, cb func(Result)) error {
	res := d.Send(cmd, 0)
	if res.Err != nil {
		return res.Err
	}
	if cb != nil {
		cb(res)
	}
	return nil
}

func (d *DisabledBridge) Connected() bool { return false }

func (d *DisabledBridge) State() ConnState {
	return ConnState{Path: "disabled", Phase: PhaseDisconnected}
}

func (d *DisabledBridge) Close() error { return nil }
