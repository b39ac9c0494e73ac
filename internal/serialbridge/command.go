package serialbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Errors surfaced in Results. Connection and transport failures are handled
// locally by reconnecting; only these reach the caller.
var (
	// ErrNotConnected indicates the link could not be opened or reopened.
	ErrNotConnected = errors.New("not connected to serial port")

	// ErrTimeout indicates no matching response arrived within the deadline.
	ErrTimeout = errors.New("command timed out")

	// ErrInvalidCommand indicates a malformed command (unknown kind or
	// missing required payload fields).
	ErrInvalidCommand = errors.New("invalid command")

	// ErrStopped indicates the dispatcher is no longer accepting commands.
	ErrStopped = errors.New("bridge stopped")

	// ErrQueueFull indicates the command queue is at capacity.
	ErrQueueFull = errors.New("command queue full")
)

// CommandKind distinguishes the two wire encodings the firmware accepts.
type CommandKind int

const (
	// KindJSON commands encode as {"var":...,"val":...} plus newline.
	KindJSON CommandKind = iota
	// KindText commands are sent as the literal string plus newline.
	KindText
)

func (k CommandKind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindText:
		return "text"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Text commands with dedicated response shapes.
const (
	CmdPing      = "PING"
	CmdGetGyro   = "GET_GYRO"
	CmdGetAccel  = "GET_ACCEL"
	CmdResetGyro = "RESET_GYRO"
)

// Command is one unit of work for the dispatcher. Immutable once enqueued.
type Command struct {
	ID   uuid.UUID
	Kind CommandKind

	// Var and Val form the payload of a KindJSON command.
	Var string
	Val int

	// Text is the payload of a KindText command.
	Text string

	// Retries optionally caps the number of transmission attempts within
	// the overall deadline. Zero means unbounded (deadline-limited only).
	Retries int
}

// JSONCommand builds a {"var":...,"val":...} command.
func JSONCommand(varName string, val int) Command {
	return Command{ID: uuid.New(), Kind: KindJSON, Var: varName, Val: val}
}

// TextCommand builds a literal text command such as PING or GET_GYRO.
func TextCommand(text string) Command {
	return Command{ID: uuid.New(), Kind: KindText, Text: text}
}

// jsonWire is the exact wire shape of a structured command.
type jsonWire struct {
	Var string `json:"var"`
	Val int    `json:"val"`
}

// Encode returns the newline-terminated wire form of the command.
func (c Command) Encode() ([]byte, error) {
	switch c.Kind {
	case KindJSON:
		if c.Var == "" {
			return nil, fmt.Errorf("json command missing var field: %w", ErrInvalidCommand)
		}
		b, err := json.Marshal(jsonWire{Var: c.Var, Val: c.Val})
		if err != nil {
			return nil, fmt.Errorf("failed to encode json command: %w", err)
		}
		return append(b, '\n'), nil
	case KindText:
		if c.Text == "" {
			return nil, fmt.Errorf("text command is empty: %w", ErrInvalidCommand)
		}
		return []byte(c.Text + "\n"), nil
	default:
		return nil, fmt.Errorf("unknown command kind %d: %w", int(c.Kind), ErrInvalidCommand)
	}
}

// Describe returns a short human-readable form for logs, led by the first
// uuid segment so log lines and telemetry rows correlate.
func (c Command) Describe() string {
	if c.Kind == KindJSON {
		return fmt.Sprintf("%s {var:%s val:%d}", c.shortID(), c.Var, c.Val)
	}
	return fmt.Sprintf("%s %s", c.shortID(), c.Text)
}

func (c Command) shortID() string {
	return c.ID.String()[:8]
}

// Result is the single outcome produced for every enqueued command.
type Result struct {
	// OK reports whether a matching response was observed.
	OK bool

	// Data holds the parsed sensor payload for GET_GYRO / GET_ACCEL.
	Data map[string]float64

	// Response is the raw matched response line, when one exists.
	Response string

	// Err carries the failure cause when OK is false.
	Err error

	// Attempts is the number of transmissions performed.
	Attempts int

	// Elapsed is the time the execution protocol spent on the command.
	Elapsed time.Duration
}
