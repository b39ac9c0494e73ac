package serialbridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/opendog/pupbridge/internal/monitoring"
	"github.com/opendog/pupbridge/internal/timeutil"
)

// Phase is the connection lifecycle state.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
	PhaseReconnecting Phase = "reconnecting"
)

const (
	connectAttempts   = 5
	connectRetryDelay = 500 * time.Millisecond

	// DefaultSettle is how long a fresh link is left alone after Connect
	// before any traffic, so the microcontroller side stabilises.
	DefaultSettle = 3 * time.Second

	// DefaultResettle is the shorter stabilisation delay used by Reconnect,
	// which runs inside the command execution path.
	DefaultResettle = 1500 * time.Millisecond
)

// ConnState is a snapshot of the link for callers and debug routes.
type ConnState struct {
	Path     string `json:"path"`
	BaudRate int    `json:"baud_rate"`
	Open     bool   `json:"open"`
	Phase    Phase  `json:"phase"`
}

// Conn owns the physical link's lifecycle: open, close, reconnect. There is
// exactly one Conn per process; every discrete read-drain, write, and
// read-scan against the port runs under its exclusive lock via Do.
type Conn struct {
	path    string
	opts    PortOptions
	factory PortFactory
	clock   timeutil.Clock

	settle   time.Duration
	resettle time.Duration

	mu    sync.Mutex
	port  Porter
	phase Phase
}

// NewConn creates a connection manager for the port at path. The link is not
// opened until Connect or Reconnect is called.
func NewConn(path string, opts PortOptions, factory PortFactory, clock timeutil.Clock) *Conn {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Conn{
		path:     path,
		opts:     opts,
		factory:  factory,
		clock:    clock,
		settle:   DefaultSettle,
		resettle: DefaultResettle,
		phase:    PhaseDisconnected,
	}
}

// SetSettleDelays overrides the post-open stabilisation delays. Tests use
// zero delays; operators can shorten them for known-fast firmware.
func (c *Conn) SetSettleDelays(settle, resettle time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settle = settle
	c.resettle = resettle
}

// Connect opens the link with up to five attempts separated by a short fixed
// delay, then blocks for the settle delay so the link stabilises. Failure is
// reported upward as an error, never fatal to the process.
func (c *Conn) Connect() error {
	c.setPhase(PhaseConnecting)

	for attempt := 1; attempt <= connectAttempts; attempt++ {
		monitoring.Logf("attempting to connect to %s (attempt %d/%d)", c.path, attempt, connectAttempts)
		port, err := c.factory.Open(c.path, c.opts)
		if err != nil {
			monitoring.Logf("failed to connect to %s (attempt %d): %v", c.path, attempt, err)
			c.clock.Sleep(connectRetryDelay)
			continue
		}

		c.install(port)
		c.clock.Sleep(c.settleDelay())
		c.setPhase(PhaseConnected)
		monitoring.Logf("serial connection to %s established", c.path)
		return nil
	}

	c.setPhase(PhaseDisconnected)
	return fmt.Errorf("failed to open %s after %d attempts: %w", c.path, connectAttempts, ErrNotConnected)
}

// Reconnect closes any existing handle (tolerating errors) and reopens the
// link once, with the shorter stabilisation delay.
func (c *Conn) Reconnect() error {
	c.mu.Lock()
	if c.phase == PhaseConnected {
		c.phase = PhaseReconnecting
	} else {
		c.phase = PhaseConnecting
	}
	if c.port != nil {
		if err := c.port.Close(); err != nil {
			monitoring.Logf("error closing existing serial connection: %v", err)
		}
		c.port = nil
	}
	c.mu.Unlock()

	port, err := c.factory.Open(c.path, c.opts)
	if err != nil {
		c.setPhase(PhaseDisconnected)
		return fmt.Errorf("failed to reconnect to %s: %w", c.path, err)
	}

	c.install(port)
	c.clock.Sleep(c.resettleDelay())
	c.setPhase(PhaseConnected)
	monitoring.Logf("serial connection to %s reestablished", c.path)
	return nil
}

// Do runs fn against the port while holding the exclusive lock. This is the
// only sanctioned path to the port for both the dispatcher and diagnostic
// callers, so their accesses serialise.
func (c *Conn) Do(fn func(p Porter) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return ErrNotConnected
	}
	return fn(c.port)
}

// Connected reports whether the link is open.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port != nil && c.phase == PhaseConnected
}

// State returns a snapshot of the link.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	opts, _ := c.opts.Normalize()
	return ConnState{
		Path:     c.path,
		BaudRate: opts.BaudRate,
		Open:     c.port != nil,
		Phase:    c.phase,
	}
}

// Close closes the link and marks the connection disconnected.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseDisconnected
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	return err
}

func (c *Conn) install(port Porter) {
	c.mu.Lock()
	c.port = port
	c.mu.Unlock()
}

func (c *Conn) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

func (c *Conn) settleDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settle
}

func (c *Conn) resettleDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resettle
}
