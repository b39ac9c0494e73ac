// Package serialbridge turns the robot's unreliable line-oriented serial
// link into a request/response abstraction usable by concurrent callers.
// Commands are queued FIFO and executed one at a time by a single dispatcher
// goroutine; callers either wait synchronously with a timeout or receive the
// result through a callback.
package serialbridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opendog/pupbridge/internal/monitoring"
	"github.com/opendog/pupbridge/internal/timeutil"
)

// Recorder receives the outcome of every executed command. Implementations
// must be safe for use from the dispatcher goroutine.
type Recorder interface {
	RecordCommand(id, wire string, ok bool, attempts int, elapsed time.Duration) error
}

// Config tunes the bridge. The zero value is not useful; start from
// DefaultConfig.
type Config struct {
	// Policy bounds the per-command execution protocol.
	Policy RetryPolicy

	// PreflightReconnect refreshes the link before every command even when
	// already connected. Costly (it pays the resettle delay each time) but
	// preserved from the field-proven behaviour; see DESIGN.md.
	PreflightReconnect bool

	// QueueSize caps the number of commands awaiting dispatch.
	QueueSize int

	// StopWait is how long Close waits for an in-flight command.
	StopWait time.Duration
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		Policy:             DefaultRetryPolicy(),
		PreflightReconnect: true,
		QueueSize:          64,
		StopWait:           2 * time.Second,
	}
}

type queued struct {
	cmd     Command
	deliver func(Result)
}

// Bridge is the command queue, dispatcher, and synchronous façade over one
// Conn. Create with New, then Start.
type Bridge struct {
	conn  *Conn
	cfg   Config
	clock timeutil.Clock

	queue chan queued
	stop  chan struct{}
	done  chan struct{}

	// stopMu guards stopped and every queue send, so a command accepted by
	// Enqueue is always visible to the dispatcher's shutdown drain.
	stopMu   sync.Mutex
	stopped  bool
	stopOnce sync.Once

	// carry holds a trailing partial line between read scans. Only the
	// dispatcher goroutine touches it.
	carry []byte

	recorderMu sync.Mutex
	recorder   Recorder
}

// New creates a Bridge over conn. A nil clock selects the real clock.
func New(conn *Conn, cfg Config, clock timeutil.Clock) *Bridge {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.StopWait <= 0 {
		cfg.StopWait = DefaultConfig().StopWait
	}
	if cfg.Policy.Overall <= 0 {
		cfg.Policy = DefaultRetryPolicy()
	}
	return &Bridge{
		conn:  conn,
		cfg:   cfg,
		clock: clock,
		queue: make(chan queued, cfg.QueueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// SetRecorder installs a command outcome recorder. May be nil.
func (b *Bridge) SetRecorder(r Recorder) {
	b.recorderMu.Lock()
	b.recorder = r
	b.recorderMu.Unlock()
}

// Conn exposes the underlying connection manager for diagnostic callers.
func (b *Bridge) Conn() *Conn { return b.conn }

// Connected reports whether the link is open.
func (b *Bridge) Connected() bool { return b.conn.Connected() }

// State returns a snapshot of the link.
func (b *Bridge) State() ConnState { return b.conn.State() }

// Start launches the dispatcher goroutine.
func (b *Bridge) Start() {
	go b.run()
	monitoring.Logf("serial command dispatcher started")
}

// run drains the queue one command at a time. Every popped command's sink is
// invoked exactly once, including during shutdown.
func (b *Bridge) run() {
	for {
		select {
		case q := <-b.queue:
			res := b.execute(q.cmd)
			b.record(q.cmd, res)
			q.deliver(res)
		case <-b.stop:
			for {
				select {
				case q := <-b.queue:
					q.deliver(Result{Err: ErrStopped})
				default:
					close(b.done)
					return
				}
			}
		}
	}
}

// Enqueue appends cmd to the queue without blocking the submitter. The
// callback receives the command's single Result; it may be nil. Invalid
// commands are rejected here, before anything is queued.
func (b *Bridge) Enqueue(cmd Command, cb func(Result)) error {
	if _, err := cmd.Encode(); err != nil {
		return err
	}
	if cb == nil {
		cb = func(Result) {}
	}

	b.stopMu.Lock()
	defer b.stopMu.Unlock()
	if b.stopped {
		return ErrStopped
	}

	select {
	case b.queue <- queued{cmd: cmd, deliver: cb}:
		return nil
	default:
		return fmt.Errorf("dropping command %s: %w", cmd.Describe(), ErrQueueFull)
	}
}

// Send enqueues cmd and blocks until its result arrives or timeout elapses.
// On timeout the in-flight command is not cancelled; its eventual result is
// simply discarded.
func (b *Bridge) Send(cmd Command, timeout time.Duration) Result {
	ch := make(chan Result, 1)
	if err := b.Enqueue(cmd, func(r Result) { ch <- r }); err != nil {
		return Result{Err: err}
	}

	select {
	case r := <-ch:
		return r
	case <-b.clock.After(timeout):
		return Result{Err: fmt.Errorf("timed out after %v waiting for result of %s: %w",
			timeout, cmd.Describe(), ErrTimeout)}
	}
}

// Close stops the dispatcher, waiting briefly for any in-flight command,
// then closes the link.
func (b *Bridge) Close() error {
	b.stopOnce.Do(func() {
		b.stopMu.Lock()
		b.stopped = true
		b.stopMu.Unlock()
		close(b.stop)
		select {
		case <-b.done:
		case <-b.clock.After(b.cfg.StopWait):
			monitoring.Logf("dispatcher did not stop within %v", b.cfg.StopWait)
		}
		monitoring.Logf("serial command dispatcher stopped")
	})
	return b.conn.Close()
}

// execute runs the execution protocol for one command: ensure a link,
// drain stale input, then busy-retry transmit-and-classify until the
// deadline, with a last-chance buffer scan before declaring timeout.
func (b *Bridge) execute(cmd Command) Result {
	start := b.clock.Now()

	wire, err := cmd.Encode()
	if err != nil {
		return Result{Err: err}
	}

	if !b.conn.Connected() {
		monitoring.Logf("not connected to serial port, attempting to reconnect")
		if rerr := b.conn.Reconnect(); rerr != nil {
			return Result{Err: fmt.Errorf("not connected and reconnection failed: %w", rerr)}
		}
	} else if b.cfg.PreflightReconnect {
		if rerr := b.conn.Reconnect(); rerr != nil {
			monitoring.Logf("preventive reconnection attempt failed: %v", rerr)
		}
	}

	b.drainInput()

	deadline := start.Add(b.cfg.Policy.Overall)
	attempts := 0

	for b.clock.Now().Before(deadline) {
		if cmd.Retries > 0 && attempts >= cmd.Retries {
			break
		}
		attempts++

		var match Match
		matched := false

		err := b.conn.Do(func(p Porter) error {
			if f, ok := p.(InputFlusher); ok {
				if err := f.ResetInputBuffer(); err != nil {
					return err
				}
			}
			b.carry = b.carry[:0]

			if _, err := p.Write(wire); err != nil {
				return err
			}
			if s, ok := p.(Syncer); ok {
				if err := s.Drain(); err != nil {
					return err
				}
			}

			avail, rerr := readAvailable(p)
			if len(avail) > 0 {
				var lines []string
				lines, b.carry = splitLines(append(b.carry, avail...))
				for _, line := range lines {
					if m, ok := MatchLine(cmd, line); ok {
						match, matched = m, true
						break
					}
				}
			}
			return rerr
		})

		if matched {
			elapsed := b.clock.Since(start)
			monitoring.Logf("command %s succeeded on attempt %d", cmd.Describe(), attempts)
			return Result{OK: true, Data: match.Data, Response: match.Response,
				Attempts: attempts, Elapsed: elapsed}
		}

		if err != nil {
			monitoring.Logf("transport error on attempt %d for %s: %v", attempts, cmd.Describe(), err)
			if rerr := b.conn.Reconnect(); rerr != nil {
				monitoring.Logf("reconnect after transport error failed: %v", rerr)
			}
			continue
		}

		if d := b.cfg.Policy.Delay; d > 0 {
			b.clock.Sleep(d)
		}
	}

	elapsed := b.clock.Since(start)
	monitoring.Logf("command %s failed after %d attempts (%.2fs elapsed)",
		cmd.Describe(), attempts, elapsed.Seconds())

	if rerr := b.conn.Reconnect(); rerr != nil {
		monitoring.Logf("final reconnection attempt failed: %v", rerr)
	}
	if res, ok := b.lastChanceScan(attempts, elapsed); ok {
		return res
	}

	return Result{Attempts: attempts, Elapsed: elapsed,
		Err: fmt.Errorf("command %s timed out after %.2fs (%d attempts): %w",
			cmd.Describe(), elapsed.Seconds(), attempts, ErrTimeout)}
}

// drainInput discards any bytes buffered on the link before a command is
// transmitted, so stale data from a previous exchange is never classified.
func (b *Bridge) drainInput() {
	b.carry = b.carry[:0]
	err := b.conn.Do(func(p Porter) error {
		if f, ok := p.(InputFlusher); ok {
			return f.ResetInputBuffer()
		}
		_, err := readAvailable(p)
		return err
	})
	if err != nil && !errors.Is(err, ErrNotConnected) {
		monitoring.Logf("failed to drain input buffer: %v", err)
	}
}

// lastChanceScan checks whatever is buffered for a trailing acknowledgment
// or known status keyword before the command is declared timed out.
func (b *Bridge) lastChanceScan(attempts int, elapsed time.Duration) (Result, bool) {
	var buf []byte
	err := b.conn.Do(func(p Porter) error {
		avail, rerr := readAvailable(p)
		buf = append(append([]byte{}, b.carry...), avail...)
		return rerr
	})
	if err != nil {
		monitoring.Logf("error in last resort buffer check: %v", err)
		return Result{}, false
	}
	if len(buf) == 0 {
		return Result{}, false
	}

	s := string(buf)
	if ScanBuffer(s) {
		monitoring.Logf("found delayed response, considering command successful: %q", s)
		return Result{OK: true, Response: s, Attempts: attempts, Elapsed: elapsed}, true
	}
	return Result{}, false
}

func (b *Bridge) record(cmd Command, res Result) {
	b.recorderMu.Lock()
	r := b.recorder
	b.recorderMu.Unlock()
	if r == nil {
		return
	}

	wire, err := cmd.Encode()
	if err != nil {
		return
	}
	if err := r.RecordCommand(cmd.ID.String(), string(wire), res.OK, res.Attempts, res.Elapsed); err != nil {
		monitoring.Logf("failed to record command outcome: %v", err)
	}
}

// maxReadsPerScan bounds a single read pass so a peer streaming continuously
// cannot pin the dispatcher inside the port lock.
const maxReadsPerScan = 64

// readAvailable reads whatever the peer has buffered right now. Ports are
// configured with a short read timeout, so a Read returning zero bytes means
// nothing further is available and the pass ends.
func readAvailable(p Porter) ([]byte, error) {
	var out []byte
	buf := make([]byte, 256)
	for i := 0; i < maxReadsPerScan; i++ {
		n, err := p.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			return out, err
		}
		if n == 0 {
			return out, nil
		}
	}
	return out, nil
}
