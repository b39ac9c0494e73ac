package serialbridge

import (
	"io"
	"time"
)

// Porter defines the minimal interface needed for the robot's serial link.
// This abstraction enables unit testing without real serial hardware.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutPorter extends Porter with read timeout control. Ports that
// implement it are configured for short bounded reads so the classifier's
// non-blocking scan returns quickly on a silent peer.
type TimeoutPorter interface {
	Porter
	// SetReadTimeout sets the read timeout for the port.
	SetReadTimeout(timeout time.Duration) error
}

// InputFlusher extends Porter with the ability to discard any bytes
// currently buffered on the link. Used before each transmission so stale
// data from a previous exchange is never classified.
type InputFlusher interface {
	// ResetInputBuffer discards unread input.
	ResetInputBuffer() error
}

// Syncer extends Porter with an explicit output flush.
type Syncer interface {
	// Drain blocks until all written bytes are transmitted.
	Drain() error
}

// PortFactory defines an interface for opening serial ports.
// This abstraction enables dependency injection of port creation.
type PortFactory interface {
	// Open opens a serial port at the specified path with the given options.
	Open(path string, opts PortOptions) (Porter, error)
}

// scanReadTimeout bounds each Read during a classification pass. A read that
// returns zero bytes within this window means the peer has nothing buffered.
const scanReadTimeout = 20 * time.Millisecond
