package serialbridge

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// TestablePort implements Porter with configurable behaviour for testing.
// Reads drain a buffer that tests (or a WriteHook acting as the scripted
// peer) fill; an empty buffer reads as zero bytes, mirroring a real port
// whose read timeout elapsed.
type TestablePort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls.
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port.
	WriteBuffer *bytes.Buffer

	// WriteHook, when set, is invoked after each successful Write with the
	// written bytes. Tests use it to script the peer: push an echo line,
	// an ack, sensor data, or nothing.
	WriteHook func(written []byte)

	// ReadError is returned by the next Read call if set.
	ReadError error

	// WriteError is returned by the next Write call if set.
	WriteError error

	// CloseError is returned by Close if set.
	CloseError error

	// Closed indicates whether Close was called.
	Closed bool

	// ReadCalls, WriteCalls, FlushCalls, DrainCalls count operations.
	ReadCalls  int
	WriteCalls int
	FlushCalls int
	DrainCalls int

	// ReadTimeout records the last SetReadTimeout value.
	ReadTimeout time.Duration
}

// NewTestablePort creates a TestablePort.
func NewTestablePort() *TestablePort {
	return &TestablePort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
}

// Read drains the read buffer. An empty buffer returns (0, nil), the same
// signal a real port gives when its read timeout expires with no data.
func (t *TestablePort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++

	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}
	if t.ReadBuffer.Len() == 0 {
		return 0, nil
	}
	return t.ReadBuffer.Read(p)
}

// Write appends to the write buffer and then invokes WriteHook, if any,
// outside the port lock so the hook can add read data.
func (t *TestablePort) Write(p []byte) (int, error) {
	t.mu.Lock()
	t.WriteCalls++

	if t.Closed {
		t.mu.Unlock()
		return 0, errors.New("serial port closed")
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		t.mu.Unlock()
		return 0, err
	}

	n, err := t.WriteBuffer.Write(p)
	hook := t.WriteHook
	t.mu.Unlock()

	if err == nil && hook != nil {
		written := make([]byte, len(p))
		copy(written, p)
		hook(written)
	}
	return n, err
}

// Close marks the port as closed.
func (t *TestablePort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	return t.CloseError
}

// SetReadTimeout implements TimeoutPorter.
func (t *TestablePort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadTimeout = timeout
	return nil
}

// ResetInputBuffer implements InputFlusher.
func (t *TestablePort) ResetInputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.FlushCalls++
	t.ReadBuffer.Reset()
	return nil
}

// Drain implements Syncer.
func (t *TestablePort) Drain() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.DrainCalls++
	return nil
}

// AddReadData appends data to be returned by subsequent Read calls.
func (t *TestablePort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
}

// WrittenData returns all data written to the port.
func (t *TestablePort) WrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.WriteBuffer.Bytes()...)
}

// Reopen clears the closed flag, as if the port were opened again.
func (t *TestablePort) Reopen() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = false
}

// MockPortFactory implements PortFactory for testing.
type MockPortFactory struct {
	mu sync.Mutex

	// Port is returned from Open. Reopened on each call.
	Port *TestablePort

	// Error is returned by Open if set.
	Error error

	// OpenCalls records all Open calls.
	OpenCalls []MockOpenCall
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path string
	Opts PortOptions
}

// NewMockPortFactory creates a factory returning port.
func NewMockPortFactory(port *TestablePort) *MockPortFactory {
	return &MockPortFactory{Port: port}
}

// Open returns the configured port or error.
func (f *MockPortFactory) Open(path string, opts PortOptions) (Porter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Opts: opts})

	if f.Error != nil {
		return nil, f.Error
	}
	f.Port.Reopen()
	return f.Port, nil
}

// SetError makes subsequent Open calls fail with err.
func (f *MockPortFactory) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Error = err
}

// Opens returns the number of Open calls.
func (f *MockPortFactory) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.OpenCalls)
}
