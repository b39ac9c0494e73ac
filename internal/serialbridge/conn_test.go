package serialbridge

import (
	"errors"
	"testing"
	"time"

	"github.com/opendog/pupbridge/internal/timeutil"
)

func newTestConn(factory PortFactory) (*Conn, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	conn := NewConn("/dev/ttyTEST", PortOptions{}, factory, clock)
	return conn, clock
}

func TestConnectSuccess(t *testing.T) {
	port := NewTestablePort()
	factory := NewMockPortFactory(port)
	conn, clock := newTestConn(factory)

	if err := conn.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	if !conn.Connected() {
		t.Error("expected Connected() after successful Connect")
	}
	if got := conn.State().Phase; got != PhaseConnected {
		t.Errorf("phase = %v, want %v", got, PhaseConnected)
	}
	if factory.Opens() != 1 {
		t.Errorf("expected 1 open, got %d", factory.Opens())
	}

	// The settle delay must be paid after a successful open.
	sleeps := clock.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != DefaultSettle {
		t.Errorf("expected single settle sleep of %v, got %v", DefaultSettle, sleeps)
	}
}

func TestConnectRetriesThenFails(t *testing.T) {
	port := NewTestablePort()
	factory := NewMockPortFactory(port)
	factory.SetError(errors.New("no such device"))
	conn, clock := newTestConn(factory)

	err := conn.Connect()
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	if factory.Opens() != connectAttempts {
		t.Errorf("expected %d open attempts, got %d", connectAttempts, factory.Opens())
	}
	if conn.Connected() {
		t.Error("expected disconnected state after exhausted attempts")
	}
	if got := conn.State().Phase; got != PhaseDisconnected {
		t.Errorf("phase = %v, want %v", got, PhaseDisconnected)
	}

	// A fixed delay separates attempts; no settle is paid on failure.
	for i, d := range clock.Sleeps() {
		if d != connectRetryDelay {
			t.Errorf("sleep %d = %v, want %v", i, d, connectRetryDelay)
		}
	}
}

func TestReconnectClosesExistingHandle(t *testing.T) {
	port := NewTestablePort()
	factory := NewMockPortFactory(port)
	conn, clock := newTestConn(factory)
	conn.SetSettleDelays(0, DefaultResettle)

	if err := conn.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	if err := conn.Reconnect(); err != nil {
		t.Fatalf("Reconnect returned error: %v", err)
	}

	if factory.Opens() != 2 {
		t.Errorf("expected 2 opens, got %d", factory.Opens())
	}
	if !conn.Connected() {
		t.Error("expected connected state after Reconnect")
	}

	// Reconnect pays the shorter stabilisation delay.
	sleeps := clock.Sleeps()
	if len(sleeps) == 0 || sleeps[len(sleeps)-1] != DefaultResettle {
		t.Errorf("expected trailing resettle sleep of %v, got %v", DefaultResettle, sleeps)
	}
}

func TestReconnectToleratesCloseError(t *testing.T) {
	port := NewTestablePort()
	port.CloseError = errors.New("close failed")
	factory := NewMockPortFactory(port)
	conn, _ := newTestConn(factory)
	conn.SetSettleDelays(0, 0)

	if err := conn.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if err := conn.Reconnect(); err != nil {
		t.Fatalf("Reconnect should tolerate close errors, got: %v", err)
	}
}

func TestReconnectFailureDisconnects(t *testing.T) {
	port := NewTestablePort()
	factory := NewMockPortFactory(port)
	conn, _ := newTestConn(factory)
	conn.SetSettleDelays(0, 0)

	if err := conn.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	factory.SetError(errors.New("device unplugged"))
	if err := conn.Reconnect(); err == nil {
		t.Fatal("expected Reconnect to fail")
	}

	if conn.Connected() {
		t.Error("expected disconnected state after failed Reconnect")
	}
	if got := conn.State().Phase; got != PhaseDisconnected {
		t.Errorf("phase = %v, want %v", got, PhaseDisconnected)
	}
}

func TestDoWithoutPort(t *testing.T) {
	factory := NewMockPortFactory(NewTestablePort())
	conn, _ := newTestConn(factory)

	err := conn.Do(func(p Porter) error { return nil })
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestStateSnapshot(t *testing.T) {
	factory := NewMockPortFactory(NewTestablePort())
	conn, _ := newTestConn(factory)

	state := conn.State()
	if state.Path != "/dev/ttyTEST" {
		t.Errorf("path = %q", state.Path)
	}
	if state.BaudRate != 115200 {
		t.Errorf("baud = %d, want default 115200", state.BaudRate)
	}
	if state.Open {
		t.Error("expected closed state before Connect")
	}
}

func TestCloseIdempotent(t *testing.T) {
	factory := NewMockPortFactory(NewTestablePort())
	conn, _ := newTestConn(factory)

	if err := conn.Connect(); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close returned error: %v", err)
	}
	if conn.Connected() {
		t.Error("expected disconnected after Close")
	}
}
