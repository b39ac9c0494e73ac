package robot

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/opendog/pupbridge/internal/serialbridge"
)

// fakeSender records submitted commands and replies from a scripted result
// queue; once the queue is empty every command succeeds.
type fakeSender struct {
	commands []serialbridge.Command
	results  []serialbridge.Result
}

func (f *fakeSender) Send(cmd serialbridge.Command, _ time.Duration) serialbridge.Result {
	f.commands = append(f.commands, cmd)
	if len(f.results) > 0 {
		res := f.results[0]
		f.results = f.results[1:]
		return res
	}
	return serialbridge.Result{OK: true, Response: "ACK:CMD_PROCESSED", Attempts: 1}
}

func (f *fakeSender) Enqueue(cmd serialbridge.Command, cb func(serialbridge.Result)) error {
	res := f.Send(cmd, 0)
	if cb != nil {
		cb(res)
	}
	return nil
}

func (f *fakeSender) Connected() bool { return true }

func (f *fakeSender) State() serialbridge.ConnState { return serialbridge.ConnState{} }

func (f *fakeSender) Close() error { return nil }

func (f *fakeSender) last(t *testing.T) serialbridge.Command {
	t.Helper()
	if len(f.commands) == 0 {
		t.Fatal("no command was sent")
	}
	return f.commands[len(f.commands)-1]
}

func TestActionWireValues(t *testing.T) {
	tests := []struct {
		name string
		call func(*Client) error
		vr   string
		val  int
	}{
		{"Forward", (*Client).Forward, "move", 1},
		{"Left", (*Client).Left, "move", 2},
		{"StopFB", (*Client).StopFB, "move", 3},
		{"Right", (*Client).Right, "move", 4},
		{"Backward", (*Client).Backward, "move", 5},
		{"StopLR", (*Client).StopLR, "move", 6},
		{"LookUp", (*Client).LookUp, "ges", 1},
		{"LookDown", (*Client).LookDown, "ges", 2},
		{"LookStopUD", (*Client).LookStopUD, "ges", 3},
		{"LookLeft", (*Client).LookLeft, "ges", 4},
		{"LookRight", (*Client).LookRight, "ges", 5},
		{"LookStopLR", (*Client).LookStopLR, "ges", 6},
		{"SteadyMode", (*Client).SteadyMode, "funcMode", 1},
		{"StayLow", (*Client).StayLow, "funcMode", 2},
		{"HandShake", (*Client).HandShake, "funcMode", 3},
		{"Jump", (*Client).Jump, "funcMode", 4},
		{"ActionA", (*Client).ActionA, "funcMode", 5},
		{"ActionB", (*Client).ActionB, "funcMode", 6},
		{"ActionC", (*Client).ActionC, "funcMode", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			client := NewClient(sender)

			if err := tt.call(client); err != nil {
				t.Fatalf("returned error: %v", err)
			}
			cmd := sender.last(t)
			if cmd.Kind != serialbridge.KindJSON || cmd.Var != tt.vr || cmd.Val != tt.val {
				t.Errorf("sent %s=%d, want %s=%d", cmd.Var, cmd.Val, tt.vr, tt.val)
			}
		})
	}
}

func TestLightCtrl(t *testing.T) {
	tests := []struct {
		color string
		val   int
	}{
		{"off", 0},
		{"blue", 1},
		{"red", 2},
		{"green", 3},
		{"yellow", 4},
		{"cyan", 5},
		{"magenta", 6},
		{"cyber", 7},
		{"plaid", 0}, // unknown colours turn the lights off
	}

	for _, tt := range tests {
		sender := &fakeSender{}
		client := NewClient(sender)

		if err := client.LightCtrl(tt.color); err != nil {
			t.Fatalf("LightCtrl(%q) returned error: %v", tt.color, err)
		}
		cmd := sender.last(t)
		if cmd.Var != "light" || cmd.Val != tt.val {
			t.Errorf("LightCtrl(%q) sent %s=%d, want light=%d", tt.color, cmd.Var, cmd.Val, tt.val)
		}
	}
}

func TestBuzzerCtrl(t *testing.T) {
	sender := &fakeSender{}
	client := NewClient(sender)

	if err := client.BuzzerCtrl(1); err != nil {
		t.Fatalf("BuzzerCtrl returned error: %v", err)
	}
	cmd := sender.last(t)
	if cmd.Var != "buzzer" || cmd.Val != 1 {
		t.Errorf("sent %s=%d, want buzzer=1", cmd.Var, cmd.Val)
	}
}

func TestPingAndResetGyro(t *testing.T) {
	sender := &fakeSender{}
	client := NewClient(sender)

	if err := client.Ping(); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
	if got := sender.last(t); got.Kind != serialbridge.KindText || got.Text != serialbridge.CmdPing {
		t.Errorf("Ping sent %+v", got)
	}

	if err := client.ResetGyro(); err != nil {
		t.Fatalf("ResetGyro returned error: %v", err)
	}
	if got := sender.last(t); got.Text != serialbridge.CmdResetGyro {
		t.Errorf("ResetGyro sent %+v", got)
	}
}

func TestGyroDataMapsFields(t *testing.T) {
	sender := &fakeSender{results: []serialbridge.Result{{
		OK: true,
		Data: map[string]float64{
			"gyro_x": 1, "gyro_y": 2, "gyro_z": 3,
			"angle_x": 10, "angle_y": 20, "angle_z": 30,
		},
	}}}
	client := NewClient(sender)

	got, err := client.GyroData()
	if err != nil {
		t.Fatalf("GyroData returned error: %v", err)
	}
	want := GyroReading{GyroX: 1, GyroY: 2, GyroZ: 3, AngleX: 10, AngleY: 20, AngleZ: 30}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected reading (-want +got):\n%s", diff)
	}
	if got := sender.last(t); got.Text != serialbridge.CmdGetGyro {
		t.Errorf("GyroData sent %+v", got)
	}
}

func TestAccelDataMapsFields(t *testing.T) {
	sender := &fakeSender{results: []serialbridge.Result{{
		OK:   true,
		Data: map[string]float64{"acc_x": 0.1, "acc_y": 0.2, "acc_z": 9.8},
	}}}
	client := NewClient(sender)

	got, err := client.AccelData()
	if err != nil {
		t.Fatalf("AccelData returned error: %v", err)
	}
	want := AccelReading{AccX: 0.1, AccY: 0.2, AccZ: 9.8}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected reading (-want +got):\n%s", diff)
	}
}

func TestErrorsPropagate(t *testing.T) {
	sender := &fakeSender{results: []serialbridge.Result{
		{Err: serialbridge.ErrTimeout},
		{Err: serialbridge.ErrTimeout},
	}}
	client := NewClient(sender)

	if err := client.Forward(); !errors.Is(err, serialbridge.ErrTimeout) {
		t.Errorf("Forward error = %v, want ErrTimeout", err)
	}
	if _, err := client.GyroData(); !errors.Is(err, serialbridge.ErrTimeout) {
		t.Errorf("GyroData error = %v, want ErrTimeout", err)
	}
}
