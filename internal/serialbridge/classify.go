package serialbridge

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/opendog/pupbridge/internal/monitoring"
)

// EchoPrefix marks the firmware's verbatim echo of a received raw command.
// Echo lines are never treated as data. The spelling is the firmware's.
const EchoPrefix = "COMMAND RECIEVED:"

const (
	ackProcessed = "ACK:CMD_PROCESSED"
	ackPrefix    = "ACK:"
	ackGyroReset = "ACK:GYRO_RESET"
	pongToken    = "PONG"

	gyroDataPrefix  = "GYRO_DATA:"
	accelDataPrefix = "ACCEL_DATA:"

	// implicitAckResponse is reported when a command confirmation keyword
	// stands in for an explicit acknowledgment.
	implicitAckResponse = "Implicit ACK from command echo"
)

// implicitAckKeywords are human-readable confirmations the firmware prints
// when it acts on a command. Any of them counts as an implicit ack.
var implicitAckKeywords = []string{
	"Forward", "Backward", "TurnLeft", "TurnRight", "FBStop", "LRStop",
	"Steady ON", "Steady OFF", "Jump", "stayLow", "handshake",
	"ActionA", "ActionB", "ActionC",
}

// gyroFields are all required in a GYRO_DATA payload.
var gyroFields = []string{"gyro_x", "gyro_y", "gyro_z", "angle_x", "angle_y", "angle_z"}

// accelFields are all required in an ACCEL_DATA payload.
var accelFields = []string{"acc_x", "acc_y", "acc_z"}

// Match is a successful classification of one response line.
type Match struct {
	Response string
	Data     map[string]float64
}

// IsEchoLine reports whether line is a firmware command echo.
func IsEchoLine(line string) bool {
	return strings.HasPrefix(line, EchoPrefix)
}

// MatchLine classifies one response line against the expected response shape
// for cmd. Echo lines and unrecognised lines never match. Malformed or
// incomplete sensor payloads are discarded silently so polling continues.
func MatchLine(cmd Command, line string) (Match, bool) {
	line = strings.TrimRight(line, "\r")
	if line == "" || IsEchoLine(line) {
		return Match{}, false
	}

	if cmd.Kind == KindJSON {
		return matchAck(line)
	}

	switch cmd.Text {
	case CmdPing:
		if line == pongToken {
			return Match{Response: line}, true
		}
	case CmdResetGyro:
		// Tolerant match: accept the exact ack or any line that mentions
		// the reset, since some firmware builds decorate it.
		if line == ackGyroReset || strings.Contains(line, "GYRO_RESET") {
			return Match{Response: line}, true
		}
	case CmdGetGyro:
		return matchSensorData(line, gyroDataPrefix, gyroFields)
	case CmdGetAccel:
		return matchSensorData(line, accelDataPrefix, accelFields)
	}
	return Match{}, false
}

// matchAck applies the generic acknowledgment rules: the explicit ack token,
// any ACK:-prefixed variant, or a recognised confirmation keyword.
func matchAck(line string) (Match, bool) {
	if line == ackProcessed {
		return Match{Response: line}, true
	}
	if strings.HasPrefix(line, ackPrefix) {
		return Match{Response: line}, true
	}
	if containsImplicitAck(line) {
		return Match{Response: implicitAckResponse}, true
	}
	return Match{}, false
}

// matchSensorData parses a tagged sensor line and accepts it only when every
// required field is present.
func matchSensorData(line, prefix string, required []string) (Match, bool) {
	if !strings.HasPrefix(line, prefix) {
		return Match{}, false
	}

	raw := line[len(prefix):]
	var data map[string]float64
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		monitoring.Logf("discarding malformed sensor payload %q: %v", raw, err)
		return Match{}, false
	}

	for _, field := range required {
		if _, ok := data[field]; !ok {
			monitoring.Logf("discarding incomplete sensor payload %q: missing %s", raw, field)
			return Match{}, false
		}
	}

	return Match{Response: line, Data: data}, true
}

func containsImplicitAck(s string) bool {
	for _, kw := range implicitAckKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// ScanBuffer is the last-chance check run at the deadline: it looks at raw
// buffered bytes for a trailing acknowledgment or a known status keyword.
func ScanBuffer(buf string) bool {
	return strings.Contains(buf, ackPrefix) || containsImplicitAck(buf)
}

// splitLines splits b into complete newline-terminated lines, returning any
// trailing partial line so it can be carried into the next scan.
func splitLines(b []byte) (lines []string, rest []byte) {
	for {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			return lines, b
		}
		lines = append(lines, string(b[:i]))
		b = b[i+1:]
	}
}
