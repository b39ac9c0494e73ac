package serialbridge

import (
	"fmt"

	"go.bug.st/serial"
)

// RealPortFactory opens physical serial ports via go.bug.st/serial.
type RealPortFactory struct{}

// Open opens the serial port at path with the given options and configures
// it for short bounded reads.
func (RealPortFactory) Open(path string, opts PortOptions) (Porter, error) {
	mode, err := serialMode(opts)
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	if err := port.SetReadTimeout(scanReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}

	return port, nil
}

// serialMode converts PortOptions into the serial.Mode structure required by
// go.bug.st/serial when opening a port.
func serialMode(o PortOptions) (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.StopBits(opts.StopBits),
	}

	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("unsupported parity %q", opts.Parity)
	}

	return mode, nil
}
