// Package sensor implements the surface-speed sensor collaborator: a serial
// line-oriented device that reports the fabric's instantaneous velocity, and a
// scripted stand-in for development and tests.
package sensor

import (
	"errors"
	"io"

	"go.bug.st/serial"
)

var (
	// ErrNotStarted is returned by Velocity before Start or after Stop.
	ErrNotStarted = errors.New("sensor not started")
	// ErrNoReading is returned when the device has not produced a parsable
	// reading yet.
	ErrNoReading = errors.New("no velocity reading received yet")
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// PortOpener opens the device at path. It is swapped out in tests.
type PortOpener func(path string, opts PortOptions) (SerialPorter, error)

// OpenSerialPort opens a real serial port with go.bug.st/serial.
func OpenSerialPort(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}
