// Package uart moves bytes between the serial link and the byte rings.
//
// Receiver plays the part of the receive interrupt: it copies every byte that
// arrives into the RX ring and never blocks on the consumer. Transmitter
// drains the TX ring onto the link.
package uart

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

var ErrClosed = errors.New("uart: port closed")

// Porter is the part of a serial port the cube needs.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutPorter is a Porter whose reads can be bounded, so a blocked read
// notices cancellation.
type TimeoutPorter interface {
	Porter
	SetReadTimeout(timeout time.Duration) error
}

// Open opens a real serial device, e.g. /dev/ttyUSB0.
func Open(path string, opts PortOptions) (serial.Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("uart: open %s: %w", path, err)
	}
	return p, nil
}

// List returns the serial devices present on this machine.
func List() ([]string, error) {
	return serial.GetPortsList()
}
