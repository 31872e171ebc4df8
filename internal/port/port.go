// Package port drives the three 8-bit buses of the cube: X carries the row
// data, Y selects the row latch and Z selects the layer.
package port

import (
	"errors"
	"math/bits"
)

// Port is an 8-bit parallel output. Bit i of v drives line i.
type Port interface {
	Out(v byte) error
}

// Polarity describes how a logical byte is put on a bus.
type Polarity struct {
	ActiveLow bool `yaml:"active_low"`
	// Reverse swaps the bit order so that logical bit 0 drives line 7.
	Reverse bool `yaml:"reverse"`
}

// Encode maps a logical byte to the level pattern on the bus.
func (p Polarity) Encode(v byte) byte {
	if p.Reverse {
		v = bits.Reverse8(v)
	}
	if p.ActiveLow {
		v = ^v
	}
	return v
}

// Select is the one-hot pattern enabling line i.
func (p Polarity) Select(i int) byte { return p.Encode(1 << uint(i&7)) }

// Blank is the pattern with nothing enabled.
func (p Polarity) Blank() byte { return p.Encode(0) }

// Wiring holds the polarity of each bus.
type Wiring struct {
	X Polarity `yaml:"x"`
	Y Polarity `yaml:"y"`
	Z Polarity `yaml:"z"`
}

// DefaultWiring is the stock driver board: row data as-is, row select
// active-low one-hot, layer select active-high one-hot.
func DefaultWiring() Wiring {
	return Wiring{Y: Polarity{ActiveLow: true}}
}

// Ports groups the three buses.
type Ports struct {
	X, Y, Z Port
}

// Blank turns every bus off, layer select first.
func (p Ports) Blank(w Wiring) error {
	return errors.Join(
		p.Z.Out(w.Z.Blank()),
		p.X.Out(w.X.Blank()),
		p.Y.Out(w.Y.Blank()),
	)
}

// Halt releases the hardware behind every bus that holds any, such as a
// Bank's GPIO lines. Blank the buses first.
func (p Ports) Halt() error {
	var errs []error
	for _, bus := range []Port{p.Z, p.X, p.Y} {
		if h, ok := bus.(interface{ Halt() error }); ok {
			errs = append(errs, h.Halt())
		}
	}
	return errors.Join(errs...)
}
