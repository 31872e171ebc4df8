package port

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Bank is a Port made of eight GPIO lines.
type Bank struct {
	pins  [8]gpio.PinOut
	last  byte
	valid bool
}

// NewBank wraps already opened pins. pins[i] carries bit i.
func NewBank(pins [8]gpio.PinOut) *Bank {
	return &Bank{pins: pins}
}

// OpenBank initialises the host drivers and resolves eight pins by name,
// e.g. "GPIO17".
func OpenBank(names []string) (*Bank, error) {
	if len(names) != 8 {
		return nil, fmt.Errorf("port: need 8 pin names, got %d", len(names))
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("port: host init: %w", err)
	}
	var pins [8]gpio.PinOut
	for i, n := range names {
		p := gpioreg.ByName(n)
		if p == nil {
			return nil, fmt.Errorf("port: no such pin %q", n)
		}
		pins[i] = p
	}
	return NewBank(pins), nil
}

// Out drives all eight lines. Lines that already hold the wanted level are
// skipped.
func (b *Bank) Out(v byte) error {
	for i, p := range b.pins {
		bit := byte(1) << uint(i)
		if b.valid && (b.last^v)&bit == 0 {
			continue
		}
		if err := p.Out(gpio.Level(v&bit != 0)); err != nil {
			b.valid = false
			return fmt.Errorf("port: %s: %w", p, err)
		}
	}
	b.last = v
	b.valid = true
	return nil
}

// Halt releases every pin.
func (b *Bank) Halt() error {
	for _, p := range b.pins {
		if err := p.Halt(); err != nil {
			return err
		}
	}
	return nil
}
