package uart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-voxelcube/internal/ring"
)

// pollTimeout bounds each read so cancellation is seen promptly.
const pollTimeout = 50 * time.Millisecond

type Receiver struct {
	port Porter
	rx   *ring.Buffer
	log  zerolog.Logger
	// OnDrop is called, rate limited, when the RX ring rejects bytes.
	OnDrop func(total uint64)

	lastWarn time.Time
}

func NewReceiver(port Porter, rx *ring.Buffer, log zerolog.Logger) *Receiver {
	return &Receiver{port: port, rx: rx, log: log}
}

// Run copies incoming bytes into the ring until ctx ends or the port fails.
// A full ring drops the byte; the producer never waits.
func (r *Receiver) Run(ctx context.Context) error {
	if tp, ok := r.port.(TimeoutPorter); ok {
		if err := tp.SetReadTimeout(pollTimeout); err != nil {
			return fmt.Errorf("uart: set read timeout: %w", err)
		}
	} else {
		// Without read timeouts the only way out of a blocked read is
		// closing the port.
		stop := context.AfterFunc(ctx, func() { _ = r.port.Close() })
		defer stop()
	}

	buf := make([]byte, 64)
	for {
		n, err := r.port.Read(buf)
		for _, b := range buf[:n] {
			if !r.rx.Push(b) {
				r.dropped()
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return fmt.Errorf("uart: read: %w", ErrClosed)
		default:
			return fmt.Errorf("uart: read: %w", err)
		}
	}
}

func (r *Receiver) dropped() {
	now := time.Now()
	if now.Sub(r.lastWarn) < time.Second {
		return
	}
	r.lastWarn = now
	total := r.rx.Dropped()
	r.log.Warn().Uint64("dropped", total).Int("capacity", r.rx.Cap()).Msg("rx ring full, dropping bytes")
	if r.OnDrop != nil {
		r.OnDrop(total)
	}
}
