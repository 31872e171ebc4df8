package uart

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-voxelcube/internal/ring"
)

type Transmitter struct {
	port Porter
	tx   *ring.Buffer
	log  zerolog.Logger
}

func NewTransmitter(port Porter, tx *ring.Buffer, log zerolog.Logger) *Transmitter {
	return &Transmitter{port: port, tx: tx, log: log}
}

// Send queues b without waiting. It reports false when the TX ring is full.
func (t *Transmitter) Send(b byte) bool { return t.tx.Push(b) }

// SendString queues s, waiting for ring space as needed.
func (t *Transmitter) SendString(ctx context.Context, s string) error {
	for i := 0; i < len(s); {
		if t.tx.Push(s[i]) {
			i++
			continue
		}
		// Drained by Run; back off until there is room.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return nil
}

// Run writes queued bytes to the port until ctx ends.
func (t *Transmitter) Run(ctx context.Context) error {
	buf := make([]byte, 0, t.tx.Cap())
	for {
		b, err := t.tx.BlockingPop(ctx)
		if err != nil {
			return nil
		}
		buf = append(buf[:0], b)
		for len(buf) < cap(buf) {
			v, ok := t.tx.Pop()
			if !ok {
				break
			}
			buf = append(buf, v)
		}
		if _, err := t.port.Write(buf); err != nil {
			return fmt.Errorf("uart: write: %w", err)
		}
		t.log.Trace().Int("bytes", len(buf)).Msg("tx")
	}
}
