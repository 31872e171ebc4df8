// Package ring is a fixed-capacity byte queue for exactly one producer and
// one consumer goroutine.
//
// The producer is the serial receive goroutine and the consumer is the main
// loop. Neither side takes a lock: the read and write counters are atomics,
// the producer stores the byte before publishing the new write counter and
// the consumer loads the byte before publishing the new read counter.
//
// A push into a full buffer is rejected (drop-newest). The rejected byte is
// counted and the buffer is left untouched.
package ring

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// DefaultCapacity matches the larger receive buffer of the firmware.
const DefaultCapacity = 128

var ErrCapacity = errors.New("ring: capacity must be a power of two >= 2")

type Buffer struct {
	buf  []byte
	mask uint32

	// Free running; count = w - r.
	r atomic.Uint32
	w atomic.Uint32

	dropped atomic.Uint64
	notify  chan struct{}
}

// New allocates a buffer that holds exactly capacity bytes.
func New(capacity int) (*Buffer, error) {
	if capacity < 2 || capacity&(capacity-1) != 0 || capacity > 1<<30 {
		return nil, fmt.Errorf("%w: got %d", ErrCapacity, capacity)
	}
	return &Buffer{
		buf:    make([]byte, capacity),
		mask:   uint32(capacity - 1),
		notify: make(chan struct{}, 1),
	}, nil
}

// Push appends b. It never blocks; when the buffer is full it returns false
// and increments Dropped. Producer only.
func (b *Buffer) Push(v byte) bool {
	w := b.w.Load()
	if w-b.r.Load() > b.mask {
		b.dropped.Add(1)
		return false
	}
	b.buf[w&b.mask] = v
	b.w.Store(w + 1)
	select {
	case b.notify <- struct{}{}:
	default:
	}
	return true
}

// Pop removes the oldest byte. ok is false when the buffer is empty.
// Consumer only.
func (b *Buffer) Pop() (v byte, ok bool) {
	r := b.r.Load()
	if r == b.w.Load() {
		return 0, false
	}
	v = b.buf[r&b.mask]
	b.r.Store(r + 1)
	return v, true
}

// BlockingPop waits for a byte or for ctx to end.
func (b *Buffer) BlockingPop(ctx context.Context) (byte, error) {
	for {
		if v, ok := b.Pop(); ok {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-b.notify:
		}
	}
}

// Wait blocks until at least one byte is buffered or ctx ends. It does not
// consume anything.
func (b *Buffer) Wait(ctx context.Context) error {
	for b.Empty() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.notify:
		}
	}
	return nil
}

// Len may be called from any goroutine. r is loaded first so the result
// never wraps; it is clamped to Cap.
func (b *Buffer) Len() int {
	r := b.r.Load()
	return min(int(b.w.Load()-r), len(b.buf))
}

func (b *Buffer) Cap() int        { return len(b.buf) }
func (b *Buffer) Empty() bool     { return b.Len() == 0 }
func (b *Buffer) Full() bool      { return b.Len() == len(b.buf) }
func (b *Buffer) Dropped() uint64 { return b.dropped.Load() }

// Reset discards buffered bytes. Consumer side, and only while the producer
// is not running.
func (b *Buffer) Reset() {
	b.r.Store(b.w.Load())
	select {
	case <-b.notify:
	default:
	}
}
