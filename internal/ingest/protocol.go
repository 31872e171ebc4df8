// Package ingest turns the serial byte stream into published frames.
//
// A frame is the start byte 0xF2 followed by exactly 64 row bytes in wire
// order (byte n is layer n/8, row n%8). The frame is swapped to the front as
// soon as its last byte lands. There is no escaping: once a frame has started
// every byte, 0xF2 included, is payload.
package ingest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-voxelcube/internal/frame"
	"github.com/coreman2200/funtimes-voxelcube/internal/voxel"
)

const (
	Start       byte = 0xF2
	ClearCmd    byte = 0xF0
	ColumnCmd   byte = 0xF1
	PayloadSize      = voxel.Rows
)

type State int

const (
	Idle State = iota
	Receiving
	// Carry waits for the last row of a frame that was published early.
	Carry
	ClearValue
	ColumnIndex
	ColumnValue
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Receiving:
		return "receiving"
	case Carry:
		return "carry"
	case ClearValue:
		return "clear-value"
	case ColumnIndex:
		return "column-index"
	case ColumnValue:
		return "column-value"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options are all off by default, which gives the plain 0xF2 + 64 protocol.
type Options struct {
	// ExtendedCommands accepts 0xF0 v (clear to v) and 0xF1 n v (replace
	// wire-order row n, layer n/8 row n%8, with v) while idle.
	ExtendedCommands bool `yaml:"extended_commands"`
	// CarryLastByte publishes after 63 payload bytes and paints the byte
	// after that, whatever it is, into the last row. Some senders rely on it.
	CarryLastByte bool `yaml:"carry_last_byte"`
	// FrameTimeout abandons a partial frame when the gap before the next
	// byte is longer than this. Zero waits forever.
	FrameTimeout time.Duration `yaml:"frame_timeout"`
}

// Hooks are optional callbacks, run on the feeding goroutine.
type Hooks struct {
	// Frame is called after a swap caused by the protocol.
	Frame func(swaps uint64)
	// Abandoned is called when a partial frame times out.
	Abandoned func(received int)
}

type Protocol struct {
	store *frame.Store
	opts  Options
	hooks Hooks
	log   zerolog.Logger
	now   func() time.Time

	state State
	n     int
	arg   byte
	last  time.Time

	frames    atomic.Uint64
	noise     atomic.Uint64
	abandoned atomic.Uint64
}

func New(store *frame.Store, opts Options, hooks Hooks, log zerolog.Logger) *Protocol {
	return &Protocol{
		store: store,
		opts:  opts,
		hooks: hooks,
		log:   log,
		now:   time.Now,
	}
}

// Feed advances the state machine by one byte. The only errors come from a
// swap whose ctx ended; the state machine has already moved on by then.
func (p *Protocol) Feed(ctx context.Context, b byte) error {
	if p.opts.FrameTimeout > 0 {
		now := p.now()
		if p.state != Idle && now.Sub(p.last) > p.opts.FrameTimeout {
			p.abandon()
		}
		p.last = now
	}

	switch p.state {
	case Idle:
		switch {
		case b == Start:
			p.state = Receiving
			p.n = 0
		case p.opts.ExtendedCommands && b == ClearCmd:
			p.state = ClearValue
		case p.opts.ExtendedCommands && b == ColumnCmd:
			p.state = ColumnIndex
		default:
			p.noise.Add(1)
			p.log.Debug().Uint8("byte", b).Msg("ignoring byte outside frame")
		}

	case Receiving:
		z, y := voxel.RowIndex(p.n)
		back := p.store.Back()
		back[z][y] = voxel.Row(b)
		p.n++
		switch {
		case p.n == PayloadSize:
			p.state = Idle
			return p.publish(ctx)
		case p.opts.CarryLastByte && p.n == PayloadSize-1:
			p.state = Carry
			return p.publish(ctx)
		}

	case Carry:
		p.state = Idle
		z, y := voxel.RowIndex(PayloadSize - 1)
		return p.edit(ctx, func(g *voxel.Grid) { g[z][y] = voxel.Row(b) })

	case ClearValue:
		p.state = Idle
		p.store.Back().Clear(voxel.Row(b))
		return p.publish(ctx)

	case ColumnIndex:
		if int(b) >= voxel.Rows {
			p.state = Idle
			p.noise.Add(1)
			p.log.Debug().Uint8("column", b).Msg("column out of range")
			return nil
		}
		p.arg = b
		p.state = ColumnValue

	case ColumnValue:
		p.state = Idle
		z, y := voxel.RowIndex(int(p.arg))
		return p.edit(ctx, func(g *voxel.Grid) { g[z][y] = voxel.Row(b) })
	}
	return nil
}

func (p *Protocol) publish(ctx context.Context) error {
	if err := p.store.Swap(ctx); err != nil {
		return fmt.Errorf("ingest: swap: %w", err)
	}
	p.swapped()
	return nil
}

func (p *Protocol) edit(ctx context.Context, fn func(*voxel.Grid)) error {
	if err := p.store.Edit(ctx, fn); err != nil {
		return fmt.Errorf("ingest: edit: %w", err)
	}
	p.swapped()
	return nil
}

func (p *Protocol) swapped() {
	n := p.frames.Add(1)
	p.log.Debug().Uint64("frames", n).Msg("frame published")
	if p.hooks.Frame != nil {
		p.hooks.Frame(p.store.Swaps())
	}
}

func (p *Protocol) abandon() {
	got := p.n
	if p.state != Receiving {
		got = 0
	}
	p.abandoned.Add(1)
	p.log.Warn().Str("state", p.state.String()).Int("received", got).Msg("partial frame timed out")
	if p.state == Receiving {
		p.store.Back().Clear(0)
	}
	p.state = Idle
	p.n = 0
	if p.hooks.Abandoned != nil {
		p.hooks.Abandoned(got)
	}
}

// State is the current parser state.
func (p *Protocol) State() State { return p.state }

// Received is the number of payload bytes of the current frame.
func (p *Protocol) Received() int {
	if p.state != Receiving {
		return 0
	}
	return p.n
}

type Stats struct {
	Frames    uint64 `json:"frames"`
	Noise     uint64 `json:"noise"`
	Abandoned uint64 `json:"abandoned"`
}

// Stats may be called from any goroutine.
func (p *Protocol) Stats() Stats {
	return Stats{
		Frames:    p.frames.Load(),
		Noise:     p.noise.Load(),
		Abandoned: p.abandoned.Load(),
	}
}
