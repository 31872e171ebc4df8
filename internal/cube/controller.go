// Package cube wires the frame store, rings, protocol, scheduler and serial
// link into one device.
//
// Run starts the layer scheduler and the serial goroutines and then acts as
// the main loop: until the first serial byte arrives it plays the idle
// playlist; after that it only feeds received bytes to the protocol.
package cube

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/coreman2200/funtimes-voxelcube/internal/diagnostics"
	"github.com/coreman2200/funtimes-voxelcube/internal/frame"
	"github.com/coreman2200/funtimes-voxelcube/internal/ingest"
	"github.com/coreman2200/funtimes-voxelcube/internal/mux"
	"github.com/coreman2200/funtimes-voxelcube/internal/pattern"
	"github.com/coreman2200/funtimes-voxelcube/internal/port"
	"github.com/coreman2200/funtimes-voxelcube/internal/ring"
	"github.com/coreman2200/funtimes-voxelcube/internal/sequence"
	"github.com/coreman2200/funtimes-voxelcube/internal/uart"
	"github.com/coreman2200/funtimes-voxelcube/internal/voxel"
)

type Options struct {
	RXCapacity int
	TXCapacity int
	// Period is the time between layer firings.
	Period time.Duration
	Settle time.Duration
	Wiring port.Wiring

	Protocol ingest.Options
	// Echo sends every received byte back.
	Echo bool
	// Announce sends "started" on startup and "re-paint" after each frame.
	Announce bool

	// Idle is played until serial data shows up; nil disables it.
	Idle     *sequence.Program
	IdleStep time.Duration

	Log zerolog.Logger
	// Diag receives diagnostics. It must not block.
	Diag func(diagnostics.Diagnostic)
	// Frame is called with every new front grid. It runs with the frame
	// store locked and must not block.
	Frame func(front *voxel.Grid, id uint64)
}

type Controller struct {
	Store    *frame.Store
	RX       *ring.Buffer
	TX       *ring.Buffer
	Protocol *ingest.Protocol
	Sched    *mux.Scheduler

	opts  Options
	ports port.Ports
	link  uart.Porter
	recv  *uart.Receiver
	send  *uart.Transmitter
	log   zerolog.Logger

	player *sequence.SafePlayer
	mu     sync.Mutex
	runner *pattern.Runner

	serialMode atomic.Bool
	// Step delay of the active clip in ms; 0 uses Options.IdleStep.
	stepMs     atomic.Int64
}

var ErrSerialMode = errors.New("cube: serial mode active")

// New builds a controller driving ports. link may be nil when there is no
// serial port; bytes can then still be pushed into RX directly.
func New(ports port.Ports, link uart.Porter, opts Options) (*Controller, error) {
	if opts.RXCapacity == 0 {
		opts.RXCapacity = ring.DefaultCapacity
	}
	if opts.TXCapacity == 0 {
		opts.TXCapacity = 32
	}
	if opts.Period <= 0 {
		return nil, fmt.Errorf("cube: layer period must be positive")
	}
	if opts.IdleStep <= 0 {
		opts.IdleStep = 100 * time.Millisecond
	}
	rx, err := ring.New(opts.RXCapacity)
	if err != nil {
		return nil, fmt.Errorf("cube: rx ring: %w", err)
	}
	tx, err := ring.New(opts.TXCapacity)
	if err != nil {
		return nil, fmt.Errorf("cube: tx ring: %w", err)
	}

	c := &Controller{
		Store: frame.NewStore(),
		RX:    rx,
		TX:    tx,
		opts:  opts,
		ports: ports,
		link:  link,
		log:   opts.Log,
	}
	c.Store.OnSwap = opts.Frame
	c.Protocol = ingest.New(c.Store, opts.Protocol, ingest.Hooks{
		Frame:     c.onFrame,
		Abandoned: c.onAbandoned,
	}, c.log.With().Str("component", "ingest").Logger())
	c.Sched = mux.New(c.Store, ports,
		mux.WithWiring(opts.Wiring),
		mux.WithSettle(opts.Settle),
		mux.WithPending(func() bool { return !rx.Empty() }),
		mux.WithLogger(c.log.With().Str("component", "mux").Logger()),
		mux.WithLateHook(func(layer int, took time.Duration) {
			c.diag(diagnostics.RefreshLate(layer, took, opts.Period))
		}),
	)
	if link != nil {
		c.recv = uart.NewReceiver(link, rx, c.log.With().Str("component", "uart-rx").Logger())
		c.recv.OnDrop = func(total uint64) {
			c.diag(diagnostics.RXOverflow(total, rx.Cap()))
		}
		c.send = uart.NewTransmitter(link, tx, c.log.With().Str("component", "uart-tx").Logger())
	}

	c.player = sequence.NewSafePlayer(sequence.Hooks{
		SetPattern: c.setPattern,
		Done:       func() { c.log.Info().Msg("idle program finished") },
	})
	if opts.Idle != nil {
		if err := c.player.P.Load(*opts.Idle); err != nil {
			return nil, fmt.Errorf("cube: idle program: %w", err)
		}
	}
	return c, nil
}

// Run drives the cube until ctx ends. The buses are blank when it returns.
func (c *Controller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.Sched.Run(ctx, c.opts.Period)
	})
	if c.recv != nil {
		g.Go(func() error { return c.recv.Run(ctx) })
		g.Go(func() error { return c.send.Run(ctx) })
	}
	g.Go(func() error { return c.loop(ctx) })

	err := g.Wait()
	if berr := c.ports.Blank(c.opts.Wiring); berr != nil {
		err = errors.Join(err, fmt.Errorf("cube: blank: %w", berr))
	}
	if c.link != nil {
		if cerr := c.link.Close(); cerr != nil && !errors.Is(cerr, uart.ErrClosed) {
			c.log.Debug().Err(cerr).Msg("close serial port")
		}
	}
	return err
}

// loop is the main loop and the only writer of the back grid and producer of
// the TX ring.
func (c *Controller) loop(ctx context.Context) error {
	if c.opts.Announce && c.send != nil {
		if err := c.send.SendString(ctx, "started\n"); err != nil {
			return nil
		}
	}
	c.player.With(func(p *sequence.Player) { p.Start() })
	last := time.Now()
	for ctx.Err() == nil {
		if !c.SerialMode() && c.idleRunning() {
			now := time.Now()
			c.player.With(func(p *sequence.Player) { p.Tick(now.Sub(last).Seconds()) })
			last = now
			if err := c.IdleStep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}

		// Pace the idle animation, but wake as soon as a byte arrives.
		wctx, cancel := context.WithTimeout(ctx, c.stepDelay())
		err := c.RX.Wait(wctx)
		cancel()
		if err != nil {
			continue
		}
		if err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	return nil
}

// Poll feeds every byte currently in the RX ring to the protocol. The first
// byte ever seen switches the controller to serial mode.
func (c *Controller) Poll(ctx context.Context) error {
	for {
		b, ok := c.RX.Pop()
		if !ok {
			return nil
		}
		c.enterSerialMode()
		if c.opts.Echo && c.send != nil && !c.send.Send(b) {
			c.log.Debug().Msg("tx ring full, echo dropped")
		}
		if err := c.Protocol.Feed(ctx, b); err != nil {
			return err
		}
	}
}

// IdleStep draws the next step of the active idle pattern and publishes it.
func (c *Controller) IdleStep(ctx context.Context) error {
	c.mu.Lock()
	r := c.runner
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	var g voxel.Grid
	if !r.Step(&g) {
		r.Reset()
		if !r.Step(&g) {
			return nil
		}
	}
	return c.Store.Publish(ctx, &g)
}

// SetPattern switches the idle content by name, outside the playlist. It
// fails once serial data has taken over.
func (c *Controller) SetPattern(name string) error {
	k, err := pattern.Parse(name)
	if err != nil {
		return err
	}
	if c.SerialMode() {
		return ErrSerialMode
	}
	c.player.With(func(p *sequence.Player) { p.Pause() })
	c.setPattern(sequence.Clip{Pattern: string(k)})
	return nil
}

// SetSettle changes the per-row on time of the scheduler.
func (c *Controller) SetSettle(d time.Duration) { c.Sched.SetSettle(d) }

func (c *Controller) setPattern(clip sequence.Clip) {
	k, err := pattern.Parse(clip.Pattern)
	if err != nil {
		c.log.Warn().Err(err).Msg("skipping clip")
		return
	}
	var seed uint32
	if c.opts.Idle != nil {
		seed = c.opts.Idle.Seed
	}
	c.mu.Lock()
	c.runner = pattern.NewRunner(pattern.Plan{Kind: k, Seed: seed})
	c.mu.Unlock()
	c.stepMs.Store(int64(clip.StepMs))
	c.log.Debug().Str("pattern", clip.Pattern).Msg("idle pattern")
}

func (c *Controller) stepDelay() time.Duration {
	if ms := c.stepMs.Load(); ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return c.opts.IdleStep
}

func (c *Controller) idleRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runner != nil
}

// SerialMode reports whether serial data has been seen.
func (c *Controller) SerialMode() bool { return c.serialMode.Load() }

func (c *Controller) enterSerialMode() {
	if c.serialMode.Swap(true) {
		return
	}
	c.player.With(func(p *sequence.Player) { p.Stop() })
	c.mu.Lock()
	c.runner = nil
	c.mu.Unlock()
	c.log.Info().Msg("serial data detected, idle patterns stopped")
	c.diag(diagnostics.SerialMode())
}

func (c *Controller) onFrame(uint64) {
	if c.opts.Announce {
		c.announce("re-paint\n")
	}
}

func (c *Controller) onAbandoned(received int) {
	c.diag(diagnostics.FrameAbandoned(received, c.opts.Protocol.FrameTimeout))
}

// announce queues s without waiting, truncating it when the TX ring is full.
func (c *Controller) announce(s string) {
	if c.send == nil {
		return
	}
	for i := 0; i < len(s); i++ {
		if !c.send.Send(s[i]) {
			c.log.Debug().Str("msg", s).Msg("tx ring full, announcement truncated")
			return
		}
	}
}

func (c *Controller) diag(d diagnostics.Diagnostic) {
	if c.opts.Diag != nil {
		c.opts.Diag(d)
	}
}

type Stats struct {
	Mode       string       `json:"mode"`
	Swaps      uint64       `json:"swaps"`
	RXBuffered int          `json:"rx_buffered"`
	RXDropped  uint64       `json:"rx_dropped"`
	Ingest     ingest.Stats `json:"ingest"`
	Mux        mux.Stats    `json:"mux"`
	Settle     string       `json:"settle"`
}

func (c *Controller) Stats() Stats {
	mode := "idle"
	if c.SerialMode() {
		mode = "serial"
	}
	return Stats{
		Mode:       mode,
		Swaps:      c.Store.Swaps(),
		RXBuffered: c.RX.Len(),
		RXDropped:  c.RX.Dropped(),
		Ingest:     c.Protocol.Stats(),
		Mux:        c.Sched.Stats(),
		Settle:     c.Sched.Settle().String(),
	}
}
