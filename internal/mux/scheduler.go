// Package mux scans the front grid onto the cube one layer per timer tick.
//
// Only one layer is lit at a time. Each firing loads the eight row latches of
// the current layer over the X/Y buses and then enables that layer on Z, so at
// a high enough firing rate the whole cube appears lit.
package mux

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-voxelcube/internal/frame"
	"github.com/coreman2200/funtimes-voxelcube/internal/port"
	"github.com/coreman2200/funtimes-voxelcube/internal/voxel"
)

const (
	DefaultSettle = 50 * time.Microsecond
	// Holds shorter than this spin instead of sleeping.
	spinLimit = 100 * time.Microsecond
)

type Option func(*Scheduler)

// WithDelay replaces the settle wait, mainly for tests.
func WithDelay(fn func(time.Duration)) Option {
	return func(s *Scheduler) { s.delay = fn }
}

// WithPending installs the probe whose result Fire and Refresh return.
func WithPending(fn func() bool) Option {
	return func(s *Scheduler) { s.pending = fn }
}

func WithWiring(w port.Wiring) Option {
	return func(s *Scheduler) { s.wiring = w }
}

func WithSettle(d time.Duration) Option {
	return func(s *Scheduler) { s.settle.Store(int64(d)) }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithLateHook is called from Run whenever a firing overruns its period.
func WithLateHook(fn func(layer int, took time.Duration)) Option {
	return func(s *Scheduler) { s.onLate = fn }
}

type Scheduler struct {
	store   *frame.Store
	ports   port.Ports
	wiring  port.Wiring
	delay   func(time.Duration)
	pending func() bool
	onLate  func(int, time.Duration)
	log     zerolog.Logger

	settle atomic.Int64
	cursor atomic.Int32
	// Copy of the front grid taken at the start of the current pass.
	latched voxel.Grid

	firings atomic.Uint64
	passes  atomic.Uint64
	late    atomic.Uint64
}

func New(store *frame.Store, ports port.Ports, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:   store,
		ports:   ports,
		wiring:  port.DefaultWiring(),
		delay:   hold,
		pending: func() bool { return false },
		log:     zerolog.Nop(),
	}
	s.settle.Store(int64(DefaultSettle))
	for _, o := range opts {
		o(s)
	}
	return s
}

// Fire shows the layer under the cursor and advances the cursor. It returns
// the pending probe's answer so a cooperative caller knows to go and service
// input.
func (s *Scheduler) Fire() (bool, error) {
	z := int(s.cursor.Load())
	if z == 0 {
		s.latched = s.store.Latch()
	}
	if err := s.scan(z); err != nil {
		return false, fmt.Errorf("mux: layer %d: %w", z, err)
	}
	next := (z + 1) % voxel.Size
	s.cursor.Store(int32(next))
	s.firings.Add(1)
	if next == 0 {
		s.passes.Add(1)
	}
	return s.pending(), nil
}

func (s *Scheduler) scan(z int) error {
	w := s.wiring
	settle := time.Duration(s.settle.Load())
	if err := s.ports.Z.Out(w.Z.Blank()); err != nil {
		return err
	}
	for y := 0; y < voxel.Size; y++ {
		if err := s.ports.X.Out(w.X.Encode(byte(s.latched[z][y]))); err != nil {
			return err
		}
		if err := s.ports.Y.Out(w.Y.Select(y)); err != nil {
			return err
		}
		s.delay(settle)
		// Clear both before the next row to avoid ghosting.
		if err := s.ports.X.Out(w.X.Blank()); err != nil {
			return err
		}
		if err := s.ports.Y.Out(w.Y.Blank()); err != nil {
			return err
		}
	}
	return s.ports.Z.Out(w.Z.Select(z))
}

// Refresh runs firings until the cursor is back at 0, showing every layer of
// the current frame once. It is the polled alternative to Run.
func (s *Scheduler) Refresh() (bool, error) {
	var pending bool
	for {
		p, err := s.Fire()
		if err != nil {
			return false, err
		}
		pending = pending || p
		if s.Cursor() == 0 {
			return pending, nil
		}
	}
}

// Run fires once per period until ctx ends, then blanks the buses. The store
// is attached for the duration so swaps wait for pass boundaries.
func (s *Scheduler) Run(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("mux: period must be positive, got %s", period)
	}
	detach := s.store.Attach()
	defer detach()
	defer func() {
		if err := s.ports.Blank(s.wiring); err != nil {
			s.log.Warn().Err(err).Msg("blank ports")
		}
	}()

	s.log.Info().Dur("period", period).Dur("settle", s.Settle()).Msg("multiplexer running")
	t := time.NewTimer(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		start := time.Now()
		layer := s.Cursor()
		if _, err := s.Fire(); err != nil {
			return err
		}
		took := time.Since(start)
		if took > period {
			n := s.late.Add(1)
			s.log.Debug().Int("layer", layer).Dur("took", took).Uint64("late", n).Msg("late firing")
			if s.onLate != nil {
				s.onLate(layer, took)
			}
		}
		t.Reset(max(period-took, 0))
	}
}

// Cursor is the layer the next firing will show.
func (s *Scheduler) Cursor() int { return int(s.cursor.Load()) }

func (s *Scheduler) Settle() time.Duration { return time.Duration(s.settle.Load()) }

// SetSettle changes the per-row hold. Longer holds mean brighter voxels but a
// longer firing.
func (s *Scheduler) SetSettle(d time.Duration) {
	s.settle.Store(int64(max(d, 0)))
}

type Stats struct {
	Firings uint64 `json:"firings"`
	Passes  uint64 `json:"passes"`
	Late    uint64 `json:"late"`
	Cursor  int    `json:"cursor"`
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Firings: s.firings.Load(),
		Passes:  s.passes.Load(),
		Late:    s.late.Load(),
		Cursor:  s.Cursor(),
	}
}

// hold waits for d. Waits under spinLimit spin on the monotonic clock.
func hold(d time.Duration) {
	if d <= 0 {
		return
	}
	if d >= spinLimit {
		time.Sleep(d)
		return
	}
	for start := time.Now(); time.Since(start) < d; {
	}
}
