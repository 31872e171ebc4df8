// Package frame owns the front/back grid pair.
//
// The front grid is what the multiplexer shows; the back grid is where new
// content is written. A swap exchanges their identities and zeroes the new
// back grid. While a scheduler is attached the exchange is carried out by the
// scheduler itself at the start of a refresh pass (Latch), so a pass never
// mixes rows from two frames.
package frame

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/coreman2200/funtimes-voxelcube/internal/voxel"
)

type Store struct {
	mu       sync.Mutex
	grids    [2]voxel.Grid
	front    int
	pending  chan struct{}
	attached bool

	swaps atomic.Uint64
	// OnSwap, when set, is called with the new front grid after every
	// committed swap. It runs with the store locked and must not block.
	OnSwap func(front *voxel.Grid, id uint64)
}

// NewStore returns a store with both grids zeroed.
func NewStore() *Store {
	return &Store{}
}

// Front returns a copy of the grid currently shown.
func (s *Store) Front() voxel.Grid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grids[s.front]
}

// Back returns the grid that ingest and drawing code write into. It belongs
// to the main loop and must not be written while a swap is pending.
func (s *Store) Back() *voxel.Grid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &s.grids[1-s.front]
}

// Swap publishes the back grid. Without an attached scheduler the swap
// commits before Swap returns. With one, Swap waits for the next pass
// boundary. If ctx ends first the request stays queued and is still
// committed at that boundary; Swap returns ctx.Err().
func (s *Store) Swap(ctx context.Context) error {
	s.mu.Lock()
	if !s.attached {
		s.commit()
		s.mu.Unlock()
		return nil
	}
	if s.pending == nil {
		s.pending = make(chan struct{})
	}
	done := s.pending
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish copies g into the back grid and swaps.
func (s *Store) Publish(ctx context.Context, g *voxel.Grid) error {
	s.mu.Lock()
	s.grids[1-s.front] = *g
	s.mu.Unlock()
	return s.Swap(ctx)
}

// Edit starts the back grid as a copy of the front grid, applies fn to it and
// swaps. It is how a single row is changed without resending a whole frame.
func (s *Store) Edit(ctx context.Context, fn func(g *voxel.Grid)) error {
	s.mu.Lock()
	back := &s.grids[1-s.front]
	*back = s.grids[s.front]
	s.mu.Unlock()
	fn(back)
	return s.Swap(ctx)
}

// Attach registers the refresh scheduler. The returned func detaches it and
// commits any swap still waiting.
func (s *Store) Attach() (detach func()) {
	s.mu.Lock()
	s.attached = true
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.attached = false
		if s.pending != nil {
			s.commit()
		}
	}
}

// Latch is called by the scheduler when its layer cursor is back at 0. It
// commits a waiting swap and returns a copy of the front grid for the pass
// that is about to start.
func (s *Store) Latch() voxel.Grid {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.commit()
	}
	return s.grids[s.front]
}

// Pending reports whether a swap is waiting for the pass boundary.
func (s *Store) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Swaps returns the number of committed swaps.
func (s *Store) Swaps() uint64 { return s.swaps.Load() }

// commit flips identities and zeroes the new back grid. s.mu must be held.
func (s *Store) commit() {
	s.front = 1 - s.front
	s.grids[1-s.front].Clear(0)
	id := s.swaps.Add(1)
	if s.pending != nil {
		close(s.pending)
		s.pending = nil
	}
	if s.OnSwap != nil {
		s.OnSwap(&s.grids[s.front], id)
	}
}
