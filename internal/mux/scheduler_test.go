package mux

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-voxelcube/internal/frame"
	"github.com/coreman2200/funtimes-voxelcube/internal/port"
	"github.com/coreman2200/funtimes-voxelcube/internal/voxel"
)

type rig struct {
	x, y, z port.Recorder
	store   *frame.Store
	sched   *Scheduler
	holds   []time.Duration
}

func newRig(opts ...Option) *rig {
	r := &rig{store: frame.NewStore()}
	opts = append([]Option{WithDelay(func(d time.Duration) { r.holds = append(r.holds, d) })}, opts...)
	r.sched = New(r.store, port.Ports{X: &r.x, Y: &r.y, Z: &r.z}, opts...)
	return r
}

func (r *rig) reset() {
	r.x.Reset()
	r.y.Reset()
	r.z.Reset()
	r.holds = nil
}

func TestCursorCycle(t *testing.T) {
	r := newRig()
	var seen []int
	for i := 0; i < 17; i++ {
		seen = append(seen, r.sched.Cursor())
		_, err := r.sched.Fire()
		require.NoError(t, err)
	}
	want := []int{0, 1, 2, 3, 4, 5, 6, 7, 0, 1, 2, 3, 4, 5, 6, 7, 0}
	assert.Equal(t, want, seen)
	assert.Equal(t, 1, r.sched.Cursor())

	st := r.sched.Stats()
	assert.Equal(t, uint64(17), st.Firings)
	assert.Equal(t, uint64(2), st.Passes)
}

func TestFirePortSequence(t *testing.T) {
	r := newRig(WithSettle(20 * time.Microsecond))
	g := voxel.Grid{}
	for y := 0; y < voxel.Size; y++ {
		require.NoError(t, g.SetRow(0, y, voxel.Row(0x10+y)))
	}
	require.NoError(t, r.store.Publish(context.Background(), &g))

	_, err := r.sched.Fire()
	require.NoError(t, err)

	// Z: blank, then layer 0 enabled.
	assert.Equal(t, []byte{0x00, 0x01}, r.z.Writes())
	var wantX, wantY []byte
	for y := 0; y < voxel.Size; y++ {
		wantX = append(wantX, byte(0x10+y), 0x00)
		wantY = append(wantY, ^byte(1<<y), 0xFF)
	}
	assert.Equal(t, wantX, r.x.Writes())
	assert.Equal(t, wantY, r.y.Writes())
	assert.Len(t, r.holds, voxel.Size)
	assert.Equal(t, 20*time.Microsecond, r.holds[0])
}

func TestCustomWiring(t *testing.T) {
	w := port.Wiring{
		X: port.Polarity{},
		Y: port.Polarity{ActiveLow: true, Reverse: true},
		Z: port.Polarity{ActiveLow: true},
	}
	r := newRig(WithWiring(w))
	for i := 0; i < 3; i++ {
		_, err := r.sched.Fire()
		require.NoError(t, err)
	}
	z := r.z.Writes()
	assert.Equal(t, []byte{0xFF, 0xFE, 0xFF, 0xFD, 0xFF, 0xFB}, z)
	assert.Equal(t, byte(127), r.y.Writes()[0])
}

func TestSwapShowsOnlyAtPassBoundary(t *testing.T) {
	r := newRig()
	detach := r.store.Attach()
	defer detach()

	// Move the cursor into the middle of a pass.
	for i := 0; i < 3; i++ {
		_, err := r.sched.Fire()
		require.NoError(t, err)
	}

	r.store.Back().Clear(0xFF)
	done := make(chan error, 1)
	go func() { done <- r.store.Swap(context.Background()) }()
	require.Eventually(t, r.store.Pending, time.Second, time.Millisecond)

	// Layers 3..7 still show the old, empty frame.
	r.reset()
	for i := 3; i < voxel.Size; i++ {
		_, err := r.sched.Fire()
		require.NoError(t, err)
	}
	for _, v := range r.x.Writes() {
		assert.Equal(t, byte(0), v)
	}
	assert.True(t, r.store.Pending())

	// The next firing starts a pass and commits.
	r.reset()
	_, err := r.sched.Fire()
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, byte(0xFF), r.x.Writes()[0])
}

func TestPendingProbe(t *testing.T) {
	pending := false
	r := newRig(WithPending(func() bool { return pending }))
	p, err := r.sched.Fire()
	require.NoError(t, err)
	assert.False(t, p)

	pending = true
	p, err = r.sched.Refresh()
	require.NoError(t, err)
	assert.True(t, p)
	assert.Equal(t, 0, r.sched.Cursor())
	assert.Equal(t, uint64(8), r.sched.Stats().Firings)
}

func TestFireError(t *testing.T) {
	r := newRig()
	boom := errors.New("bus fault")
	r.y.Err = boom
	_, err := r.sched.Fire()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, r.sched.Cursor(), "a failed firing must not advance")
}

func TestRun(t *testing.T) {
	r := newRig()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.sched.Run(ctx, 200*time.Microsecond) }()

	require.Eventually(t, func() bool { return r.sched.Stats().Passes >= 2 }, 2*time.Second, time.Millisecond)

	// Swaps issued while running wait for a boundary and then complete.
	r.store.Back().Clear(0x01)
	require.NoError(t, r.store.Swap(context.Background()))

	cancel()
	require.NoError(t, <-errc)

	// Buses are blanked on exit.
	z, _ := r.z.Last()
	y, _ := r.y.Last()
	assert.Equal(t, byte(0x00), z)
	assert.Equal(t, byte(0xFF), y)

	assert.Error(t, r.sched.Run(context.Background(), 0))
}

func TestSetSettle(t *testing.T) {
	r := newRig()
	assert.Equal(t, DefaultSettle, r.sched.Settle())
	r.sched.SetSettle(-time.Second)
	assert.Zero(t, r.sched.Settle())
}

func TestHold(t *testing.T) {
	start := time.Now()
	hold(30 * time.Microsecond)
	hold(200 * time.Microsecond)
	hold(0)
	assert.GreaterOrEqual(t, time.Since(start), 230*time.Microsecond)
}
