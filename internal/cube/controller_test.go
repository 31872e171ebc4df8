package cube

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-voxelcube/internal/diagnostics"
	"github.com/coreman2200/funtimes-voxelcube/internal/ingest"
	"github.com/coreman2200/funtimes-voxelcube/internal/port"
	"github.com/coreman2200/funtimes-voxelcube/internal/sequence"
	"github.com/coreman2200/funtimes-voxelcube/internal/uart"
	"github.com/coreman2200/funtimes-voxelcube/internal/voxel"
)

type buses struct {
	x, y, z port.Recorder
}

func (b *buses) ports() port.Ports { return port.Ports{X: &b.x, Y: &b.y, Z: &b.z} }

func frameBytes(fn func(n int) byte) []byte {
	out := []byte{ingest.Start}
	for n := 0; n < voxel.Rows; n++ {
		out = append(out, fn(n))
	}
	return out
}

func start(t *testing.T, c *Controller) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-errc:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatalf("controller did not stop")
		}
	}
}

func TestSerialFrameEndToEnd(t *testing.T) {
	var b buses
	link := uart.NewMockPort()
	var diags []string
	diagc := make(chan diagnostics.Diagnostic, 64)
	c, err := New(b.ports(), link, Options{
		TXCapacity: 256,
		Period:     200 * time.Microsecond,
		Wiring:     port.DefaultWiring(),
		Echo:       true,
		Announce:   true,
		Log:        zerolog.Nop(),
		Diag: func(d diagnostics.Diagnostic) {
			if d.Code == diagnostics.CodeRefreshLate {
				return
			}
			select {
			case diagc <- d:
			default:
			}
		},
	})
	require.NoError(t, err)
	stop := start(t, c)

	data := frameBytes(func(n int) byte { return byte(n + 1) })
	link.Feed(data)
	require.Eventually(t, func() bool { return c.Protocol.Stats().Frames == 1 }, 2*time.Second, time.Millisecond)

	assert.True(t, c.SerialMode())
	front := c.Store.Front()
	for n := 0; n < voxel.Rows; n++ {
		z, y := voxel.RowIndex(n)
		assert.Equal(t, voxel.Row(n+1), front.Row(z, y))
	}
	assert.Equal(t, uint64(1), c.Store.Swaps(), "exactly one swap")

	require.Eventually(t, func() bool {
		w := link.Written()
		return len(w) == len("started\n")+len(data)+len("re-paint\n")
	}, 2*time.Second, time.Millisecond)
	w := link.Written()
	assert.Equal(t, "started\n", string(w[:8]))
	assert.Equal(t, data, w[8:8+len(data)])
	assert.Equal(t, "re-paint\n", string(w[8+len(data):]))

	st := c.Stats()
	assert.Equal(t, "serial", st.Mode)
	assert.NotZero(t, st.Mux.Firings)

	stop()
	close(diagc)
	for d := range diagc {
		diags = append(diags, d.Code)
	}
	assert.Contains(t, diags, diagnostics.CodeSerialMode)

	z, _ := b.z.Last()
	assert.Equal(t, byte(0), z, "layer select blank after shutdown")
	assert.True(t, link.Closed())
}

func TestIdleUntilSerial(t *testing.T) {
	var b buses
	c, err := New(b.ports(), nil, Options{
		Period:   200 * time.Microsecond,
		IdleStep: time.Millisecond,
		Idle: &sequence.Program{
			Loop:  true,
			Clips: []sequence.Clip{{Pattern: "plane_z", DurationS: 60}},
		},
		Log: zerolog.Nop(),
	})
	require.NoError(t, err)
	stop := start(t, c)
	defer stop()

	require.Eventually(t, func() bool { return c.Store.Swaps() >= 5 }, 2*time.Second, time.Millisecond)
	assert.False(t, c.SerialMode())
	assert.Equal(t, "idle", c.Stats().Mode)
	front := c.Store.Front()
	assert.Equal(t, 64, front.Lit(), "idle frames are whole planes")

	// Any byte, even noise, ends idle mode for good.
	require.True(t, c.RX.Push(0x00))
	require.Eventually(t, c.SerialMode, 2*time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	swaps := c.Store.Swaps()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, swaps, c.Store.Swaps(), "no more idle frames")
	assert.ErrorIs(t, c.SetPattern("rain"), ErrSerialMode)
}

func TestPollWithoutScheduler(t *testing.T) {
	var b buses
	c, err := New(b.ports(), nil, Options{Period: time.Millisecond, Log: zerolog.Nop()})
	require.NoError(t, err)

	// Noise, then a frame whose payload contains the start byte.
	in := append([]byte{0x13, 0x37}, frameBytes(func(n int) byte { return ingest.Start })...)
	for _, v := range in {
		require.True(t, c.RX.Push(v))
		require.NoError(t, c.Poll(context.Background()))
	}
	assert.Equal(t, uint64(1), c.Store.Swaps())
	assert.Equal(t, uint64(2), c.Protocol.Stats().Noise)
	front := c.Store.Front()
	assert.Equal(t, voxel.Row(ingest.Start), front.Row(3, 3))
}

func TestSetPatternAndIdleStep(t *testing.T) {
	var b buses
	c, err := New(b.ports(), nil, Options{Period: time.Millisecond, Log: zerolog.Nop()})
	require.NoError(t, err)

	require.Error(t, c.SetPattern("fireworks"))
	require.NoError(t, c.SetPattern("plane_x"))
	for i := 0; i < 9; i++ {
		require.NoError(t, c.IdleStep(context.Background()))
	}
	// Eight planes, then the pattern starts over at x=0.
	front := c.Store.Front()
	assert.Equal(t, voxel.Row(0x01), front.Row(2, 2))
	assert.Equal(t, uint64(9), c.Store.Swaps())
}

func TestNewValidates(t *testing.T) {
	var b buses
	_, err := New(b.ports(), nil, Options{})
	assert.Error(t, err)
	_, err = New(b.ports(), nil, Options{Period: time.Millisecond, RXCapacity: 100})
	assert.Error(t, err)
	_, err = New(b.ports(), nil, Options{Period: time.Millisecond, Idle: &sequence.Program{}})
	assert.Error(t, err)
}
