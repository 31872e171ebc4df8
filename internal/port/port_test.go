package port

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/coreman2200/funtimes-voxelcube/internal/voxel"
)

func TestDefaultWiringPatterns(t *testing.T) {
	w := DefaultWiring()
	for i := 0; i < 8; i++ {
		assert.Equal(t, ^byte(1<<i), w.Y.Select(i), "row select %d", i)
		assert.Equal(t, byte(1<<i), w.Z.Select(i), "layer select %d", i)
	}
	assert.Equal(t, byte(0xFF), w.Y.Blank())
	assert.Equal(t, byte(0x00), w.Z.Blank())
	assert.Equal(t, byte(0x00), w.X.Blank())
	assert.Equal(t, byte(0xA7), w.X.Encode(0xA7))
}

func TestReversedActiveLow(t *testing.T) {
	// The alternative driver board: 127, 191, ... 254 for rows 0..7.
	p := Polarity{ActiveLow: true, Reverse: true}
	want := []byte{127, 191, 223, 239, 247, 251, 253, 254}
	for y, v := range want {
		assert.Equal(t, v, p.Select(y))
	}
}

func TestPortsBlank(t *testing.T) {
	var x, y, z Recorder
	ps := Ports{X: &x, Y: &y, Z: &z}
	require.NoError(t, ps.Blank(DefaultWiring()))
	assert.Equal(t, []byte{0x00}, x.Writes())
	assert.Equal(t, []byte{0xFF}, y.Writes())
	assert.Equal(t, []byte{0x00}, z.Writes())

	boom := errors.New("boom")
	z.Err = boom
	assert.ErrorIs(t, ps.Blank(DefaultWiring()), boom)
}

type haltPort struct {
	Recorder
	halted int
	err    error
}

func (h *haltPort) Halt() error {
	h.halted++
	return h.err
}

func TestPortsHalt(t *testing.T) {
	var x Recorder
	y, z := &haltPort{}, &haltPort{}
	ps := Ports{X: &x, Y: y, Z: z}
	require.NoError(t, ps.Halt())
	assert.Equal(t, 1, y.halted)
	assert.Equal(t, 1, z.halted)

	boom := errors.New("boom")
	z.err = boom
	assert.ErrorIs(t, ps.Halt(), boom)
	assert.Equal(t, 2, y.halted, "a failing bus does not stop the others")

	_, outs := newPins()
	banks := Ports{X: NewBank(outs), Y: NewBank(outs), Z: Discard{}}
	assert.NoError(t, banks.Halt())
}

func newPins() ([8]*gpiotest.Pin, [8]gpio.PinOut) {
	var fakes [8]*gpiotest.Pin
	var outs [8]gpio.PinOut
	for i := range fakes {
		fakes[i] = &gpiotest.Pin{N: "GPIO" + string(rune('0'+i)), Num: i}
		outs[i] = fakes[i]
	}
	return fakes, outs
}

func TestBankDrivesLevels(t *testing.T) {
	fakes, outs := newPins()
	b := NewBank(outs)

	for _, v := range []byte{0x00, 0xA5, 0xFF, 0x01, 0x80} {
		require.NoError(t, b.Out(v))
		for i, p := range fakes {
			assert.Equal(t, gpio.Level(v&(1<<i) != 0), p.Read(), "value %#x pin %d", v, i)
		}
	}
	require.NoError(t, b.Halt())
}

func TestRecorder(t *testing.T) {
	var r Recorder
	_, ok := r.Last()
	assert.False(t, ok)
	require.NoError(t, r.Out(1))
	require.NoError(t, r.Out(2))
	v, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, byte(2), v)
	r.Reset()
	assert.Empty(t, r.Writes())
}

type drawer struct {
	last   *image.Gray
	halted bool
}

func (d *drawer) String() string          { return "drawer" }
func (d *drawer) Halt() error             { d.halted = true; return nil }
func (d *drawer) ColorModel() color.Model { return color.GrayModel }
func (d *drawer) Bounds() image.Rectangle { return image.Rect(0, 0, voxel.Rows, 1) }
func (d *drawer) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	d.last = src.(*image.Gray)
	return nil
}

func TestConsoleShow(t *testing.T) {
	d := &drawer{}
	c := NewConsoleOn(d)

	var g voxel.Grid
	require.NoError(t, g.SetRow(1, 2, 0xFF))
	require.NoError(t, g.SetRow(7, 7, 0x0F))
	require.NoError(t, c.Show(&g))

	assert.Equal(t, uint8(255), d.last.GrayAt(voxel.Offset(1, 2), 0).Y)
	assert.Equal(t, uint8(127), d.last.GrayAt(voxel.Offset(7, 7), 0).Y)
	assert.Equal(t, uint8(0), d.last.GrayAt(0, 0).Y)

	require.NoError(t, c.Halt())
	assert.True(t, d.halted)
}
