// Package voxel holds the 8x8x8 monochrome cube bitmap.
//
// A Grid is 8 layers (z) of 8 rows (y); each row is a Row bitset over x.
package voxel

import (
	"errors"
	"fmt"
)

// Size is the edge length of the cube.
const Size = 8

// Rows is the number of row bytes in a full grid, and so the payload length
// of one frame on the wire.
const Rows = Size * Size

// ErrOutOfRange is returned for any coordinate outside [0, Size).
var ErrOutOfRange = errors.New("voxel: coordinate out of range")

// Grid is indexed [z][y].
type Grid [Size][Size]Row

// InRange reports whether every value lies in [0, Size).
func InRange(v ...int) bool {
	for _, c := range v {
		if c < 0 || c >= Size {
			return false
		}
	}
	return true
}

// Check returns ErrOutOfRange, annotated with the point, if x, y or z lies
// outside the cube.
func Check(x, y, z int) error {
	if !InRange(x, y, z) {
		return fmt.Errorf("%w: (%d,%d,%d)", ErrOutOfRange, x, y, z)
	}
	return nil
}

// Set lights or clears voxel (x,y,z). On error the grid is untouched.
func (g *Grid) Set(x, y, z int, on bool) error {
	if err := Check(x, y, z); err != nil {
		return err
	}
	g[z][y] = g[z][y].With(x, on)
	return nil
}

// Get reports whether voxel (x,y,z) is lit.
func (g *Grid) Get(x, y, z int) (bool, error) {
	if err := Check(x, y, z); err != nil {
		return false, err
	}
	return g[z][y].Test(x), nil
}

// Clear sets every row of every layer to v.
func (g *Grid) Clear(v Row) {
	for z := range g {
		for y := range g[z] {
			g[z][y] = v
		}
	}
}

// Row returns row y of layer z. Callers index within the cube.
func (g *Grid) Row(z, y int) Row { return g[z][y] }

// SetRow replaces row y of layer z.
func (g *Grid) SetRow(z, y int, v Row) error {
	if !InRange(z, y) {
		return fmt.Errorf("%w: row (y=%d,z=%d)", ErrOutOfRange, y, z)
	}
	g[z][y] = v
	return nil
}

// Lit counts lit voxels.
func (g *Grid) Lit() int {
	n := 0
	for z := range g {
		for y := range g[z] {
			n += g[z][y].Count()
		}
	}
	return n
}

// Equal reports whether both grids hold the same bitmap.
func (g *Grid) Equal(o *Grid) bool { return *g == *o }

// Bytes returns the grid in wire order.
func (g *Grid) Bytes() []byte {
	out := make([]byte, Rows)
	for n := range out {
		z, y := RowIndex(n)
		out[n] = byte(g[z][y])
	}
	return out
}

// Load replaces the grid with a wire-order payload of exactly Rows bytes.
func (g *Grid) Load(b []byte) error {
	if len(b) != Rows {
		return fmt.Errorf("voxel: payload is %d bytes, want %d", len(b), Rows)
	}
	for n, v := range b {
		z, y := RowIndex(n)
		g[z][y] = Row(v)
	}
	return nil
}
