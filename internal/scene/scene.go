// Package scene has the drawing primitives used to compose cube content.
//
// Every primitive works on a caller-owned *voxel.Grid (normally the back
// buffer), does no I/O and never sleeps. Coordinates are validated before
// anything is written, so a failed call leaves the grid unchanged.
package scene

import (
	"fmt"

	"github.com/coreman2200/funtimes-voxelcube/internal/voxel"
)

// Point lights or clears a single voxel.
func Point(g *voxel.Grid, x, y, z int, on bool) error {
	return g.Set(x, y, z, on)
}

// Fill lights or clears every voxel.
func Fill(g *voxel.Grid, on bool) {
	if on {
		g.Clear(0xFF)
		return
	}
	g.Clear(0)
}

// Line draws a straight line between two voxels with a fixed point DDA
// scaled by 10. Both endpoints are always drawn and at most t+1 voxels are
// touched, where t is the largest per-axis distance.
func Line(g *voxel.Grid, x1, y1, z1, x2, y2, z2 int, on bool) error {
	if err := checkPair(x1, y1, z1, x2, y2, z2); err != nil {
		return err
	}
	for _, p := range linePoints(x1, y1, z1, x2, y2, z2) {
		g[p[2]][p[1]] = g[p[2]][p[1]].With(p[0], on)
	}
	return nil
}

// linePoints returns the voxels Line visits, in drawing order. The endpoint
// is always last.
func linePoints(x1, y1, z1, x2, y2, z2 int) [][3]int {
	dx, dy, dz := x2-x1, y2-y1, z2-z1
	t := max(abs(dx), abs(dy), abs(dz))
	pts := make([][3]int, 0, t+1)
	if t > 0 {
		ix, iy, iz := dx*10/t, dy*10/t, dz*10/t
		ax, ay, az := x1*10, y1*10, z1*10
		for i := 0; i < t; i++ {
			pts = append(pts, [3]int{round10(ax), round10(ay), round10(az)})
			ax += ix
			ay += iy
			az += iz
		}
	}
	return append(pts, [3]int{x2, y2, z2})
}

// Box draws the axis-aligned box spanned by two corners, in any order. With
// fill the whole volume is painted, otherwise only its 12 edges.
func Box(g *voxel.Grid, x1, y1, z1, x2, y2, z2 int, fill, on bool) error {
	if err := checkPair(x1, y1, z1, x2, y2, z2); err != nil {
		return err
	}
	x1, x2 = order(x1, x2)
	y1, y2 = order(y1, y2)
	z1, z2 = order(z1, z2)

	paint := func(z, y int, mask voxel.Row) {
		if on {
			g[z][y] |= mask
		} else {
			g[z][y] &^= mask
		}
	}

	span := voxel.Span(x1, x2)
	if fill {
		for z := z1; z <= z2; z++ {
			for y := y1; y <= y2; y++ {
				paint(z, y, span)
			}
		}
		return nil
	}

	// x edges are whole rows, y and z edges touch only the two end columns.
	for _, z := range ends(z1, z2) {
		for _, y := range ends(y1, y2) {
			paint(z, y, span)
		}
	}
	cols := voxel.Row(1<<uint(x1) | 1<<uint(x2))
	for _, z := range ends(z1, z2) {
		for y := y1; y <= y2; y++ {
			paint(z, y, cols)
		}
	}
	for _, y := range ends(y1, y2) {
		for z := z1; z <= z2; z++ {
			paint(z, y, cols)
		}
	}
	return nil
}

// Wall draws the vertical plane standing on the xy line (x1,y1)-(x2,y2) and
// spanning layers z1..z2. Unfilled walls are drawn as their four outline
// lines.
func Wall(g *voxel.Grid, x1, y1, x2, y2, z1, z2 int, fill, on bool) error {
	if err := checkPair(x1, y1, z1, x2, y2, z2); err != nil {
		return err
	}
	z1, z2 = order(z1, z2)
	if fill {
		for z := z1; z <= z2; z++ {
			// Cannot fail, all coordinates were checked above.
			_ = Line(g, x1, y1, z, x2, y2, z, on)
		}
		return nil
	}
	_ = Line(g, x1, y1, z1, x2, y2, z1, on)
	_ = Line(g, x1, y1, z2, x2, y2, z2, on)
	_ = Line(g, x2, y2, z1, x2, y2, z2, on)
	_ = Line(g, x1, y1, z1, x1, y1, z2, on)
	return nil
}

// Column sets the vertical column at (x,y) from a bit pattern: bit i of bits
// is voxel (x,y,i).
func Column(g *voxel.Grid, x, y int, bits voxel.Row) error {
	if err := voxel.Check(x, y, 0); err != nil {
		return err
	}
	for z := 0; z < voxel.Size; z++ {
		g[z][y] = g[z][y].With(x, bits.Test(z))
	}
	return nil
}

func checkPair(x1, y1, z1, x2, y2, z2 int) error {
	if err := voxel.Check(x1, y1, z1); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if err := voxel.Check(x2, y2, z2); err != nil {
		return fmt.Errorf("end: %w", err)
	}
	return nil
}

func ends(a, b int) []int {
	if a == b {
		return []int{a}
	}
	return []int{a, b}
}

func order(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

func round10(v int) int { return (v + 5) / 10 }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
