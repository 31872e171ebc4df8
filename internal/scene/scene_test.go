package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-voxelcube/internal/voxel"
)

func lit(t *testing.T, g *voxel.Grid, x, y, z int) bool {
	t.Helper()
	on, err := g.Get(x, y, z)
	require.NoError(t, err)
	return on
}

func TestLineEndpointsAndStepBound(t *testing.T) {
	cases := []struct {
		name string
		a, b [3]int
	}{
		{"axis x", [3]int{0, 0, 0}, [3]int{7, 0, 0}},
		{"diagonal", [3]int{0, 0, 0}, [3]int{7, 7, 7}},
		{"shallow", [3]int{0, 0, 0}, [3]int{7, 3, 1}},
		{"reverse", [3]int{6, 5, 4}, [3]int{1, 0, 2}},
		{"single", [3]int{3, 3, 3}, [3]int{3, 3, 3}},
		{"z only", [3]int{2, 2, 7}, [3]int{2, 2, 0}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var g voxel.Grid
			require.NoError(t, Line(&g, c.a[0], c.a[1], c.a[2], c.b[0], c.b[1], c.b[2], true))
			assert.True(t, lit(t, &g, c.a[0], c.a[1], c.a[2]), "start not lit")
			assert.True(t, lit(t, &g, c.b[0], c.b[1], c.b[2]), "end not lit")

			steps := max(abs(c.b[0]-c.a[0]), abs(c.b[1]-c.a[1]), abs(c.b[2]-c.a[2]))
			assert.LessOrEqual(t, g.Lit(), steps+1)
		})
	}
}

func TestLineSinglePoint(t *testing.T) {
	var g voxel.Grid
	require.NoError(t, Line(&g, 4, 1, 6, 4, 1, 6, true))
	assert.Equal(t, 1, g.Lit())
	assert.True(t, lit(t, &g, 4, 1, 6))
}

func TestLineRounding(t *testing.T) {
	// t=7, y increment 30/7=4: accumulator 0,4,8,12,16,20,24 rounds to
	// 0,0,1,1,2,2,2 before the exact endpoint at y=3.
	pts := linePoints(0, 0, 0, 7, 3, 0)
	want := [][3]int{
		{0, 0, 0}, {1, 0, 0}, {2, 1, 0}, {3, 1, 0},
		{4, 2, 0}, {5, 2, 0}, {6, 2, 0}, {7, 3, 0},
	}
	assert.Equal(t, want, pts)
}

func TestLineClear(t *testing.T) {
	var g voxel.Grid
	Fill(&g, true)
	require.NoError(t, Line(&g, 0, 0, 0, 7, 0, 0, false))
	assert.Equal(t, voxel.Row(0), g.Row(0, 0))
	assert.Equal(t, voxel.Rows*voxel.Size-8, g.Lit())
}

func TestOutOfRangeLeavesGridUntouched(t *testing.T) {
	var g voxel.Grid
	g.Clear(0x18)
	before := g

	assert.ErrorIs(t, Line(&g, 0, 0, 0, 8, 0, 0, true), voxel.ErrOutOfRange)
	assert.ErrorIs(t, Box(&g, -1, 0, 0, 3, 3, 3, true, true), voxel.ErrOutOfRange)
	assert.ErrorIs(t, Wall(&g, 0, 0, 7, 7, 0, 9, true, true), voxel.ErrOutOfRange)
	assert.ErrorIs(t, Column(&g, 0, 8, 0xFF), voxel.ErrOutOfRange)
	assert.ErrorIs(t, Point(&g, 0, 0, -1, true), voxel.ErrOutOfRange)
	assert.Equal(t, before, g)
}

func TestBoxFilled(t *testing.T) {
	var g voxel.Grid
	require.NoError(t, Box(&g, 5, 6, 3, 2, 1, 1, true, true))
	assert.Equal(t, 4*6*3, g.Lit())
	for z := 1; z <= 3; z++ {
		for y := 1; y <= 6; y++ {
			assert.Equal(t, voxel.Row(0x3C), g.Row(z, y))
		}
	}

	require.NoError(t, Box(&g, 2, 1, 1, 5, 6, 3, true, false))
	assert.Zero(t, g.Lit())
}

func TestBoxWireframe(t *testing.T) {
	var g voxel.Grid
	require.NoError(t, Box(&g, 0, 0, 0, 7, 7, 7, false, true))
	// 12 edges of 8 voxels share 8 corners: 12*8 - 8*2.
	assert.Equal(t, 80, g.Lit())
	assert.Equal(t, voxel.Row(0xFF), g.Row(0, 0))
	assert.Equal(t, voxel.Row(0x81), g.Row(0, 3))
	assert.Equal(t, voxel.Row(0x81), g.Row(4, 7))
	assert.Equal(t, voxel.Row(0), g.Row(4, 4))
}

func TestBoxDegenerate(t *testing.T) {
	var g voxel.Grid
	// Zero thickness in z and y.
	require.NoError(t, Box(&g, 1, 2, 3, 4, 2, 3, false, true))
	assert.Equal(t, voxel.Row(0x1E), g.Row(3, 2))
	assert.Equal(t, 4, g.Lit())

	g = voxel.Grid{}
	require.NoError(t, Box(&g, 3, 3, 3, 3, 3, 3, false, true))
	assert.Equal(t, 1, g.Lit())
}

func TestWall(t *testing.T) {
	var g voxel.Grid
	require.NoError(t, Wall(&g, 0, 0, 7, 0, 0, 7, true, true))
	for z := 0; z < voxel.Size; z++ {
		assert.Equal(t, voxel.Row(0xFF), g.Row(z, 0))
	}
	assert.Equal(t, 64, g.Lit())

	g = voxel.Grid{}
	require.NoError(t, Wall(&g, 0, 0, 7, 0, 7, 0, false, true))
	assert.Equal(t, voxel.Row(0xFF), g.Row(0, 0))
	assert.Equal(t, voxel.Row(0xFF), g.Row(7, 0))
	assert.Equal(t, voxel.Row(0x81), g.Row(3, 0))
	assert.Equal(t, 8+8+6+6, g.Lit())
}

func TestColumn(t *testing.T) {
	var g voxel.Grid
	require.NoError(t, Column(&g, 2, 5, 0x81))
	assert.True(t, lit(t, &g, 2, 5, 0))
	assert.True(t, lit(t, &g, 2, 5, 7))
	assert.False(t, lit(t, &g, 2, 5, 3))

	require.NoError(t, Column(&g, 2, 5, 0))
	assert.Zero(t, g.Lit())
}
