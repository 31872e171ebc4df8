// Package pattern generates idle and test content for the cube.
package pattern

import (
	"fmt"

	"github.com/coreman2200/funtimes-voxelcube/internal/scene"
	"github.com/coreman2200/funtimes-voxelcube/internal/voxel"
)

type Kind string

const (
	None       Kind = ""
	IndexSweep Kind = "index_sweep"
	PlaneZ     Kind = "plane_z"
	PlaneX     Kind = "plane_x"
	BoxGrow    Kind = "box_grow"
	Diagonal   Kind = "diagonal"
	Rain       Kind = "rain"
)

// Kinds lists every pattern Runner knows.
var Kinds = []Kind{IndexSweep, PlaneZ, PlaneX, BoxGrow, Diagonal, Rain}

// Parse maps a name to a Kind.
func Parse(name string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == name {
			return k, nil
		}
	}
	return None, fmt.Errorf("pattern: unknown pattern %q", name)
}

type Plan struct {
	Kind Kind
	// Seed drives Rain. Equal seeds give equal animations.
	Seed uint32
}

type Runner struct {
	plan Plan
	step int
	rng  uint32
	rain voxel.Grid
}

func NewRunner(plan Plan) *Runner {
	r := &Runner{plan: plan}
	r.Reset()
	return r
}

func (r *Runner) Kind() Kind { return r.plan.Kind }

// Reset rewinds to the first step.
func (r *Runner) Reset() {
	r.step = 0
	r.rng = r.plan.Seed | 1
	r.rain = voxel.Grid{}
}

// Len is the number of steps in one run; 0 means endless.
func (r *Runner) Len() int {
	switch r.plan.Kind {
	case IndexSweep:
		return voxel.Rows * voxel.Size
	case PlaneZ, PlaneX, BoxGrow, Diagonal:
		return voxel.Size
	}
	return 0
}

// Step draws the next frame into g; returns false when complete.
func (r *Runner) Step(g *voxel.Grid) bool {
	if n := r.Len(); n > 0 && r.step >= n {
		return false
	}
	if r.plan.Kind != Rain {
		g.Clear(0)
	}

	switch r.plan.Kind {
	case IndexSweep:
		i := r.step
		_ = g.Set(i%voxel.Size, i/voxel.Size%voxel.Size, i/voxel.Rows, true)
	case PlaneZ:
		_ = scene.Box(g, 0, 0, r.step, 7, 7, r.step, true, true)
	case PlaneX:
		_ = scene.Box(g, r.step, 0, 0, r.step, 7, 7, true, true)
	case BoxGrow:
		// Out from the centre for four steps, then back in.
		k := r.step
		if k >= voxel.Size/2 {
			k = voxel.Size - 1 - k
		}
		lo, hi := 3-k, 4+k
		_ = scene.Box(g, lo, lo, lo, hi, hi, hi, false, true)
	case Diagonal:
		// A full height wall turning about the z axis.
		s := r.step
		_ = scene.Wall(g, 0, s, 7, 7-s, 0, 7, true, true)
	case Rain:
		r.fall()
		*g = r.rain
	default:
		return false
	}
	r.step++
	return true
}

// fall moves every drop one layer down and spawns new drops on the top layer.
func (r *Runner) fall() {
	for z := 0; z < voxel.Size-1; z++ {
		r.rain[z] = r.rain[z+1]
	}
	r.rain[voxel.Size-1] = [voxel.Size]voxel.Row{}
	for i := 0; i < 2; i++ {
		v := r.next()
		x, y := int(v%voxel.Size), int(v/voxel.Size%voxel.Size)
		_ = r.rain.Set(x, y, voxel.Size-1, true)
	}
}

// next is xorshift32.
func (r *Runner) next() uint32 {
	x := r.rng
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	r.rng = x
	return x
}
