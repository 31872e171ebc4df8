package voxel

import "math/bits"

// Row is one 8-voxel row of a layer. Bit x holds voxel x: bit 0 is x=0 and
// bit 7 is x=7. The driver hardware latches this byte as-is onto the X port,
// so the mapping is a wire contract and must not change.
type Row uint8

// Test reports whether voxel x is lit. Out-of-range x reports false.
func (r Row) Test(x int) bool {
	if x < 0 || x >= Size {
		return false
	}
	return r&(1<<uint(x)) != 0
}

// With returns r with voxel x set to on. Out-of-range x returns r unchanged.
func (r Row) With(x int, on bool) Row {
	if x < 0 || x >= Size {
		return r
	}
	if on {
		return r | 1<<uint(x)
	}
	return r &^ (1 << uint(x))
}

func (r Row) Set(x int) Row   { return r.With(x, true) }
func (r Row) Clear(x int) Row { return r.With(x, false) }

// Count returns the number of lit voxels.
func (r Row) Count() int { return bits.OnesCount8(uint8(r)) }

// Each calls fn for every lit voxel in increasing x order.
func (r Row) Each(fn func(x int)) {
	for x := 0; x < Size; x++ {
		if r&(1<<uint(x)) != 0 {
			fn(x)
		}
	}
}

// Span returns a row with voxels lo..hi (inclusive) lit. Bounds are clamped
// to the row and may be given in either order.
func Span(lo, hi int) Row {
	if lo > hi {
		lo, hi = hi, lo
	}
	lo = max(lo, 0)
	hi = min(hi, Size-1)
	var r Row
	for x := lo; x <= hi; x++ {
		r |= 1 << uint(x)
	}
	return r
}
