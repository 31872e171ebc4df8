package voxel

// RowIndex maps a wire-order byte index n in [0, Rows) to its layer and row:
// z = n/8, y = n%8.
func RowIndex(n int) (z, y int) {
	return n / Size, n % Size
}

// Offset is the inverse of RowIndex.
func Offset(z, y int) int {
	return z*Size + y
}

// Index maps x,y,z -> linear voxel index (0..511), x fastest.
func Index(x, y, z int) int {
	return Offset(z, y)*Size + x
}
