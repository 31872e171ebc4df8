package port

import (
	"image"
	"image/color"

	"periph.io/x/conn/v3/display"
	"periph.io/x/devices/v3/screen1d"

	"github.com/coreman2200/funtimes-voxelcube/internal/voxel"
)

// Console previews frames on a terminal line, one pixel per row byte in wire
// order. A pixel's brightness is the number of lit voxels in its row.
type Console struct {
	dev display.Drawer
	img *image.Gray
}

// NewConsole writes to the process terminal.
func NewConsole() *Console {
	return NewConsoleOn(screen1d.New(&screen1d.Opts{X: voxel.Rows}))
}

// NewConsoleOn draws to any display.Drawer at least voxel.Rows pixels wide.
func NewConsoleOn(dev display.Drawer) *Console {
	return &Console{dev: dev, img: image.NewGray(image.Rect(0, 0, voxel.Rows, 1))}
}

// Show draws g.
func (c *Console) Show(g *voxel.Grid) error {
	for n := 0; n < voxel.Rows; n++ {
		z, y := voxel.RowIndex(n)
		cnt := g[z][y].Count()
		c.img.SetGray(n, 0, color.Gray{Y: uint8(cnt * 255 / voxel.Size)})
	}
	return c.dev.Draw(c.dev.Bounds(), c.img, image.Point{})
}

func (c *Console) Halt() error { return c.dev.Halt() }
