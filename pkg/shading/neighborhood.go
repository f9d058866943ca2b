package shading

import (
	"math"

	"github.com/Faultbox/relief-shade/pkg/bandpack"
)

// Borders flags the tile edges the current texel lies on. Derivatives use a
// one-sided difference on a flagged edge.
type Borders struct {
	Left, Right, Top, Bottom bool
}

// Neighborhood gives read access to packed samples around the pixel being
// shaded. Offsets are in texels and may be fractional.
type Neighborhood interface {
	Sample(buffer, slot int, dx, dy float64) uint32
	Borders() Borders
	// Resolution is the ground distance covered by one texel.
	Resolution() float64
}

// OrthoSource is implemented by neighborhoods that carry an ortho-image
// colour for the current pixel.
type OrthoSource interface {
	Ortho() (rgb [3]float64, ok bool)
}

// TileSampler is a Neighborhood over the packed buffers of one encoded tile.
// Addressing is nearest-texel with clamp-to-edge over the gutter-inclusive
// grid. Position it with At before shading.
type TileSampler struct {
	Buffers []bandpack.PackedBuffer
	Width   int // gutter-inclusive
	Height  int // gutter-inclusive
	Res     float64

	// OrthoRGB, when set, holds one colour per grid pixel in [0, 1].
	OrthoRGB [][3]float64

	x, y int
}

// NewTileSampler wraps the packed buffers of a tile.
func NewTileSampler(t *bandpack.Tile, bufs []bandpack.PackedBuffer, resolution float64) *TileSampler {
	w, h := t.GridSize()
	return &TileSampler{Buffers: bufs, Width: w, Height: h, Res: resolution}
}

// At moves the sampler to grid pixel (x, y).
func (s *TileSampler) At(x, y int) *TileSampler {
	s.x, s.y = x, y
	return s
}

func (s *TileSampler) texel(dx, dy float64) int {
	tx := clampIndex(int(math.Floor(float64(s.x)+dx+0.5)), s.Width)
	ty := clampIndex(int(math.Floor(float64(s.y)+dy+0.5)), s.Height)
	return ty*s.Width + tx
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Sample implements Neighborhood.
func (s *TileSampler) Sample(buffer, slot int, dx, dy float64) uint32 {
	return s.Buffers[buffer].At(s.texel(dx, dy), slot)
}

// Borders implements Neighborhood.
func (s *TileSampler) Borders() Borders {
	return Borders{
		Left:   s.x == 0,
		Right:  s.x == s.Width-1,
		Top:    s.y == 0,
		Bottom: s.y == s.Height-1,
	}
}

// Resolution implements Neighborhood.
func (s *TileSampler) Resolution() float64 {
	if s.Res <= 0 {
		return 1
	}
	return s.Res
}

// Ortho implements OrthoSource.
func (s *TileSampler) Ortho() ([3]float64, bool) {
	if len(s.OrthoRGB) != s.Width*s.Height {
		return [3]float64{}, false
	}
	return s.OrthoRGB[s.y*s.Width+s.x], true
}
