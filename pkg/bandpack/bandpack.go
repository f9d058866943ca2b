// Package bandpack repacks raw per-pixel terrain bands into fixed-point and
// bit-packed integer buffers, one per layout group.
package bandpack

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/Faultbox/relief-shade/pkg/layout"
)

// DefaultFixedPointFactor scales continuous samples before quantisation.
const DefaultFixedPointFactor = 100_000

// PairBits is the width of each half of a packed pair.
const PairBits = 15

const pairMask = 1<<PairBits - 1

// Tile is one raster tile with its gutter. Samples are row-major over the
// gutter-inclusive grid, with the bands of a pixel stored consecutively.
type Tile struct {
	Width   int // logical width, without gutter
	Height  int // logical height, without gutter
	Gutter  int
	Samples []float32
}

// GridSize returns the gutter-inclusive grid dimensions.
func (t *Tile) GridSize() (w, h int) {
	return t.Width + 2*t.Gutter, t.Height + 2*t.Gutter
}

// PixelCount returns the number of pixels in the gutter-inclusive grid.
func (t *Tile) PixelCount() int {
	w, h := t.GridSize()
	return w * h
}

// Bands returns the number of samples per pixel, or 0 if the sample count
// does not divide evenly.
func (t *Tile) Bands() int {
	n := t.PixelCount()
	if n <= 0 || len(t.Samples)%n != 0 {
		return 0
	}
	return len(t.Samples) / n
}

// PackedBuffer is the packed output for one layout group.
type PackedBuffer struct {
	Semantic layout.Semantic
	Bands    int // elements per pixel
	Data     []uint32
}

// At returns the value of slot for the given pixel index.
func (b *PackedBuffer) At(pixel, slot int) uint32 {
	return b.Data[pixel*b.Bands+slot]
}

// Pixels returns the number of pixels stored in the buffer.
func (b *PackedBuffer) Pixels() int {
	if b.Bands == 0 {
		return 0
	}
	return len(b.Data) / b.Bands
}

// Quantize converts a continuous value to fixed point. Negative or
// out-of-range products wrap modulo 2^32.
func Quantize(v float32, factor float64) uint32 {
	return uint32(int64(math.Round(float64(v) * factor)))
}

// Dequantize converts a fixed-point value back to source units.
func Dequantize(u uint32, factor float64) float64 {
	return float64(u) / factor
}

// PackPair merges two 15-bit values into one slot. Wider inputs bleed into
// each other silently.
func PackPair(lo, hi uint32) uint32 {
	return lo + hi<<PairBits
}

// UnpackPair splits a slot built by PackPair.
func UnpackPair(v uint32) (lo, hi uint32) {
	return v & pairMask, v >> PairBits & pairMask
}

// pairOperand mirrors the integer coercion the tile producers apply before
// shifting: truncate toward zero, keep the low 32 bits.
func pairOperand(v float32) uint32 {
	return uint32(int64(v))
}

// Encode packs one tile according to plan. It allocates one buffer per group
// and shares no state with other calls, so tiles may be encoded concurrently
// with the same plan.
func Encode(t *Tile, plan *layout.Plan, factor float64) ([]PackedBuffer, error) {
	if t.Width <= 0 || t.Height <= 0 || t.Gutter < 0 {
		return nil, fmt.Errorf("%w: tile size %dx%d gutter %d", layout.ErrConfiguration, t.Width, t.Height, t.Gutter)
	}
	pixels := t.PixelCount()
	if len(t.Samples)%pixels != 0 {
		return nil, fmt.Errorf("%w: %d samples for %d pixels", layout.ErrConfiguration, len(t.Samples), pixels)
	}
	bands := len(t.Samples) / pixels
	if bands != plan.SourceBandCount() {
		return nil, fmt.Errorf("%w: tile has %d bands, layout consumes %d", layout.ErrConfiguration, bands, plan.SourceBandCount())
	}

	out := make([]PackedBuffer, plan.Buffers())
	for i := range out {
		g := plan.Group(i)
		out[i] = PackedBuffer{
			Semantic: g.Type,
			Bands:    g.Bands,
			Data:     make([]uint32, pixels*g.Bands),
		}
	}

	for p := range pixels {
		src := t.Samples[p*bands : (p+1)*bands]
		for b := 0; b < bands; b++ {
			d := plan.Destination(b)
			buf := &out[d.Buffer]
			off := p*buf.Bands + d.Slot
			if plan.Group(d.Buffer).Packed {
				buf.Data[off] = PackPair(pairOperand(src[b]), pairOperand(src[b+1]))
				b++
				continue
			}
			buf.Data[off] = Quantize(src[b], factor)
		}
	}
	return out, nil
}

// PixelData returns the source bands of the pixel under a render pixel, where
// the tile is displayed at renderW x renderH.
func PixelData(t *Tile, renderW, renderH, col, row int) []float32 {
	bands := t.Bands()
	if bands == 0 || renderW <= 0 || renderH <= 0 {
		return nil
	}
	gridW, _ := t.GridSize()
	srcCol := t.Gutter + t.Width*col/renderW
	srcRow := t.Gutter + t.Height*row/renderH
	off := bands * (srcRow*gridW + srcCol)
	if off < 0 || off+bands > len(t.Samples) {
		return nil
	}
	return append([]float32(nil), t.Samples[off:off+bands]...)
}

// ReadRawTile reads a little-endian float32 sample dump of the given shape.
func ReadRawTile(r io.Reader, width, height, gutter, bands int) (*Tile, error) {
	t := &Tile{Width: width, Height: height, Gutter: gutter}
	if width <= 0 || height <= 0 || gutter < 0 || bands <= 0 {
		return nil, fmt.Errorf("%w: tile shape %dx%d+%d, %d bands", layout.ErrConfiguration, width, height, gutter, bands)
	}
	t.Samples = make([]float32, t.PixelCount()*bands)
	if err := binary.Read(r, binary.LittleEndian, t.Samples); err != nil {
		return nil, fmt.Errorf("reading samples: %w", err)
	}
	return t, nil
}
