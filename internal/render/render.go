// Package render shades whole encoded tiles on the CPU.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/relief-shade/internal/logger"
	"github.com/Faultbox/relief-shade/internal/pool"
	"github.com/Faultbox/relief-shade/pkg/bandpack"
	rmath "github.com/Faultbox/relief-shade/pkg/math"
	"github.com/Faultbox/relief-shade/pkg/shading"
)

// ErrFrameMismatch is returned when a frame's buffers do not fit its tile
// shape or the evaluator's layout.
var ErrFrameMismatch = errors.New("frame does not match layout")

// Frame is one encoded tile ready for shading.
type Frame struct {
	Tile     *bandpack.Tile // shape only, samples are not read
	Buffers  []bandpack.PackedBuffer
	CellSize float64 // ground units per texel

	// Ortho, when set, is stretched over the gutter-inclusive grid.
	Ortho image.Image
}

// Renderer shades frames row by row on a worker pool.
type Renderer struct {
	pool *pool.Pool
	eval *shading.Evaluator
	log  *zap.Logger
}

// New creates a renderer. The pool is shared and not closed by the renderer.
func New(p *pool.Pool, ev *shading.Evaluator) *Renderer {
	return &Renderer{pool: p, eval: ev, log: logger.Named("render")}
}

func (r *Renderer) check(f *Frame) error {
	if f.Tile == nil || f.Tile.Width <= 0 || f.Tile.Height <= 0 || f.Tile.Gutter < 0 {
		return fmt.Errorf("%w: empty tile", ErrFrameMismatch)
	}
	plan := r.eval.Plan()
	if len(f.Buffers) != plan.Buffers() {
		return fmt.Errorf("%w: %d buffers for %d groups", ErrFrameMismatch, len(f.Buffers), plan.Buffers())
	}
	pixels := f.Tile.PixelCount()
	for i, b := range f.Buffers {
		if b.Bands != plan.Stride(i) || len(b.Data) != pixels*b.Bands {
			return fmt.Errorf("%w: buffer %d holds %d values of %d bands, expected %d of %d",
				ErrFrameMismatch, i, len(b.Data), b.Bands, pixels*plan.Stride(i), plan.Stride(i))
		}
	}
	return nil
}

// Render shades the logical area of f, gutter excluded, into a premultiplied
// RGBA image. No-data pixels are left fully transparent.
func (r *Renderer) Render(ctx context.Context, f *Frame, p shading.Params) (*image.RGBA, error) {
	if err := r.check(f); err != nil {
		return nil, err
	}
	start := time.Now()

	base := shading.NewTileSampler(f.Tile, f.Buffers, f.CellSize)
	if f.Ortho != nil {
		base.OrthoRGB = ResampleOrtho(f.Ortho, base.Width, base.Height)
	}

	w, h, g := f.Tile.Width, f.Tile.Height, f.Tile.Gutter
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var discarded atomic.Int64

	err := r.pool.Run(ctx, h, func(y int) error {
		s := *base
		row := img.Pix[y*img.Stride : y*img.Stride+4*w]
		for x := range w {
			res := r.eval.Shade(s.At(x+g, y+g), p)
			if res.Discard {
				discarded.Add(1)
				continue
			}
			row[4*x+0] = to8(res.R)
			row[4*x+1] = to8(res.G)
			row[4*x+2] = to8(res.B)
			row[4*x+3] = to8(res.A)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Debug("tile shaded",
		zap.Int("width", w),
		zap.Int("height", h),
		zap.Int("gutter", g),
		zap.Int64("discarded", discarded.Load()),
		zap.Bool("ortho", f.Ortho != nil),
		zap.Duration("elapsed", time.Since(start)),
	)
	return img, nil
}

func to8(v float64) uint8 {
	return uint8(math.Round(rmath.Clamp01(v) * 255))
}
