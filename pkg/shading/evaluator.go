// Package shading evaluates shaded-relief colour for one pixel from packed
// terrain buffers and a resolved style.
//
// Every function here is pure: the same samples and parameters always give
// the same result, so pixels can be shaded in any order and in parallel.
package shading

import (
	"fmt"
	"math"

	"github.com/Faultbox/relief-shade/pkg/bandpack"
	"github.com/Faultbox/relief-shade/pkg/layout"
	rmath "github.com/Faultbox/relief-shade/pkg/math"
	"github.com/Faultbox/relief-shade/pkg/shadowcodec"
)

var (
	blur3 = normalize([]float64{0.2, 0.5, 0.2})
	blur5 = normalize([]float64{0.15, 0.2, 0.3, 0.2, 0.15})

	// 3x3 Laplacian of Gaussian, row-major in (x, y), shifted to sum to zero.
	logKernel = zeroSum([9]float64{
		-0.2458957, 0.0573696, -0.2458957,
		0.0573696, 0.7541042, 0.0573696,
		-0.2458957, 0.0573696, -0.2458957,
	})
)

func normalize(w []float64) []float64 {
	var sum float64
	for _, v := range w {
		sum += v
	}
	out := make([]float64, len(w))
	for i, v := range w {
		out[i] = v / sum
	}
	return out
}

func zeroSum(k [9]float64) [9]float64 {
	var sum float64
	for _, v := range k {
		sum += v
	}
	for i := range k {
		k[i] -= sum / 9
	}
	return k
}

// ShadowKernel returns the normalised 1-D shadow blur weights for 3 or 5 taps.
func ShadowKernel(taps int) []float64 {
	if taps == 5 {
		return append([]float64(nil), blur5...)
	}
	return append([]float64(nil), blur3...)
}

// LaplacianKernel returns the zero-sum 3x3 kernel, indexed (x+1)*3 + (y+1).
func LaplacianKernel() [9]float64 { return logKernel }

// Result is the shaded colour of one pixel. Channels are premultiplied by
// alpha and lie in [0, 1].
type Result struct {
	R, G, B, A float64
	Grey       float64 // colour-corrected intensity before tinting
	Discard    bool    // no-data pixel
}

// Evaluator shades pixels for one band layout. It is immutable once built.
type Evaluator struct {
	factor    float64
	scheme    shadowcodec.Scheme
	plan      *layout.Plan
	elevation layout.Slot
	occlusion layout.Slot
	hasOcc    bool
}

// NewEvaluator resolves where elevation, occlusion and shadow live in plan.
func NewEvaluator(plan *layout.Plan, factor float64, scheme shadowcodec.Scheme) (*Evaluator, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("%w: fixed-point factor %v", layout.ErrConfiguration, factor)
	}
	if err := bandpack.Validate(plan, scheme); err != nil {
		return nil, err
	}
	elev, _ := plan.Locate(layout.ElevationOcclusion, 0)
	occ, hasOcc := plan.Locate(layout.ElevationOcclusion, 1)
	return &Evaluator{
		factor:    factor,
		scheme:    scheme,
		plan:      plan,
		elevation: elev,
		occlusion: occ,
		hasOcc:    hasOcc,
	}, nil
}

// Plan returns the layout the evaluator reads from.
func (e *Evaluator) Plan() *layout.Plan { return e.plan }

// ElevationAt returns the elevation at a texel offset, in source units.
func (e *Evaluator) ElevationAt(n Neighborhood, dx, dy float64) float64 {
	return bandpack.Dequantize(n.Sample(e.elevation.Buffer, e.elevation.Slot, dx, dy), e.factor)
}

// OcclusionAt returns the ambient occlusion of the current texel. Layouts
// without an occlusion band report an unoccluded 1.
func (e *Evaluator) OcclusionAt(n Neighborhood) float64 {
	if !e.hasOcc {
		return 1
	}
	return bandpack.Dequantize(n.Sample(e.occlusion.Buffer, e.occlusion.Slot, 0, 0), e.factor)
}

// SurfaceDerivative returns (dz/dx, dz/dy) per ground unit. Central
// differences are used inside the tile and one-sided differences on its edges.
func (e *Evaluator) SurfaceDerivative(n Neighborhood) rmath.Vec2 {
	b := n.Borders()
	inv := 1 / n.Resolution()

	axis := func(lo, hi bool, sample func(o float64) float64) float64 {
		minOff, maxOff := -1.0, 1.0
		if lo {
			minOff = 0
		}
		if hi {
			maxOff = 0
		}
		span := maxOff - minOff
		if span == 0 {
			return 0
		}
		return (sample(maxOff) - sample(minOff)) * inv / span
	}

	dzdx := axis(b.Left, b.Right, func(o float64) float64 { return e.ElevationAt(n, o, 0) })
	dzdy := axis(b.Top, b.Bottom, func(o float64) float64 { return e.ElevationAt(n, 0, o) })
	return rmath.Vec2{X: dzdx, Y: dzdy}
}

// ShadowFactor compares the sun elevation against the stored horizon angle
// for the sun's direction at a texel offset: 0 is shadowed, 1 is lit, with a
// one-step soft transition.
func (e *Evaluator) ShadowFactor(n Neighborhood, p Params, dx, dy float64) float64 {
	if e.scheme.Directions <= 0 {
		return 1
	}
	bucket, word := shadowcodec.Locate(p.Azimuth, e.scheme.Directions)
	slot, ok := e.plan.ShadowSlot(word)
	if !ok {
		return 1
	}
	w := shadowcodec.ShadowWord(n.Sample(slot.Buffer, slot.Slot, dx, dy))
	sun := shadowcodec.ElevationBucket(p.Elevation, e.scheme.ElevationSteps)
	return rmath.Clamp(sun-float64(w.Angle(bucket)), -0.5, 0.5) + 0.5
}

// BlurredShadow convolves ShadowFactor with a separable kernel spaced by
// p.ShadowDilation and cubes the result, so soft edges darken rather than
// shrink the shadow.
func (e *Evaluator) BlurredShadow(n Neighborhood, p Params) float64 {
	w := blur3
	if p.ShadowTaps == 5 {
		w = blur5
	}
	r := len(w) / 2
	var v float64
	for i := range w {
		for j := range w {
			dx := float64(i-r) * p.ShadowDilation
			dy := float64(j-r) * p.ShadowDilation
			v += e.ShadowFactor(n, p, dx, dy) * w[i] * w[j]
		}
	}
	return v * v * v
}

// LaplacianOfGaussian returns the signed edge strength around the current
// texel, compressed as sign(v)*|v|^0.25.
func (e *Evaluator) LaplacianOfGaussian(n Neighborhood, p Params) float64 {
	center := e.ElevationAt(n, 0, 0)
	var v float64
	i := 0
	for x := -1; x <= 1; x++ {
		for y := -1; y <= 1; y++ {
			s := e.ElevationAt(n, p.LaplacianDilation*float64(x), p.LaplacianDilation*float64(y))
			v += (s - center) * logKernel[i]
			i++
		}
	}
	if v == 0 {
		return 0
	}
	return math.Copysign(math.Pow(math.Abs(v), 0.25), v)
}

// Shade computes the final colour of the current texel.
func (e *Evaluator) Shade(n Neighborhood, p Params) Result {
	if n.Sample(e.elevation.Buffer, e.elevation.Slot, 0, 0) == 0 {
		return Result{Discard: true}
	}

	dz := e.SurfaceDerivative(n)
	h := Hillshades(p, dz)

	grey := h.Base
	if p.Graph == GraphMultiDirectional {
		grey = MultiDirectionalHillshade(p, h)
	}
	occ := rmath.Clamp01(math.Pow(e.OcclusionAt(n), p.OcclusionPower) + 1 - p.Occlusion)
	shadow := rmath.Clamp01(e.BlurredShadow(n, p) + 1 - p.Shadow)
	grey *= occ * shadow

	if p.Laplacian > 0 {
		grey = rmath.Mix(grey, e.LaplacianOfGaussian(n, p), p.Laplacian)
	}
	if p.Slope > 0 {
		grey = rmath.Mix(grey, Slope(dz, p.ZFactor), p.Slope)
	}
	grey = ColorCorrect(grey, p)

	rgb := rmath.Vec3{
		X: tint(grey, h.Base, p.HillshadeColor, p.HillshadeColorPower),
		Y: tint(grey, h.Plus, p.HillshadeColor, p.HillshadeColorPower),
		Z: tint(grey, h.Minus, p.HillshadeColor, p.HillshadeColorPower),
	}
	if o, ok := n.(OrthoSource); ok && p.Ortho > 0 {
		if c, ok := o.Ortho(); ok {
			rgb = rgb.Mix(rmath.Vec3{X: c[0], Y: c[1], Z: c[2]}, p.Ortho)
		}
	}

	a := p.TransitionAlpha
	return Result{
		R:    rmath.Clamp01(rgb.X * a),
		G:    rmath.Clamp01(rgb.Y * a),
		B:    rmath.Clamp01(rgb.Z * a),
		A:    a,
		Grey: grey,
	}
}
