package shader

import (
	"encoding/binary"
	"math"

	"github.com/Faultbox/relief-shade/pkg/shading"
)

// UniformFloats is the number of f32 fields in the Style uniform block.
const UniformFloats = 24

// Uniforms lays out p in Style field order. A non-positive resolution is
// treated as one ground unit per texel.
func Uniforms(p shading.Params, resolution float64, gutter int) [UniformFloats]float32 {
	if resolution <= 0 {
		resolution = 1
	}
	return [UniformFloats]float32{
		float32(p.Elevation),
		float32(p.Azimuth),
		float32(p.Occlusion),
		float32(p.OcclusionPower),
		float32(p.Shadow),
		float32(p.ShadowDilation),
		float32(p.ShadowTaps),
		float32(p.ZFactor),
		float32(p.Brightness),
		float32(p.Exposure),
		float32(p.Contrast),
		float32(p.Gamma),
		float32(p.HillshadeDilation),
		float32(p.Multidirectional),
		float32(p.HillshadeColor),
		float32(p.HillshadeColorPower),
		float32(p.Laplacian),
		float32(p.LaplacianDilation),
		float32(p.Slope),
		float32(p.Ortho),
		float32(p.Graph),
		float32(p.TransitionAlpha),
		float32(resolution),
		float32(gutter),
	}
}

// UniformBytes returns the little-endian bytes of Uniforms, ready for upload.
func UniformBytes(p shading.Params, resolution float64, gutter int) []byte {
	u := Uniforms(p, resolution, gutter)
	out := make([]byte, 4*len(u))
	for i, v := range u {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}
