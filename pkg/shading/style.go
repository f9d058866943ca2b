package shading

import (
	"math"
	"slices"

	rmath "github.com/Faultbox/relief-shade/pkg/math"
)

// Style keys.
const (
	KeyElevation           = "elevation"
	KeyAzimuth             = "azimuth"
	KeyOcclusion           = "occlusion"
	KeyOcclusionPower      = "occlusion_power"
	KeyShadow              = "shadow"
	KeyShadowDilation      = "shadow_dilation"
	KeyShadowTaps          = "shadow_taps"
	KeyZFactor             = "zFactor"
	KeyBrightness          = "brightness"
	KeyExposure            = "exposure"
	KeyContrast            = "contrast"
	KeyGamma               = "gamma"
	KeyHillshadeDilation   = "hillshade_dilation"
	KeyMultidirectional    = "multidirectional"
	KeyHillshadeColor      = "hillshade_color"
	KeyHillshadeColorPower = "hillshade_color_power"
	KeyLaplacian           = "laplacian"
	KeyLaplacianDilation   = "laplacian_dilation"
	KeySlope               = "slope"
	KeyOrtho               = "ortho"
	KeyGraph               = "graph"
	KeyTransitionAlpha     = "transition_alpha"
)

// Graph selects how the base grey value is composed.
type Graph int

const (
	// GraphLambert shades with the single base-azimuth hillshade.
	GraphLambert Graph = iota
	// GraphMultiDirectional averages hillshades around the base azimuth.
	GraphMultiDirectional
)

func (g Graph) String() string {
	if g == GraphLambert {
		return "lambert"
	}
	return "multidirectional"
}

type valueRange struct {
	min, max, def float64
}

// azimuth is wrapped rather than clamped and is not listed here.
var ranges = map[string]valueRange{
	KeyElevation:           {0, 90, 45},
	KeyOcclusion:           {0, 1.1, 0.9},
	KeyOcclusionPower:      {0, 10, 1},
	KeyShadow:              {0, 1, 0.5},
	KeyShadowDilation:      {0, 3, 1},
	KeyShadowTaps:          {3, 5, 3},
	KeyZFactor:             {0, 5, 1},
	KeyBrightness:          {-0.75, 0.75, 0},
	KeyExposure:            {-1, 1, 0},
	KeyContrast:            {-1, 1, 1},
	KeyGamma:               {0.01, 10, 1},
	KeyHillshadeDilation:   {0, 180, 45},
	KeyMultidirectional:    {0, 1, 1},
	KeyHillshadeColor:      {0, 1, 0},
	KeyHillshadeColorPower: {0, 10, 1},
	KeyLaplacian:           {0, 1, 0},
	KeyLaplacianDilation:   {0, 3, 1},
	KeySlope:               {0, 1, 0},
	KeyOrtho:               {0, 1, 0},
	KeyGraph:               {0, 1, float64(GraphMultiDirectional)},
	KeyTransitionAlpha:     {0, 1, 1},
}

const defaultAzimuth = 45

// Style is a flat set of named shading parameters. Missing keys take their
// default value; out-of-range values are clamped when resolved.
type Style map[string]float64

// DefaultStyle returns every key at its default value.
func DefaultStyle() Style {
	s := Style{KeyAzimuth: defaultAzimuth}
	for k, r := range ranges {
		s[k] = r.def
	}
	return s
}

// Keys returns all recognised style keys in sorted order.
func Keys() []string {
	keys := []string{KeyAzimuth}
	for k := range ranges {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Unknown returns the keys of s that are not recognised, sorted.
func (s Style) Unknown() []string {
	var out []string
	for k := range s {
		if _, ok := ranges[k]; !ok && k != KeyAzimuth {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// Merge returns a copy of s with the keys of over applied on top.
func (s Style) Merge(over Style) Style {
	out := make(Style, len(s)+len(over))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

func (s Style) value(key string) float64 {
	r := ranges[key]
	v, ok := s[key]
	if !ok || math.IsNaN(v) {
		return r.def
	}
	return rmath.Clamp(v, r.min, r.max)
}

// Params is a resolved, range-checked style.
type Params struct {
	Elevation           float64 // sun elevation, degrees
	Azimuth             float64 // sun azimuth, degrees in [0, 360)
	Occlusion           float64
	OcclusionPower      float64
	Shadow              float64
	ShadowDilation      float64
	ShadowTaps          int // 3 or 5
	ZFactor             float64
	Brightness          float64
	Exposure            float64
	Contrast            float64
	Gamma               float64
	HillshadeDilation   float64 // degrees
	Multidirectional    float64
	HillshadeColor      float64
	HillshadeColorPower float64
	Laplacian           float64
	LaplacianDilation   float64
	Slope               float64
	Ortho               float64
	Graph               Graph
	TransitionAlpha     float64
}

// Resolve clamps every key into its range and fills defaults. It never fails.
func (s Style) Resolve() Params {
	az, ok := s[KeyAzimuth]
	if !ok || math.IsNaN(az) || math.IsInf(az, 0) {
		az = defaultAzimuth
	}
	if az = rmath.Mod(az, 360); az >= 360 {
		az = 0
	}

	taps := 3
	if s.value(KeyShadowTaps) > 4 {
		taps = 5
	}
	graph := GraphMultiDirectional
	if s.value(KeyGraph) < 0.5 {
		graph = GraphLambert
	}

	return Params{
		Elevation:           s.value(KeyElevation),
		Azimuth:             az,
		Occlusion:           s.value(KeyOcclusion),
		OcclusionPower:      s.value(KeyOcclusionPower),
		Shadow:              s.value(KeyShadow),
		ShadowDilation:      s.value(KeyShadowDilation),
		ShadowTaps:          taps,
		ZFactor:             s.value(KeyZFactor),
		Brightness:          s.value(KeyBrightness),
		Exposure:            s.value(KeyExposure),
		Contrast:            s.value(KeyContrast),
		Gamma:               s.value(KeyGamma),
		HillshadeDilation:   s.value(KeyHillshadeDilation),
		Multidirectional:    s.value(KeyMultidirectional),
		HillshadeColor:      s.value(KeyHillshadeColor),
		HillshadeColorPower: s.value(KeyHillshadeColorPower),
		Laplacian:           s.value(KeyLaplacian),
		LaplacianDilation:   s.value(KeyLaplacianDilation),
		Slope:               s.value(KeySlope),
		Ortho:               s.value(KeyOrtho),
		Graph:               graph,
		TransitionAlpha:     s.value(KeyTransitionAlpha),
	}
}
