// Package shader generates the WGSL shading pipeline for a band layout and
// compiles it to SPIR-V.
//
// The generated fragment shader mirrors shading.Evaluator texel for texel:
// nearest-texel clamp-to-edge fetches, the same derivative, shadow, LoG and
// colour steps, and the same kernel weights. Only the parts that depend on
// the layout (which buffer and channel holds elevation, occlusion and each
// shadow word) are generated; the rest is fixed source.
package shader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Faultbox/relief-shade/pkg/bandpack"
	"github.com/Faultbox/relief-shade/pkg/layout"
	"github.com/Faultbox/relief-shade/pkg/shading"
	"github.com/Faultbox/relief-shade/pkg/shadowcodec"
)

// Entry points of the generated module.
const (
	EntryVertex   = "vs_main"
	EntryFragment = "fs_main"
)

// BindingKind tells what a generated binding expects.
type BindingKind int

const (
	// BindingBand is a texture_2d<u32> holding one packed buffer.
	BindingBand BindingKind = iota
	// BindingUniforms is the Style uniform block (see Uniforms).
	BindingUniforms
	// BindingOrtho is an optional texture_2d<f32> ortho image.
	BindingOrtho
)

func (k BindingKind) String() string {
	switch k {
	case BindingBand:
		return "band"
	case BindingUniforms:
		return "uniforms"
	default:
		return "ortho"
	}
}

// Binding describes one @group(0) resource of the generated module.
type Binding struct {
	Index  int
	Name   string
	Kind   BindingKind
	Buffer int // packed buffer index for BindingBand, -1 otherwise
}

// Source is a generated shader module.
type Source struct {
	WGSL     string
	Bindings []Binding
}

var channels = [layout.MaxSlots]string{"x", "y", "z", "w"}

// Generate builds the WGSL module for plan. It fails for layouts the
// evaluator cannot shade.
func Generate(plan *layout.Plan, factor float64, scheme shadowcodec.Scheme) (*Source, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("%w: fixed-point factor %v", layout.ErrConfiguration, factor)
	}
	if err := bandpack.Validate(plan, scheme); err != nil {
		return nil, err
	}

	g := &generator{plan: plan, factor: factor, scheme: scheme}
	g.header()
	g.bindings()
	g.accessors()
	g.kernels()
	g.b.WriteString(fixedSource)

	return &Source{WGSL: g.b.String(), Bindings: g.binds}, nil
}

type generator struct {
	b      strings.Builder
	binds  []Binding
	plan   *layout.Plan
	factor float64
	scheme shadowcodec.Scheme
}

func (g *generator) printf(format string, args ...any) {
	fmt.Fprintf(&g.b, format, args...)
}

func (g *generator) header() {
	var groups []string
	for _, grp := range g.plan.Groups() {
		kind := "u"
		if grp.Packed {
			kind = "p"
		}
		groups = append(groups, fmt.Sprintf("%d%s:%s", grp.Bands, kind, grp.Type))
	}
	g.printf("// relief-shade layout %s\n\n", strings.Join(groups, " "))

	g.printf("const FACTOR: f32 = %s;\n", literal(g.factor))
	g.printf("const DIRECTIONS: u32 = %du;\n", g.scheme.Directions)
	g.printf("const ELEVATION_STEPS: f32 = %s;\n", literal(float64(g.scheme.ElevationSteps)))
	g.printf("const SHADOW_WORDS: u32 = %du;\n\n", len(g.plan.ShadowSlots()))

	g.b.WriteString(uniformStruct)
}

func (g *generator) bindings() {
	n := g.plan.Buffers()
	for i := range n {
		name := fmt.Sprintf("band_%d", i)
		g.printf("@group(0) @binding(%d) var %s: texture_2d<u32>;\n", i, name)
		g.binds = append(g.binds, Binding{Index: i, Name: name, Kind: BindingBand, Buffer: i})
	}
	g.printf("@group(0) @binding(%d) var<uniform> params: Style;\n", n)
	g.printf("@group(0) @binding(%d) var ortho_tex: texture_2d<f32>;\n\n", n+1)
	g.binds = append(g.binds,
		Binding{Index: n, Name: "params", Kind: BindingUniforms, Buffer: -1},
		Binding{Index: n + 1, Name: "ortho_tex", Kind: BindingOrtho, Buffer: -1},
	)

	g.b.WriteString(texelSource)
	for i := range n {
		g.printf("fn fetch_%d(p: vec2<i32>, off: vec2<f32>) -> vec4<u32> {\n", i)
		g.printf("    return textureLoad(band_%d, texel(p, off, textureDimensions(band_%d)), 0);\n}\n\n", i, i)
	}
}

// accessors emits the layout-dependent lookups.
func (g *generator) accessors() {
	elev, _ := g.plan.Locate(layout.ElevationOcclusion, 0)
	g.printf("fn grid_size() -> vec2<i32> {\n    return vec2<i32>(textureDimensions(band_%d));\n}\n\n", elev.Buffer)
	g.printf("fn elevation_raw(p: vec2<i32>, off: vec2<f32>) -> u32 {\n    return fetch_%d(p, off).%s;\n}\n\n",
		elev.Buffer, channels[elev.Slot])

	g.b.WriteString("fn occlusion_at(p: vec2<i32>) -> f32 {\n")
	if occ, ok := g.plan.Locate(layout.ElevationOcclusion, 1); ok {
		g.printf("    return decode(fetch_%d(p, vec2<f32>(0.0)).%s);\n}\n\n", occ.Buffer, channels[occ.Slot])
	} else {
		g.b.WriteString("    return 1.0;\n}\n\n")
	}

	g.b.WriteString("fn shadow_word(word: u32, p: vec2<i32>, off: vec2<f32>) -> u32 {\n    switch word {\n")
	for n, s := range g.plan.ShadowSlots() {
		g.printf("        case %du: { return fetch_%d(p, off).%s; }\n", n, s.Buffer, channels[s.Slot])
	}
	g.b.WriteString("        default: { return 0u; }\n    }\n}\n\n")

	if g.scheme.Directions <= 0 {
		g.b.WriteString("fn shadow_factor(p: vec2<i32>, off: vec2<f32>) -> f32 {\n    return 1.0;\n}\n\n")
		return
	}
	g.b.WriteString(shadowFactorSource)
}

// kernels emits the blur and LoG convolutions fully unrolled.
func (g *generator) kernels() {
	g.b.WriteString("fn blurred_shadow(p: vec2<i32>) -> f32 {\n    let d = params.shadow_dilation;\n    var v = 0.0;\n")
	g.b.WriteString("    if (params.shadow_taps > 4.0) {\n")
	g.blur(shading.ShadowKernel(5))
	g.b.WriteString("    } else {\n")
	g.blur(shading.ShadowKernel(3))
	g.b.WriteString("    }\n    return v * v * v;\n}\n\n")

	k := shading.LaplacianKernel()
	g.b.WriteString("fn laplacian(p: vec2<i32>) -> f32 {\n")
	g.b.WriteString("    let center = elevation_at(p, vec2<f32>(0.0));\n    let d = params.laplacian_dilation;\n    var v = 0.0;\n")
	for x := -1; x <= 1; x++ {
		for y := -1; y <= 1; y++ {
			g.printf("    v += (elevation_at(p, vec2<f32>(%s, %s) * d) - center) * %s;\n",
				literal(float64(x)), literal(float64(y)), literal(k[(x+1)*3+(y+1)]))
		}
	}
	g.b.WriteString("    if (v == 0.0) {\n        return 0.0;\n    }\n    return sign(v) * pow(abs(v), 0.25);\n}\n\n")
}

func (g *generator) blur(w []float64) {
	r := len(w) / 2
	for i := range w {
		for j := range w {
			g.printf("        v += shadow_factor(p, vec2<f32>(%s, %s) * d) * %s;\n",
				literal(float64(i-r)), literal(float64(j-r)), literal(w[i]*w[j]))
		}
	}
}

// literal formats v as a WGSL float literal.
func literal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 32)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	if v < 0 {
		return "(" + s + ")"
	}
	return s
}

const uniformStruct = `struct Style {
    elevation: f32,
    azimuth: f32,
    occlusion: f32,
    occlusion_power: f32,
    shadow: f32,
    shadow_dilation: f32,
    shadow_taps: f32,
    z_factor: f32,
    brightness: f32,
    exposure: f32,
    contrast: f32,
    gamma: f32,
    hillshade_dilation: f32,
    multidirectional: f32,
    hillshade_color: f32,
    hillshade_color_power: f32,
    laplacian: f32,
    laplacian_dilation: f32,
    slope: f32,
    ortho: f32,
    graph: f32,
    transition_alpha: f32,
    resolution: f32,
    gutter: f32,
}

`

const texelSource = `fn texel(p: vec2<i32>, off: vec2<f32>, dims: vec2<u32>) -> vec2<i32> {
    let q = vec2<i32>(floor(vec2<f32>(p) + off + vec2<f32>(0.5)));
    return clamp(q, vec2<i32>(0), vec2<i32>(dims) - vec2<i32>(1));
}

fn decode(v: u32) -> f32 {
    return f32(v) / FACTOR;
}

`

const shadowFactorSource = `fn shadow_factor(p: vec2<i32>, off: vec2<f32>) -> f32 {
    let a = (params.azimuth + 270.0) % 360.0;
    let idx = min(u32(floor(a * f32(DIRECTIONS) / 360.0)), DIRECTIONS - 1u);
    let word = idx / 6u;
    if (word >= SHADOW_WORDS) {
        return 1.0;
    }
    let bucket = idx % 6u;
    let w = shadow_word(word, p, off);
    let angle = bitcast<i32>((w >> (5u * bucket)) << 27u) >> 27u;
    let sun = params.elevation * ELEVATION_STEPS / 90.0;
    return clamp(sun - f32(angle), -0.5, 0.5) + 0.5;
}

`

const fixedSource = `fn elevation_at(p: vec2<i32>, off: vec2<f32>) -> f32 {
    return decode(elevation_raw(p, off));
}

fn axis_span(lo: bool, hi: bool) -> vec2<f32> {
    return vec2<f32>(select(-1.0, 0.0, lo), select(1.0, 0.0, hi));
}

fn surface_derivative(p: vec2<i32>) -> vec2<f32> {
    let size = grid_size();
    let inv = 1.0 / params.resolution;
    let sx = axis_span(p.x == 0, p.x == size.x - 1);
    let sy = axis_span(p.y == 0, p.y == size.y - 1);
    var d = vec2<f32>(0.0);
    if (sx.y - sx.x > 0.0) {
        d.x = (elevation_at(p, vec2<f32>(sx.y, 0.0)) - elevation_at(p, vec2<f32>(sx.x, 0.0))) * inv / (sx.y - sx.x);
    }
    if (sy.y - sy.x > 0.0) {
        d.y = (elevation_at(p, vec2<f32>(0.0, sy.y)) - elevation_at(p, vec2<f32>(0.0, sy.x))) * inv / (sy.y - sy.x);
    }
    return d;
}

fn slope_angle(dz: vec2<f32>) -> f32 {
    return atan(params.z_factor * length(dz));
}

fn hillshade(azimuth: f32, dz: vec2<f32>) -> f32 {
    let slope = slope_angle(dz);
    let aspect = atan2(-dz.x, dz.y);
    let zenith = radians(90.0 - params.elevation);
    let az = radians(azimuth - 360.0 * floor(azimuth / 360.0));
    return clamp(cos(zenith) * cos(slope) + sin(zenith) * sin(slope) * cos(az - aspect), 0.0, 1.0);
}

fn color_correct(v: f32) -> f32 {
    let c = clamp(params.contrast * (v - 0.5) + 0.5, 0.0, 1.0);
    let e = clamp(c * (1.0 + params.exposure), 0.0, 1.0);
    return clamp(pow(e, 1.0 / params.gamma) + params.brightness, 0.0, 1.0);
}

fn tint(grey: f32, h: f32) -> f32 {
    return grey * pow(1.0 - params.hillshade_color + h * params.hillshade_color, params.hillshade_color_power);
}

fn ortho_at(p: vec2<i32>) -> vec3<f32> {
    let dims = vec2<i32>(textureDimensions(ortho_tex));
    let grid = vec2<f32>(grid_size());
    let q = vec2<i32>((vec2<f32>(p) + vec2<f32>(0.5)) * vec2<f32>(dims) / grid);
    return textureLoad(ortho_tex, clamp(q, vec2<i32>(0), dims - vec2<i32>(1)), 0).rgb;
}

@vertex
fn vs_main(@builtin(vertex_index) i: u32) -> @builtin(position) vec4<f32> {
    let uv = vec2<f32>(f32((i << 1u) & 2u), f32(i & 2u));
    return vec4<f32>(uv * 2.0 - vec2<f32>(1.0), 0.0, 1.0);
}

@fragment
fn fs_main(@builtin(position) frag: vec4<f32>) -> @location(0) vec4<f32> {
    let p = vec2<i32>(floor(frag.xy)) + vec2<i32>(i32(params.gutter));
    if (elevation_raw(p, vec2<f32>(0.0)) == 0u) {
        discard;
    }
    let dz = surface_derivative(p);
    let base = hillshade(params.azimuth, dz);
    let plus = hillshade(params.azimuth + params.hillshade_dilation, dz);
    let minus = hillshade(params.azimuth - params.hillshade_dilation, dz);

    var grey = base;
    if (params.graph >= 0.5) {
        let mean = (base + plus + minus) / 3.0;
        grey = params.hillshade_color + (1.0 - params.hillshade_color) * mix(base, mean, params.multidirectional);
    }
    let occ = clamp(pow(occlusion_at(p), params.occlusion_power) + 1.0 - params.occlusion, 0.0, 1.0);
    let shade = clamp(blurred_shadow(p) + 1.0 - params.shadow, 0.0, 1.0);
    grey = grey * occ * shade;

    if (params.laplacian > 0.0) {
        grey = mix(grey, laplacian(p), params.laplacian);
    }
    if (params.slope > 0.0) {
        grey = mix(grey, slope_angle(dz), params.slope);
    }
    grey = color_correct(grey);

    var rgb = vec3<f32>(tint(grey, base), tint(grey, plus), tint(grey, minus));
    if (params.ortho > 0.0) {
        rgb = mix(rgb, ortho_at(p), vec3<f32>(params.ortho));
    }
    let a = params.transition_alpha;
    return vec4<f32>(clamp(rgb * a, vec3<f32>(0.0), vec3<f32>(1.0)), a);
}
`
