package shader

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/Faultbox/relief-shade/pkg/bandpack"
	"github.com/Faultbox/relief-shade/pkg/layout"
	"github.com/Faultbox/relief-shade/pkg/shading"
	"github.com/Faultbox/relief-shade/pkg/shadowcodec"
)

func mustPlan(t *testing.T, groups []layout.BandGroup) *layout.Plan {
	t.Helper()
	p, err := layout.New(groups)
	if err != nil {
		t.Fatalf("layout.New failed: %v", err)
	}
	return p
}

func generateDefault(t *testing.T) *Source {
	t.Helper()
	src, err := Generate(mustPlan(t, layout.Default()), bandpack.DefaultFixedPointFactor, shadowcodec.DefaultScheme())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return src
}

func TestGenerate_DefaultLayout(t *testing.T) {
	src := generateDefault(t)

	wants := []string{
		"const FACTOR: f32 = 100000.0;",
		"const DIRECTIONS: u32 = 90u;",
		"const ELEVATION_STEPS: f32 = 32.0;",
		"const SHADOW_WORDS: u32 = 15u;",
		"@group(0) @binding(0) var band_0: texture_2d<u32>;",
		"@group(0) @binding(5) var band_5: texture_2d<u32>;",
		"@group(0) @binding(6) var<uniform> params: Style;",
		"@group(0) @binding(7) var ortho_tex: texture_2d<f32>;",
		"return fetch_0(p, off).x;",
		"return decode(fetch_0(p, vec2<f32>(0.0)).y);",
		"case 0u: { return fetch_1(p, off).x; }",
		"case 5u: { return fetch_2(p, off).y; }",
		"case 14u: { return fetch_4(p, off).z; }",
		"fn " + EntryVertex + "(",
		"fn " + EntryFragment + "(",
	}
	for _, w := range wants {
		if !strings.Contains(src.WGSL, w) {
			t.Errorf("generated source is missing %q", w)
		}
	}
	if strings.Contains(src.WGSL, "case 15u") {
		t.Error("generated source dispatches a shadow word the layout does not hold")
	}
}

func TestGenerate_Bindings(t *testing.T) {
	src := generateDefault(t)
	if len(src.Bindings) != 8 {
		t.Fatalf("expected 8 bindings, got %d", len(src.Bindings))
	}
	for i := range 6 {
		b := src.Bindings[i]
		if b.Index != i || b.Kind != BindingBand || b.Buffer != i {
			t.Errorf("binding %d: unexpected %+v", i, b)
		}
	}
	if b := src.Bindings[6]; b.Kind != BindingUniforms || b.Buffer != -1 {
		t.Errorf("expected uniform binding, got %+v", b)
	}
	if b := src.Bindings[7]; b.Kind != BindingOrtho || b.Name != "ortho_tex" {
		t.Errorf("expected ortho binding, got %+v", b)
	}
	if BindingUniforms.String() != "uniforms" {
		t.Errorf("expected 'uniforms', got %s", BindingUniforms)
	}
}

func TestGenerate_NoOcclusion(t *testing.T) {
	plan := mustPlan(t, []layout.BandGroup{
		{Bands: 1, Type: layout.ElevationOcclusion},
		{Bands: 1, Packed: true, Type: layout.Shadow},
	})
	src, err := Generate(plan, 1000, shadowcodec.Scheme{Directions: 6, ElevationSteps: 16})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.Contains(src.WGSL, "fn occlusion_at(p: vec2<i32>) -> f32 {\n    return 1.0;\n}") {
		t.Error("expected constant occlusion without an occlusion band")
	}
	if !strings.Contains(src.WGSL, "const FACTOR: f32 = 1000.0;") {
		t.Error("expected factor 1000")
	}
}

func TestGenerate_NoDirections(t *testing.T) {
	plan := mustPlan(t, []layout.BandGroup{{Bands: 2, Type: layout.ElevationOcclusion}})
	src, err := Generate(plan, bandpack.DefaultFixedPointFactor, shadowcodec.Scheme{ElevationSteps: 32})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.Contains(src.WGSL, "fn shadow_factor(p: vec2<i32>, off: vec2<f32>) -> f32 {\n    return 1.0;\n}") {
		t.Error("expected unshadowed factor without directions")
	}
	if strings.Contains(src.WGSL, "case 0u") {
		t.Error("expected no shadow word cases")
	}
}

func TestGenerate_Kernels(t *testing.T) {
	src := generateDefault(t)

	w3 := shading.ShadowKernel(3)
	w5 := shading.ShadowKernel(5)
	k := shading.LaplacianKernel()
	wants := []string{
		"vec2<f32>(0.0, 0.0) * d) * " + literal(w3[1]*w3[1]) + ";",
		"vec2<f32>((-2.0), 2.0) * d) * " + literal(w5[0]*w5[4]) + ";",
		"vec2<f32>(0.0, 0.0) * d) - center) * " + literal(k[4]) + ";",
		"vec2<f32>((-1.0), (-1.0)) * d) - center) * " + literal(k[0]) + ";",
	}
	for _, w := range wants {
		if !strings.Contains(src.WGSL, w) {
			t.Errorf("generated source is missing %q", w)
		}
	}
	if n := strings.Count(src.WGSL, "v += shadow_factor("); n != 9+25 {
		t.Errorf("expected 34 blur taps, got %d", n)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := generateDefault(t)
	b := generateDefault(t)
	if a.WGSL != b.WGSL {
		t.Error("identical layouts must generate identical source")
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		groups []layout.BandGroup
		factor float64
		want   error
	}{
		{"zero factor", layout.Default(), 0, layout.ErrConfiguration},
		{"packed elevation", []layout.BandGroup{{Bands: 1, Packed: true, Type: layout.ElevationOcclusion}}, 1, layout.ErrUnsupportedBandCount},
		{"too few shadow words", layout.Default()[:2], 1, layout.ErrUnsupportedBandCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(mustPlan(t, tt.groups), tt.factor, shadowcodec.DefaultScheme())
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLiteral(t *testing.T) {
	tests := map[float64]string{
		1:      "1.0",
		0:      "0.0",
		0.25:   "0.25",
		-0.5:   "(-0.5)",
		100000: "100000.0",
	}
	for in, want := range tests {
		if got := literal(in); got != want {
			t.Errorf("literal(%v): expected %s, got %s", in, want, got)
		}
	}
}

func TestUniforms(t *testing.T) {
	p := shading.DefaultStyle().Merge(shading.Style{
		shading.KeyAzimuth:    400,
		shading.KeyShadowTaps: 5,
		shading.KeyGraph:      0,
	}).Resolve()

	u := Uniforms(p, 0, 2)
	if u[0] != 45 {
		t.Errorf("expected elevation 45, got %v", u[0])
	}
	if u[1] != 40 {
		t.Errorf("expected wrapped azimuth 40, got %v", u[1])
	}
	if u[6] != 5 {
		t.Errorf("expected 5 shadow taps, got %v", u[6])
	}
	if u[20] != float32(shading.GraphLambert) {
		t.Errorf("expected lambert graph, got %v", u[20])
	}
	if u[22] != 1 {
		t.Errorf("expected resolution 1 for non-positive input, got %v", u[22])
	}
	if u[23] != 2 {
		t.Errorf("expected gutter 2, got %v", u[23])
	}

	raw := UniformBytes(p, 2.5, 0)
	if len(raw) != 4*UniformFloats {
		t.Fatalf("expected %d bytes, got %d", 4*UniformFloats, len(raw))
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(raw[22*4:])); got != 2.5 {
		t.Errorf("expected resolution 2.5, got %v", got)
	}
}

func TestUniforms_MatchStruct(t *testing.T) {
	start := strings.Index(uniformStruct, "{")
	end := strings.Index(uniformStruct, "}")
	fields := strings.Count(uniformStruct[start:end], ": f32,")
	if fields != UniformFloats {
		t.Errorf("Style declares %d fields, Uniforms fills %d", fields, UniformFloats)
	}
}

// TestCompile checks the generated module compiles to SPIR-V.
func TestCompile(t *testing.T) {
	src := generateDefault(t)

	code, err := Compile(src.WGSL)
	if err != nil {
		// naga does not cover all of WGSL yet
		t.Skipf("Skipping: naga could not compile the module: %v", err)
	}
	if len(code) == 0 || code[0] != spirvMagic {
		t.Errorf("invalid SPIR-V output")
	}
	t.Logf("relief shader compiled to %d words of SPIR-V", len(code))
}

func TestCompile_Invalid(t *testing.T) {
	if _, err := Compile("fn broken( {"); err == nil {
		t.Error("expected error for invalid WGSL")
	}
}
