// Package layout maps the bands of a terrain tile onto packed texture buffers.
package layout

import (
	"errors"
	"fmt"
	"strings"
)

// MaxSlots is the widest destination texel (RGBA, 32-bit unsigned per channel).
const MaxSlots = 4

// Layout errors.
var (
	ErrConfiguration        = errors.New("inconsistent band configuration")
	ErrUnsupportedBandCount = errors.New("unsupported band count")
)

// Semantic tells what a band group carries.
type Semantic uint8

const (
	ElevationOcclusion Semantic = iota
	Shadow
	Alpha
)

var semanticNames = [...]string{
	ElevationOcclusion: "elevation-occlusion",
	Shadow:             "shadow",
	Alpha:              "alpha",
}

// String returns the configuration name of the semantic.
func (s Semantic) String() string {
	if int(s) < len(semanticNames) {
		return semanticNames[s]
	}
	return fmt.Sprintf("semantic(%d)", uint8(s))
}

// ParseSemantic accepts the configuration names plus the legacy
// "hillshadeOcclusion" spelling.
func ParseSemantic(name string) (Semantic, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "elevation-occlusion", "hillshadeocclusion", "elevation":
		return ElevationOcclusion, nil
	case "shadow":
		return Shadow, nil
	case "alpha":
		return Alpha, nil
	}
	return 0, fmt.Errorf("%w: unknown group type %q", ErrConfiguration, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Semantic) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Semantic) UnmarshalText(text []byte) error {
	v, err := ParseSemantic(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// BandGroup declares a run of consecutive source bands.
type BandGroup struct {
	Bands  int      `yaml:"bands"`  // destination slots
	Packed bool     `yaml:"packed"` // two source bands per slot
	Type   Semantic `yaml:"type"`
}

// SourceBands returns how many source bands the group consumes.
func (g BandGroup) SourceBands() int {
	if g.Packed {
		return g.Bands * 2
	}
	return g.Bands
}

// Destination locates one source band inside the packed buffers.
type Destination struct {
	Buffer int
	Slot   int
	High   bool // upper half of a packed pair
}

// Slot addresses one channel of one destination buffer.
type Slot struct {
	Buffer int
	Slot   int
}

// Plan is the immutable band mapping derived from a group sequence.
// It is safe for concurrent use.
type Plan struct {
	groups []BandGroup
	dest   []Destination
	shadow []Slot
}

// New computes the plan for an ordered group sequence.
func New(groups []BandGroup) (*Plan, error) {
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: no band groups", ErrConfiguration)
	}

	p := &Plan{groups: append([]BandGroup(nil), groups...)}
	for i, g := range groups {
		if g.Bands <= 0 {
			return nil, fmt.Errorf("%w: group %d declares %d bands", ErrConfiguration, i, g.Bands)
		}
		if int(g.Type) >= len(semanticNames) {
			return nil, fmt.Errorf("%w: group %d has unknown type %s", ErrConfiguration, i, g.Type)
		}
		if g.Bands > MaxSlots {
			return nil, fmt.Errorf("%w: group %d needs %d slots, max %d", ErrUnsupportedBandCount, i, g.Bands, MaxSlots)
		}
		for j := range g.SourceBands() {
			d := Destination{Buffer: i, Slot: j}
			if g.Packed {
				d.Slot = j / 2
				d.High = j%2 == 1
			}
			p.dest = append(p.dest, d)
		}
		if g.Type == Shadow {
			for k := range g.Bands {
				p.shadow = append(p.shadow, Slot{Buffer: i, Slot: k})
			}
		}
	}
	return p, nil
}

// Buffers returns the number of destination buffers.
func (p *Plan) Buffers() int { return len(p.groups) }

// Group returns the i-th group.
func (p *Plan) Group(i int) BandGroup { return p.groups[i] }

// Groups returns a copy of the group sequence.
func (p *Plan) Groups() []BandGroup { return append([]BandGroup(nil), p.groups...) }

// Stride returns the per-pixel element count of buffer i.
func (p *Plan) Stride(i int) int { return p.groups[i].Bands }

// SourceBandCount returns the number of source bands per pixel the plan expects.
func (p *Plan) SourceBandCount() int { return len(p.dest) }

// Destination returns where source band b lands.
func (p *Plan) Destination(b int) Destination { return p.dest[b] }

// ShadowSlots returns the slots holding shadow words, in group order.
// Shadow word n (directions 6n..6n+5) lives in ShadowSlots()[n].
func (p *Plan) ShadowSlots() []Slot { return append([]Slot(nil), p.shadow...) }

// ShadowSlot returns the slot holding shadow word n.
func (p *Plan) ShadowSlot(n int) (Slot, bool) {
	if n < 0 || n >= len(p.shadow) {
		return Slot{}, false
	}
	return p.shadow[n], true
}

// Locate returns the n-th slot of the first group with the given semantic.
func (p *Plan) Locate(s Semantic, n int) (Slot, bool) {
	for i, g := range p.groups {
		if g.Type != s {
			continue
		}
		if n < 0 || n >= g.Bands {
			return Slot{}, false
		}
		return Slot{Buffer: i, Slot: n}, true
	}
	return Slot{}, false
}

// Count returns how many groups carry the given semantic.
func (p *Plan) Count(s Semantic) int {
	n := 0
	for _, g := range p.groups {
		if g.Type == s {
			n++
		}
	}
	return n
}

// Default returns the layout used by the reference terrain products:
// elevation and occlusion, fifteen shadow words for ninety directions, alpha.
func Default() []BandGroup {
	return []BandGroup{
		{Bands: 2, Packed: false, Type: ElevationOcclusion},
		{Bands: 4, Packed: true, Type: Shadow},
		{Bands: 4, Packed: true, Type: Shadow},
		{Bands: 4, Packed: true, Type: Shadow},
		{Bands: 3, Packed: true, Type: Shadow},
		{Bands: 1, Packed: false, Type: Alpha},
	}
}
