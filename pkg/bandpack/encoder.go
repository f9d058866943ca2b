package bandpack

import (
	"fmt"

	"github.com/Faultbox/relief-shade/pkg/layout"
	"github.com/Faultbox/relief-shade/pkg/shadowcodec"
)

// Encoder packs tiles for one validated layout. It holds no mutable state
// and may be shared between goroutines.
type Encoder struct {
	plan   *layout.Plan
	factor float64
	scheme shadowcodec.Scheme
}

// NewEncoder checks that plan provides the band layout each semantic needs.
func NewEncoder(plan *layout.Plan, factor float64, scheme shadowcodec.Scheme) (*Encoder, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("%w: fixed-point factor %v", layout.ErrConfiguration, factor)
	}
	if err := Validate(plan, scheme); err != nil {
		return nil, err
	}
	return &Encoder{plan: plan, factor: factor, scheme: scheme}, nil
}

// Validate reports whether plan can carry a terrain product with the given
// shadow scheme.
func Validate(plan *layout.Plan, scheme shadowcodec.Scheme) error {
	elev, ok := plan.Locate(layout.ElevationOcclusion, 0)
	if !ok {
		return fmt.Errorf("%w: no elevation-occlusion group", layout.ErrUnsupportedBandCount)
	}
	if plan.Group(elev.Buffer).Packed {
		return fmt.Errorf("%w: elevation-occlusion group must not be packed", layout.ErrUnsupportedBandCount)
	}

	slots := 0
	for i := range plan.Buffers() {
		g := plan.Group(i)
		switch g.Type {
		case layout.Shadow:
			if !g.Packed {
				return fmt.Errorf("%w: shadow group %d is not packed", layout.ErrUnsupportedBandCount, i)
			}
			slots += g.Bands
		case layout.Alpha:
			if g.Bands != 1 || g.Packed {
				return fmt.Errorf("%w: alpha group %d has %d slots", layout.ErrUnsupportedBandCount, i, g.Bands)
			}
		}
	}
	if plan.Count(layout.Alpha) > 1 {
		return fmt.Errorf("%w: %d alpha groups", layout.ErrUnsupportedBandCount, plan.Count(layout.Alpha))
	}
	if scheme.Directions < 0 || slots < scheme.Words() {
		return fmt.Errorf("%w: %d shadow slots for %d directions (need %d)",
			layout.ErrUnsupportedBandCount, slots, scheme.Directions, scheme.Words())
	}
	return nil
}

// Plan returns the layout the encoder packs for.
func (e *Encoder) Plan() *layout.Plan { return e.plan }

// Factor returns the fixed-point factor.
func (e *Encoder) Factor() float64 { return e.factor }

// Scheme returns the shadow scheme.
func (e *Encoder) Scheme() shadowcodec.Scheme { return e.scheme }

// Encode packs one tile.
func (e *Encoder) Encode(t *Tile) ([]PackedBuffer, error) {
	return Encode(t, e.plan, e.factor)
}
