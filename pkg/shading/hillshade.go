package shading

import (
	"math"

	rmath "github.com/Faultbox/relief-shade/pkg/math"
)

// Slope returns the terrain slope angle in radians for a surface derivative.
func Slope(dz rmath.Vec2, zFactor float64) float64 {
	return math.Atan(zFactor * dz.Length())
}

// Hillshade is the Lambertian reflectance of a surface with derivative dz lit
// from azimuth and elevation (degrees), clamped to [0, 1].
func Hillshade(azimuth, elevation, zFactor float64, dz rmath.Vec2) float64 {
	slope := Slope(dz, zFactor)
	aspect := rmath.Clamp(math.Atan2(-dz.X, dz.Y), -math.Pi, math.Pi)
	zenith := rmath.Radians(90 - elevation)
	az := rmath.Radians(rmath.Mod(azimuth, 360))
	return rmath.Clamp01(math.Cos(zenith)*math.Cos(slope) +
		math.Sin(zenith)*math.Sin(slope)*math.Cos(az-aspect))
}

// Directional holds hillshades at the base azimuth and at base ± dilation.
type Directional struct {
	Base, Plus, Minus float64
}

// Hillshades evaluates the three directional hillshades for p.
func Hillshades(p Params, dz rmath.Vec2) Directional {
	return Directional{
		Base:  Hillshade(p.Azimuth, p.Elevation, p.ZFactor, dz),
		Plus:  Hillshade(p.Azimuth+p.HillshadeDilation, p.Elevation, p.ZFactor, dz),
		Minus: Hillshade(p.Azimuth-p.HillshadeDilation, p.Elevation, p.ZFactor, dz),
	}
}

// MultiDirectionalHillshade blends the base hillshade toward the mean of the
// three directions by p.Multidirectional, then lifts it by p.HillshadeColor
// so tinting has room to work.
func MultiDirectionalHillshade(p Params, h Directional) float64 {
	mean := (h.Base + h.Plus + h.Minus) / 3
	blended := rmath.Mix(h.Base, mean, p.Multidirectional)
	return p.HillshadeColor + (1-p.HillshadeColor)*blended
}

// ColorCorrect applies contrast, exposure, then gamma with brightness. Each
// stage clamps to [0, 1] before the next one.
func ColorCorrect(v float64, p Params) float64 {
	contrast := rmath.Clamp01(p.Contrast*(v-0.5) + 0.5)
	exposure := rmath.Clamp01(contrast * (1 + p.Exposure))
	return rmath.Clamp01(math.Pow(exposure, 1/p.Gamma) + p.Brightness)
}

// sunVector returns the unit vector toward the sun. X points east, Y points
// down the texture rows (south) and Z up.
func sunVector(azimuth, elevation float64) rmath.Vec3 {
	az := rmath.Radians(azimuth)
	el := rmath.Radians(elevation)
	return rmath.Vec3{
		X: math.Cos(el) * math.Sin(az),
		Y: -math.Cos(el) * math.Cos(az),
		Z: math.Sin(el),
	}
}

// surfaceNormal returns the unit normal of the exaggerated surface.
func surfaceNormal(dz rmath.Vec2, zFactor float64) rmath.Vec3 {
	return rmath.Vec3{X: -zFactor * dz.X, Y: -zFactor * dz.Y, Z: 1}.Normalize()
}

// tint raises a directional hillshade to power and mixes it in by weight.
func tint(grey, h, weight, power float64) float64 {
	return grey * math.Pow(1-weight+h*weight, power)
}
