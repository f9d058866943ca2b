// Package shadowcodec packs per-direction horizon angles into 32-bit words.
//
// A word holds six signed 5-bit samples, one per consecutive sun-direction
// bucket. Bucket m occupies bits [5m, 5m+5). Samples outside [-16, 15] are
// silently truncated to their low five bits.
package shadowcodec

import (
	"errors"
	"fmt"
	"math"
)

const (
	// BucketsPerWord is the number of direction samples in one word.
	BucketsPerWord = 6
	// BitsPerBucket is the width of one sample.
	BitsPerBucket = 5

	MinAngle = -16
	MaxAngle = 15

	bucketMask = 1<<BitsPerBucket - 1
	halfBits   = 15
	halfMask   = 1<<halfBits - 1

	// azimuthOffset rotates azimuth so direction 0 matches the stored order.
	azimuthOffset = 270.0
)

// ErrUnsupportedBandCount is returned when more samples are offered than a word holds.
var ErrUnsupportedBandCount = errors.New("unsupported band count")

// ShadowWord is a packed set of up to six horizon angle samples.
type ShadowWord uint32

// PackAngles writes angles[m] into bucket m.
func PackAngles(angles []int) (ShadowWord, error) {
	if len(angles) > BucketsPerWord {
		return 0, fmt.Errorf("%w: %d angles, max %d per word", ErrUnsupportedBandCount, len(angles), BucketsPerWord)
	}
	var w uint32
	for m, a := range angles {
		w |= (uint32(a) & bucketMask) << (BitsPerBucket * m)
	}
	return ShadowWord(w), nil
}

// UnpackAngle extracts and sign-extends the sample stored in bucket.
func UnpackAngle(w ShadowWord, bucket int) int {
	return w.Angle(bucket)
}

// Angle extracts and sign-extends the sample stored in bucket.
func (w ShadowWord) Angle(bucket int) int {
	shifted := uint32(w) >> uint(BitsPerBucket*bucket)
	return int(int32(shifted<<(32-BitsPerBucket)) >> (32 - BitsPerBucket))
}

// Angles returns all six samples.
func (w ShadowWord) Angles() [BucketsPerWord]int {
	var out [BucketsPerWord]int
	for m := range out {
		out[m] = w.Angle(m)
	}
	return out
}

// SplitWord returns the two 15-bit halves a producer stores as separate source
// bands; packing them as a pair (lo + hi<<15) rebuilds w.
func SplitWord(w ShadowWord) (lo, hi uint32) {
	return uint32(w) & halfMask, uint32(w) >> halfBits & halfMask
}

// Scheme describes the angular discretisation of a shadow product.
type Scheme struct {
	Directions     int `yaml:"directions"`      // azimuth buckets over 360 degrees
	ElevationSteps int `yaml:"elevation_steps"` // angle steps over 0..90 degrees
}

// DefaultScheme is ninety directions with thirty-two elevation steps.
func DefaultScheme() Scheme {
	return Scheme{Directions: 90, ElevationSteps: 32}
}

// Words returns how many shadow words cover all directions.
func (s Scheme) Words() int {
	return (s.Directions + BucketsPerWord - 1) / BucketsPerWord
}

// DirectionIndex maps a sun azimuth in degrees to one of n direction buckets.
func DirectionIndex(azimuth float64, n int) int {
	if n <= 0 {
		return 0
	}
	a := math.Mod(azimuth+azimuthOffset, 360)
	if a < 0 {
		a += 360
	}
	idx := int(math.Floor(a * float64(n) / 360))
	if idx >= n {
		idx = n - 1
	}
	return idx
}

// Locate returns the bucket within a word and the word index for an azimuth.
func Locate(azimuth float64, n int) (bucket, word int) {
	idx := DirectionIndex(azimuth, n)
	return idx % BucketsPerWord, idx / BucketsPerWord
}

// ElevationBucket rescales a sun elevation in degrees to the stored angle units.
func ElevationBucket(elevation float64, steps int) float64 {
	return elevation * float64(steps) / 90
}
