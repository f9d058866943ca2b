package main

import (
	"testing"

	"github.com/Faultbox/relief-shade/pkg/shadowcodec"
)

func TestShadowWord(t *testing.T) {
	want := [shadowcodec.BucketsPerWord]int{3, -2, 15, -16, 0, 7}
	w, err := shadowcodec.PackAngles(want[:])
	if err != nil {
		t.Fatalf("PackAngles failed: %v", err)
	}
	lo, hi := shadowcodec.SplitWord(w)

	got := shadowWord(float32(lo), float32(hi))
	if got != w {
		t.Errorf("expected word %#x, got %#x", uint32(w), uint32(got))
	}
	if got.Angles() != want {
		t.Errorf("expected angles %v, got %v", want, got.Angles())
	}
}
