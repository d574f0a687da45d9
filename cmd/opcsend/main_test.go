package main

import (
	"testing"

	"dev.acmcsuf.com/opcled"
	"github.com/google/go-cmp/cmp"
)

func TestGradientSet(t *testing.T) {
	red := opcled.Color{R: 255}
	blue := opcled.Color{B: 255}
	green := opcled.Color{G: 255}

	set := gradientSet(9, []opcled.Color{red, blue, green})
	if len(set) != 9 {
		t.Fatalf("expected 9 colors, got %d", len(set))
	}

	ends := []opcled.Color{set[0], set[4], set[8]}
	if diff := cmp.Diff([]opcled.Color{red, blue, green}, ends); diff != "" {
		t.Fatal("gradient does not pass through its stops (-want +got):\n" + diff)
	}

	if set[2] == red || set[2] == blue {
		t.Errorf("expected a blended color between stops, got %v", set[2])
	}
}

func TestGradientSetSingleStop(t *testing.T) {
	c := opcled.Color{R: 10, G: 20, B: 30}
	if diff := cmp.Diff(opcled.Fill(4, c), gradientSet(4, []opcled.Color{c})); diff != "" {
		t.Fatal("unexpected gradient (-want +got):\n" + diff)
	}
}
