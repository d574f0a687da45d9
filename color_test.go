package opcled

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"
)

func drawColor(t *rapid.T, label string) Color {
	return Color{
		R: rapid.Uint8().Draw(t, label+".r"),
		G: rapid.Uint8().Draw(t, label+".g"),
		B: rapid.Uint8().Draw(t, label+".b"),
	}
}

func TestRGBClamps(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b int
		want    Color
	}{
		{"in range", 1, 2, 3, Color{1, 2, 3}},
		{"negative", -10, 0, 5, Color{0, 0, 5}},
		{"overflow", 256, 1000, 255, Color{255, 255, 255}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assertEq(t, test.want, RGB(test.r, test.g, test.b))
		})
	}
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#10203f")
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	assertEq(t, Color{0x10, 0x20, 0x3f}, c)
	assertEq(t, "#10203f", c.String())

	if _, err := ParseHex("blue"); err == nil {
		t.Error("expected error parsing a color name")
	}
}

func TestColorText(t *testing.T) {
	var c Color
	if err := c.UnmarshalText([]byte("#ff8000")); err != nil {
		t.Fatal("unexpected error:", err)
	}
	assertEq(t, Color{0xff, 0x80, 0x00}, c)

	b, err := c.MarshalText()
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	assertEq(t, "#ff8000", string(b))
}

func TestColorDistance(t *testing.T) {
	black := Color{}
	white := Color{255, 255, 255}

	assertFloat(t, 0, black.Distance(black))
	assertFloat(t, 1, black.Distance(white))
	assertFloat(t, 1.0/3, black.Distance(Color{R: 255}))

	assertFloat(t, 1, black.SignedDistance(white))
	assertFloat(t, -1, white.SignedDistance(black))

	rapid.Check(t, func(t *rapid.T) {
		a := drawColor(t, "a")
		b := drawColor(t, "b")

		if d := a.Distance(a); d != 0 {
			t.Fatalf("distance to self is %v", d)
		}
		if a.Distance(b) != b.Distance(a) {
			t.Fatalf("distance is not symmetric: %v != %v", a.Distance(b), b.Distance(a))
		}
		if d := a.Distance(b); d < 0 || d > 1 {
			t.Fatalf("distance %v out of range", d)
		}
		if a.SignedDistance(b) != -b.SignedDistance(a) {
			t.Fatalf("signed distance is not antisymmetric: %v, %v", a.SignedDistance(b), b.SignedDistance(a))
		}
	})
}

func TestColorLerp(t *testing.T) {
	a := Color{0, 100, 255}
	b := Color{255, 0, 255}

	assertEq(t, Color{128, 50, 255}, a.Lerp(b, 0.5))
	assertEq(t, a, a.Lerp(b, -1))
	assertEq(t, b, a.Lerp(b, 2))

	rapid.Check(t, func(t *rapid.T) {
		a := drawColor(t, "a")
		b := drawColor(t, "b")

		if got := a.Lerp(b, 0); got != a {
			t.Fatalf("lerp at 0 = %v, want %v", got, a)
		}
		if got := a.Lerp(b, 1); got != b {
			t.Fatalf("lerp at 1 = %v, want %v", got, b)
		}
	})
}

func TestColorSet(t *testing.T) {
	red := Color{R: 255}
	set := Fill(3, red)

	assertEq(t, ColorSet{red, red, red}, set)
	assertEq(t, ColorSet{{}, {}}, Black(2))

	clone := set.Clone()
	clone[0] = Color{}
	if set[0] != red {
		t.Error("Clone shares memory with the original")
	}

	if !set.Equal(Fill(3, red)) {
		t.Error("equal sets compare unequal")
	}
	if set.Equal(clone) {
		t.Error("different sets compare equal")
	}
	if set.Equal(Fill(4, red)) {
		t.Error("sets of different lengths compare equal")
	}

	assertFloat(t, 1.0/3, Black(3).Distance(set))
	assertFloat(t, 1.0/3, Black(3).SignedDistance(set))
	assertFloat(t, -1.0/3, set.SignedDistance(Black(3)))
}

func assertEq[T any](t *testing.T, expected, actual T, opts ...cmp.Option) {
	t.Helper()

	if diff := cmp.Diff(expected, actual, opts...); diff != "" {
		t.Errorf("unexpected diff (-want +got):\n%s", diff)
	}
}

func assertFloat(t *testing.T, expected, actual float64) {
	t.Helper()

	if math.Abs(expected-actual) > 1e-9 {
		t.Errorf("got %v, want %v", actual, expected)
	}
}
