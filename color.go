package opcled

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Color is a single RGB LED color. Each component is the raw value sent to
// the device; no gamma or white balance is applied.
type Color struct {
	R, G, B uint8
}

// RGB creates a color from three integer components. Components outside
// [0, 255] are clamped.
func RGB(r, g, b int) Color {
	return Color{clampByte(r), clampByte(g), clampByte(b)}
}

// ParseHex parses a color in the "#rrggbb" form.
func ParseHex(s string) (Color, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return FromColorful(c), nil
}

// FromColorful converts a go-colorful color, clamping it into the RGB gamut.
func FromColorful(c colorful.Color) Color {
	r, g, b := c.Clamped().RGB255()
	return Color{r, g, b}
}

// Colorful converts c into a go-colorful color.
func (c Color) Colorful() colorful.Color {
	return colorful.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
	}
}

// String returns the color in the "#rrggbb" form.
func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// MarshalText implements encoding.TextMarshaler.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Distance returns the mean over the components of the squared normalized
// difference between c and other. It is 0 for equal colors and 1 between
// black and white.
func (c Color) Distance(other Color) float64 {
	return (componentDistance(c.R, other.R) +
		componentDistance(c.G, other.G) +
		componentDistance(c.B, other.B)) / 3
}

// SignedDistance returns the mean over the components of the normalized
// difference other - c. It is positive when other is brighter than c.
func (c Color) SignedDistance(other Color) float64 {
	return (float64(int(other.R)-int(c.R)) +
		float64(int(other.G)-int(c.G)) +
		float64(int(other.B)-int(c.B))) / 255 / 3
}

// Lerp linearly interpolates from c to end. t is clamped to [0, 1]; Lerp
// returns c at 0 and end at 1.
func (c Color) Lerp(end Color, t float64) Color {
	t = clamp01(t)
	return Color{
		R: lerpByte(c.R, end.R, t),
		G: lerpByte(c.G, end.G, t),
		B: lerpByte(c.B, end.B, t),
	}
}

func componentDistance(a, b uint8) float64 {
	d := float64(int(a)-int(b)) / 255
	return d * d
}

func lerpByte(a, b uint8, t float64) uint8 {
	v := float64(a) + (float64(b)-float64(a))*t
	return clampByte(int(math.Round(v)))
}

func clampByte(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// ColorSet is the color of every light on the strip, indexed by physical
// position.
type ColorSet []Color

// Fill returns a ColorSet of n lights all set to c.
func Fill(n int, c Color) ColorSet {
	set := make(ColorSet, n)
	for i := range set {
		set[i] = c
	}
	return set
}

// Black returns a ColorSet of n lights that are all off.
func Black(n int) ColorSet {
	return make(ColorSet, n)
}

// Clone returns a copy of s.
func (s ColorSet) Clone() ColorSet {
	return append(ColorSet(nil), s...)
}

// Equal reports whether s and other have the same length and colors.
func (s ColorSet) Equal(other ColorSet) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Distance returns the mean per-light Distance between s and other. Both
// sets must have the same length.
func (s ColorSet) Distance(other ColorSet) float64 {
	if len(s) == 0 {
		return 0
	}
	var sum float64
	for i := range s {
		sum += s[i].Distance(other[i])
	}
	return sum / float64(len(s))
}

// SignedDistance returns the mean per-light SignedDistance from s to other.
// Both sets must have the same length.
func (s ColorSet) SignedDistance(other ColorSet) float64 {
	if len(s) == 0 {
		return 0
	}
	var sum float64
	for i := range s {
		sum += s[i].SignedDistance(other[i])
	}
	return sum / float64(len(s))
}
