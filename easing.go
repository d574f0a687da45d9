package opcled

import "fmt"

// Easing maps linear progress in [0, 1] to eased progress in [0, 1]. An
// Easing must be monotonically non-decreasing with e(0) = 0 and e(1) = 1.
type Easing func(p float64) float64

var (
	// FastOutSlowIn accelerates quickly and settles slowly. It is the cubic
	// Bézier curve (0.4, 0) (0.2, 1).
	FastOutSlowIn Easing = cubicBezier{0.4, 0, 0.2, 1}.ease
	// Smoothstep is the symmetric cubic 3p² - 2p³.
	Smoothstep Easing = smoothstep
	// Linear does not ease at all.
	Linear Easing = clamp01
)

var easingNames = map[string]Easing{
	"fast-out-slow-in": FastOutSlowIn,
	"smoothstep":       Smoothstep,
	"linear":           Linear,
}

// EasingNames lists the names accepted by ParseEasing.
var EasingNames = []string{"fast-out-slow-in", "smoothstep", "linear"}

// ParseEasing returns the easing with the given name.
func ParseEasing(name string) (Easing, error) {
	e, ok := easingNames[name]
	if !ok {
		return nil, fmt.Errorf("unknown easing %q", name)
	}
	return e, nil
}

func smoothstep(p float64) float64 {
	p = clamp01(p)
	return p * p * (3 - 2*p)
}

// cubicBezier is a timing curve from (0, 0) to (1, 1) with two control
// points. X1 and X2 must be within [0, 1] so that x(t) is monotonic.
type cubicBezier struct {
	X1, Y1, X2, Y2 float64
}

// bezierIterations bounds the bisection; 2^-32 is well below what a uint8
// color can resolve.
const bezierIterations = 32

func (b cubicBezier) ease(p float64) float64 {
	switch {
	case p <= 0:
		return 0
	case p >= 1:
		return 1
	}

	// Find t where x(t) = p. x is monotonic, so bisection converges and the
	// result is monotonic in p.
	lo, hi := 0.0, 1.0
	for i := 0; i < bezierIterations; i++ {
		mid := (lo + hi) / 2
		if bezierAt(mid, b.X1, b.X2) < p {
			lo = mid
		} else {
			hi = mid
		}
	}

	return clamp01(bezierAt((lo+hi)/2, b.Y1, b.Y2))
}

// bezierAt evaluates one axis of a cubic Bézier with endpoints 0 and 1.
func bezierAt(t, p1, p2 float64) float64 {
	u := 1 - t
	return 3*u*u*t*p1 + 3*u*t*t*p2 + t*t*t
}
