package opcled

import "fmt"

// Sweep is the spatial pattern in which the lights of a strip complete a
// transition.
//
// Each light owns a window of width 1/n on a coordinate axis in [0, 1]. As
// the eased progress passes over a light's window, that light blends from
// its start color to its end color. The variants only differ in where each
// light's window starts.
type Sweep uint8

const (
	// SweepAuto picks SweepMiddleOut or SweepOutsideIn per transition, see
	// ChooseSweep.
	SweepAuto Sweep = iota
	// SweepMiddleOut starts at the center of the strip and spreads outward
	// symmetrically.
	SweepMiddleOut
	// SweepOutsideIn starts at both ends and converges on the center.
	SweepOutsideIn
	// SweepLeftToRight sweeps in index order.
	SweepLeftToRight
	// SweepRightToLeft sweeps in reverse index order.
	SweepRightToLeft
)

var sweepNames = [...]string{
	SweepAuto:        "auto",
	SweepMiddleOut:   "middle-out",
	SweepOutsideIn:   "outside-in",
	SweepLeftToRight: "left-to-right",
	SweepRightToLeft: "right-to-left",
}

// SweepNames lists the names accepted by ParseSweep.
var SweepNames = sweepNames[:]

func (s Sweep) String() string {
	if int(s) < len(sweepNames) {
		return sweepNames[s]
	}
	return fmt.Sprintf("Sweep(%d)", uint8(s))
}

// ParseSweep parses the name of a sweep as returned by String.
func ParseSweep(name string) (Sweep, error) {
	for i, n := range sweepNames {
		if n == name {
			return Sweep(i), nil
		}
	}
	return 0, fmt.Errorf("unknown sweep %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Sweep) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Sweep) UnmarshalText(text []byte) error {
	v, err := ParseSweep(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ChooseSweep resolves SweepAuto for a transition from start to end: middle
// out when the colors get brighter on average, outside in when they get
// darker. This is a stylistic policy; set an explicit Sweep to override it.
func ChooseSweep(start, end ColorSet) Sweep {
	if start.SignedDistance(end) >= 0 {
		return SweepMiddleOut
	}
	return SweepOutsideIn
}

// Factor returns how far light i of n has blended toward its end color, in
// [0, 1], for the given eased global progress. Every light has a factor of 0
// at progress 0 and of 1 at progress 1. SweepAuto behaves like
// SweepMiddleOut.
func (s Sweep) Factor(eased float64, i, n int) float64 {
	return clamp01(eased*float64(n) - float64(s.windowStart(i, n)))
}

// windowStart returns where light i's window starts, in units of one window
// (1/n). Starts range from 0 to n-1 so that every window is fully passed at
// progress 1.
func (s Sweep) windowStart(i, n int) int {
	switch s {
	case SweepOutsideIn:
		return n - 1 - foldedCenterDistance(i, n)
	case SweepLeftToRight:
		return i
	case SweepRightToLeft:
		return n - 1 - i
	default:
		return foldedCenterDistance(i, n)
	}
}

// foldedCenterDistance is the distance of the middle of light i's window
// from the middle of the strip, folded so that both halves share the same
// coordinates and scaled so that the outermost lights are at n-1. The
// centermost light is at 0 for odd n and 1 for even n.
func foldedCenterDistance(i, n int) int {
	d := 2*i + 1 - n
	if d < 0 {
		return -d
	}
	return d
}
