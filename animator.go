package opcled

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrLEDCount is returned when a ColorSet does not have one color per light.
var ErrLEDCount = errors.New("wrong number of LEDs")

// AnimatorOpts are options for an Animator. Zero values are replaced with
// the defaults documented on each field.
type AnimatorOpts struct {
	// FrameRate is the number of frames per second. Default 120.
	FrameRate int
	// MinFrames is the least number of frames a transition has, so that
	// transitions between nearly equal colors are still animated. Default 10.
	MinFrames int
	// MinDuration is the shortest a transition may last. Default 0.
	MinDuration time.Duration
	// FullDistanceDuration is how long a transition of distance 1 lasts,
	// such as black to white. Transitions scale linearly with their
	// distance. Default 2s.
	FullDistanceDuration time.Duration
	// Easing is the easing applied to the global progress. Default
	// FastOutSlowIn.
	Easing Easing
	// Sweep is the spatial pattern of the transition. Default SweepAuto.
	Sweep Sweep
}

const (
	DefaultFrameRate            = 120
	DefaultMinFrames            = 10
	DefaultFullDistanceDuration = 2 * time.Second
)

// Animator computes and plays color transitions on a strip driver.
type Animator struct {
	opts AnimatorOpts

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAnimator creates a new animator.
func NewAnimator(opts AnimatorOpts) *Animator {
	if opts.FrameRate <= 0 {
		opts.FrameRate = DefaultFrameRate
	}
	if opts.MinFrames <= 0 {
		opts.MinFrames = DefaultMinFrames
	}
	if opts.FullDistanceDuration <= 0 {
		opts.FullDistanceDuration = DefaultFullDistanceDuration
	}
	if opts.Easing == nil {
		opts.Easing = FastOutSlowIn
	}

	return &Animator{
		opts:  opts,
		now:   time.Now,
		sleep: sleepContext,
	}
}

// Opts returns the options of the animator with defaults applied.
func (a *Animator) Opts() AnimatorOpts {
	return a.opts
}

// Duration returns how long the transition from start to end lasts.
func (a *Animator) Duration(start, end ColorSet) time.Duration {
	d := time.Duration(float64(a.opts.FullDistanceDuration) * start.Distance(end))
	d = d.Round(time.Millisecond)
	return max(d, a.opts.MinDuration)
}

// FrameCount returns the index of the last computed frame of the transition
// from start to end. Frames 0 through FrameCount inclusive are played.
func (a *Animator) FrameCount(start, end ColorSet) int {
	frames := int(int64(a.opts.FrameRate) * a.Duration(start, end).Milliseconds() / 1000)
	return max(frames, a.opts.MinFrames)
}

// Sweep returns the sweep used for the transition from start to end.
func (a *Animator) Sweep(start, end ColorSet) Sweep {
	if a.opts.Sweep == SweepAuto {
		return ChooseSweep(start, end)
	}
	return a.opts.Sweep
}

// Animate plays the transition from start to end on driver, one frame per
// frame interval, and returns once end is displayed. It finishes by writing
// end itself, so the strip shows exactly end regardless of rounding.
//
// If the driver fails, the remaining frames are skipped and a *DriverError
// is returned. If ctx is cancelled, its error is returned.
func (a *Animator) Animate(ctx context.Context, driver StripDriver, start, end ColorSet) error {
	if len(start) != len(end) || len(start) == 0 {
		return fmt.Errorf("%w: cannot animate %d LEDs to %d LEDs", ErrLEDCount, len(start), len(end))
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	n := len(start)
	sweep := a.Sweep(start, end)
	lastFrame := a.FrameCount(start, end)
	interval := time.Second / time.Duration(a.opts.FrameRate)

	frame := make(ColorSet, n)
	next := a.now()

	for frameNum := 0; frameNum <= lastFrame; frameNum++ {
		eased := a.opts.Easing(float64(frameNum) / float64(lastFrame))
		for i := range frame {
			frame[i] = start[i].Lerp(end[i], sweep.Factor(eased, i, n))
		}

		if err := driver.SetLEDs(frame); err != nil {
			return &DriverError{Frame: frameNum, Err: err}
		}

		// Frames are due on a fixed schedule. When running late, the
		// schedule restarts from now instead of rushing to catch up.
		now := a.now()
		next = next.Add(interval)
		if next.Before(now) {
			next = now
		}

		if err := a.sleep(ctx, next.Sub(now)); err != nil {
			return err
		}
	}

	copy(frame, end)
	if err := driver.SetLEDs(frame); err != nil {
		return &DriverError{Frame: lastFrame + 1, Err: err}
	}

	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
