package opcled

import "fmt"

// StripDriver drives a physical LED strip.
type StripDriver interface {
	// SetLEDs writes one frame to the strip. leds always holds exactly one
	// color per light. It is called once per animation frame and should
	// return well within a frame interval. Implementations must not retain
	// leds after returning.
	SetLEDs(leds ColorSet) error
}

// DriverError is returned when the strip driver fails to write a frame.
type DriverError struct {
	// Frame is the index of the frame that failed to be written.
	Frame int
	Err   error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("strip driver failed at frame %d: %v", e.Frame, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}
