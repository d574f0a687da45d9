package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"dev.acmcsuf.com/opcled"
)

type driverConfig struct {
	LEDCount int
	Logger   *slog.Logger
	// Quit stops the daemon. Drivers with their own user interface call it
	// when the user asks to exit.
	Quit context.CancelFunc
}

type driverFactory func(ctx context.Context, cfg driverConfig) (opcled.StripDriver, error)

var drivers = map[string]driverFactory{
	"null":      newNullDriver,
	"ws281x":    newWS281xDriver,
	"lpd8806":   newLPD8806Driver,
	"apa102":    newAPA102Driver,
	"fadecandy": newFadecandyDriver,
	"term":      newTermDriver,
}

func driverNames() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newDriver(ctx context.Context, name string, cfg driverConfig) (opcled.StripDriver, error) {
	factory, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("unknown driver %q", name)
	}
	return factory(ctx, cfg)
}

// nullDriver discards every frame. It is useful to run the daemon without
// hardware, with the admin preview as the only output.
type nullDriver struct{}

func newNullDriver(ctx context.Context, cfg driverConfig) (opcled.StripDriver, error) {
	return nullDriver{}, nil
}

func (nullDriver) SetLEDs(leds opcled.ColorSet) error { return nil }
