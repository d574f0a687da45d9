package main

import (
	"context"
	"fmt"
	"sync"

	"dev.acmcsuf.com/opcled"
	"github.com/gdamore/tcell/v2"
)

const termCellsPerLED = 2

// termDriver draws the strip in the terminal, wrapping it across as many rows
// as the width requires. Pressing q, Escape or Ctrl-C quits the daemon.
type termDriver struct {
	screen tcell.Screen
	quit   context.CancelFunc

	mu     sync.Mutex
	last   opcled.ColorSet
	frames int

	done chan struct{}
}

var _ opcled.StripDriver = (*termDriver)(nil)

func newTermDriver(ctx context.Context, cfg driverConfig) (opcled.StripDriver, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to create terminal screen: %w", err)
	}

	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize terminal screen: %w", err)
	}

	screen.HideCursor()
	screen.Clear()

	d := &termDriver{
		screen: screen,
		quit:   cfg.Quit,
		last:   opcled.Black(cfg.LEDCount),
		done:   make(chan struct{}),
	}

	d.mu.Lock()
	d.draw()
	d.mu.Unlock()

	go d.pollEvents()

	return d, nil
}

// pollEvents handles keys and resizes until the screen is finalized.
func (d *termDriver) pollEvents() {
	defer close(d.done)

	for {
		switch ev := d.screen.PollEvent().(type) {
		case nil:
			return
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC ||
				(ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
				if d.quit != nil {
					d.quit()
				}
			}
		case *tcell.EventResize:
			d.mu.Lock()
			d.screen.Clear()
			d.draw()
			d.mu.Unlock()
			d.screen.Sync()
		}
	}
}

func (d *termDriver) SetLEDs(leds opcled.ColorSet) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last = append(d.last[:0], leds...)
	d.frames++
	d.draw()

	return nil
}

// draw renders the last frame. d.mu must be held.
func (d *termDriver) draw() {
	width, height := d.screen.Size()

	perRow := width / termCellsPerLED
	if perRow < 1 {
		perRow = 1
	}

	for i, color := range d.last {
		x := (i % perRow) * termCellsPerLED
		y := i / perRow
		if y >= height-1 {
			break
		}

		style := tcell.StyleDefault.Foreground(tcell.NewRGBColor(
			int32(color.R),
			int32(color.G),
			int32(color.B),
		))
		for cx := 0; cx < termCellsPerLED; cx++ {
			d.screen.SetContent(x+cx, y, '█', nil, style)
		}
	}

	status := fmt.Sprintf(" %d LEDs, frame %d, press q to quit ", len(d.last), d.frames)
	for x := 0; x < width; x++ {
		r := ' '
		if x < len(status) {
			r = rune(status[x])
		}
		d.screen.SetContent(x, height-1, r, nil, tcell.StyleDefault.Reverse(true))
	}

	d.screen.Show()
}

func (d *termDriver) Close() error {
	d.screen.Fini()
	<-d.done
	return nil
}
