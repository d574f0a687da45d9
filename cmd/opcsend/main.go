// Command opcsend sends colors to an OPC server such as opcled.
//
//	opcsend '#ff0000' '#0000ff'              # red, then blue
//	opcsend --gradient '#ff0000' '#0000ff'   # one red to blue gradient
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"time"

	"dev.acmcsuf.com/opcled"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
)

var (
	addr     = "127.0.0.1:2323"
	ledCount = 93
	delay    = 3 * time.Second
	gradient = false
	loop     = false
	verbose  = false
)

func init() {
	pflag.StringVarP(&addr, "addr", "a", addr, "OPC server address")
	pflag.IntVarP(&ledCount, "leds", "n", ledCount, "number of LEDs on the strip")
	pflag.DurationVar(&delay, "delay", delay, "time between color sets")
	pflag.BoolVarP(&gradient, "gradient", "g", gradient, "blend all colors into one gradient along the strip")
	pflag.BoolVarP(&loop, "loop", "l", loop, "repeat the color sets until interrupted")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose logging")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] color...\n\n", os.Args[0])
		pflag.PrintDefaults()
	}
}

func main() {
	log.SetFlags(0)
	pflag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05 PM",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	if pflag.NArg() == 0 {
		pflag.Usage()
		return errors.New("no colors given")
	}

	if ledCount <= 0 || ledCount > opcled.MaxColors {
		return fmt.Errorf("LED count must be between 1 and %d", opcled.MaxColors)
	}

	colors := make([]opcled.Color, pflag.NArg())
	for i, arg := range pflag.Args() {
		c, err := opcled.ParseHex(arg)
		if err != nil {
			return err
		}
		colors[i] = c
	}

	var sets []opcled.ColorSet
	if gradient {
		sets = []opcled.ColorSet{gradientSet(ledCount, colors)}
	} else {
		for _, c := range colors {
			sets = append(sets, opcled.Fill(ledCount, c))
		}
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	logger.Info(
		"connected to OPC server",
		"addr", addr)

	for {
		for i, set := range sets {
			if err := opcled.WriteMessage(conn, opcled.ChannelDefault, opcled.CommandSetPixelColors, set); err != nil {
				return fmt.Errorf("failed to send colors: %w", err)
			}

			logger.Debug(
				"sent color set",
				"index", i,
				"first", set[0],
				"last", set[len(set)-1])

			if !loop && i == len(sets)-1 {
				return nil
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
}

// gradientSet blends stops evenly along n lights in the CIE L*a*b* space.
func gradientSet(n int, stops []opcled.Color) opcled.ColorSet {
	set := make(opcled.ColorSet, n)
	if len(stops) == 1 || n == 1 {
		for i := range set {
			set[i] = stops[0]
		}
		return set
	}

	segments := float64(len(stops) - 1)
	for i := range set {
		pos := float64(i) / float64(n-1) * segments

		seg := int(pos)
		if seg >= len(stops)-1 {
			seg = len(stops) - 2
		}

		a := stops[seg].Colorful()
		b := stops[seg+1].Colorful()
		set[i] = opcled.FromColorful(a.BlendLab(b, pos-float64(seg)))
	}
	return set
}
