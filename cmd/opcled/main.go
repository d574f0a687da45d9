package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"dev.acmcsuf.com/opcled"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"libdb.so/hserve"
)

var (
	listenAddr     = "127.0.0.1:2323"
	adminAddr      = "127.0.0.1:2324"
	ledCount       = 93
	frameRate      = opcled.DefaultFrameRate
	minFrames      = opcled.DefaultMinFrames
	minDuration    = time.Duration(0)
	messageTimeout = time.Duration(0)
	sweepName      = opcled.SweepAuto.String()
	easingName     = "fast-out-slow-in"
	driverName     = "null"
	logFile        = ""
	verbose        = false
)

func init() {
	pflag.StringVarP(&listenAddr, "listen-addr", "a", listenAddr, "OPC server address")
	pflag.StringVarP(&adminAddr, "admin-addr", "A", adminAddr, "HTTP admin server address, empty to disable")
	pflag.IntVarP(&ledCount, "leds", "n", ledCount, "number of LEDs on the strip")
	pflag.IntVar(&frameRate, "fps", frameRate, "animation frames per second")
	pflag.IntVar(&minFrames, "min-frames", minFrames, "minimum number of frames per transition")
	pflag.DurationVar(&minDuration, "min-duration", minDuration, "minimum duration of a transition")
	pflag.DurationVar(&messageTimeout, "message-timeout", messageTimeout, "time limit for receiving the rest of a message, 0 for none")
	pflag.StringVar(&sweepName, "sweep", sweepName, "transition pattern: "+strings.Join(opcled.SweepNames, ", "))
	pflag.StringVar(&easingName, "easing", easingName, "transition easing: "+strings.Join(opcled.EasingNames, ", "))
	pflag.StringVarP(&driverName, "driver", "d", driverName, "strip driver: "+strings.Join(driverNames(), ", "))
	pflag.StringVar(&logFile, "log-file", logFile, "write logs to this file instead of stderr, such as with the term driver")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose logging")
}

func main() {
	log.SetFlags(0)
	pflag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	logOutput := os.Stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalln("failed to open log file:", err)
		}
		defer f.Close()
		logOutput = f
	}

	logHandler := tint.NewHandler(logOutput, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05 PM", // extended time.Kitchen
		NoColor:    !isatty.IsTerminal(logOutput.Fd()),
	})

	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	sweep, err := opcled.ParseSweep(sweepName)
	if err != nil {
		return err
	}

	easing, err := opcled.ParseEasing(easingName)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	driver, err := newDriver(ctx, driverName, driverConfig{
		LEDCount: ledCount,
		Logger:   logger.With("component", "driver", "driver", driverName),
		Quit:     cancel,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s driver: %w", driverName, err)
	}
	if closer, ok := driver.(io.Closer); ok {
		defer closer.Close()
	}

	preview := newPreviewDriver(driver, logger.With("component", "preview"))

	animator := opcled.NewAnimator(opcled.AnimatorOpts{
		FrameRate:   frameRate,
		MinFrames:   minFrames,
		MinDuration: minDuration,
		Easing:      easing,
		Sweep:       sweep,
	})

	server, err := opcled.NewServer(opcled.ServerOpts{
		Driver:         preview,
		Animator:       animator,
		LEDCount:       ledCount,
		MessageTimeout: messageTimeout,
		Logger:         logger.With("component", "server"),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		return server.ListenAndServe(ctx, listenAddr)
	})

	if adminAddr != "" {
		errg.Go(func() error {
			admin := newAdminHandler(server, preview, logger.With("component", "admin"))

			logger.Info(
				"starting admin HTTP server",
				"addr", adminAddr)

			return hserve.ListenAndServe(ctx, adminAddr, admin)
		})
	}

	return errg.Wait()
}
