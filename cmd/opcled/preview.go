package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"dev.acmcsuf.com/opcled"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"golang.org/x/sync/errgroup"
	"gopkg.in/typ.v4/sync2"
)

// previewBacklog is the number of frames buffered per preview client. Frames
// beyond it are dropped for that client until it catches up.
const previewBacklog = 8

// previewDriver passes frames through to another driver and mirrors every
// frame the strip accepted to websocket clients. Each frame is sent as one
// binary message holding an OPC set-pixel-colors message.
type previewDriver struct {
	driver opcled.StripDriver
	logger *slog.Logger

	upgrader ws.HTTPUpgrader
	subs     sync2.Map[*previewSubscriber, struct{}]

	lastMu sync.Mutex
	last   []byte
}

type previewSubscriber struct {
	frames  chan []byte
	dropped atomic.Int64
}

var (
	_ opcled.StripDriver = (*previewDriver)(nil)
	_ http.Handler       = (*previewDriver)(nil)
)

func newPreviewDriver(driver opcled.StripDriver, logger *slog.Logger) *previewDriver {
	return &previewDriver{
		driver: driver,
		logger: logger,
	}
}

func (d *previewDriver) SetLEDs(leds opcled.ColorSet) error {
	if err := d.driver.SetLEDs(leds); err != nil {
		return err
	}

	frame := opcled.AppendMessage(nil, opcled.ChannelDefault, opcled.CommandSetPixelColors, leds)

	d.lastMu.Lock()
	defer d.lastMu.Unlock()

	d.last = frame
	d.subs.Range(func(sub *previewSubscriber, _ struct{}) bool {
		select {
		case sub.frames <- frame:
		default:
			sub.dropped.Add(1)
		}
		return true
	})

	return nil
}

// Subscribers returns the number of connected preview clients.
func (d *previewDriver) Subscribers() int {
	return d.subs.Len()
}

func (d *previewDriver) subscribe() *previewSubscriber {
	sub := &previewSubscriber{frames: make(chan []byte, previewBacklog)}

	d.lastMu.Lock()
	if d.last != nil {
		sub.frames <- d.last
	}
	d.subs.Store(sub, struct{}{})
	d.lastMu.Unlock()

	return sub
}

func (d *previewDriver) unsubscribe(sub *previewSubscriber) {
	d.subs.Delete(sub)
}

// ServeHTTP upgrades the request to a websocket and streams frames to it
// until either side goes away.
func (d *previewDriver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsconn, _, _, err := d.upgrader.Upgrade(r, w)
	if err != nil {
		d.logger.Debug(
			"failed to upgrade preview connection",
			"remote_addr", r.RemoteAddr,
			"error", err)
		return
	}

	logger := d.logger.With("remote_addr", r.RemoteAddr)
	logger.Info("preview client connected")

	sub := d.subscribe()
	defer d.unsubscribe(sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errg, ctx := errgroup.WithContext(ctx)

	errg.Go(func() error {
		<-ctx.Done()
		return wsconn.Close()
	})

	errg.Go(func() error {
		defer cancel()

		// Clients have nothing to say, but reading handles pings and the
		// close handshake.
		for {
			if _, _, err := wsutil.ReadClientData(wsconn); err != nil {
				var closedErr wsutil.ClosedError
				if errors.As(err, &closedErr) || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to read from websocket: %w", err)
			}
		}
	})

	errg.Go(func() error {
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				return nil
			case frame := <-sub.frames:
				if err := wsutil.WriteServerBinary(wsconn, frame); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("failed to write to websocket: %w", err)
				}
			}
		}
	})

	if err := errg.Wait(); err != nil {
		logger.Debug(
			"preview connection failed",
			"error", err)
	}

	logger.Info(
		"preview client disconnected",
		"dropped_frames", sub.dropped.Load())
}
