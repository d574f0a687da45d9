package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"dev.acmcsuf.com/opcled"
	"github.com/spf13/pflag"
)

var (
	fadecandyAddr    = "127.0.0.1:7890"
	fadecandyChannel = uint8(0)
	fadecandyTimeout = time.Second
)

func init() {
	pflag.StringVar(&fadecandyAddr, "fadecandy-addr", fadecandyAddr, "address of the fcserver to forward frames to")
	pflag.Uint8Var(&fadecandyChannel, "fadecandy-channel", fadecandyChannel, "OPC channel of the strip on the fcserver")
	pflag.DurationVar(&fadecandyTimeout, "fadecandy-timeout", fadecandyTimeout, "dial and write timeout for the fcserver")
}

// fadecandyDriver forwards frames to a Fadecandy server, which itself speaks
// OPC. The connection is dialed on the first frame and redialed on the frame
// after a failure.
type fadecandyDriver struct {
	addr    string
	channel uint8
	timeout time.Duration
	logger  *slog.Logger
	dial    func(network, addr string, timeout time.Duration) (net.Conn, error)

	mu   sync.Mutex
	conn net.Conn
	buf  []byte
}

var _ opcled.StripDriver = (*fadecandyDriver)(nil)

func newFadecandyDriver(ctx context.Context, cfg driverConfig) (opcled.StripDriver, error) {
	if cfg.LEDCount > opcled.MaxColors {
		return nil, fmt.Errorf("fadecandy takes at most %d LEDs", opcled.MaxColors)
	}

	return &fadecandyDriver{
		addr:    fadecandyAddr,
		channel: fadecandyChannel,
		timeout: fadecandyTimeout,
		logger:  cfg.Logger,
		dial:    net.DialTimeout,
		buf:     make([]byte, 0, 4+3*cfg.LEDCount),
	}, nil
}

func (d *fadecandyDriver) SetLEDs(leds opcled.ColorSet) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		conn, err := d.dial("tcp", d.addr, d.timeout)
		if err != nil {
			return fmt.Errorf("failed to connect to fcserver: %w", err)
		}

		d.logger.Info(
			"connected to fcserver",
			"addr", d.addr)

		d.conn = conn
	}

	d.buf = opcled.AppendMessage(d.buf[:0], d.channel, opcled.CommandSetPixelColors, leds)

	if err := d.conn.SetWriteDeadline(time.Now().Add(d.timeout)); err != nil {
		d.dropConn()
		return fmt.Errorf("failed to set fcserver write deadline: %w", err)
	}

	if _, err := d.conn.Write(d.buf); err != nil {
		d.dropConn()
		return fmt.Errorf("failed to write to fcserver: %w", err)
	}

	return nil
}

// dropConn closes the connection so that the next frame redials. d.mu must
// be held.
func (d *fadecandyDriver) dropConn() {
	d.conn.Close()
	d.conn = nil
}

func (d *fadecandyDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}

	err := d.conn.Close()
	d.conn = nil
	return err
}
