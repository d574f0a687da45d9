package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"dev.acmcsuf.com/opcled"
	"github.com/kidoman/embd"
	"github.com/spf13/pflag"

	_ "github.com/kidoman/embd/host/rpi"
)

var (
	spiChannel       = uint8(0)
	apa102Brightness = uint8(31)
)

func init() {
	pflag.Uint8Var(&spiChannel, "spi-channel", spiChannel, "SPI chip select of the APA102 strip")
	pflag.Uint8Var(&apa102Brightness, "apa102-brightness", apa102Brightness, "global brightness of the APA102 strip, 0 to 31")
}

// APA102 (DotStar) framing: a start frame of 32 zero bits, one 32-bit frame
// per LED of 0b111 followed by a 5-bit global brightness and then blue,
// green and red, and an end frame of at least n/2 zero bits to clock the
// data through the whole strip.
const (
	apa102StartFrameSize = 4
	apa102MinEndSize     = 4
	apa102LEDHeader      = 0xE0
	apa102MaxBrightness  = 0x1F
)

// apa102Driver writes frames to an APA102 strip on an SPI bus.
type apa102Driver struct {
	bus        io.WriteCloser
	brightness uint8

	mu  sync.Mutex
	buf []byte
}

var _ opcled.StripDriver = (*apa102Driver)(nil)

func newAPA102Driver(ctx context.Context, cfg driverConfig) (opcled.StripDriver, error) {
	if apa102Brightness > apa102MaxBrightness {
		return nil, fmt.Errorf("APA102 brightness must be at most %d", apa102MaxBrightness)
	}

	if err := embd.InitSPI(); err != nil {
		return nil, fmt.Errorf("failed to initialize SPI: %w", err)
	}

	bus := embd.NewSPIBus(embd.SPIMode0, spiChannel, int(spiSpeed), 8, 0)
	return newAPA102Writer(spiBusCloser{bus}, cfg.LEDCount, apa102Brightness), nil
}

func newAPA102Writer(bus io.WriteCloser, ledCount int, brightness uint8) *apa102Driver {
	return &apa102Driver{
		bus:        bus,
		brightness: brightness,
		buf:        make([]byte, 0, apa102FrameSize(ledCount)),
	}
}

func apa102EndSize(ledCount int) int {
	return max((ledCount+15)/16, apa102MinEndSize)
}

func apa102FrameSize(ledCount int) int {
	return apa102StartFrameSize + 4*ledCount + apa102EndSize(ledCount)
}

func (d *apa102Driver) SetLEDs(leds opcled.ColorSet) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.buf = append(d.buf[:0], 0, 0, 0, 0)
	for _, c := range leds {
		d.buf = append(d.buf, apa102LEDHeader|d.brightness, c.B, c.G, c.R)
	}
	for i := 0; i < apa102EndSize(len(leds)); i++ {
		d.buf = append(d.buf, 0)
	}

	if _, err := d.bus.Write(d.buf); err != nil {
		return fmt.Errorf("failed to write to SPI bus: %w", err)
	}

	return nil
}

func (d *apa102Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.bus.Close()
}

// spiBusCloser also releases the embd SPI driver when the bus is closed.
type spiBusCloser struct {
	embd.SPIBus
}

func (b spiBusCloser) Close() error {
	err := b.SPIBus.Close()
	if closeErr := embd.CloseSPI(); err == nil {
		err = closeErr
	}
	return err
}
