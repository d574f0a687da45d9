package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"dev.acmcsuf.com/opcled"
	"github.com/spf13/pflag"
	"libdb.so/ledctl"
)

var (
	gpioPin   = 12
	spiDevice = "/dev/spidev0.0"
	spiSpeed  = uint32(12000000)
)

func init() {
	pflag.IntVar(&gpioPin, "gpio-pin", gpioPin, "GPIO pin of the WS281x data line")
	pflag.StringVar(&spiDevice, "spi-device", spiDevice, "SPI device of the LPD8806 strip")
	pflag.Uint32Var(&spiSpeed, "spi-speed", spiSpeed, "SPI speed of the LPD8806 strip in Hz")
}

var ws281xConfig = ledctl.WS281xConfig{
	ColorOrder:   ledctl.GRBOrder,
	ColorModel:   ledctl.RGBModel,
	PWMFrequency: 800000,
	DMAChannel:   10,
}

// RGBController is a controller for RGB LEDs.
type RGBController interface {
	SetRGBAt(i int, color ledctl.RGB)
	Flush() error
	Close() error
}

var (
	_ RGBController = (*ledctl.WS281x)(nil)
	_ RGBController = (*ledctl.LPD8806)(nil)
)

// ledctlDriver writes frames to a strip through ledctl.
type ledctlDriver struct {
	ctrl   RGBController
	ctrlMu sync.Mutex

	// dev is the device file of SPI strips, which ledctl does not close.
	dev *os.File
}

var _ opcled.StripDriver = (*ledctlDriver)(nil)

func newWS281xDriver(ctx context.Context, cfg driverConfig) (opcled.StripDriver, error) {
	ws281xCfg := ws281xConfig
	ws281xCfg.NumPixels = cfg.LEDCount
	ws281xCfg.GPIOPins = []int{gpioPin}

	ws281x, err := ledctl.NewWS281x(ws281xCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create a WS281x controller: %v", err)
	}

	return &ledctlDriver{ctrl: ws281x}, nil
}

func newLPD8806Driver(ctx context.Context, cfg driverConfig) (opcled.StripDriver, error) {
	dev, err := os.OpenFile(spiDevice, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI device: %w", err)
	}

	lpd8806, err := ledctl.NewLPD8806(ledctl.LPD8806Config{
		Device:     dev,
		NumPixels:  cfg.LEDCount,
		SPISpeed:   spiSpeed,
		ColorOrder: ledctl.GRBOrder,
		ColorModel: ledctl.RGBModel,
	})
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("failed to create a LPD8806 controller: %v", err)
	}

	return &ledctlDriver{ctrl: lpd8806, dev: dev}, nil
}

func (d *ledctlDriver) SetLEDs(leds opcled.ColorSet) error {
	d.ctrlMu.Lock()
	defer d.ctrlMu.Unlock()

	for i, color := range leds {
		d.ctrl.SetRGBAt(i, ledctl.RGB(color))
	}

	if err := d.ctrl.Flush(); err != nil {
		return fmt.Errorf("failed to flush LED strip: %w", err)
	}

	return nil
}

func (d *ledctlDriver) Close() error {
	d.ctrlMu.Lock()
	defer d.ctrlMu.Unlock()

	err := d.ctrl.Close()
	if d.dev != nil {
		if closeErr := d.dev.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}
