// Package nanopi reaches the sensor through the I2C bus of a FriendlyELEC
// NanoPi board using the gobot platform adaptor.
package nanopi

import (
	"context"
	"fmt"
	"time"

	"gobot.io/x/gobot/v2/drivers/i2c"
	friendlyelec "gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/bme680"
)

// DefaultBus is the header I2C bus on the NanoPi NEO.
const DefaultBus = 0

var _ bme680.Opener = Opener{}

// Device is the part of the gobot generic I2C driver used by the transport.
type Device interface {
	Start() error
	Halt() error
	Write(data []byte) error
	Read(data []byte) error
}

type Opener struct {
	Bus int
}

func (o Opener) Open(_ context.Context, address byte) (bme680.Transport, error) {
	npi := friendlyelec.NewNeoAdaptor()
	if err := npi.I2cBusAdaptor.Connect(); err != nil {
		return nil, fmt.Errorf("adaptor connect error: %w", err)
	}
	drv := i2c.NewGenericDriver(npi, "bme680", int(address), func(c i2c.Config) {
		c.SetBus(o.Bus)
	})
	if err := drv.Start(); err != nil {
		_ = npi.I2cBusAdaptor.Finalize()
		return nil, fmt.Errorf("driver start error: %w", err)
	}
	return NewTransport(drv, npi.I2cBusAdaptor.Finalize), nil
}

type Transport struct {
	dev      Device
	finalize func() error
}

// NewTransport wraps a started driver. finalize, when set, runs after the
// driver is halted.
func NewTransport(dev Device, finalize func() error) *Transport {
	return &Transport{dev: dev, finalize: finalize}
}

func (t *Transport) WriteRegister(_ context.Context, reg byte, data []byte) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, reg)
	buf = append(buf, data...)
	if err := t.dev.Write(buf); err != nil {
		return fmt.Errorf("write error at %#x: %w", reg, err)
	}
	return nil
}

func (t *Transport) ReadRegister(_ context.Context, reg byte, buffer []byte) error {
	if err := t.dev.Write([]byte{reg}); err != nil {
		return fmt.Errorf("register select error at %#x: %w", reg, err)
	}
	if err := t.dev.Read(buffer); err != nil {
		return fmt.Errorf("read error at %#x: %w", reg, err)
	}
	return nil
}

func (t *Transport) Delay(d time.Duration) {
	time.Sleep(d)
}

func (t *Transport) Close() error {
	err := t.dev.Halt()
	if t.finalize != nil {
		if ferr := t.finalize(); ferr != nil && err == nil {
			err = ferr
		}
	}
	if err != nil {
		return fmt.Errorf("could not release nanopi bus: %w", err)
	}
	return nil
}
