package i2c

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mklimuk/bme680"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var _ bme680.Opener = Opener{}
var _ bme680.Transport = &Transport{}

// Opener opens a Linux I2C adapter through periph. Every Open acquires its
// own bus handle which is closed together with the transport.
type Opener struct {
	// Device is the bus name or number as understood by i2creg, e.g.
	// "/dev/i2c-1" or "1". Empty selects the first bus.
	Device string
	// Speed sets the bus clock when non-zero.
	Speed physic.Frequency
}

func (o Opener) Open(_ context.Context, address byte) (bme680.Transport, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("periph driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(o.Device)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus %q: %w", o.Device, err)
	}
	if o.Speed > 0 {
		if err := bus.SetSpeed(o.Speed); err != nil {
			_ = bus.Close()
			return nil, fmt.Errorf("could not set bus speed to %s: %w", o.Speed, err)
		}
	}
	return NewTransport(bus, address), nil
}

// Transport addresses the registers of one device on a periph bus. Reads use
// a combined write/read transaction so the register pointer and the data
// phase are separated by a repeated start.
type Transport struct {
	dev *i2c.Dev
}

func NewTransport(bus i2c.Bus, address byte) *Transport {
	return &Transport{dev: &i2c.Dev{Bus: bus, Addr: uint16(address)}}
}

func (t *Transport) WriteRegister(_ context.Context, reg byte, data []byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, reg)
	w = append(w, data...)
	if err := t.dev.Tx(w, nil); err != nil {
		return fmt.Errorf("could not write register %#x at %#x: %w", reg, t.dev.Addr, err)
	}
	return nil
}

func (t *Transport) ReadRegister(_ context.Context, reg byte, buffer []byte) error {
	if err := t.dev.Tx([]byte{reg}, buffer); err != nil {
		return fmt.Errorf("could not read register %#x at %#x: %w", reg, t.dev.Addr, err)
	}
	return nil
}

func (t *Transport) Delay(d time.Duration) {
	time.Sleep(d)
}

// Close closes the underlying bus when it is closable.
func (t *Transport) Close() error {
	if c, ok := t.dev.Bus.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
