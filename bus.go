package bme680

import (
	"context"
	"fmt"
	"time"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus is a raw addressable bus such as a USB bridge or a Linux adapter.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// Transport is a register level connection to a single device.
// All operations are synchronous. Delay blocks the caller and cannot be
// interrupted.
type Transport interface {
	WriteRegister(ctx context.Context, reg byte, data []byte) error
	ReadRegister(ctx context.Context, reg byte, buffer []byte) error
	Delay(d time.Duration)
	Close() error
}

// Opener establishes a Transport to the device at the given 7-bit address.
type Opener interface {
	Open(ctx context.Context, address byte) (Transport, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, address byte) (Transport, error)

func (f OpenerFunc) Open(ctx context.Context, address byte) (Transport, error) {
	return f(ctx, address)
}

// BusOpener opens register transports on top of a shared I2CBus.
// Closing a transport releases the bus but does not close it.
type BusOpener struct {
	Bus I2CBus
}

func (o BusOpener) Open(_ context.Context, address byte) (Transport, error) {
	if o.Bus == nil {
		return nil, fmt.Errorf("no bus")
	}
	return NewRegisterTransport(o.Bus, address), nil
}

// RegisterTransport maps register accesses onto plain addressed transfers:
// a write sends the register pointer followed by the payload, a read sets the
// register pointer and then reads.
type RegisterTransport struct {
	bus  I2CBus
	addr byte
}

func NewRegisterTransport(bus I2CBus, address byte) *RegisterTransport {
	return &RegisterTransport{bus: bus, addr: address}
}

func (t *RegisterTransport) WriteRegister(ctx context.Context, reg byte, data []byte) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, reg)
	buf = append(buf, data...)
	if err := t.bus.WriteToAddr(ctx, t.addr, buf); err != nil {
		return fmt.Errorf("could not write register %#x: %w", reg, err)
	}
	return nil
}

func (t *RegisterTransport) ReadRegister(ctx context.Context, reg byte, buffer []byte) error {
	if err := t.bus.WriteToAddr(ctx, t.addr, []byte{reg}); err != nil {
		return fmt.Errorf("could not set register pointer %#x: %w", reg, err)
	}
	if err := t.bus.ReadFromAddr(ctx, t.addr, buffer); err != nil {
		return fmt.Errorf("could not read register %#x: %w", reg, err)
	}
	return nil
}

func (t *RegisterTransport) Delay(d time.Duration) {
	time.Sleep(d)
}

func (t *RegisterTransport) Close() error {
	return t.bus.Release(context.Background())
}
