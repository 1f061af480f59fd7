// Package smbus connects to the sensor through the Linux SMBus ioctl interface
// (/dev/i2c-N) using I2C block transfers.
package smbus

import (
	"context"
	"fmt"
	"time"

	daq "github.com/go-daq/smbus"

	"github.com/mklimuk/bme680"
)

// maxBlock is the SMBus I2C block transfer limit.
const maxBlock = 32

var _ bme680.Opener = Opener{}

// Conn is the subset of *smbus.Conn used by the transport.
type Conn interface {
	ReadBlockData(addr, reg uint8, buf []byte) error
	WriteBlockData(addr, reg uint8, buf []byte) error
	WriteReg(addr, reg, v uint8) error
	Close() error
}

// Opener opens /dev/i2c-<Bus>.
type Opener struct {
	Bus int
}

func (o Opener) Open(_ context.Context, address byte) (bme680.Transport, error) {
	conn, err := daq.Open(o.Bus, address)
	if err != nil {
		return nil, fmt.Errorf("could not open smbus %d at %#x: %w", o.Bus, address, err)
	}
	return NewTransport(conn, address), nil
}

type Transport struct {
	conn Conn
	addr uint8
}

func NewTransport(conn Conn, address byte) *Transport {
	return &Transport{conn: conn, addr: address}
}

func (t *Transport) WriteRegister(_ context.Context, reg byte, data []byte) error {
	var err error
	switch {
	case len(data) == 1:
		err = t.conn.WriteReg(t.addr, reg, data[0])
	case len(data) <= maxBlock:
		err = t.conn.WriteBlockData(t.addr, reg, data)
	default:
		return fmt.Errorf("smbus: write of %d bytes exceeds block size", len(data))
	}
	if err != nil {
		return fmt.Errorf("smbus: write register %#x: %w", reg, err)
	}
	return nil
}

// ReadRegister splits reads longer than a block into consecutive transfers;
// the chip auto-increments the register address.
func (t *Transport) ReadRegister(_ context.Context, reg byte, buffer []byte) error {
	for off := 0; off < len(buffer); off += maxBlock {
		end := min(off+maxBlock, len(buffer))
		if err := t.conn.ReadBlockData(t.addr, reg+byte(off), buffer[off:end]); err != nil {
			return fmt.Errorf("smbus: read register %#x: %w", reg+byte(off), err)
		}
	}
	return nil
}

func (t *Transport) Delay(d time.Duration) {
	time.Sleep(d)
}

func (t *Transport) Close() error {
	return t.conn.Close()
}
