package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/bme680"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// HID report layout
const (
	reportSize = 64
	// maxTransfer is the payload a single I2C write report can carry.
	maxTransfer = 60

	cmdStatus       = 0x10
	cmdWriteData    = 0x90
	cmdReadData     = 0x91
	cmdGetReadData  = 0x40
	statusCancel    = 0x10
	readDataFailure = 0x41
)

var ErrNotFound = errors.New("MCP2221 device not found")
var ErrAmbiguous = errors.New("more than one MCP2221 connected")

var _ bme680.I2CBus = &MCP2221{}

// Device is an opened HID endpoint.
type Device interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// Info describes a connected bridge.
type Info struct {
	Index        int    `yaml:"index"`
	Path         string `yaml:"path"`
	Serial       string `yaml:"serial"`
	Manufacturer string `yaml:"manufacturer"`
	Product      string `yaml:"product"`
}

// Enumerate lists the MCP2221 bridges attached to the host.
func Enumerate() []Info {
	devs := hid.Enumerate(VendorID, ProductID)
	res := make([]Info, 0, len(devs))
	for i, d := range devs {
		res = append(res, Info{
			Index:        i,
			Path:         d.Path,
			Serial:       d.Serial,
			Manufacturer: d.Manufacturer,
			Product:      d.Product,
		})
	}
	return res
}

// MCP2221 drives the I2C engine of a Microchip MCP2221 USB bridge. The HID
// device is opened for every exchange so the bridge can be unplugged between
// commands.
type MCP2221 struct {
	mx           sync.Mutex
	open         func() (Device, error)
	request      []byte
	response     []byte
	responseWait time.Duration
	log          *slog.Logger
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

type MCP2221Opt func(*MCP2221)

// WithIndex selects the bridge by its position in Enumerate. Without it
// exactly one bridge must be connected.
func WithIndex(i int) MCP2221Opt {
	return func(m *MCP2221) {
		m.open = openHID(i)
	}
}

// WithDevice replaces HID discovery with a custom opener.
func WithDevice(open func() (Device, error)) MCP2221Opt {
	return func(m *MCP2221) {
		m.open = open
	}
}

func WithResponseWait(d time.Duration) MCP2221Opt {
	return func(m *MCP2221) {
		m.responseWait = d
	}
}

func WithLogger(l *slog.Logger) MCP2221Opt {
	return func(m *MCP2221) {
		m.log = l
	}
}

func NewMCP2221(opts ...MCP2221Opt) *MCP2221 {
	m := &MCP2221{
		open:         openHID(-1),
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: 50 * time.Millisecond,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func openHID(index int) func() (Device, error) {
	return func() (Device, error) {
		devs := hid.Enumerate(VendorID, ProductID)
		if len(devs) == 0 {
			return nil, ErrNotFound
		}
		if index < 0 {
			if len(devs) > 1 {
				return nil, ErrAmbiguous
			}
			index = 0
		}
		if index >= len(devs) {
			return nil, fmt.Errorf("no device with index %d (%d connected)", index, len(devs))
		}
		dev, err := devs[index].Open()
		if err != nil {
			return nil, fmt.Errorf("error opening device: %w", err)
		}
		return dev, nil
	}
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > maxTransfer {
		return fmt.Errorf("write to %#x: %d bytes exceed a single transfer", address, len(buffer))
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdWriteData
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("write to %#x failed: %w", address, err)
	}
	// write could not be performed
	if d.response[1] == 0x01 {
		d.log.Debug("adapter busy", "address", fmt.Sprintf("%#x", address))
		return bme680.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > maxTransfer {
		return fmt.Errorf("read from %#x: %d bytes exceed a single transfer", address, len(buffer))
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdReadData
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("bus read from %#x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		d.log.Debug("adapter busy", "address", fmt.Sprintf("%#x", address))
		return bme680.ErrBusBusy
	}
	d.resetBuffers()
	d.request[0] = cmdGetReadData
	err = d.send(ctx)
	if err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == readDataFailure {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine")
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
	*/
	status := &MCP2221Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

// Release cancels any pending transfer and frees the I2C engine.
func (d *MCP2221) Release(ctx context.Context) error {
	_, err := d.ReleaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = statusCancel
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("release request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

// send writes the request report and reads the response report.
func (d *MCP2221) send(ctx context.Context) error {
	dev, err := d.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			d.log.Warn("could not close adapter", "error", err)
		}
	}()
	if d.log.Enabled(ctx, slog.LevelDebug) {
		d.log.Debug("sending message to adapter", "report", "\n"+hex.Dump(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	time.Sleep(d.responseWait)
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if d.log.Enabled(ctx, slog.LevelDebug) {
		d.log.Debug("read message from adapter", "report", "\n"+hex.Dump(d.response))
	}
	if d.response[0] != d.request[0] {
		return fmt.Errorf("response to command %#x, expected %#x", d.response[0], d.request[0])
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}
