package bme680

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errSimBus = errors.New("sim: bus error")

// Raw ADC values that compensate to 25°C, 101325Pa and 45%RH with simCalibration.
const (
	simTemperatureADC = 81920
	simPressureADC    = 947251
	simHumidityADC    = 5760
)

type regWrite struct {
	reg  byte
	data []byte
}

// simDevice is a register level BME68x model. A forced mode trigger fills the
// field registers from the sim ADC values and the programmed heater.
type simDevice struct {
	mu      sync.Mutex
	variant Variant
	regs    [256]byte

	writes []regWrite
	delays []time.Duration
	opens  int
	closes int

	openErr   error
	failWrite map[byte]error
	failRead  map[byte]error
	// notReady is the number of field polls answered without new data.
	notReady int
	// heaterUnstable clears the heat stable bit in gas results.
	heaterUnstable bool
	// hotRange and coldRange are the gas ranges reported with the heater above
	// and below 200°C.
	hotRange  byte
	coldRange byte

	temperatureADC uint32
	pressureADC    uint32
	humidityADC    uint16

	concurrentOps int64
	maxConcurrent int64
}

func newSimDevice(variant Variant) *simDevice {
	d := &simDevice{
		variant:        variant,
		failWrite:      map[byte]error{},
		failRead:       map[byte]error{},
		hotRange:       4,
		coldRange:      0,
		temperatureADC: simTemperatureADC,
		pressureADC:    simPressureADC,
		humidityADC:    simHumidityADC,
	}
	d.regs[regChipID] = chipID
	d.regs[regVariantID] = byte(variant)
	copy(d.regs[regCoeff1:], simCoeff1())
	copy(d.regs[regCoeff2:], simCoeff2())
	copy(d.regs[regCoeff3:], simCoeff3())
	return d
}

// simCoeff1 carries T2=25600 and P1=6250, everything else zero.
func simCoeff1() []byte {
	b := make([]byte, lenCoeff1)
	b[0], b[1] = 0x00, 0x64
	b[4], b[5] = 0x6A, 0x18
	return b
}

// simCoeff2 carries H2=2048, everything else zero.
func simCoeff2() []byte {
	b := make([]byte, lenCoeff2)
	b[0], b[1] = 0x80, 0x00
	return b
}

func simCoeff3() []byte {
	return make([]byte, lenCoeff3)
}

func (d *simDevice) Open(_ context.Context, address byte) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.opens++
	return d, nil
}

func (d *simDevice) enter() {
	n := atomic.AddInt64(&d.concurrentOps, 1)
	for {
		maxSeen := atomic.LoadInt64(&d.maxConcurrent)
		if n <= maxSeen || atomic.CompareAndSwapInt64(&d.maxConcurrent, maxSeen, n) {
			return
		}
	}
}

func (d *simDevice) leave() {
	atomic.AddInt64(&d.concurrentOps, -1)
}

func (d *simDevice) WriteRegister(_ context.Context, reg byte, data []byte) error {
	d.enter()
	defer d.leave()
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failWrite[reg]; err != nil {
		return err
	}
	d.writes = append(d.writes, regWrite{reg: reg, data: append([]byte(nil), data...)})
	copy(d.regs[reg:], data)
	if reg == regCtrlMeas && len(data) > 0 && Mode(data[0]&modeMask) == ModeForced {
		d.convert()
		// the chip drops back to sleep after a forced cycle
		d.regs[regCtrlMeas] &^= modeMask
	}
	return nil
}

func (d *simDevice) convert() {
	f := d.regs[regField0 : regField0+lenField]
	clear(f)
	f[0] = statusNewData
	f[2] = byte(d.pressureADC >> 12)
	f[3] = byte(d.pressureADC >> 4)
	f[4] = byte(d.pressureADC << 4)
	f[5] = byte(d.temperatureADC >> 12)
	f[6] = byte(d.temperatureADC >> 4)
	f[7] = byte(d.temperatureADC << 4)
	f[8] = byte(d.humidityADC >> 8)
	f[9] = byte(d.humidityADC)

	runGas := runGasLow
	if d.variant == VariantBME688 {
		runGas = runGasHigh
	}
	heating := d.regs[regCtrlGas0]&heatOffBit == 0 && d.regs[regCtrlGas1]&runGas != 0
	if !heating {
		return
	}
	rng := d.coldRange
	if d.regs[regResHeat0] >= 200 {
		rng = d.hotRange
	}
	lsb := gasValidBit | rng
	if !d.heaterUnstable {
		lsb |= heatStabBit
	}
	// gas ADC 512
	if d.variant == VariantBME688 {
		f[15], f[16] = 0x80, lsb
	} else {
		f[13], f[14] = 0x80, lsb
	}
}

func (d *simDevice) ReadRegister(_ context.Context, reg byte, buffer []byte) error {
	d.enter()
	defer d.leave()
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failRead[reg]; err != nil {
		return err
	}
	copy(buffer, d.regs[reg:])
	if reg == regField0 && d.notReady > 0 {
		d.notReady--
		buffer[0] &^= statusNewData
	}
	return nil
}

func (d *simDevice) Delay(t time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delays = append(d.delays, t)
}

func (d *simDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

func (d *simDevice) writeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.writes)
}

func (d *simDevice) writesSince(n int) []regWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]regWrite(nil), d.writes[n:]...)
}

func (d *simDevice) delayCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.delays)
}

func (d *simDevice) delaysSince(n int) []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Duration(nil), d.delays[n:]...)
}

func (d *simDevice) reg(r byte) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[r]
}

func openSim(t *testing.T, d *simDevice, opts ...Opt) *Sensor {
	t.Helper()
	s := New(d, opts...)
	require.NoError(t, s.Open(context.Background(), AddressLow))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// scenarioSampling is T×2, P×4, H×1 with a filter of 3.
var scenarioSampling = SamplingConfig{
	Temperature: Oversampling2x,
	Pressure:    Oversampling4x,
	Humidity:    Oversampling1x,
	Filter:      Filter3,
}
