package bme680

import (
	"fmt"
	"time"
)

// Oversampling is the number of internal samples averaged per channel.
// Increasing it lowers noise but lengthens the conversion.
type Oversampling byte

const (
	OversamplingOff Oversampling = iota
	Oversampling1x
	Oversampling2x
	Oversampling4x
	Oversampling8x
	Oversampling16x
)

var oversamplingCycles = [...]uint32{0, 1, 2, 4, 8, 16}

func (o Oversampling) Valid() bool {
	return o <= Oversampling16x
}

func (o Oversampling) String() string {
	if o == OversamplingOff {
		return "off"
	}
	if !o.Valid() {
		return fmt.Sprintf("invalid(%d)", byte(o))
	}
	return fmt.Sprintf("x%d", oversamplingCycles[o])
}

// ParseOversampling maps a factor (0, 1, 2, 4, 8, 16) to its register value.
func ParseOversampling(factor int) (Oversampling, error) {
	for i, c := range oversamplingCycles {
		if int(c) == factor {
			return Oversampling(i), nil
		}
	}
	return 0, invalidConfig("oversampling factor %d not one of 0, 1, 2, 4, 8, 16", factor)
}

// Filter is the IIR filter coefficient applied to temperature and pressure.
type Filter byte

const (
	FilterOff Filter = iota
	Filter1
	Filter3
	Filter7
	Filter15
	Filter31
	Filter63
	Filter127
)

var filterSizes = [...]int{0, 1, 3, 7, 15, 31, 63, 127}

func (f Filter) Valid() bool {
	return f <= Filter127
}

func (f Filter) String() string {
	if !f.Valid() {
		return fmt.Sprintf("invalid(%d)", byte(f))
	}
	return fmt.Sprintf("%d", filterSizes[f])
}

// ParseFilter maps a filter window size (0, 1, 3, 7, ..., 127) to its register value.
func ParseFilter(size int) (Filter, error) {
	for i, s := range filterSizes {
		if s == size {
			return Filter(i), nil
		}
	}
	return 0, invalidConfig("filter size %d not one of 0, 1, 3, 7, 15, 31, 63, 127", size)
}

// SamplingConfig selects oversampling per channel and the IIR filter.
type SamplingConfig struct {
	Temperature Oversampling `yaml:"temperature"`
	Pressure    Oversampling `yaml:"pressure"`
	Humidity    Oversampling `yaml:"humidity"`
	Filter      Filter       `yaml:"filter"`
}

func (c SamplingConfig) Validate() error {
	if !c.Temperature.Valid() {
		return invalidConfig("temperature oversampling %d", c.Temperature)
	}
	if !c.Pressure.Valid() {
		return invalidConfig("pressure oversampling %d", c.Pressure)
	}
	if !c.Humidity.Valid() {
		return invalidConfig("humidity oversampling %d", c.Humidity)
	}
	if !c.Filter.Valid() {
		return invalidConfig("filter coefficient %d", c.Filter)
	}
	return nil
}

func (c SamplingConfig) ctrlMeas(mode Mode) byte {
	return byte(c.Temperature)<<5 | byte(c.Pressure)<<2 | byte(mode)&modeMask
}

// Heater plate limits.
const (
	MinHeaterTemperature = 200
	MaxHeaterTemperature = 400
	MaxHeaterDuration    = 4032 * time.Millisecond
)

// HeaterConfig is the target plate temperature (°C) and how long it is held
// before the gas resistance is sampled.
type HeaterConfig struct {
	Temperature uint16        `yaml:"temperature"`
	Duration    time.Duration `yaml:"duration"`
}

func (h HeaterConfig) Validate() error {
	if h.Temperature < MinHeaterTemperature || h.Temperature > MaxHeaterTemperature {
		return invalidConfig("heater temperature %d°C outside %d-%d°C", h.Temperature, MinHeaterTemperature, MaxHeaterTemperature)
	}
	if h.Duration < 0 || h.Duration > MaxHeaterDuration {
		return invalidConfig("heater duration %s outside 0-%s", h.Duration, MaxHeaterDuration)
	}
	return nil
}

// heaterDurationCode encodes milliseconds as gas_wait_x: 6 bit value and a 2 bit
// multiplier (1, 4, 16, 64).
func heaterDurationCode(d time.Duration) byte {
	ms := uint32(d / time.Millisecond)
	if ms >= 0xFC0 {
		return 0xFF
	}
	var factor byte
	for ms > 0x3F {
		ms /= 4
		factor++
	}
	return byte(ms) + factor*64
}
