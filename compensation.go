package bme680

import "math"

// RawSample is the undecoded content of the data field registers.
type RawSample struct {
	Status      byte
	Temperature uint32 // 20 bit
	Pressure    uint32 // 20 bit
	Humidity    uint16
	GasADC      uint16 // 10 bit
	GasRange    byte
	GasValid    bool
	HeatStable  bool
}

// Compensated holds the physical values decoded from a RawSample.
type Compensated struct {
	Temperature   float64 // °C
	Pressure      float64 // Pa
	Humidity      float64 // %RH
	GasResistance float64 // Ω
}

// Compensator converts raw ADC values into physical units using the chip
// calibration. It also computes the heater resistance register code, which
// depends on the same calibration.
type Compensator interface {
	Compensate(raw RawSample) Compensated
	HeaterResistance(target uint16, ambient float64) byte
}

// CompensatorFactory builds a Compensator for an opened chip.
type CompensatorFactory func(cal Calibration, variant Variant) Compensator

// NewCompensator returns the floating point compensation from the Bosch
// reference driver.
func NewCompensator(cal Calibration, variant Variant) Compensator {
	return &floatCompensator{cal: cal, variant: variant}
}

type floatCompensator struct {
	cal     Calibration
	variant Variant
}

var (
	gasRangeK1 = [16]float64{0, 0, 0, 0, 0, -1, 0, -0.8, 0, 0, -0.2, -0.5, 0, -1, 0, 0}
	gasRangeK2 = [16]float64{0, 0, 0, 0, 0.1, 0.7, 0, -0.8, -0.1, 0, 0, 0, 0, 0, 0, 0}
)

func (f *floatCompensator) Compensate(raw RawSample) Compensated {
	tFine, temp := f.temperature(raw.Temperature)
	return Compensated{
		Temperature:   temp,
		Pressure:      f.pressure(raw.Pressure, tFine),
		Humidity:      f.humidity(raw.Humidity, temp),
		GasResistance: f.gas(raw.GasADC, raw.GasRange),
	}
}

func (f *floatCompensator) temperature(adc uint32) (tFine, temp float64) {
	c := f.cal
	v1 := (float64(adc)/16384 - float64(c.T1)/1024) * float64(c.T2)
	d := float64(adc)/131072 - float64(c.T1)/8192
	v2 := d * d * float64(c.T3) * 16
	tFine = v1 + v2
	return tFine, tFine / 5120
}

func (f *floatCompensator) pressure(adc uint32, tFine float64) float64 {
	c := f.cal
	v1 := tFine/2 - 64000
	v2 := v1 * v1 * float64(c.P6) / 131072
	v2 += v1 * float64(c.P5) * 2
	v2 = v2/4 + float64(c.P4)*65536
	v1 = (float64(c.P3)*v1*v1/16384 + float64(c.P2)*v1) / 524288
	v1 = (1 + v1/32768) * float64(c.P1)
	if int(v1) == 0 {
		return 0
	}
	p := 1048576 - float64(adc)
	p = (p - v2/4096) * 6250 / v1
	v1 = float64(c.P9) * p * p / 2147483648
	v2 = p * float64(c.P8) / 32768
	p256 := p / 256
	v3 := p256 * p256 * p256 * float64(c.P10) / 131072
	return p + (v1+v2+v3+float64(c.P7)*128)/16
}

func (f *floatCompensator) humidity(adc uint16, temp float64) float64 {
	c := f.cal
	v1 := float64(adc) - (float64(c.H1)*16 + float64(c.H3)/2*temp)
	v2 := v1 * (float64(c.H2) / 262144 * (1 + float64(c.H4)/16384*temp + float64(c.H5)/1048576*temp*temp))
	v3 := float64(c.H6) / 16384
	v4 := float64(c.H7) / 2097152
	h := v2 + (v3+v4*temp)*v2*v2
	return math.Min(100, math.Max(0, h))
}

func (f *floatCompensator) gas(adc uint16, rng byte) float64 {
	rng &= gasRangeMask
	if f.variant == VariantBME688 {
		v1 := float64(uint32(262144) >> rng)
		v2 := 4096 + (float64(adc)-512)*3
		return 1000000 * v1 / v2
	}
	v1 := 1340 + 5*float64(f.cal.RangeSwErr)
	v2 := v1 * (1 + gasRangeK1[rng]/100)
	v3 := 1 + gasRangeK2[rng]/100
	return 1 / (v3 * 0.000000125 * float64(uint32(1)<<rng) * ((float64(adc)-512)/v2 + 1))
}

func (f *floatCompensator) HeaterResistance(target uint16, ambient float64) byte {
	c := f.cal
	t := float64(min(target, MaxHeaterTemperature))
	v1 := float64(c.GH1)/16 + 49
	v2 := float64(c.GH2)/32768*0.0005 + 0.00235
	v3 := float64(c.GH3) / 1024
	v4 := v1 * (1 + v2*t)
	v5 := v4 + v3*ambient
	res := 3.4 * (v5*(4/(4+float64(c.ResHeatRange)))*(1/(1+float64(c.ResHeatVal)*0.002)) - 25)
	return byte(math.Max(0, math.Min(255, res)))
}
