package bme680

import (
	"context"
	"fmt"
	"time"
)

// Mode is the chip operating mode held in the low bits of ctrl_meas.
type Mode byte

const (
	ModeSleep Mode = iota
	ModeForced
)

func (m Mode) String() string {
	switch m {
	case ModeSleep:
		return "sleep"
	case ModeForced:
		return "forced"
	default:
		return fmt.Sprintf("mode(%d)", byte(m))
	}
}

// State is the step of a forced measurement cycle.
type State byte

const (
	StateIdle State = iota
	StateTriggered
	StateAwaiting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTriggered:
		return "triggered"
	case StateAwaiting:
		return "awaiting"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", byte(s))
	}
}

// Conversion timings in microseconds.
const (
	cycleDuration  = 1963
	switchDuration = 477
	tphSwitches    = 4
	gasSwitches    = 5
	wakeUpDuration = 1000
)

// MeasurementDuration is the TPHG conversion time of one forced cycle without
// the heater phase.
func MeasurementDuration(cfg SamplingConfig) time.Duration {
	cycles := oversamplingCycles[cfg.Temperature] + oversamplingCycles[cfg.Pressure] + oversamplingCycles[cfg.Humidity]
	us := cycles*cycleDuration + tphSwitches*switchDuration + gasSwitches*switchDuration + wakeUpDuration
	return time.Duration(us) * time.Microsecond
}

// ConversionDelay is how long Measure waits after the trigger before the first
// status poll.
func ConversionDelay(cfg SamplingConfig, heater *HeaterConfig) time.Duration {
	d := MeasurementDuration(cfg)
	if heater != nil {
		d += heater.Duration
	}
	return d
}

// Measure runs a single forced measurement with the stored configuration and
// returns the compensated reading. It blocks for the whole conversion and
// cannot be cancelled once triggered.
func (s *Sensor) Measure(ctx context.Context) (Reading, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.transport == nil {
		return Reading{}, ErrNotInitialized
	}
	if s.sampling == nil {
		return Reading{}, ErrNotConfigured
	}
	if s.resync {
		if err := s.writeSampling(ctx, *s.sampling); err != nil {
			return Reading{}, fmt.Errorf("bme680: restore sampling: %w", err)
		}
		s.resync = false
	}
	if s.heaterResync {
		if err := s.syncHeater(ctx); err != nil {
			return Reading{}, fmt.Errorf("bme680: restore heater: %w", err)
		}
		s.heaterResync = false
	}
	r, _, err := s.measure(ctx, *s.sampling, s.heater)
	return r, err
}

// measure drives Idle → Triggered → Awaiting → Ready and always leaves the
// machine in Idle with the mode back to sleep.
func (s *Sensor) measure(ctx context.Context, cfg SamplingConfig, heater *HeaterConfig) (Reading, RawSample, error) {
	defer func() {
		s.mode = ModeSleep
		s.setState(StateIdle)
	}()
	if err := s.write(ctx, regCtrlMeas, cfg.ctrlMeas(ModeForced)); err != nil {
		return Reading{}, RawSample{}, fmt.Errorf("bme680: trigger: %w", err)
	}
	s.mode = ModeForced
	s.setState(StateTriggered)

	delay := ConversionDelay(cfg, heater)
	s.setState(StateAwaiting)
	s.transport.Delay(delay)

	raw, err := s.poll(ctx)
	if err != nil {
		return Reading{}, RawSample{}, err
	}
	s.setState(StateReady)
	return s.decode(raw, cfg, heater), raw, nil
}

func (s *Sensor) poll(ctx context.Context) (RawSample, error) {
	buf := make([]byte, lenField)
	for attempt := 1; attempt <= s.config.PollAttempts; attempt++ {
		if err := s.read(ctx, regField0, buf); err != nil {
			return RawSample{}, fmt.Errorf("bme680: fetch: %w", err)
		}
		if buf[0]&statusNewData != 0 {
			return s.parseField(buf), nil
		}
		s.log.Debug("bme680: data not ready", "attempt", attempt, "status", fmt.Sprintf("%#x", buf[0]))
		if attempt < s.config.PollAttempts {
			s.transport.Delay(s.config.PollInterval)
		}
	}
	return RawSample{}, fmt.Errorf("%w: no new data after %d polls", ErrMeasurementTimeout, s.config.PollAttempts)
}

// parseField splits the 0x1D field block into raw ADC values. The BME688 keeps
// its gas result two registers further than the BME680.
func (s *Sensor) parseField(buf []byte) RawSample {
	raw := RawSample{
		Status:      buf[0],
		Pressure:    uint32(buf[2])<<12 | uint32(buf[3])<<4 | uint32(buf[4])>>4,
		Temperature: uint32(buf[5])<<12 | uint32(buf[6])<<4 | uint32(buf[7])>>4,
		Humidity:    uint16(buf[8])<<8 | uint16(buf[9]),
	}
	msb, lsb := buf[13], buf[14]
	if s.variant == VariantBME688 {
		msb, lsb = buf[15], buf[16]
	}
	raw.GasADC = uint16(msb)<<2 | uint16(lsb)>>6
	raw.GasRange = lsb & gasRangeMask
	raw.GasValid = lsb&gasValidBit != 0
	raw.HeatStable = lsb&heatStabBit != 0
	return raw
}

// decode compensates raw and flags each channel. Pressure and humidity depend
// on the temperature channel. Invalid channels are zeroed.
func (s *Sensor) decode(raw RawSample, cfg SamplingConfig, heater *HeaterConfig) Reading {
	c := s.comp.Compensate(raw)
	r := Reading{
		TemperatureValid: cfg.Temperature != OversamplingOff,
		Time:             time.Now(),
	}
	r.PressureValid = r.TemperatureValid && cfg.Pressure != OversamplingOff
	r.HumidityValid = r.TemperatureValid && cfg.Humidity != OversamplingOff
	r.GasValid = heater != nil && raw.GasValid && raw.HeatStable
	if r.TemperatureValid {
		r.Temperature = c.Temperature
	}
	if r.PressureValid {
		r.Pressure = c.Pressure
	}
	if r.HumidityValid {
		r.Humidity = c.Humidity
	}
	if r.GasValid {
		r.GasResistance = c.GasResistance
	}
	return r
}

func (s *Sensor) setState(next State) {
	if s.state == next {
		return
	}
	s.log.Debug("bme680: state", "from", s.state, "to", next)
	s.state = next
}
