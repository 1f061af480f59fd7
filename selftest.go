package bme680

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	selfTestHighTemperature = 350
	selfTestLowTemperature  = 150
	selfTestWarmUp          = 1000 * time.Millisecond
	selfTestCycleDuration   = 2000 * time.Millisecond
	selfTestCycles          = 6
	// minimum ratio between the gas resistance at the low and high heater
	// temperature
	selfTestMinResistanceRatio = 6

	selfTestMinTemperature = 0.0
	selfTestMaxTemperature = 60.0
	selfTestMinPressure    = 90000.0
	selfTestMaxPressure    = 110000.0
	selfTestMinHumidity    = 20.0
	selfTestMaxHumidity    = 80.0
)

var selfTestSampling = SamplingConfig{
	Temperature: Oversampling2x,
	Pressure:    Oversampling16x,
	Humidity:    Oversampling1x,
	Filter:      FilterOff,
}

// SelfTest checks the heater plate and the plausibility of the environment
// readings. It takes about 13 seconds. The session configuration is restored
// afterwards; when none was set the heater is switched off and Measure keeps
// failing with ErrNotConfigured.
func (s *Sensor) SelfTest(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.transport == nil {
		return ErrNotInitialized
	}
	sampling, heater := s.sampling, s.heater
	err := s.selfTest(ctx)
	if rerr := s.restore(ctx, sampling, heater); rerr != nil {
		if err == nil {
			return fmt.Errorf("bme680: restore after self test: %w", rerr)
		}
		s.log.Warn("bme680: could not restore configuration after self test", "error", rerr)
	}
	return err
}

func (s *Sensor) selfTest(ctx context.Context) error {
	s.log.Info("bme680: self test started", "address", fmt.Sprintf("%#x", s.addr))
	if err := s.writeSampling(ctx, selfTestSampling); err != nil {
		return fmt.Errorf("bme680: self test: %w", err)
	}
	heater := HeaterConfig{Temperature: selfTestHighTemperature, Duration: selfTestWarmUp}
	if err := s.writeHeater(ctx, heater); err != nil {
		return fmt.Errorf("bme680: self test: %w", err)
	}
	r, raw, err := s.measure(ctx, selfTestSampling, &heater)
	if err != nil {
		return selfTestError(err)
	}
	if !raw.GasValid || !raw.HeatStable {
		return fmt.Errorf("%w: heater not stable at %d°C", ErrSelfTestFailed, heater.Temperature)
	}
	if err := checkPlausible(r); err != nil {
		return err
	}

	var gas [selfTestCycles]float64
	for i := range gas {
		heater = HeaterConfig{Temperature: selfTestHighTemperature, Duration: selfTestCycleDuration}
		if i%2 == 1 {
			heater.Temperature = selfTestLowTemperature
		}
		if err := s.writeHeater(ctx, heater); err != nil {
			return fmt.Errorf("bme680: self test: %w", err)
		}
		_, raw, err := s.measure(ctx, selfTestSampling, &heater)
		if err != nil {
			return selfTestError(err)
		}
		if !raw.GasValid {
			return fmt.Errorf("%w: gas reading %d at %d°C not valid", ErrSelfTestFailed, i, heater.Temperature)
		}
		gas[i] = s.comp.Compensate(raw).GasResistance
		s.log.Debug("bme680: self test gas", "cycle", i, "heater", heater.Temperature, "resistance", gas[i])
	}
	high := gas[2] + gas[4]
	if high <= 0 {
		return fmt.Errorf("%w: no gas resistance at %d°C", ErrSelfTestFailed, selfTestHighTemperature)
	}
	ratio := 5 * (gas[3] + gas[5]) / (2 * high)
	if ratio < selfTestMinResistanceRatio {
		return fmt.Errorf("%w: gas resistance ratio %.2f below %d", ErrSelfTestFailed, ratio, selfTestMinResistanceRatio)
	}
	s.log.Info("bme680: self test passed", "ratio", ratio)
	return nil
}

// selfTestError keeps bus failures as transport errors; a chip that does not
// deliver data fails the test.
func selfTestError(err error) error {
	if errors.Is(err, ErrMeasurementTimeout) {
		return fmt.Errorf("%w: %w", ErrSelfTestFailed, err)
	}
	return fmt.Errorf("bme680: self test: %w", err)
}

func checkPlausible(r Reading) error {
	if r.Temperature < selfTestMinTemperature || r.Temperature > selfTestMaxTemperature {
		return fmt.Errorf("%w: temperature %.2f°C out of range", ErrSelfTestFailed, r.Temperature)
	}
	if r.Pressure < selfTestMinPressure || r.Pressure > selfTestMaxPressure {
		return fmt.Errorf("%w: pressure %.0fPa out of range", ErrSelfTestFailed, r.Pressure)
	}
	if r.Humidity < selfTestMinHumidity || r.Humidity > selfTestMaxHumidity {
		return fmt.Errorf("%w: humidity %.2f%% out of range", ErrSelfTestFailed, r.Humidity)
	}
	return nil
}

func (s *Sensor) restore(ctx context.Context, sampling *SamplingConfig, heater *HeaterConfig) error {
	s.sampling = sampling
	s.heater = heater
	if sampling != nil {
		if err := s.writeSampling(ctx, *sampling); err != nil {
			s.resync = true
			s.heaterResync = true
			return err
		}
		s.resync = false
	}
	if err := s.syncHeater(ctx); err != nil {
		s.heaterResync = true
		return err
	}
	s.heaterResync = false
	return nil
}
