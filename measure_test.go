package bme680

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasureScenario(t *testing.T) {
	ctx := context.Background()
	dev := newSimDevice(VariantBME680)
	s := openSim(t, dev)
	require.NoError(t, s.Configure(ctx, scenarioSampling))
	heater := HeaterConfig{Temperature: 320, Duration: 150 * time.Millisecond}
	require.NoError(t, s.ConfigureHeater(ctx, heater))
	w, d := dev.writeCount(), dev.delayCount()

	r, err := s.Measure(ctx)
	require.NoError(t, err)

	assert.Equal(t, []regWrite{{reg: regCtrlMeas, data: []byte{0x4D}}}, dev.writesSince(w))
	// 7 cycles, switching, wake up and the heater phase
	assert.Equal(t, []time.Duration{169034 * time.Microsecond}, dev.delaysSince(d))

	assert.True(t, r.TemperatureValid)
	assert.True(t, r.PressureValid)
	assert.True(t, r.HumidityValid)
	assert.True(t, r.GasValid)
	assert.InDelta(t, 25.0, r.Temperature, 1e-9)
	assert.InDelta(t, 101325.0, r.Pressure, 1e-6)
	assert.InDelta(t, 45.0, r.Humidity, 1e-9)
	assert.InDelta(t, 499500.5, r.GasResistance, 1)
	assert.False(t, r.Time.IsZero())

	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, ModeSleep, s.Mode())
}

func TestMeasureBME688Gas(t *testing.T) {
	ctx := context.Background()
	dev := newSimDevice(VariantBME688)
	s := openSim(t, dev)
	require.NoError(t, s.Configure(ctx, scenarioSampling))
	require.NoError(t, s.ConfigureHeater(ctx, HeaterConfig{Temperature: 320, Duration: 150 * time.Millisecond}))

	r, err := s.Measure(ctx)
	require.NoError(t, err)
	assert.True(t, r.GasValid)
	// 262144 >> 4 / 4096 MΩ
	assert.InDelta(t, 4e6, r.GasResistance, 1e-3)
}

func TestMeasureNotConfigured(t *testing.T) {
	dev := newSimDevice(VariantBME680)
	s := openSim(t, dev)
	require.NoError(t, s.ConfigureHeater(context.Background(), HeaterConfig{Temperature: 300, Duration: 100 * time.Millisecond}))
	n := dev.writeCount()

	_, err := s.Measure(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, n, dev.writeCount(), "no transport write")
	assert.Equal(t, StateIdle, s.State())
}

func TestMeasureWithoutHeater(t *testing.T) {
	ctx := context.Background()
	dev := newSimDevice(VariantBME680)
	s := openSim(t, dev)
	require.NoError(t, s.Configure(ctx, scenarioSampling))
	d := dev.delayCount()

	r, err := s.Measure(ctx)
	require.NoError(t, err)
	assert.False(t, r.GasValid)
	assert.Zero(t, r.GasResistance)
	assert.True(t, r.TemperatureValid)
	assert.Equal(t, []time.Duration{MeasurementDuration(scenarioSampling)}, dev.delaysSince(d))
}

func TestMeasureHeaterUnstable(t *testing.T) {
	ctx := context.Background()
	dev := newSimDevice(VariantBME680)
	dev.heaterUnstable = true
	s := openSim(t, dev)
	require.NoError(t, s.Configure(ctx, scenarioSampling))
	require.NoError(t, s.ConfigureHeater(ctx, HeaterConfig{Temperature: 320, Duration: 150 * time.Millisecond}))

	r, err := s.Measure(ctx)
	require.NoError(t, err)
	assert.False(t, r.GasValid)
	assert.True(t, r.HumidityValid)
}

func TestMeasureAfterDisableHeater(t *testing.T) {
	ctx := context.Background()
	dev := newSimDevice(VariantBME680)
	s := openSim(t, dev)
	require.NoError(t, s.Configure(ctx, scenarioSampling))
	require.NoError(t, s.ConfigureHeater(ctx, HeaterConfig{Temperature: 320, Duration: 150 * time.Millisecond}))
	require.NoError(t, s.DisableHeater(ctx))

	r, err := s.Measure(ctx)
	require.NoError(t, err)
	assert.False(t, r.GasValid)
}

func TestMeasureEveryValidConfig(t *testing.T) {
	ctx := context.Background()
	oversampling := []Oversampling{OversamplingOff, Oversampling1x, Oversampling2x, Oversampling4x, Oversampling8x, Oversampling16x}
	dev := newSimDevice(VariantBME680)
	s := openSim(t, dev)
	for _, ost := range oversampling {
		for _, osp := range oversampling {
			for _, osh := range oversampling {
				cfg := SamplingConfig{Temperature: ost, Pressure: osp, Humidity: osh, Filter: Filter(int(ost+osp+osh) % 8)}
				require.NoError(t, s.Configure(ctx, cfg), cfg)
				r, err := s.Measure(ctx)
				require.NoError(t, err, cfg)
				assert.Equal(t, ost != OversamplingOff, r.TemperatureValid, cfg)
				assert.Equal(t, ost != OversamplingOff && osp != OversamplingOff, r.PressureValid, cfg)
				assert.Equal(t, ost != OversamplingOff && osh != OversamplingOff, r.HumidityValid, cfg)
				assert.False(t, r.GasValid, cfg)
				assert.Equal(t, StateIdle, s.State())
			}
		}
	}
}

func TestConversionDelayMonotonic(t *testing.T) {
	oversampling := []Oversampling{OversamplingOff, Oversampling1x, Oversampling2x, Oversampling4x, Oversampling8x, Oversampling16x}
	base := SamplingConfig{Temperature: Oversampling2x, Pressure: Oversampling2x, Humidity: Oversampling2x}
	fields := map[string]func(c *SamplingConfig, o Oversampling){
		"temperature": func(c *SamplingConfig, o Oversampling) { c.Temperature = o },
		"pressure":    func(c *SamplingConfig, o Oversampling) { c.Pressure = o },
		"humidity":    func(c *SamplingConfig, o Oversampling) { c.Humidity = o },
	}
	for name, set := range fields {
		t.Run(name, func(t *testing.T) {
			prev := time.Duration(0)
			for _, o := range oversampling {
				cfg := base
				set(&cfg, o)
				d := MeasurementDuration(cfg)
				assert.GreaterOrEqual(t, d, prev, o.String())
				prev = d
			}
		})
	}
}

func TestConversionDelay(t *testing.T) {
	off := SamplingConfig{}
	// switching and wake up only
	assert.Equal(t, 5293*time.Microsecond, MeasurementDuration(off))
	assert.Equal(t, 5293*time.Microsecond, ConversionDelay(off, nil))
	heater := &HeaterConfig{Temperature: 300, Duration: 100 * time.Millisecond}
	assert.Equal(t, 105293*time.Microsecond, ConversionDelay(off, heater))
	full := SamplingConfig{Temperature: Oversampling16x, Pressure: Oversampling16x, Humidity: Oversampling16x}
	assert.Equal(t, (48*1963+5293)*time.Microsecond, MeasurementDuration(full))
}

func TestMeasurementTimeout(t *testing.T) {
	ctx := context.Background()
	dev := newSimDevice(VariantBME680)
	s := openSim(t, dev)
	require.NoError(t, s.Configure(ctx, scenarioSampling))
	dev.notReady = 5
	d := dev.delayCount()

	_, err := s.Measure(ctx)
	assert.ErrorIs(t, err, ErrMeasurementTimeout)
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, ModeSleep, s.Mode())
	assert.Equal(t, []time.Duration{
		MeasurementDuration(scenarioSampling),
		10 * time.Millisecond,
		10 * time.Millisecond,
		10 * time.Millisecond,
		10 * time.Millisecond,
	}, dev.delaysSince(d))

	r, err := s.Measure(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, r.Temperature, 1e-9)
}

func TestMeasurePollRecovers(t *testing.T) {
	ctx := context.Background()
	dev := newSimDevice(VariantBME680)
	s := openSim(t, dev, WithPollInterval(20*time.Millisecond))
	require.NoError(t, s.Configure(ctx, scenarioSampling))
	dev.notReady = 2
	d := dev.delayCount()

	_, err := s.Measure(ctx)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{
		MeasurementDuration(scenarioSampling),
		20 * time.Millisecond,
		20 * time.Millisecond,
	}, dev.delaysSince(d))
}

func TestMeasurePollAttempts(t *testing.T) {
	ctx := context.Background()
	dev := newSimDevice(VariantBME680)
	s := openSim(t, dev, WithPollAttempts(2))
	require.NoError(t, s.Configure(ctx, scenarioSampling))
	dev.notReady = 2

	_, err := s.Measure(ctx)
	assert.ErrorIs(t, err, ErrMeasurementTimeout)
}

func TestMeasureTransportErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(d *simDevice)
	}{
		{name: "trigger", setup: func(d *simDevice) { d.failWrite[regCtrlMeas] = errSimBus }},
		{name: "fetch", setup: func(d *simDevice) { d.failRead[regField0] = errSimBus }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			dev := newSimDevice(VariantBME680)
			s := openSim(t, dev)
			require.NoError(t, s.Configure(ctx, scenarioSampling))
			tt.setup(dev)

			_, err := s.Measure(ctx)
			assert.ErrorIs(t, err, ErrTransport)
			assert.ErrorIs(t, err, errSimBus)
			assert.Equal(t, StateIdle, s.State())
			assert.Equal(t, ModeSleep, s.Mode())
		})
	}
}

func TestMeasureRewritesConfigAfterPartialConfigure(t *testing.T) {
	ctx := context.Background()
	dev := newSimDevice(VariantBME680)
	s := openSim(t, dev)
	require.NoError(t, s.Configure(ctx, scenarioSampling))

	dev.failWrite[regConfig] = errSimBus
	other := SamplingConfig{Temperature: Oversampling16x, Pressure: Oversampling16x, Humidity: Oversampling16x, Filter: Filter127}
	require.Error(t, s.Configure(ctx, other))
	cfg, _ := s.Sampling()
	assert.Equal(t, scenarioSampling, cfg)

	delete(dev.failWrite, regConfig)
	n := dev.writeCount()
	_, err := s.Measure(ctx)
	require.NoError(t, err)
	assert.Equal(t, []regWrite{
		{reg: regCtrlHum, data: []byte{0x01}},
		{reg: regConfig, data: []byte{0x08}},
		{reg: regCtrlMeas, data: []byte{0x4C}},
		{reg: regCtrlMeas, data: []byte{0x4D}},
	}, dev.writesSince(n))
}

func TestMeasureSerialised(t *testing.T) {
	ctx := context.Background()
	dev := newSimDevice(VariantBME680)
	s := openSim(t, dev)
	require.NoError(t, s.Configure(ctx, scenarioSampling))
	require.NoError(t, s.ConfigureHeater(ctx, HeaterConfig{Temperature: 320, Duration: 150 * time.Millisecond}))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Measure(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(1), dev.maxConcurrent, "bus access must be serialised")
}
