package bme680

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfTestPasses(t *testing.T) {
	ctx := context.Background()
	dev := newSimDevice(VariantBME680)
	s := openSim(t, dev)
	require.NoError(t, s.Configure(ctx, scenarioSampling))
	heater := HeaterConfig{Temperature: 320, Duration: 150 * time.Millisecond}
	require.NoError(t, s.ConfigureHeater(ctx, heater))
	d := dev.delayCount()

	require.NoError(t, s.SelfTest(ctx))

	tph := MeasurementDuration(selfTestSampling)
	assert.Equal(t, []time.Duration{
		tph + time.Second,
		tph + 2*time.Second,
		tph + 2*time.Second,
		tph + 2*time.Second,
		tph + 2*time.Second,
		tph + 2*time.Second,
		tph + 2*time.Second,
	}, dev.delaysSince(d))

	cfg, ok := s.Sampling()
	require.True(t, ok)
	assert.Equal(t, scenarioSampling, cfg)
	got, ok := s.Heater()
	require.True(t, ok)
	assert.Equal(t, heater, got)
	assert.Equal(t, byte(0x4C), dev.reg(regCtrlMeas))
	assert.Equal(t, byte(206), dev.reg(regResHeat0))
	assert.Equal(t, byte(0x65), dev.reg(regGasWait0))
	assert.Equal(t, StateIdle, s.State())

	r, err := s.Measure(ctx)
	require.NoError(t, err)
	assert.True(t, r.GasValid)
}

func TestSelfTestWithoutConfiguration(t *testing.T) {
	ctx := context.Background()
	dev := newSimDevice(VariantBME688)
	s := openSim(t, dev)

	require.NoError(t, s.SelfTest(ctx))

	_, ok := s.Sampling()
	assert.False(t, ok)
	_, ok = s.Heater()
	assert.False(t, ok)
	assert.Equal(t, heatOffBit, dev.reg(regCtrlGas0))
	assert.Equal(t, byte(0), dev.reg(regCtrlGas1))
	_, err := s.Measure(ctx)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSelfTestFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(d *simDevice)
		want  error
	}{
		{
			name:  "heater not stable",
			setup: func(d *simDevice) { d.heaterUnstable = true },
			want:  ErrSelfTestFailed,
		},
		{
			name:  "humidity out of range",
			setup: func(d *simDevice) { d.humidityADC = 0 },
			want:  ErrSelfTestFailed,
		},
		{
			name:  "pressure out of range",
			setup: func(d *simDevice) { d.pressureADC = 1048576 - 80000 },
			want:  ErrSelfTestFailed,
		},
		{
			name:  "temperature out of range",
			setup: func(d *simDevice) { d.temperatureADC = 2 * simTemperatureADC * 3 },
			want:  ErrSelfTestFailed,
		},
		{
			name:  "gas resistance ratio",
			setup: func(d *simDevice) { d.coldRange = d.hotRange },
			want:  ErrSelfTestFailed,
		},
		{
			name:  "no new data",
			setup: func(d *simDevice) { d.notReady = 100 },
			want:  ErrSelfTestFailed,
		},
		{
			name:  "bus failure",
			setup: func(d *simDevice) { d.failRead[regField0] = errSimBus },
			want:  ErrTransport,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			dev := newSimDevice(VariantBME680)
			s := openSim(t, dev)
			require.NoError(t, s.Configure(ctx, scenarioSampling))
			tt.setup(dev)

			err := s.SelfTest(ctx)
			assert.ErrorIs(t, err, tt.want)
			cfg, ok := s.Sampling()
			require.True(t, ok)
			assert.Equal(t, scenarioSampling, cfg)
			assert.Equal(t, byte(0x4C), dev.reg(regCtrlMeas))
			assert.Equal(t, StateIdle, s.State())
		})
	}
}

func TestCheckPlausible(t *testing.T) {
	ok := Reading{Temperature: 22, Pressure: 100000, Humidity: 40}
	assert.NoError(t, checkPlausible(ok))

	edges := []Reading{
		{Temperature: -0.5, Pressure: 100000, Humidity: 40},
		{Temperature: 60.5, Pressure: 100000, Humidity: 40},
		{Temperature: 22, Pressure: 89999, Humidity: 40},
		{Temperature: 22, Pressure: 110001, Humidity: 40},
		{Temperature: 22, Pressure: 100000, Humidity: 19.9},
		{Temperature: 22, Pressure: 100000, Humidity: 80.1},
	}
	for _, r := range edges {
		assert.ErrorIs(t, checkPlausible(r), ErrSelfTestFailed, "%+v", r)
	}
}
