package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/bme680"
	"github.com/mklimuk/bme680/adapter"
	"github.com/mklimuk/bme680/cmd/bme680/console"
	"github.com/mklimuk/bme680/i2c"
	"github.com/mklimuk/bme680/nanopi"
	"github.com/mklimuk/bme680/smbus"
)

const (
	transportPeriph  = "periph"
	transportSMBus   = "smbus"
	transportNanoPi  = "nanopi"
	transportMCP2221 = "mcp2221"
)

// profile is the on-disk connection and measurement setup. Sampling values
// are oversampling factors and the filter window size as printed in the
// datasheet, not register codes.
type profile struct {
	Transport    string          `yaml:"transport"`
	Device       string          `yaml:"device"`
	Bus          int             `yaml:"bus"`
	AdapterIndex int             `yaml:"adapter_index"`
	Address      string          `yaml:"address"`
	Ambient      float64         `yaml:"ambient"`
	Sampling     samplingProfile `yaml:"sampling"`
	Heater       heaterProfile   `yaml:"heater"`
}

type samplingProfile struct {
	Temperature int `yaml:"temperature"`
	Pressure    int `yaml:"pressure"`
	Humidity    int `yaml:"humidity"`
	Filter      int `yaml:"filter"`
}

type heaterProfile struct {
	Disabled    bool          `yaml:"disabled"`
	Temperature uint16        `yaml:"temperature"`
	Duration    time.Duration `yaml:"duration"`
}

func defaultProfile() profile {
	return profile{
		Transport:    transportPeriph,
		Device:       "/dev/i2c-1",
		Bus:          1,
		AdapterIndex: -1,
		Address:      "0x76",
		Ambient:      25,
		Sampling: samplingProfile{
			Temperature: 8,
			Pressure:    4,
			Humidity:    2,
			Filter:      3,
		},
		Heater: heaterProfile{
			Temperature: 320,
			Duration:    150 * time.Millisecond,
		},
	}
}

// loadProfile reads path over the defaults; keys missing from the file keep
// their default value. An empty path returns the defaults.
func loadProfile(path string) (profile, error) {
	p := defaultProfile()
	if path == "" {
		return p, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return p, fmt.Errorf("could not open profile: %w", err)
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(&p); err != nil {
		return p, fmt.Errorf("could not decode profile %s: %w", path, err)
	}
	return p, nil
}

// applyFlags overrides the profile with flags given explicitly on the command
// line. Flag defaults never win over the profile.
func (p *profile) applyFlags(c *cli.Context) error {
	if c.IsSet("transport") {
		p.Transport = c.String("transport")
	}
	if c.IsSet("device") {
		p.Device = c.String("device")
	}
	if c.IsSet("bus") {
		p.Bus = c.Int("bus")
	}
	if c.IsSet("adapter-index") {
		p.AdapterIndex = c.Int("adapter-index")
	}
	if c.IsSet("address") {
		p.Address = c.String("address")
	}
	if c.IsSet("ambient") {
		p.Ambient = c.Float64("ambient")
	}
	if c.IsSet("temperature-oversampling") {
		p.Sampling.Temperature = c.Int("temperature-oversampling")
	}
	if c.IsSet("pressure-oversampling") {
		p.Sampling.Pressure = c.Int("pressure-oversampling")
	}
	if c.IsSet("humidity-oversampling") {
		p.Sampling.Humidity = c.Int("humidity-oversampling")
	}
	if c.IsSet("filter") {
		p.Sampling.Filter = c.Int("filter")
	}
	if c.IsSet("heater-temperature") {
		t := c.Uint("heater-temperature")
		if t > bme680.MaxHeaterTemperature {
			return fmt.Errorf("%w: heater temperature %d°C above %d°C", bme680.ErrInvalidConfig, t, bme680.MaxHeaterTemperature)
		}
		p.Heater.Temperature = uint16(t)
	}
	if c.IsSet("heater-duration") {
		p.Heater.Duration = c.Duration("heater-duration")
	}
	if c.IsSet("no-heater") {
		p.Heater.Disabled = c.Bool("no-heater")
	}
	return nil
}

func (p profile) address() (byte, error) {
	a, err := strconv.ParseUint(p.Address, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: address %q: %v", bme680.ErrInvalidConfig, p.Address, err)
	}
	return byte(a), nil
}

func (p profile) sampling() (bme680.SamplingConfig, error) {
	var cfg bme680.SamplingConfig
	var err error
	if cfg.Temperature, err = bme680.ParseOversampling(p.Sampling.Temperature); err != nil {
		return cfg, err
	}
	if cfg.Pressure, err = bme680.ParseOversampling(p.Sampling.Pressure); err != nil {
		return cfg, err
	}
	if cfg.Humidity, err = bme680.ParseOversampling(p.Sampling.Humidity); err != nil {
		return cfg, err
	}
	if cfg.Filter, err = bme680.ParseFilter(p.Sampling.Filter); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// heater returns nil when the heater is disabled.
func (p profile) heater() *bme680.HeaterConfig {
	if p.Heater.Disabled {
		return nil
	}
	return &bme680.HeaterConfig{Temperature: p.Heater.Temperature, Duration: p.Heater.Duration}
}

func (p profile) opener() (bme680.Opener, error) {
	switch p.Transport {
	case transportPeriph:
		return i2c.Opener{Device: p.Device}, nil
	case transportSMBus:
		return smbus.Opener{Bus: p.Bus}, nil
	case transportNanoPi:
		return nanopi.Opener{Bus: p.Bus}, nil
	case transportMCP2221:
		var opts []adapter.MCP2221Opt
		if p.AdapterIndex >= 0 {
			opts = append(opts, adapter.WithIndex(p.AdapterIndex))
		}
		return bme680.BusOpener{Bus: adapter.NewMCP2221(opts...)}, nil
	}
	return nil, fmt.Errorf("%w: unknown transport %q", bme680.ErrInvalidConfig, p.Transport)
}

// session loads the profile, opens the sensor and, when configure is set,
// applies sampling and heater settings. The caller closes the sensor.
func session(ctx context.Context, c *cli.Context, configure bool) (*bme680.Sensor, profile, error) {
	p, err := loadProfile(c.String("config"))
	if err != nil {
		return nil, p, console.ExitErr(err, "profile error")
	}
	if err := p.applyFlags(c); err != nil {
		return nil, p, console.ExitErr(err, "invalid flags")
	}
	addr, err := p.address()
	if err != nil {
		return nil, p, console.ExitErr(err, "invalid address")
	}
	opener, err := p.opener()
	if err != nil {
		return nil, p, console.ExitErr(err, "invalid transport")
	}
	s := bme680.New(opener, bme680.WithAmbientTemperature(p.Ambient), bme680.WithLogger(slog.Default()))
	if err := s.Open(ctx, addr); err != nil {
		return nil, p, console.ExitErr(err, "could not open sensor at %#x over %s", addr, p.Transport)
	}
	slog.Debug("sensor opened", "address", fmt.Sprintf("%#x", addr), "variant", s.Variant(), "transport", p.Transport)
	if !configure {
		return s, p, nil
	}
	if err := configureSession(ctx, s, p); err != nil {
		_ = s.Close()
		return nil, p, err
	}
	return s, p, nil
}

func configureSession(ctx context.Context, s *bme680.Sensor, p profile) error {
	cfg, err := p.sampling()
	if err != nil {
		return console.ExitErr(err, "invalid sampling")
	}
	if err := s.Configure(ctx, cfg); err != nil {
		return console.ExitErr(err, "could not configure sampling")
	}
	h := p.heater()
	if h == nil {
		if err := s.DisableHeater(ctx); err != nil {
			return console.ExitErr(err, "could not disable heater")
		}
		return nil
	}
	if err := s.ConfigureHeater(ctx, *h); err != nil {
		return console.ExitErr(err, "could not configure heater")
	}
	return nil
}

var samplingFlags = []cli.Flag{
	&cli.IntFlag{
		Name:  "temperature-oversampling",
		Usage: "temperature oversampling factor (0, 1, 2, 4, 8, 16)",
	},
	&cli.IntFlag{
		Name:  "pressure-oversampling",
		Usage: "pressure oversampling factor (0, 1, 2, 4, 8, 16)",
	},
	&cli.IntFlag{
		Name:  "humidity-oversampling",
		Usage: "humidity oversampling factor (0, 1, 2, 4, 8, 16)",
	},
	&cli.IntFlag{
		Name:  "filter",
		Usage: "IIR filter size (0, 1, 3, 7, 15, 31, 63, 127)",
	},
	&cli.UintFlag{
		Name:  "heater-temperature",
		Usage: "gas heater target in °C (200-400)",
	},
	&cli.DurationFlag{
		Name:  "heater-duration",
		Usage: "gas heater hold time (up to 4032ms)",
	},
	&cli.BoolFlag{
		Name:  "no-heater",
		Usage: "skip the gas measurement",
	},
	&cli.Float64Flag{
		Name:  "ambient",
		Usage: "ambient temperature in °C used for the heater resistance",
	},
}
