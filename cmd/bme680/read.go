package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/bme680"
	"github.com/mklimuk/bme680/cmd/bme680/console"
)

const (
	formatText = "text"
	formatYAML = "yaml"
)

var readCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"r"},
	Usage:   "run forced measurements and print the readings",
	Flags: append([]cli.Flag{
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"n"},
			Value:   1,
			Usage:   "number of readings, 0 reads until interrupted",
		},
		&cli.DurationFlag{
			Name:  "interval",
			Value: 3 * time.Second,
			Usage: "pause between readings",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Value:   formatText,
			Usage:   "output format: text or yaml",
		},
	}, samplingFlags...),
	Action: func(c *cli.Context) error {
		format := c.String("format")
		if format != formatText && format != formatYAML {
			return console.Exit(console.ExitInvalidConfig, "unknown format %q", format)
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, _, err := session(ctx, c, true)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		emit := printText
		if format == formatYAML {
			enc := yaml.NewEncoder(console.Output())
			defer enc.Close()
			emit = func(_ io.Writer, r bme680.Reading) error { return enc.Encode(r) }
		}
		count := c.Int("count")
		for i := 0; count == 0 || i < count; i++ {
			if i > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(c.Duration("interval")):
				}
			}
			r, err := s.Measure(ctx)
			if err != nil {
				return console.ExitErr(err, "measurement failed")
			}
			if err := emit(console.Output(), r); err != nil {
				return console.Exit(console.ExitFailure, "encoding error: %s", console.Red(err))
			}
		}
		return nil
	},
}

func printText(w io.Writer, r bme680.Reading) error {
	lines := []struct {
		picto string
		value string
		valid bool
	}{
		{console.PictoThermometer, fmt.Sprintf("%.2f °C", r.Temperature), r.TemperatureValid},
		{console.PictoHumidity, fmt.Sprintf("%.2f %%", r.Humidity), r.HumidityValid},
		{console.PictoPressure, fmt.Sprintf("%.2f hPa", r.Pressure/100), r.PressureValid},
		{console.PictoGas, fmt.Sprintf("%.1f kΩ", r.GasResistance/1000), r.GasValid},
	}
	_, err := fmt.Fprintf(w, "%s\n", console.Faint(r.Time.Format(time.DateTime)))
	if err != nil {
		return err
	}
	for _, l := range lines {
		value := console.White(l.value)
		if !l.valid {
			value = console.Faint("-")
		}
		if _, err := fmt.Fprintf(w, "%s  %s %s\n", l.picto, value, console.Validity(l.valid)); err != nil {
			return err
		}
	}
	return nil
}
