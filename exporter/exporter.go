// Package exporter publishes periodic forced measurements as Prometheus
// gauges.
package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mklimuk/bme680"
)

// Measurer is implemented by *bme680.Sensor and *bme680.MockSensor.
type Measurer interface {
	Measure(ctx context.Context) (bme680.Reading, error)
}

// DefaultInterval is used when no positive interval is given.
const DefaultInterval = 30 * time.Second

type Opts struct {
	Interval time.Duration
	Logger   *slog.Logger
}

type Opt func(*Opts)

func WithInterval(d time.Duration) Opt {
	return func(o *Opts) {
		o.Interval = d
	}
}

func WithLogger(l *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = l
	}
}

// Exporter measures one sensor on a fixed interval. Gauges of fields that were
// not valid in the last reading are removed so scrapes show a gap instead of
// a stale value.
type Exporter struct {
	sensor Measurer
	label  string
	opts   Opts
	log    *slog.Logger

	temperature   *prometheus.GaugeVec
	humidity      *prometheus.GaugeVec
	pressure      *prometheus.GaugeVec
	gasResistance *prometheus.GaugeVec
	reads         *prometheus.CounterVec
}

func newGauge(name string, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "bme680",
			Name:      name,
			Help:      help,
		},
		[]string{"address"},
	)
}

// New creates an exporter for sensor; label identifies it in the address label,
// usually the bus address in hex.
func New(sensor Measurer, label string, opts ...Opt) *Exporter {
	o := Opts{Interval: DefaultInterval}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		sensor:        sensor,
		label:         label,
		opts:          o,
		log:           logger,
		temperature:   newGauge("temperature_celsius", "Air temperature (units: degrees Celsius)"),
		humidity:      newGauge("humidity_percent", "Relative humidity (units: %)"),
		pressure:      newGauge("pressure_pascals", "Atmospheric pressure (units: Pa)"),
		gasResistance: newGauge("gas_resistance_ohms", "Gas sensor resistance (units: Ohm)"),
		reads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bme680",
				Name:      "reads_total",
				Help:      "Forced measurements by result",
			},
			[]string{"address", "result"},
		),
	}
}

func (e *Exporter) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{e.temperature, e.humidity, e.pressure, e.gasResistance, e.reads} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("could not register collector: %w", err)
		}
	}
	return nil
}

// Poll takes one measurement and updates the gauges.
func (e *Exporter) Poll(ctx context.Context) error {
	r, err := e.sensor.Measure(ctx)
	if err != nil {
		e.reads.WithLabelValues(e.label, "error").Inc()
		return fmt.Errorf("measurement failed: %w", err)
	}
	e.reads.WithLabelValues(e.label, "ok").Inc()
	e.set(e.temperature, r.TemperatureValid, r.Temperature)
	e.set(e.humidity, r.HumidityValid, r.Humidity)
	e.set(e.pressure, r.PressureValid, r.Pressure)
	e.set(e.gasResistance, r.GasValid, r.GasResistance)
	e.log.Debug("reading exported", "address", e.label, "temperature", r.Temperature,
		"humidity", r.Humidity, "pressure", r.Pressure, "gas", r.GasResistance, "gas_valid", r.GasValid)
	return nil
}

func (e *Exporter) set(g *prometheus.GaugeVec, valid bool, v float64) {
	if !valid {
		g.DeleteLabelValues(e.label)
		return
	}
	g.WithLabelValues(e.label).Set(v)
}

// Run polls immediately and then on every interval until ctx is done. Failed
// measurements are logged and counted; they do not stop the loop.
func (e *Exporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()
	for {
		if err := e.Poll(ctx); err != nil {
			e.log.Error("sensor read failed", "address", e.label, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
