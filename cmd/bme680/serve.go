package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/bme680/cmd/bme680/console"
	"github.com/mklimuk/bme680/exporter"
)

var serveCmd = cli.Command{
	Name:  "serve",
	Usage: "measure periodically and expose the readings as prometheus metrics",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:  "listen",
			Value: ":9680",
			Usage: "metrics listen address",
		},
		&cli.DurationFlag{
			Name:  "interval",
			Value: 30 * time.Second,
			Usage: "measurement interval",
		},
	}, samplingFlags...),
	Action: func(c *cli.Context) error {
		if c.Duration("interval") <= 0 {
			return console.Exit(console.ExitInvalidConfig, "interval must be positive, got %s", c.Duration("interval"))
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, _, err := session(ctx, c, true)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		reg := prometheus.NewRegistry()
		exp := exporter.New(s, fmt.Sprintf("%#x", s.Address()),
			exporter.WithInterval(c.Duration("interval")),
			exporter.WithLogger(slog.Default()))
		if err := exp.Register(reg); err != nil {
			return console.Exit(console.ExitFailure, "metrics error: %s", console.Red(err))
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", exporter.Handler(reg))
		srv := &http.Server{
			Addr:              c.String("listen"),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		srvErr := make(chan error, 1)
		go func() {
			slog.Info("serving metrics", "address", srv.Addr, "sensor", s.Variant().String())
			srvErr <- srv.ListenAndServe()
		}()
		go func() {
			_ = exp.Run(ctx)
		}()

		select {
		case err := <-srvErr:
			if !errors.Is(err, http.ErrServerClosed) {
				return console.Exit(console.ExitFailure, "metrics server error: %s", console.Red(err))
			}
		case <-ctx.Done():
		}
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			slog.Warn("metrics server shutdown", "error", err)
		}
		console.PInfof(console.PictoStop, "stopped")
		return nil
	},
}
