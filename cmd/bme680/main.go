package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"
)

// Set at link time by the dev build.
var (
	AppVersion string
	GitCommit  string
	GitBranch  string
	BuildTime  string
	Arch       string
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	app := newApp()
	err := app.Run(args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			log.Printf("unexpected error: %v", err)
			return exerr.ExitCode()
		}
		log.Printf("unexpected error: %v", err)
		return 1
	}
	return 0
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "bme680"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", AppVersion, BuildTime, GitCommit)
	app.Usage = "BME680/BME688 environment and gas sensor cli"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML profile with connection, sampling and heater settings",
		},
		&cli.StringFlag{
			Name:    "transport",
			Aliases: []string{"t"},
			Value:   transportPeriph,
			Usage:   "bus access: periph, smbus, nanopi or mcp2221",
		},
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Value:   "/dev/i2c-1",
			Usage:   "I2C device for the periph transport",
		},
		&cli.IntFlag{
			Name:  "bus",
			Value: 1,
			Usage: "I2C bus number for the smbus and nanopi transports",
		},
		&cli.IntFlag{
			Name:  "adapter-index",
			Value: -1,
			Usage: "MCP2221 bridge to use when more than one is connected",
		},
		&cli.StringFlag{
			Name:    "address",
			Aliases: []string{"a"},
			Value:   "0x76",
			Usage:   "sensor address (0x76 or 0x77)",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		return nil
	}
	app.Commands = cli.Commands{
		&readCmd,
		&selfTestCmd,
		&modeCmd,
		&serveCmd,
		&adaptersCmd,
	}
	return app
}
