package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/bme680/adapter"
	"github.com/mklimuk/bme680/cmd/bme680/console"
)

var adaptersCmd = cli.Command{
	Name:    "adapters",
	Aliases: []string{"mcp2221"},
	Usage:   "inspect MCP2221 USB-I2C bridges",
	Subcommands: cli.Commands{
		&adaptersListCmd,
		&adaptersStatusCmd,
		&adaptersReleaseCmd,
	},
}

var adaptersListCmd = cli.Command{
	Name:    "list",
	Aliases: []string{"ls"},
	Action: func(c *cli.Context) error {
		devs := adapter.Enumerate()
		if len(devs) == 0 {
			console.Warnf("no MCP2221 bridge connected")
			return nil
		}
		w := tabwriter.NewWriter(console.Output(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "INDEX\tSERIAL\tPRODUCT\tPATH")
		for _, d := range devs {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.Index, d.Serial, d.Product, d.Path)
		}
		return w.Flush()
	},
}

var adaptersStatusCmd = cli.Command{
	Name: "status",
	Action: func(c *cli.Context) error {
		status, err := bridge(c).Status(context.Background())
		if err != nil {
			return console.Exit(console.ExitFailure, "adapter communication error: %s", console.Red(err))
		}
		return printYAML(status)
	},
}

var adaptersReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel the current I2C transfer and free the bus",
	Action: func(c *cli.Context) error {
		status, err := bridge(c).ReleaseBus(context.Background())
		if err != nil {
			return console.Exit(console.ExitFailure, "adapter communication error: %s", console.Red(err))
		}
		return printYAML(status)
	},
}

func bridge(c *cli.Context) *adapter.MCP2221 {
	if idx := c.Int("adapter-index"); idx >= 0 {
		return adapter.NewMCP2221(adapter.WithIndex(idx))
	}
	return adapter.NewMCP2221()
}

func printYAML(v interface{}) error {
	enc := yaml.NewEncoder(console.Output())
	defer enc.Close()
	if err := enc.Encode(v); err != nil {
		return console.Exit(console.ExitFailure, "encoding error: %s", console.Red(err))
	}
	return nil
}
