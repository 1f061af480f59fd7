package main

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/bme680/cmd/bme680/console"
)

var selfTestCmd = cli.Command{
	Name:  "selftest",
	Usage: "check the sensor readings and gas heater response",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "do not ask for confirmation",
		},
	},
	Action: func(c *cli.Context) error {
		if !c.Bool("yes") {
			ok, err := console.Confirm("self test heats the gas plate to 350°C for about 15s, continue?")
			if err != nil {
				return console.Exit(console.ExitFailure, "prompt error: %s", console.Red(err))
			}
			if !ok {
				console.PInfof(console.PictoStop, "self test aborted")
				return nil
			}
		}
		ctx := context.Background()
		s, _, err := session(ctx, c, false)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		console.Infof("testing %s at %#x", s.Variant(), s.Address())
		if err := s.SelfTest(ctx); err != nil {
			return console.ExitErr(err, "self test failed")
		}
		console.PInfof(console.PictoFinish, "self test %s", console.Green("passed"))
		return nil
	},
}
