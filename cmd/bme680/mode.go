package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/bme680/cmd/bme680/console"
)

var modeCmd = cli.Command{
	Name:  "mode",
	Usage: "print the chip variant and the power mode reported by the sensor",
	Action: func(c *cli.Context) error {
		ctx := context.Background()
		s, _, err := session(ctx, c, false)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		mode, err := s.ReadMode(ctx)
		if err != nil {
			return console.ExitErr(err, "could not read mode")
		}
		console.Printf("address: %s\nvariant: %s\nmode:    %s\n",
			console.White(fmt.Sprintf("%#x", s.Address())), console.White(s.Variant()), console.White(mode))
		return nil
	},
}
