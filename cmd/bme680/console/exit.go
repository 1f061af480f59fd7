package console

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/bme680"
)

// Exit codes returned by the CLI.
const (
	ExitFailure        = 1
	ExitInvalidConfig  = 2
	ExitDeviceNotFound = 3
	ExitSelfTestFailed = 4
	ExitTimeout        = 5
)

func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}

// ExitErr picks the exit code matching the driver error kind.
func ExitErr(err error, msg string, args ...interface{}) cli.ExitCoder {
	code := ExitFailure
	switch {
	case errors.Is(err, bme680.ErrInvalidConfig):
		code = ExitInvalidConfig
	case errors.Is(err, bme680.ErrDeviceNotFound):
		code = ExitDeviceNotFound
	case errors.Is(err, bme680.ErrSelfTestFailed):
		code = ExitSelfTestFailed
	case errors.Is(err, bme680.ErrMeasurementTimeout):
		code = ExitTimeout
	}
	return Exit(code, "%s: %s", fmt.Sprintf(msg, args...), Red(err))
}
