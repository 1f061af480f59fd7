package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

// Environment read by the hardware tests in cmd/bme680.
const (
	envTransport = "BME680_TRANSPORT"
	envDevice    = "BME680_DEVICE"
	envBus       = "BME680_BUS"
	envAddress   = "BME680_ADDRESS"
)

func TestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run unit tests against the simulated sensor",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Test()
			if err != nil {
				return fmt.Errorf("failed to run tests: %w", err)
			}
			return nil
		},
	}
	return cmd
}

func LintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Run linting",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Lint()
			if err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			return nil
		},
	}
	return cmd
}

// hardwareEnv lists the variables passed to the hardware tests. Empty values
// are left out so the tests fall back to their defaults.
func hardwareEnv(transport, device, bus, address string) map[string]string {
	env := map[string]string{}
	for k, v := range map[string]string{
		envTransport: transport,
		envDevice:    device,
		envBus:       bus,
		envAddress:   address,
	} {
		if v != "" {
			env[k] = v
		}
	}
	return env
}

func IntegrationTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integration-test",
		Short: "Run the test suite including measurements on a connected BME680/BME688",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := hardwareEnv(
				cmd.Flag("transport").Value.String(),
				cmd.Flag("device").Value.String(),
				cmd.Flag("bus").Value.String(),
				cmd.Flag("address").Value.String(),
			)
			keys := make([]string, 0, len(env))
			for k := range env {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if err := os.Setenv(k, env[k]); err != nil {
					return fmt.Errorf("could not set %s: %w", k, err)
				}
				slog.Debug("hardware test setting", "name", k, "value", env[k])
			}
			err := test.Integ()
			if err != nil {
				return fmt.Errorf("failed to run integration testing: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("transport", "", "bus access of the test rig: periph, smbus, nanopi or mcp2221")
	cmd.Flags().String("device", "", "I2C device for the periph transport")
	cmd.Flags().String("bus", "", "I2C bus number for the smbus and nanopi transports")
	cmd.Flags().String("address", "", "sensor address")
	return cmd
}
