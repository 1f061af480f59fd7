package bme680

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized     = errors.New("bme680: sensor not initialized")
	ErrAlreadyOpen        = errors.New("bme680: sensor already open")
	ErrDeviceNotFound     = errors.New("bme680: device not found")
	ErrInvalidConfig      = errors.New("bme680: invalid configuration")
	ErrNotConfigured      = errors.New("bme680: sampling not configured")
	ErrTransport          = errors.New("bme680: transport error")
	ErrMeasurementTimeout = errors.New("bme680: measurement timeout")
	ErrSelfTestFailed     = errors.New("bme680: self test failed")
)

// transportError keeps both the ErrTransport kind and the bus error in the chain.
func transportError(op string, reg byte, err error) error {
	return fmt.Errorf("%w: %s %#x: %w", ErrTransport, op, reg, err)
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
