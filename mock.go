package bme680

import "context"

// MeasureBehaviorFunc produces the result of a single Measure call.
type MeasureBehaviorFunc func(ctx context.Context) (Reading, error)

// MockSensor stands in for a Sensor where only readings are consumed, such as
// the metrics exporter, without requiring hardware.
//
// Example usage:
//
//	sensor := NewMockSensor(func(ctx context.Context) (Reading, error) {
//		return Reading{Temperature: 21.5, TemperatureValid: true}, nil
//	})
type MockSensor struct {
	behavior MeasureBehaviorFunc
}

func NewMockSensor(behavior MeasureBehaviorFunc) *MockSensor {
	return &MockSensor{behavior: behavior}
}

// Measure returns the reading produced by the behavior function.
func (m *MockSensor) Measure(ctx context.Context) (Reading, error) {
	return m.behavior(ctx)
}
