package bme680

import (
	"time"

	"periph.io/x/conn/v3/physic"
)

// Reading is the result of a single forced measurement cycle.
// A field is only meaningful when its Valid flag is set.
type Reading struct {
	Temperature   float64 `yaml:"temperature"`    // °C
	Humidity      float64 `yaml:"humidity"`       // %RH
	Pressure      float64 `yaml:"pressure"`       // Pa
	GasResistance float64 `yaml:"gas_resistance"` // Ω

	TemperatureValid bool `yaml:"temperature_valid"`
	HumidityValid    bool `yaml:"humidity_valid"`
	PressureValid    bool `yaml:"pressure_valid"`
	GasValid         bool `yaml:"gas_valid"`

	Time time.Time `yaml:"time"`
}

// Env converts the valid fields to periph units. Invalid fields are left zero.
func (r Reading) Env() physic.Env {
	var e physic.Env
	if r.TemperatureValid {
		e.Temperature = physic.ZeroCelsius + physic.Temperature(r.Temperature*float64(physic.Celsius))
	}
	if r.PressureValid {
		e.Pressure = physic.Pressure(r.Pressure * float64(physic.Pascal))
	}
	if r.HumidityValid {
		e.Humidity = physic.RelativeHumidity(r.Humidity * float64(physic.PercentRH))
	}
	return e
}
