package airthings

import (
	"context"
	"time"
)

type Sensor interface {
	Address() string
	SerialNumber() string
	Name() string
	Receive(ctx context.Context) (Reading, error)
}

type SensorValues struct {
	// units: % of relative Humidity
	Humidity float64 `json:"humidity"`

	// units: degrees Celsius
	Temperature float64 `json:"temperature"`

	// units: ppm
	Co2Level int `json:"co2"`

	// units: ppb
	VocLevel int `json:"voc"`

	// units: Bq/m3, nil until the sensor has gathered enough samples
	RadonShort *int `json:"radon_short_term_avg"`

	// units: Bq/m3, nil until the sensor has gathered enough samples
	RadonLong *int `json:"radon_long_term_avg"`

	// units: hPa
	AtmPressure float64 `json:"atmospheric_pressure"`
}

// Reading is everything gathered from one device during one connection.
type Reading struct {
	SensorValues

	// units: g/m3
	AbsoluteHumidity float64 `json:"absolute_humidity"`

	// units: lux, only present when the command characteristic answered
	Illuminance *int `json:"illuminance,omitempty"`

	Battery *Battery `json:"battery,omitempty"`

	Name         string    `json:"name,omitempty"`
	SerialNumber string    `json:"serial_number,omitempty"`
	ModelNumber  string    `json:"model_number,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type Battery struct {
	// units: V
	Voltage float64 `json:"voltage"`
	Percent int     `json:"percent"`
}
