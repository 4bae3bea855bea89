// Package airthingstest provides in-memory sensors and scanners for tests that
// must not touch a Bluetooth adapter.
package airthingstest

import (
	"context"

	"github.com/alepar/waveplus-reader/airthings"
)

type Sensor struct {
	Addr    string
	Serial  string
	Label   string
	Reading airthings.Reading
	Err     error

	// Block makes Receive wait for ctx cancellation instead of answering.
	Block bool

	Calls int
}

func (s *Sensor) Address() string      { return s.Addr }
func (s *Sensor) SerialNumber() string { return s.Serial }
func (s *Sensor) Name() string         { return s.Label }

func (s *Sensor) Receive(ctx context.Context) (airthings.Reading, error) {
	s.Calls++
	if s.Block {
		<-ctx.Done()
		return airthings.Reading{}, airthings.Unreachable(ctx.Err(), "couldn't connect to ble")
	}
	if s.Err != nil {
		return airthings.Reading{}, s.Err
	}
	return s.Reading, nil
}

type Scanner struct {
	Sensors []*Sensor
	Err     error
}

func (s *Scanner) Scan(ctx context.Context) ([]airthings.Sensor, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sensors := make([]airthings.Sensor, 0, len(s.Sensors))
	for _, sensor := range s.Sensors {
		sensors = append(sensors, sensor)
	}
	return sensors, nil
}
