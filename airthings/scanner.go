package airthings

import "context"

type Scanner interface {

	// returns discovered sensors in discovery order
	Scan(ctx context.Context) ([]Sensor, error)
}
