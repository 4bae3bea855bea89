// Package collect reads every discovered sensor once, one device at a time, and
// gathers the readings into an output document.
package collect

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/waveplus-reader/airthings"
	"github.com/alepar/waveplus-reader/airthings/output"
)

// KeyFunc names a sensor in the output document.
type KeyFunc func(airthings.Sensor) string

func ByAddress(s airthings.Sensor) string {
	return s.Address()
}

// BySerialNumber falls back to the address for sensors that did not advertise a serial number.
func BySerialNumber(s airthings.Sensor) string {
	if serialNr := s.SerialNumber(); serialNr != "" {
		return serialNr
	}
	return s.Address()
}

func ParseKey(s string) (KeyFunc, error) {
	switch s {
	case "address":
		return ByAddress, nil
	case "serial":
		return BySerialNumber, nil
	}
	return nil, errors.Errorf("unknown device key %q (allowed: address, serial)", s)
}

// Observer is told about every device outcome as it happens.
type Observer interface {
	Observe(key string, r airthings.Reading)
	ObserveFailure(key string, err error)
}

type Failure struct {
	Key     string
	Address string
	Err     error
}

type Result struct {
	Document *output.Document
	Found    int
	Failures []Failure
}

type Collector struct {
	Scanner   airthings.Scanner
	Key       KeyFunc
	Observers []Observer
}

// Collect scans once and then receives from each sensor in discovery order.
// A failing device is logged and skipped. A cancelled ctx stops the run after the
// in-flight device has been released; the readings gathered so far are returned
// together with ctx.Err(). Any other error means the scan itself failed.
func (c *Collector) Collect(ctx context.Context) (Result, error) {
	key := c.Key
	if key == nil {
		key = ByAddress
	}
	result := Result{Document: output.NewDocument()}

	sensors, err := c.Scanner.Scan(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, errors.Wrap(err, "failed to scan for sensors")
	}
	result.Found = len(sensors)

	for _, sensor := range sensors {
		if ctx.Err() != nil {
			break
		}
		k := key(sensor)
		logger := log.WithFields(log.Fields{"device": k, "addr": sensor.Address()})

		reading, err := sensor.Receive(ctx)
		if err != nil {
			logger.Errorf("failed to read from sensor, skipping: %s", err)
			result.Failures = append(result.Failures, Failure{Key: k, Address: sensor.Address(), Err: err})
			for _, o := range c.Observers {
				o.ObserveFailure(k, err)
			}
			continue
		}
		if reading.Name == "" {
			reading.Name = sensor.Name()
		}

		logger.WithFields(log.Fields{
			"temperature": reading.Temperature,
			"humidity":    reading.Humidity,
			"co2":         reading.Co2Level,
			"voc":         reading.VocLevel,
		}).Info("received")
		result.Document.Set(k, reading)
		for _, o := range c.Observers {
			o.Observe(k, reading)
		}
	}

	if err := ctx.Err(); err != nil {
		log.Warnf("interrupted after %d of %d device(s)", result.Document.Len(), result.Found)
		return result, err
	}
	return result, nil
}
