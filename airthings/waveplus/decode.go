package waveplus

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/alepar/waveplus-reader/airthings"
)

const (
	// "<4B8H"
	measurementLen     = 20
	measurementVersion = 1

	// radon above this is what the sensor reports while it is still warming up
	radonMaxValid = 16383

	// "<L12B6H" after a two byte header
	commandResponseLen = 30
	commandRequest     = 0x6d
)

// DecodeMeasurements turns the raw current-values characteristic into sensor values.
// Radon averages that the device reports as not yet available are left nil.
func DecodeMeasurements(b []byte) (airthings.SensorValues, error) {
	if len(b) != measurementLen {
		return airthings.SensorValues{}, errors.Wrapf(airthings.ErrMalformedPayload,
			"measurement payload is %d bytes, expected %d", len(b), measurementLen)
	}

	raw := rawSensorValues{
		version:     b[0],
		humidity:    b[1],
		radonShort:  binary.LittleEndian.Uint16(b[4:6]),
		radonLong:   binary.LittleEndian.Uint16(b[6:8]),
		temperature: binary.LittleEndian.Uint16(b[8:10]),
		atmPressure: binary.LittleEndian.Uint16(b[10:12]),
		co2:         binary.LittleEndian.Uint16(b[12:14]),
		voc:         binary.LittleEndian.Uint16(b[14:16]),
	}
	if raw.version != measurementVersion {
		return airthings.SensorValues{}, errors.Wrapf(airthings.ErrMalformedPayload,
			"unsupported measurement version %d", raw.version)
	}

	return refineRawValues(raw), nil
}

func refineRawValues(raw rawSensorValues) airthings.SensorValues {
	return airthings.SensorValues{
		Humidity:    float64(raw.humidity) / 2.0,
		RadonShort:  radon(raw.radonShort),
		RadonLong:   radon(raw.radonLong),
		Temperature: float64(int16(raw.temperature)) / 100.0,
		AtmPressure: float64(raw.atmPressure) / 50.0,
		Co2Level:    int(raw.co2),
		VocLevel:    int(raw.voc),
	}
}

func radon(v uint16) *int {
	if v > radonMaxValid {
		return nil
	}
	r := int(v)
	return &r
}

type rawSensorValues struct {
	version     uint8
	humidity    uint8
	radonShort  uint16
	radonLong   uint16
	temperature uint16
	atmPressure uint16
	co2         uint16
	voc         uint16
}

type commandValues struct {
	illuminance    int
	batteryVoltage float64
}

// decodeCommandResponse extracts illuminance and battery voltage from the notification
// that answers commandRequest.
func decodeCommandResponse(b []byte) (commandValues, error) {
	if len(b) != commandResponseLen {
		return commandValues{}, errors.Wrapf(airthings.ErrMalformedPayload,
			"command response is %d bytes, expected %d", len(b), commandResponseLen)
	}
	if b[0] != commandRequest {
		return commandValues{}, errors.Wrapf(airthings.ErrMalformedPayload,
			"command response echoes 0x%02x", b[0])
	}

	body := b[2:]
	return commandValues{
		illuminance:    int(body[5]),
		batteryVoltage: float64(binary.LittleEndian.Uint16(body[24:26])) / 1000.0,
	}, nil
}
