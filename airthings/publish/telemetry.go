// Package publish forwards readings to a ThingsBoard gateway over MQTT.
package publish

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/alepar/waveplus-reader/airthings"
	"github.com/alepar/waveplus-reader/airthings/output"
)

// Telemetry with timestamp
//
// example:
// `{"ts": 1791700000000, "values": {"temperature": 21.3, "humidity": 45.5}}`
type Telemetry struct {
	// Unix timestamp in milliseconds
	Timestamp int64 `json:"ts"`
	// Key value pairs of telemetry data measured at the corresponding timestamp
	Values map[string]interface{} `json:"values"`
}

// GatewayTelemetry builds the payload of the gateway telemetry topic, where every
// device of the document becomes its own ThingsBoard device.
//
// see also
// - api: https://thingsboard.io/docs/reference/gateway-mqtt-api/#telemetry-upload-api
func GatewayTelemetry(doc *output.Document) (map[string][]Telemetry, error) {
	payload := map[string][]Telemetry{}
	for _, key := range doc.Keys() {
		r, _ := doc.Get(key)
		values, err := telemetryValues(r)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to flatten reading of %s", key)
		}
		payload[key] = []Telemetry{{
			Timestamp: r.Timestamp.UnixNano() / 1e6,
			Values:    values,
		}}
	}
	return payload, nil
}

func telemetryValues(r airthings.Reading) (map[string]interface{}, error) {
	values := map[string]interface{}{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &values,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(r.SensorValues); err != nil {
		return nil, err
	}

	// optional values are only sent when the device reported them
	for k, v := range values {
		if p, ok := v.(*int); ok {
			if p == nil {
				delete(values, k)
			} else {
				values[k] = *p
			}
		}
	}

	values["absolute_humidity"] = r.AbsoluteHumidity
	if r.Illuminance != nil {
		values["illuminance"] = *r.Illuminance
	}
	if r.Battery != nil {
		values["battery_voltage"] = r.Battery.Voltage
		values["battery_percent"] = r.Battery.Percent
	}
	return values, nil
}
