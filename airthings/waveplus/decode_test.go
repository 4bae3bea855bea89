package waveplus

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alepar/waveplus-reader/airthings"
)

func samplePayload() []byte {
	return []byte{
		0x01,       // version
		0x5b,       // humidity 91/2
		0x00, 0x00, // unknown
		0x1e, 0x00, // radon short 30
		0x1c, 0x00, // radon long 28
		0x52, 0x08, // temperature 2130/100
		0xea, 0xc4, // pressure 50410/50
		0x64, 0x02, // co2 612
		0x96, 0x00, // voc 150
		0x00, 0x00, 0x00, 0x00,
	}
}

func TestDecodeMeasurements(t *testing.T) {
	values, err := DecodeMeasurements(samplePayload())
	require.NoError(t, err)

	assert.Equal(t, 45.5, values.Humidity)
	assert.Equal(t, 21.3, values.Temperature)
	assert.Equal(t, 1008.2, values.AtmPressure)
	assert.Equal(t, 612, values.Co2Level)
	assert.Equal(t, 150, values.VocLevel)
	require.NotNil(t, values.RadonShort)
	require.NotNil(t, values.RadonLong)
	assert.Equal(t, 30, *values.RadonShort)
	assert.Equal(t, 28, *values.RadonLong)
}

func TestDecodeMeasurementsDeterministic(t *testing.T) {
	first, err := DecodeMeasurements(samplePayload())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := DecodeMeasurements(samplePayload())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDecodeMeasurementsRadonWarmingUp(t *testing.T) {
	payload := samplePayload()
	payload[4], payload[5] = 0xff, 0xff
	payload[6], payload[7] = 0x00, 0x40 // 16384

	values, err := DecodeMeasurements(payload)
	require.NoError(t, err)
	assert.Nil(t, values.RadonShort)
	assert.Nil(t, values.RadonLong)
	assert.Equal(t, 612, values.Co2Level)
}

func TestDecodeMeasurementsZeroRadonIsAReading(t *testing.T) {
	payload := samplePayload()
	payload[4], payload[5] = 0, 0

	values, err := DecodeMeasurements(payload)
	require.NoError(t, err)
	require.NotNil(t, values.RadonShort)
	assert.Equal(t, 0, *values.RadonShort)
}

func TestDecodeMeasurementsNegativeTemperature(t *testing.T) {
	payload := samplePayload()
	payload[8], payload[9] = 0x0c, 0xfe // -500

	values, err := DecodeMeasurements(payload)
	require.NoError(t, err)
	assert.Equal(t, -5.0, values.Temperature)
}

func TestDecodeMeasurementsMalformed(t *testing.T) {
	tests := map[string][]byte{
		"empty":   {},
		"short":   samplePayload()[:19],
		"long":    append(samplePayload(), 0x00),
		"version": append([]byte{0x02}, samplePayload()[1:]...),
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			values, err := DecodeMeasurements(payload)
			require.Error(t, err)
			assert.Equal(t, airthings.ErrMalformedPayload, errors.Cause(err))
			assert.False(t, airthings.IsFatal(err))
			assert.Equal(t, airthings.SensorValues{}, values)
		})
	}
}

func commandPayload() []byte {
	b := make([]byte, commandResponseLen)
	b[0] = commandRequest
	b[7] = 42                 // illuminance
	b[26], b[27] = 0xb8, 0x0b // 3000 mV
	return b
}

func TestDecodeCommandResponse(t *testing.T) {
	cmd, err := decodeCommandResponse(commandPayload())
	require.NoError(t, err)
	assert.Equal(t, 42, cmd.illuminance)
	assert.Equal(t, 3.0, cmd.batteryVoltage)
}

func TestDecodeCommandResponseMalformed(t *testing.T) {
	_, err := decodeCommandResponse(commandPayload()[:20])
	assert.Equal(t, airthings.ErrMalformedPayload, errors.Cause(err))

	wrongEcho := commandPayload()
	wrongEcho[0] = 0x01
	_, err = decodeCommandResponse(wrongEcho)
	assert.Equal(t, airthings.ErrMalformedPayload, errors.Cause(err))
}

func TestManufacturerDataToSerialNumber(t *testing.T) {
	assert.Equal(t, "12345", manufacturerDataToSerialNumber([]byte{0x34, 0x03, 0x39, 0x30, 0x00, 0x00, 0x09}))
	assert.Equal(t, "", manufacturerDataToSerialNumber([]byte{0x4c, 0x00, 0x39, 0x30, 0x00, 0x00}))
	assert.Equal(t, "", manufacturerDataToSerialNumber([]byte{0x34, 0x03}))
}

func TestScannerAddressFilter(t *testing.T) {
	all := &BleScanner{}
	assert.True(t, all.wanted("AA:BB:CC:DD:EE:FF"))

	some := &BleScanner{Addresses: []string{"aa:bb:cc:dd:ee:ff"}}
	assert.True(t, some.wanted("AA:BB:CC:DD:EE:FF"))
	assert.False(t, some.wanted("11:22:33:44:55:66"))
}
