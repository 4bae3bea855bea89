package waveplus

import "github.com/go-ble/ble"

// For all Airthings devices the manufacturer id is 820 / 0x0334.
const manufacturerID = 0x0334

var (
	sensorServiceUUID     = ble.MustParse("b42e1c08-ade7-11e4-89d3-123b93f75cba")
	measurementCharUUID   = ble.MustParse("b42e2a68-ade7-11e4-89d3-123b93f75cba")
	commandCharUUID       = ble.MustParse("b42e2d06-ade7-11e4-89d3-123b93f75cba")
	deviceInfoServiceUUID = ble.UUID16(0x180a)
	modelNumberCharUUID   = ble.UUID16(0x2a24)
	serialNumberCharUUID  = ble.UUID16(0x2a25)
)
