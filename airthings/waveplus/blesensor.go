package waveplus

import (
	"context"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/waveplus-reader/airthings"
)

type BleSensor struct {
	Addr      string
	Serial    string
	LocalName string

	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	// attempts per Receive, 1 means a single read
	Retries int

	// Connect dials the device, ble.Connect when nil
	Connect func(ctx context.Context, f ble.AdvFilter) (ble.Client, error)
}

func (sensor *BleSensor) Address() string {
	return sensor.Addr
}

func (sensor *BleSensor) SerialNumber() string {
	return sensor.Serial
}

func (sensor *BleSensor) Name() string {
	return sensor.LocalName
}

func (sensor *BleSensor) Receive(ctx context.Context) (airthings.Reading, error) {
	var lastErr error
	var reading airthings.Reading
	for i := 0; i < max(sensor.Retries, 1); i++ {
		reading, lastErr = sensor.receive(ctx)
		if lastErr == nil {
			return reading, nil
		}
		// a payload we can't decode won't get better on a second read
		if errors.Cause(lastErr) == airthings.ErrMalformedPayload || ctx.Err() != nil {
			return airthings.Reading{}, lastErr
		}
		if i+1 < sensor.Retries {
			log.Errorf("retrying error in receive: %s", lastErr)
			select {
			case <-time.After(sensor.ConnectTimeout): // self-pacing interval in an attempt to fix freezes
			case <-ctx.Done():
				return airthings.Reading{}, lastErr
			}
		}
	}

	return airthings.Reading{}, errors.Wrap(lastErr, "all retries to receive failed")
}

func (sensor *BleSensor) receive(ctx context.Context) (airthings.Reading, error) {
	logger := log.WithField("addr", sensor.Addr)
	filter := func(a ble.Advertisement) bool {
		return strings.EqualFold(a.Addr().String(), sensor.Addr)
	}

	logger.Debug("connecting to device")
	connectCtx, cancel := context.WithTimeout(ctx, sensor.ConnectTimeout)
	connect := sensor.Connect
	if connect == nil {
		connect = ble.Connect
	}
	cln, err := connect(connectCtx, filter)
	cancel()
	if err != nil {
		return airthings.Reading{}, airthings.Unreachable(err, "couldn't connect to ble")
	}

	// Normally, the connection is disconnected by us after our exploration.
	// However, it can be asynchronously disconnected by the remote peripheral.
	// So we wait(detect) the disconnection in the go routine.
	done := make(chan struct{})
	go func() {
		<-cln.Disconnected()
		logger.Debug("device disconnected")
		close(done)
	}()
	// an interrupt tears the link down, which unblocks any pending GATT request
	go func() {
		select {
		case <-ctx.Done():
			_ = cln.CancelConnection()
		case <-done:
		}
	}()
	defer func() {
		logger.Debug("closing connection")
		_ = cln.CancelConnection()
		<-done
	}()

	// the command response is longer than the default ATT_MTU allows in one notification
	if txMTU, err := cln.ExchangeMTU(ble.MaxMTU); err != nil {
		logger.Debugf("couldn't exchange mtu: %s", err)
	} else {
		logger.Debugf("mtu %d", txMTU)
	}

	chars, err := discoverCharacteristics(cln, sensorServiceUUID, measurementCharUUID, commandCharUUID)
	if err != nil {
		return airthings.Reading{}, airthings.Unreachable(err, "couldn't discover sensor service")
	}
	measurement, ok := chars[measurementCharUUID.String()]
	if !ok {
		return airthings.Reading{}, errors.Wrap(airthings.ErrDeviceUnreachable, "did not find expected characteristic")
	}

	logger.Debug("reading characteristic")
	sensorBytes, err := cln.ReadCharacteristic(measurement)
	logger.Debug("finished reading characteristic")
	if err != nil {
		return airthings.Reading{}, airthings.Unreachable(err, "failed to read characteristic value")
	}
	values, err := DecodeMeasurements(sensorBytes)
	if err != nil {
		return airthings.Reading{}, err
	}

	reading := airthings.Reading{
		SensorValues:     values,
		AbsoluteHumidity: airthings.AbsoluteHumidity(values.Humidity, values.Temperature, values.AtmPressure),
		Name:             sensor.LocalName,
		SerialNumber:     sensor.Serial,
		Timestamp:        time.Now().UTC(),
	}

	// the rest is best effort, a device that answered the measurement read is recorded either way
	sensor.readDeviceInfo(cln, &reading)
	if command, ok := chars[commandCharUUID.String()]; ok {
		cmd, err := sensor.readCommand(ctx, cln, command)
		if err != nil {
			logger.Infof("no command data: %s", err)
		} else {
			illuminance := cmd.illuminance
			reading.Illuminance = &illuminance
			reading.Battery = airthings.NewBattery(cmd.batteryVoltage)
		}
	}

	return reading, nil
}

func (sensor *BleSensor) readDeviceInfo(cln ble.Client, reading *airthings.Reading) {
	chars, err := discoverCharacteristics(cln, deviceInfoServiceUUID, modelNumberCharUUID, serialNumberCharUUID)
	if err != nil {
		log.WithField("addr", sensor.Addr).Debugf("no device information: %s", err)
		return
	}
	if c, ok := chars[modelNumberCharUUID.String()]; ok {
		if b, err := cln.ReadCharacteristic(c); err == nil {
			reading.ModelNumber = strings.TrimRight(string(b), "\x00")
		}
	}
	if c, ok := chars[serialNumberCharUUID.String()]; ok && reading.SerialNumber == "" {
		if b, err := cln.ReadCharacteristic(c); err == nil {
			reading.SerialNumber = strings.TrimRight(string(b), "\x00")
		}
	}
}

func (sensor *BleSensor) readCommand(ctx context.Context, cln ble.Client, c *ble.Characteristic) (commandValues, error) {
	if _, err := cln.DiscoverDescriptors(nil, c); err != nil {
		return commandValues{}, errors.Wrap(err, "couldn't discover command descriptors")
	}

	responses := make(chan []byte, 1)
	handler := func(req []byte) {
		b := make([]byte, len(req))
		copy(b, req)
		select {
		case responses <- b:
		default:
		}
	}
	if err := cln.Subscribe(c, false, handler); err != nil {
		return commandValues{}, errors.Wrap(err, "couldn't subscribe to command characteristic")
	}
	defer func() { _ = cln.Unsubscribe(c, false) }()

	if err := cln.WriteCharacteristic(c, []byte{commandRequest}, false); err != nil {
		return commandValues{}, errors.Wrap(err, "couldn't write command")
	}

	timer := time.NewTimer(sensor.CommandTimeout)
	defer timer.Stop()
	select {
	case b := <-responses:
		return decodeCommandResponse(b)
	case <-timer.C:
		return commandValues{}, errors.New("timeout on command data")
	case <-ctx.Done():
		return commandValues{}, ctx.Err()
	}
}

// discoverCharacteristics returns the wanted characteristics of one service keyed by UUID string.
func discoverCharacteristics(cln ble.Client, service ble.UUID, wanted ...ble.UUID) (map[string]*ble.Characteristic, error) {
	services, err := cln.DiscoverServices([]ble.UUID{service})
	if err != nil {
		return nil, errors.Wrap(err, "couldn't discover services")
	}
	if len(services) == 0 {
		return nil, errors.Errorf("did not find service %s", service)
	}

	characteristics, err := cln.DiscoverCharacteristics(wanted, services[0])
	if err != nil {
		return nil, errors.Wrap(err, "couldn't discover characteristics")
	}

	found := map[string]*ble.Characteristic{}
	for _, c := range characteristics {
		found[c.UUID.String()] = c
	}
	return found, nil
}
