package waveplus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/waveplus-reader/airthings"
)

type BleScanner struct {
	ScanDuration time.Duration
	// number of scan rounds, results are merged
	Scans   int
	Retries int

	// when non-empty, only these addresses are reported
	Addresses []string

	ConnectTimeout time.Duration
	CommandTimeout time.Duration

	// Find and Connect default to ble.Find and ble.Connect
	Find    func(ctx context.Context, allowDup bool, f ble.AdvFilter) ([]ble.Advertisement, error)
	Connect func(ctx context.Context, f ble.AdvFilter) (ble.Client, error)
}

// Scan runs the configured scan rounds and returns every Wave Plus seen, in discovery order.
// Only a failure of the first round is reported as an error.
func (scanner *BleScanner) Scan(ctx context.Context) ([]airthings.Sensor, error) {
	var sensors []airthings.Sensor
	seen := map[string]bool{}

	log.Info("searching for devices")
	for i := 0; i < max(scanner.Scans, 1); i++ {
		ads, err := scanner.scanWithRetries(ctx)
		if err != nil {
			// a failed round after a successful one still leaves usable results
			if i == 0 || ctx.Err() != nil {
				return sensors, err
			}
			log.Errorf("scan round %d failed, keeping %d device(s) found so far: %s", i+1, len(sensors), err)
			break
		}
		for _, a := range ads {
			addr := strings.ToUpper(a.Addr().String())
			if seen[addr] || !scanner.wanted(addr) {
				continue
			}
			seen[addr] = true

			serialNr := manufacturerDataToSerialNumber(a.ManufacturerData())
			log.WithFields(log.Fields{
				"addr":     addr,
				"serialNr": serialNr,
				"name":     a.LocalName(),
				"rssi":     a.RSSI(),
			}).Info("discovered device")

			sensors = append(sensors, &BleSensor{
				Addr:           addr,
				Serial:         serialNr,
				LocalName:      a.LocalName(),
				ConnectTimeout: scanner.ConnectTimeout,
				CommandTimeout: scanner.CommandTimeout,
				Retries:        scanner.Retries,
				Connect:        scanner.Connect,
			})
		}
	}
	log.Infof("total %d device(s) found", len(sensors))

	return sensors, nil
}

func (scanner *BleScanner) scanWithRetries(ctx context.Context) ([]ble.Advertisement, error) {
	var lastErr error
	for i := 0; i < max(scanner.Retries, 1); i++ {
		ads, err := scanner.scan(ctx)
		if err == nil || ctx.Err() != nil {
			return ads, err
		}
		lastErr = err
		log.Errorf("retrying error in scan: %s", err)
	}

	return nil, errors.Wrap(lastErr, "all retries to scan failed")
}

func (scanner *BleScanner) scan(ctx context.Context) ([]ble.Advertisement, error) {
	ctx, cancel := context.WithTimeout(ctx, scanner.ScanDuration)
	defer cancel()

	ads, err := scanner.find(ctx)
	if err != nil {
		switch errors.Cause(err) {
		case nil:
		case context.DeadlineExceeded:
		case context.Canceled:
			return nil, errors.Wrap(err, "scan for devices cancelled")
		default:
			return nil, errors.Wrapf(airthings.ErrAdapterUnavailable, "failed to scan for devices: %s", err)
		}
	}

	return ads, nil
}

func (scanner *BleScanner) find(ctx context.Context) ([]ble.Advertisement, error) {
	if scanner.Find != nil {
		return scanner.Find(ctx, false, wavePlusOnlyFilter)
	}
	return ble.Find(ctx, false, wavePlusOnlyFilter)
}

func (scanner *BleScanner) wanted(addr string) bool {
	if len(scanner.Addresses) == 0 {
		return true
	}
	for _, a := range scanner.Addresses {
		if strings.EqualFold(a, addr) {
			return true
		}
	}
	return false
}

func wavePlusOnlyFilter(a ble.Advertisement) bool {
	return a.Connectable() && isAirthings(a.ManufacturerData())
}

func isAirthings(manufacturerData []byte) bool {
	return len(manufacturerData) >= 6 &&
		manufacturerData[0] == manufacturerID&0xff && manufacturerData[1] == manufacturerID>>8
}

func manufacturerDataToSerialNumber(manufacturerData []byte) string {
	if !isAirthings(manufacturerData) {
		return ""
	}
	serialNumber := uint32(manufacturerData[2])
	serialNumber |= uint32(manufacturerData[3]) << 8
	serialNumber |= uint32(manufacturerData[4]) << 16
	serialNumber |= uint32(manufacturerData[5]) << 24
	return fmt.Sprint(serialNumber)
}
