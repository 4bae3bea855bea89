package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/common/version"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/waveplus-reader/airthings"
	"github.com/alepar/waveplus-reader/airthings/collect"
	"github.com/alepar/waveplus-reader/airthings/metrics"
	"github.com/alepar/waveplus-reader/airthings/output"
	"github.com/alepar/waveplus-reader/airthings/publish"
	"github.com/alepar/waveplus-reader/airthings/waveplus"
)

const appName = "waveplus-reader"

const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitInterrupted = 130
)

func init() {
	//logging
	formatter := &log.TextFormatter{
		FullTimestamp: true,
	}
	log.SetFormatter(formatter)
	log.SetOutput(os.Stderr)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// a missing .env is fine, flags and the environment still apply
	_ = godotenv.Load()

	cfg, err := parseConfig(args, os.Getenv)
	if err != nil {
		if err == flag.ErrHelp {
			return exitOK
		}
		log.Errorf("invalid configuration: %s", err)
		return exitUsage
	}
	if cfg.showVersion {
		fmt.Println(version.Print(appName))
		return exitOK
	}
	log.SetLevel(cfg.logLevel)

	ctx, stop := signalContext()
	defer stop()

	// open BLE
	d, err := linux.NewDevice(ble.OptDeviceID(cfg.hciID))
	if err != nil {
		log.Errorf("failed to open ble (hci%d): %s", cfg.hciID, err)
		return exitFailure
	}
	ble.SetDefaultDevice(d)
	defer func() { _ = ble.Stop() }()

	scanner := &waveplus.BleScanner{
		ScanDuration:   cfg.scanDuration,
		Scans:          cfg.scans,
		Retries:        cfg.retries,
		Addresses:      cfg.devices,
		ConnectTimeout: cfg.connectTimeout,
		CommandTimeout: cfg.commandTimeout,
	}
	return exitCode(runCycle(ctx, cfg, scanner))
}

// signalContext is cancelled by SIGINT/SIGTERM for the whole run, not only while go-ble
// is scanning or connecting, so an interrupt always releases the open connection and
// flushes what was read.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ble.WithSigHandler(context.WithCancel(ctx)), stop
}

// runCycle collects from every sensor the scanner finds and persists the result.
// Readings gathered before an interrupt are still written.
func runCycle(ctx context.Context, cfg config, scanner airthings.Scanner) error {
	m := metrics.New()
	collector := &collect.Collector{
		Scanner:   scanner,
		Key:       cfg.key,
		Observers: []collect.Observer{m},
	}

	result, collectErr := collector.Collect(ctx)
	if collectErr != nil && ctx.Err() == nil {
		return collectErr
	}
	if collectErr != nil && result.Document.Len() == 0 {
		// nothing new, leave the previous output alone
		return collectErr
	}

	if err := output.Save(cfg.output, result.Document, cfg.mode); err != nil {
		return err
	}
	for _, f := range result.Failures {
		log.Warnf("skipped %s (%s): %s", f.Key, f.Address, f.Err)
	}
	log.Infof("recorded %d of %d device(s)", result.Document.Len(), result.Found)

	// extra sinks never fail the run, the JSON file is the primary output
	if cfg.metricsTextfile != "" {
		if err := m.WriteTextfile(cfg.metricsTextfile); err != nil {
			log.Errorf("%s", err)
		}
	}
	if cfg.mqttBroker != "" && ctx.Err() == nil {
		publishReadings(ctx, cfg, result.Document)
	}

	return collectErr
}

func publishReadings(ctx context.Context, cfg config, doc *output.Document) {
	p := publish.NewPublisher(publish.Config{
		Broker:   cfg.mqttBroker,
		Token:    cfg.mqttToken,
		ClientID: cfg.mqttClientID,
		Timeout:  cfg.connectTimeout,
	})
	if err := p.Connect(ctx); err != nil {
		log.Errorf("%s", err)
		return
	}
	defer p.Close()
	if err := p.Publish(ctx, doc); err != nil {
		log.Errorf("%s", err)
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Cause(err) == context.Canceled:
		log.Warn("interrupted")
		return exitInterrupted
	default:
		log.Errorf("%s", err)
		return exitFailure
	}
}
