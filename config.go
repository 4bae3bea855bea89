package main

import (
	"flag"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/waveplus-reader/airthings/collect"
	"github.com/alepar/waveplus-reader/airthings/output"
)

const envPrefix = "WAVEPLUS_"

type config struct {
	output string
	mode   output.Mode
	key    collect.KeyFunc

	hciID          int
	scanDuration   time.Duration
	scans          int
	connectTimeout time.Duration
	commandTimeout time.Duration
	retries        int
	devices        []string

	metricsTextfile string

	mqttBroker   string
	mqttToken    string
	mqttClientID string

	logLevel    log.Level
	showVersion bool
}

// stringList collects a repeatable flag, also accepting comma separated values.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*l = append(*l, s)
		}
	}
	return nil
}

// parseConfig reads CLI args; every flag defaults to its WAVEPLUS_* environment variable.
func parseConfig(args []string, getenv func(string) string) (config, error) {
	env := envDefaults{getenv: getenv}
	fs := flag.NewFlagSet("waveplus-reader", flag.ContinueOnError)

	outputPath := fs.String("output", env.lookupString("OUTPUT", "wave_plus_data.json"), "JSON file the readings are written to")
	mode := fs.String("mode", env.lookupString("MODE", string(output.Overwrite)), "what to do with an existing output file: overwrite or merge")
	key := fs.String("key", env.lookupString("KEY", "address"), "identify devices in the output by: address or serial")
	hciID := fs.Int("hci", env.lookupInt("HCI", 0), "HCI device id of the bluetooth adapter")
	scanDuration := fs.Duration("scan-dur", env.lookupDuration("SCAN_DUR", 5*time.Second), "duration of one scan round")
	scans := fs.Int("scans", env.lookupInt("SCANS", 2), "number of scan rounds")
	connectTimeout := fs.Duration("connect-timeout", env.lookupDuration("CONNECT_TIMEOUT", 10*time.Second), "time allowed to connect to one device")
	commandTimeout := fs.Duration("command-timeout", env.lookupDuration("COMMAND_TIMEOUT", 2*time.Second), "time to wait for battery and light data")
	retries := fs.Int("retries", env.lookupInt("RETRIES", 1), "max number of tries in case of BLE errors")
	metricsTextfile := fs.String("metrics-textfile", env.lookupString("METRICS_TEXTFILE", ""), "also write Prometheus metrics to this file")
	mqttBroker := fs.String("mqtt-broker", env.lookupString("MQTT_BROKER", ""), "publish readings to this ThingsBoard MQTT broker, e.g. tcp://localhost:1883")
	mqttToken := fs.String("mqtt-token", env.lookupString("MQTT_TOKEN", ""), "ThingsBoard gateway access token")
	mqttClientID := fs.String("mqtt-client-id", env.lookupString("MQTT_CLIENT_ID", "waveplus-reader"), "MQTT client id")
	logLevel := fs.String("log-level", env.lookupString("LOG_LEVEL", "info"), "debug, info, warn or error")
	showVersion := fs.Bool("version", false, "print version information and exit")

	devices := stringList{}
	if v := getenv(envPrefix + "DEVICES"); v != "" {
		_ = devices.Set(v)
	}
	fs.Var(&devices, "device", "only read this address, may be repeated (default: every device found)")

	if env.err != nil {
		return config{}, env.err
	}
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if fs.NArg() > 0 {
		return config{}, errors.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfg := config{
		output:          *outputPath,
		hciID:           *hciID,
		scanDuration:    *scanDuration,
		scans:           *scans,
		connectTimeout:  *connectTimeout,
		commandTimeout:  *commandTimeout,
		retries:         *retries,
		devices:         devices,
		metricsTextfile: *metricsTextfile,
		mqttBroker:      *mqttBroker,
		mqttToken:       *mqttToken,
		mqttClientID:    *mqttClientID,
		showVersion:     *showVersion,
	}

	var err error
	if cfg.mode, err = output.ParseMode(*mode); err != nil {
		return config{}, err
	}
	if cfg.key, err = collect.ParseKey(*key); err != nil {
		return config{}, err
	}
	if cfg.logLevel, err = log.ParseLevel(*logLevel); err != nil {
		return config{}, errors.Wrap(err, "invalid log level")
	}
	if cfg.output == "" {
		return config{}, errors.New("output path must not be empty")
	}
	if cfg.scanDuration <= 0 || cfg.connectTimeout <= 0 || cfg.commandTimeout <= 0 {
		return config{}, errors.New("durations must be positive")
	}
	if cfg.scans < 1 || cfg.retries < 1 {
		return config{}, errors.New("scans and retries must be at least 1")
	}

	return cfg, nil
}

// envDefaults remembers the first malformed variable so flag setup stays linear.
type envDefaults struct {
	getenv func(string) string
	err    error
}

func (e *envDefaults) lookupString(name, def string) string {
	if v := strings.TrimSpace(e.getenv(envPrefix + name)); v != "" {
		return v
	}
	return def
}

func (e *envDefaults) lookupInt(name string, def int) int {
	v := strings.TrimSpace(e.getenv(envPrefix + name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil && e.err == nil {
		e.err = errors.Wrapf(err, "invalid %s%s %q", envPrefix, name, v)
	}
	return i
}

func (e *envDefaults) lookupDuration(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.getenv(envPrefix + name))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil && e.err == nil {
		e.err = errors.Wrapf(err, "invalid %s%s %q", envPrefix, name, v)
	}
	return d
}
