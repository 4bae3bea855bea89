// Package metrics exposes readings as Prometheus gauges. Since the reader exits
// after one pass, the registry is meant to be written to a node_exporter textfile.
package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alepar/waveplus-reader/airthings"
)

type Metrics struct {
	registry *prometheus.Registry

	humidity         *prometheus.GaugeVec
	absoluteHumidity *prometheus.GaugeVec
	radonShort       *prometheus.GaugeVec
	radonLong        *prometheus.GaugeVec
	temperature      *prometheus.GaugeVec
	atmPressure      *prometheus.GaugeVec
	co2Level         *prometheus.GaugeVec
	vocLevel         *prometheus.GaugeVec
	illuminance      *prometheus.GaugeVec
	batteryVoltage   *prometheus.GaugeVec
	batteryPercent   *prometheus.GaugeVec
	lastRead         *prometheus.GaugeVec
	reads            *prometheus.CounterVec
}

func newGauge(name string, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name,
			Help: help,
		},
		[]string{"device"},
	)
}

func New() *Metrics {
	m := &Metrics{
		registry:         prometheus.NewRegistry(),
		humidity:         newGauge("air_humidity", "Humidity (units: % of relative Humidity)"),
		absoluteHumidity: newGauge("air_absolute_humidity", "Absolute Humidity (units: g/m3)"),
		radonShort:       newGauge("air_radon_short", "Radon Short Term estimate (units: Bq/m3)"),
		radonLong:        newGauge("air_radon_long", "Radon Long Term estimate (units: Bq/m3)"),
		temperature:      newGauge("air_temperature", "Air Temperature (units: degrees Celsius)"),
		atmPressure:      newGauge("air_atm_pressure", "Atmospheric Pressure (units: hPa)"),
		co2Level:         newGauge("air_co2_level", "Air Carbon Dioxide level (units: ppm)"),
		vocLevel:         newGauge("air_voc_level", "Air Volatile Organic Compounds level (units: ppb)"),
		illuminance:      newGauge("air_illuminance", "Illuminance (units: lux)"),
		batteryVoltage:   newGauge("sensor_battery_voltage", "Battery voltage (units: V)"),
		batteryPercent:   newGauge("sensor_battery_percent", "Battery level (units: %)"),
		lastRead:         newGauge("sensor_last_read_timestamp_seconds", "Time of the last successful read"),
		reads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sensor_reads_total",
				Help: "Read attempts by outcome",
			},
			[]string{"device", "result"},
		),
	}

	m.registry.MustRegister(
		m.humidity, m.absoluteHumidity, m.radonShort, m.radonLong, m.temperature, m.atmPressure,
		m.co2Level, m.vocLevel, m.illuminance, m.batteryVoltage, m.batteryPercent, m.lastRead, m.reads,
	)
	// Add Go module build info.
	m.registry.MustRegister(collectors.NewBuildInfoCollector())

	return m
}

func (m *Metrics) Observe(device string, r airthings.Reading) {
	m.reads.WithLabelValues(device, "success").Inc()

	m.humidity.WithLabelValues(device).Set(r.Humidity)
	m.absoluteHumidity.WithLabelValues(device).Set(r.AbsoluteHumidity)
	m.temperature.WithLabelValues(device).Set(r.Temperature)
	m.atmPressure.WithLabelValues(device).Set(r.AtmPressure)
	m.co2Level.WithLabelValues(device).Set(float64(r.Co2Level))
	m.vocLevel.WithLabelValues(device).Set(float64(r.VocLevel))
	setOptional(m.radonShort, device, r.RadonShort)
	setOptional(m.radonLong, device, r.RadonLong)
	setOptional(m.illuminance, device, r.Illuminance)
	if r.Battery != nil {
		m.batteryVoltage.WithLabelValues(device).Set(r.Battery.Voltage)
		m.batteryPercent.WithLabelValues(device).Set(float64(r.Battery.Percent))
	}
	if !r.Timestamp.IsZero() {
		m.lastRead.WithLabelValues(device).Set(float64(r.Timestamp.Unix()))
	}
}

// values the device could not provide are left out instead of reported as zero
func setOptional(g *prometheus.GaugeVec, device string, v *int) {
	if v == nil {
		g.DeleteLabelValues(device)
		return
	}
	g.WithLabelValues(device).Set(float64(*v))
}

func (m *Metrics) ObserveFailure(device string, _ error) {
	m.reads.WithLabelValues(device, "failure").Inc()
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile atomically replaces path with the current metrics in text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return errors.Wrapf(prometheus.WriteToTextfile(path, m.registry), "failed to write metrics to %s", path)
}
