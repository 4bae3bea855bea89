package airthings

import "math"

const (
	batteryVoltageMin = 2.2
	batteryVoltageMax = 3.2
)

// formulas: https://planetcalc.com/2167/ and https://planetcalc.com/2161/

// AbsoluteHumidity returns g/m3 for relative humidity rh (%), temperature t (degrees Celsius)
// and atmospheric pressure p (hPa).
func AbsoluteHumidity(rh, t, p float64) float64 {
	if p <= 0 {
		return 0
	}
	svp := saturationVaporPressure(t, p) * 100 // hPa -> Pa
	ah := (rh / 100 * svp) / (461.5 * (t + 273.15))
	return math.Round(ah*1000*100) / 100
}

func saturationVaporPressure(t, p float64) float64 {
	ewt := 6.112 * math.Exp((17.62*t)/(243.12+t))
	fp := 1.0016 + 3.15e-6*p - 0.074/p
	return fp * ewt
}

// NewBattery maps a 2xAA pack voltage onto 0..100%.
func NewBattery(voltage float64) *Battery {
	percent := math.Round((voltage - batteryVoltageMin) / (batteryVoltageMax - batteryVoltageMin) * 100)
	percent = math.Max(0, math.Min(100, percent))
	return &Battery{
		Voltage: voltage,
		Percent: int(percent),
	}
}
