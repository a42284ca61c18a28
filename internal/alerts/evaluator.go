package alerts

import (
	"fmt"
	"strconv"

	"sensorwatch/internal/models"
)

// Fixed bounds. A value equal to a bound never alerts.
const (
	TemperatureHigh = 30.0
	TemperatureLow  = 10.0
	HumidityHigh    = 80.0
	HumidityLow     = 20.0
)

// NoAlerts is reported in place of an empty kind list.
const NoAlerts = "NONE"

// Evaluate returns the alerts raised by a reading: at most one for
// temperature followed by at most one for humidity.
//
// The reading must already be validated. A NaN measurement compares false
// against every bound and so raises nothing.
func Evaluate(r models.SensorReading) []models.Alert {
	alerts := make([]models.Alert, 0, 2)

	switch {
	case r.Temperature > TemperatureHigh:
		alerts = append(alerts, newAlert(models.AlertHighTemperature, r.SensorID, r.Temperature, TemperatureHigh,
			"High temperature alert: %s°C exceeds %s°C"))
	case r.Temperature < TemperatureLow:
		alerts = append(alerts, newAlert(models.AlertLowTemperature, r.SensorID, r.Temperature, TemperatureLow,
			"Low temperature alert: %s°C below %s°C"))
	}

	switch {
	case r.Humidity > HumidityHigh:
		alerts = append(alerts, newAlert(models.AlertHighHumidity, r.SensorID, r.Humidity, HumidityHigh,
			"High humidity alert: %s%% exceeds %s%%"))
	case r.Humidity < HumidityLow:
		alerts = append(alerts, newAlert(models.AlertLowHumidity, r.SensorID, r.Humidity, HumidityLow,
			"Low humidity alert: %s%% below %s%%"))
	}

	return alerts
}

// Kinds lists the alert types in order, or ["NONE"] when there are none.
func Kinds(alerts []models.Alert) []string {
	if len(alerts) == 0 {
		return []string{NoAlerts}
	}
	kinds := make([]string, len(alerts))
	for i, a := range alerts {
		kinds[i] = string(a.Type)
	}
	return kinds
}

func newAlert(kind models.AlertKind, sensorID string, value, threshold float64, format string) models.Alert {
	return models.Alert{
		Type:      kind,
		SensorID:  sensorID,
		Value:     value,
		Threshold: threshold,
		Message:   fmt.Sprintf(format, FormatValue(value), FormatValue(threshold)),
	}
}

// FormatValue renders a measurement with the shortest exact representation,
// so 31 prints as "31" and 30.25 as "30.25".
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
