package models

// AlertKind names the threshold that a reading crossed.
type AlertKind string

const (
	AlertHighTemperature AlertKind = "HIGH_TEMPERATURE"
	AlertLowTemperature  AlertKind = "LOW_TEMPERATURE"
	AlertHighHumidity    AlertKind = "HIGH_HUMIDITY"
	AlertLowHumidity     AlertKind = "LOW_HUMIDITY"
)

// IsValid reports whether k is one of the four known kinds.
func (k AlertKind) IsValid() bool {
	switch k {
	case AlertHighTemperature, AlertLowTemperature, AlertHighHumidity, AlertLowHumidity:
		return true
	default:
		return false
	}
}

// Alert is a transient event raised for a single reading dimension.
type Alert struct {
	Type      AlertKind `json:"type"`
	SensorID  string    `json:"sensor_id"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Message   string    `json:"message"`
}
