package models

import (
	"errors"
	"strings"
)

// DefaultLocation is used when a sender omits the location.
const DefaultLocation = "Unknown"

// Validation errors
var (
	ErrMissingFields = errors.New("missing required fields: sensor_id, temperature, humidity")
	ErrInvalidBody   = errors.New("invalid JSON body")
)

// SensorReading is one accepted measurement as it is persisted.
type SensorReading struct {
	// Identifier of the reporting sensor
	SensorID string `json:"sensor_id"`

	// Epoch milliseconds assigned by the reading store, never by the sender
	Timestamp int64 `json:"timestamp"`

	// Degrees Celsius
	Temperature float64 `json:"temperature"`

	// Relative humidity percent (range not enforced)
	Humidity float64 `json:"humidity"`

	Location string `json:"location"`
}

// ReadingInput is the wire form of a candidate reading. Pointer fields let a
// zero measurement be told apart from an absent one.
type ReadingInput struct {
	SensorID    string   `json:"sensor_id"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Location    string   `json:"location,omitempty"`
}

// Validate checks that sensor_id, temperature and humidity are all present.
func (in *ReadingInput) Validate() error {
	if strings.TrimSpace(in.SensorID) == "" || in.Temperature == nil || in.Humidity == nil {
		return ErrMissingFields
	}
	return nil
}

// Reading converts a validated input into a SensorReading with defaults
// applied. The timestamp is left zero for the store to assign.
func (in *ReadingInput) Reading() SensorReading {
	r := SensorReading{
		SensorID: strings.TrimSpace(in.SensorID),
		Location: strings.TrimSpace(in.Location),
	}
	if in.Temperature != nil {
		r.Temperature = *in.Temperature
	}
	if in.Humidity != nil {
		r.Humidity = *in.Humidity
	}
	if r.Location == "" {
		r.Location = DefaultLocation
	}
	return r
}

// Input returns the wire form of an already accepted reading.
func (r SensorReading) Input() ReadingInput {
	t, h := r.Temperature, r.Humidity
	return ReadingInput{
		SensorID:    r.SensorID,
		Temperature: &t,
		Humidity:    &h,
		Location:    r.Location,
	}
}
