// Package models defines the core domain entities for the kbmeter application.
// These models represent raw time-of-flight samples, the measurements derived from them,
// and the experiment runs that group them.
// All models include built-in validation to ensure data integrity throughout the application.
//
// Every quantity is stored in SI base units: seconds, kelvin, pascal, metres.
package models

import (
	"errors"
	"math"
)

// Sample is one raw reading produced by the acquisition loop. It is immutable once produced.
type Sample struct {
	TransitTime float64 `json:"transit_time"`       // s
	Temperature float64 `json:"temperature"`        // K
	Pressure    float64 `json:"pressure,omitempty"` // Pa, 0 when the rig has no barometer
	Timestamp   float64 `json:"timestamp"`          // s since experiment start
	Raw         float64 `json:"raw,omitempty"`      // raw echo reading as reported by the sensor
}

// HasPressure reports whether the sample carries a pressure reading.
func (s *Sample) HasPressure() bool {
	return s.Pressure > 0
}

// Validate checks that all sample fields are valid
func (s *Sample) Validate() error {
	if !finite(s.TransitTime) || !finite(s.Temperature) || !finite(s.Pressure) || !finite(s.Timestamp) {
		return errors.New("sample fields must be finite")
	}
	if s.TransitTime <= 0 {
		return errors.New("transit time must be positive")
	}
	if s.Temperature <= 0 {
		return errors.New("temperature must be positive")
	}
	if s.Pressure < 0 {
		return errors.New("pressure must not be negative")
	}
	if s.Timestamp < 0 {
		return errors.New("timestamp must not be negative")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
