package models

import (
	"errors"
	"math"
)

// Measurement is what one sample yields under fixed experiment constants.
type Measurement struct {
	SpeedOfSound  float64 `json:"speed_of_sound"` // m/s
	Boltzmann     float64 `json:"boltzmann"`      // ×10^-23 J/K
	RelativeError float64 `json:"relative_error"` // fraction
	AbsoluteError float64 `json:"absolute_error"` // ×10^-23 J/K
}

// Validate checks that all measurement fields are valid
func (m *Measurement) Validate() error {
	if !finite(m.SpeedOfSound) || !finite(m.Boltzmann) || !finite(m.RelativeError) || !finite(m.AbsoluteError) {
		return errors.New("measurement fields must be finite")
	}
	if m.SpeedOfSound <= 0 {
		return errors.New("speed of sound must be positive")
	}
	if m.RelativeError < 0 {
		return errors.New("relative error must not be negative")
	}
	if math.Abs(m.AbsoluteError-math.Abs(m.Boltzmann*m.RelativeError)) > 1e-9*math.Max(1, math.Abs(m.Boltzmann)) {
		return errors.New("absolute error must equal |boltzmann × relative error|")
	}
	return nil
}

// Record pairs an accepted sample with its measurement. Seq is the 1-based acceptance order.
type Record struct {
	Seq         int         `json:"seq"`
	Sample      Sample      `json:"sample"`
	Measurement Measurement `json:"measurement"`
}

// Validate checks both halves of the record.
func (r *Record) Validate() error {
	if r.Seq < 1 {
		return errors.New("record sequence must start at 1")
	}
	if err := r.Sample.Validate(); err != nil {
		return err
	}
	return r.Measurement.Validate()
}
