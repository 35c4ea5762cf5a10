// Package uncertainty propagates fixed sensor error budgets into a relative error on the
// derived Boltzmann constant.
//
// k_B scales with (d/t)² and 1/T, so to first order
//
//	Δk/k = 2·(Δd/d + Δt/t) + ΔT/T
package uncertainty

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrZeroInput is returned when a divisor of the propagation is zero or negative.
var ErrZeroInput = errors.New("error propagation input must be positive")

// Budget holds the absolute uncertainty of each measured quantity in SI units.
type Budget struct {
	Distance    float64 `mapstructure:"distance" yaml:"distance"`         // m
	TransitTime float64 `mapstructure:"transit_time" yaml:"transit_time"` // s
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`   // K
}

// Presets are the budgets of the rigs the experiment has been run on.
var Presets = map[string]Budget{
	// Ultrasonic module read by a microcontroller over serial.
	"serial": {Distance: 0.0025, TransitTime: 4.665306263360271e-07, Temperature: 0.5},
	// Echo timed on a single-board computer's GPIO pins; distance measured with a coarser rule.
	"gpio": {Distance: 0.005, TransitTime: 4.665306263360271e-07, Temperature: 0.5},
	// Serial rig with a BMP280 providing temperature and pressure.
	"bmp280": {Distance: 0.0025, TransitTime: 5e-6, Temperature: 0.125},
}

// Preset looks up a named budget.
func Preset(name string) (Budget, error) {
	b, ok := Presets[strings.ToLower(name)]
	if !ok {
		names := make([]string, 0, len(Presets))
		for n := range Presets {
			names = append(names, n)
		}
		sort.Strings(names)
		return Budget{}, fmt.Errorf("unknown error budget %q: must be one of %s", name, strings.Join(names, ", "))
	}
	return b, nil
}

// Validate checks that every component is non-negative.
func (b Budget) Validate() error {
	if b.Distance < 0 || b.TransitTime < 0 || b.Temperature < 0 {
		return errors.New("error budget components must not be negative")
	}
	return nil
}

// RelativeError returns Δk/k as a fraction.
func RelativeError(transitTime, temperature, distance float64, b Budget) (float64, error) {
	if !(transitTime > 0) {
		return 0, fmt.Errorf("%w: transit time %g s", ErrZeroInput, transitTime)
	}
	if !(temperature > 0) {
		return 0, fmt.Errorf("%w: temperature %g K", ErrZeroInput, temperature)
	}
	if !(distance > 0) {
		return 0, fmt.Errorf("%w: distance %g m", ErrZeroInput, distance)
	}
	return 2*(b.Distance/distance+b.TransitTime/transitTime) + b.Temperature/temperature, nil
}

// AbsoluteError scales a relative error back onto the derived value.
func AbsoluteError(value, relative float64) float64 {
	return value * relative
}

// Percent converts a relative error fraction to a percentage for display.
func Percent(relative float64) float64 {
	return relative * 100
}
