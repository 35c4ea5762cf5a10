// Package physics converts a time-of-flight reading into a speed of sound and a Boltzmann
// constant estimate.
//
// Every equation of state is evaluated through the same decomposition:
//
//	k_B = (c² + m) / (a_f · γ · T) · μ
//
// where c is the measured speed of sound, m the real-gas molar correction, a_f the excluded
// volume factor and μ the particle mass scale. The ideal gas has m = 0 and a_f = 1. Results are
// on the 10^-23 J/K scale so they compare directly with ReferenceBoltzmann.
package physics

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNonPositiveTransitTime = errors.New("transit time must be positive")
	ErrNonPositiveDistance    = errors.New("distance must be positive")
	ErrNonPositiveTemperature = errors.New("temperature must be positive")
	ErrPressureRequired       = errors.New("pressure is required for real-gas corrections")
	ErrNonFinite              = errors.New("derived value is not finite")
)

// Input is one reading in SI units. Pressure is zero when the sensor does not report it.
type Input struct {
	TransitTime float64 // s
	Temperature float64 // K
	Distance    float64 // m
	Pressure    float64 // Pa
}

// SpeedOfSound returns distance / transitTime.
func SpeedOfSound(transitTime, distance float64) (float64, error) {
	if !(transitTime > 0) {
		return 0, fmt.Errorf("%w: got %g s", ErrNonPositiveTransitTime, transitTime)
	}
	if !(distance > 0) {
		return 0, fmt.Errorf("%w: got %g m", ErrNonPositiveDistance, distance)
	}
	return distance / transitTime, nil
}

// correction is the real-gas part of the decomposition for one equation of state.
type correction struct {
	molar    float64 // m
	volume   float64 // a_f
	particle float64 // μ
}

// MolarVolume is the molar volume in litres used by the real-gas corrections.
// The pressure ratio enters as p/p0, matching the calibration of the recorded data sets.
func MolarVolume(temperature, pressure float64) float64 {
	return molarVolumeSTP * pressure / standardPressure * (temperature / standardTemperature)
}

func correctionFor(model Model, gc GasConstants, in Input) (correction, error) {
	switch model.EOS {
	case Ideal:
		return correction{molar: 0, volume: 1, particle: gc.MolarMassKg / avogadro}, nil

	case VanDerWaals:
		if !(in.Pressure > 0) {
			return correction{}, ErrPressureRequired
		}
		vm := MolarVolume(in.Temperature, in.Pressure)
		return correction{
			molar:    2 * gc.Gamma * gc.VDWA / (gc.MolarMassG * vm),
			volume:   vm * vm / ((vm - gc.VDWB) * (vm - gc.VDWB)),
			particle: gc.MolarMassG * amu * 1e23,
		}, nil

	case RedlichKwong:
		if !(in.Pressure > 0) {
			return correction{}, ErrPressureRequired
		}
		vm := MolarVolume(in.Temperature, in.Pressure)
		return correction{
			molar:    gc.Gamma * gc.RKA * (2*vm + gc.RKB) / (math.Sqrt(in.Temperature) * gc.MolarMassG * (vm + gc.RKB)),
			volume:   vm * vm / ((vm - gc.RKB) * (vm - gc.RKB)),
			particle: gc.MolarMassG * amu * 1e23,
		}, nil

	default:
		return correction{}, fmt.Errorf("unknown equation of state %q", model.EOS)
	}
}

// Boltzmann derives the Boltzmann constant estimate (×10^-23 J/K) under the given model.
func Boltzmann(model Model, in Input) (float64, error) {
	gc, ok := Gases[model.Gas]
	if !ok {
		return 0, fmt.Errorf("unknown gas %q", model.Gas)
	}
	if !(in.Temperature > 0) {
		return 0, fmt.Errorf("%w: got %g K", ErrNonPositiveTemperature, in.Temperature)
	}

	c, err := SpeedOfSound(in.TransitTime, in.Distance)
	if err != nil {
		return 0, err
	}

	corr, err := correctionFor(model, gc, in)
	if err != nil {
		return 0, err
	}

	kb := (c*c + corr.molar) / (corr.volume * gc.Gamma * in.Temperature) * corr.particle
	if math.IsNaN(kb) || math.IsInf(kb, 0) {
		return 0, fmt.Errorf("%w: %s at tt=%g s, T=%g K, p=%g Pa", ErrNonFinite, model, in.TransitTime, in.Temperature, in.Pressure)
	}
	return kb, nil
}

// BoltzmannIdeal is Boltzmann under the ideal gas law.
func BoltzmannIdeal(gas Gas, transitTime, temperature, distance float64) (float64, error) {
	return Boltzmann(Model{Gas: gas, EOS: Ideal}, Input{
		TransitTime: transitTime,
		Temperature: temperature,
		Distance:    distance,
	})
}

// BoltzmannVDW is Boltzmann with the Van der Waals correction.
func BoltzmannVDW(gas Gas, transitTime, temperature, distance, pressure float64) (float64, error) {
	return Boltzmann(Model{Gas: gas, EOS: VanDerWaals}, Input{
		TransitTime: transitTime,
		Temperature: temperature,
		Distance:    distance,
		Pressure:    pressure,
	})
}

// BoltzmannRK is Boltzmann with the Redlich-Kwong correction.
func BoltzmannRK(gas Gas, transitTime, temperature, distance, pressure float64) (float64, error) {
	return Boltzmann(Model{Gas: gas, EOS: RedlichKwong}, Input{
		TransitTime: transitTime,
		Temperature: temperature,
		Distance:    distance,
		Pressure:    pressure,
	})
}
