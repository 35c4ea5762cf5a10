package acquisition

import "periph.io/x/conn/v3/physic"

// CelsiusToKelvin converts a sensor temperature.
func CelsiusToKelvin(c float64) float64 {
	t := physic.ZeroCelsius + physic.Temperature(c*float64(physic.Kelvin))
	return float64(t) / float64(physic.Kelvin)
}

// MicrosecondsToSeconds converts an echo time as reported by the microcontroller timer.
func MicrosecondsToSeconds(us float64) float64 {
	return us * 1e-6
}

// Pascals normalizes a barometer reading already expressed in Pa.
func Pascals(pa float64) float64 {
	p := physic.Pressure(pa * float64(physic.Pascal))
	return float64(p) / float64(physic.Pascal)
}
