package physics

import (
	"fmt"
	"strings"
)

// ReferenceBoltzmann is the CODATA 2014 Boltzmann constant in units of 10^-23 J/K.
const ReferenceBoltzmann = 1.38064852

const (
	// avogadro is N_A in units of 10^23 mol^-1, so c²·M/(γ·N_A·T) lands on the 10^-23 scale.
	avogadro = 6.02214

	// amu is the atomic mass unit in kg.
	amu = 1.660e-27

	// molarVolumeSTP is the ideal molar volume at 273.15 K and 101325 Pa, in litres.
	molarVolumeSTP      = 22.4
	standardPressure    = 101325.0
	standardTemperature = 273.15
)

// Gas identifies the medium the pulse travels through.
type Gas string

const (
	Nitrogen Gas = "n2"
	Air      Gas = "air"
)

// EOS is the equation of state used to relate pressure, volume and temperature.
type EOS string

const (
	Ideal        EOS = "ideal"
	VanDerWaals  EOS = "vdw"
	RedlichKwong EOS = "rk"
)

// GasConstants bundles everything the equations of state need for one gas.
// Van der Waals and Redlich-Kwong a are in L²·Pa/mol² (scaled as tabulated), b in L/mol.
type GasConstants struct {
	MolarMassKg float64 // kg/mol
	MolarMassG  float64 // g/mol
	Gamma       float64 // heat capacity ratio
	VDWA, VDWB  float64
	RKA, RKB    float64
}

// Gases is the single constants table. Every model lookup goes through it.
var Gases = map[Gas]GasConstants{
	Nitrogen: {
		MolarMassKg: 14.0067 * 2e-3,
		MolarMassG:  14.0067 * 2,
		Gamma:       1.40,
		VDWA:        1.370 / 10,
		VDWB:        0.0387,
		RKA:         15.530 / 10,
		RKB:         0.02677,
	},
	Air: {
		MolarMassKg: 28.97e-3,
		MolarMassG:  28.97,
		Gamma:       1.40,
		VDWA:        1.368 / 10,
		VDWB:        0.0367,
		RKA:         15.989 / 10,
		RKB:         0.02541,
	},
}

// ParseGas validates a gas name from configuration.
func ParseGas(s string) (Gas, error) {
	g := Gas(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := Gases[g]; !ok {
		return "", fmt.Errorf("unknown gas %q: must be one of n2, air", s)
	}
	return g, nil
}

// ParseEOS validates an equation-of-state name from configuration.
func ParseEOS(s string) (EOS, error) {
	switch e := EOS(strings.ToLower(strings.TrimSpace(s))); e {
	case Ideal, VanDerWaals, RedlichKwong:
		return e, nil
	default:
		return "", fmt.Errorf("unknown equation of state %q: must be one of ideal, vdw, rk", s)
	}
}

// Model selects a gas and an equation of state.
type Model struct {
	Gas Gas `json:"gas" yaml:"gas"`
	EOS EOS `json:"eos" yaml:"eos"`
}

// ParseModel validates both halves of a model selection.
func ParseModel(gas, eos string) (Model, error) {
	g, err := ParseGas(gas)
	if err != nil {
		return Model{}, err
	}
	e, err := ParseEOS(eos)
	if err != nil {
		return Model{}, err
	}
	return Model{Gas: g, EOS: e}, nil
}

// NeedsPressure reports whether the model's correction term depends on pressure.
func (m Model) NeedsPressure() bool {
	return m.EOS != Ideal
}

func (m Model) String() string {
	return string(m.EOS) + "/" + string(m.Gas)
}
