package thermo

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// GasConstant is the universal gas constant [J/mol-K]
const GasConstant = 8.31446261815324

/*
IdealGasMix is the thermodynamic property provider consumed by the
convection core: given temperature and composition it produces the mixture
molecular weight and the ideal-gas density at the system pressure. The
pressure is fixed for the lifetime of the mixture.
*/
type IdealGasMix struct {
	W []float64 // species molecular weights [kg/mol]
	p float64   // thermodynamic pressure [Pa]
}

func NewIdealGasMix(W []float64, p float64) (gas *IdealGasMix, err error) {
	if len(W) == 0 {
		return nil, fmt.Errorf("thermo: no species molecular weights supplied")
	}
	for k, w := range W {
		if w <= 0 {
			return nil, fmt.Errorf("thermo: molecular weight of species %d is %g, must be positive", k, w)
		}
	}
	if p <= 0 {
		return nil, fmt.Errorf("thermo: pressure %g must be positive", p)
	}
	gas = &IdealGasMix{
		W: append([]float64(nil), W...),
		p: p,
	}
	return gas, nil
}

func (gas *IdealGasMix) NSpec() int        { return len(gas.W) }
func (gas *IdealGasMix) Pressure() float64 { return gas.p }

// MixtureWeight computes Wmx = 1 / sum_k(Y_k / W_k) from mass fractions.
// The mass fractions are normalized by their sum, so an unnormalized
// composition still yields a valid mixture weight.
func (gas *IdealGasMix) MixtureWeight(Y []float64) (Wmx float64, err error) {
	if len(Y) != len(gas.W) {
		return 0, fmt.Errorf("thermo: %d mass fractions for %d species", len(Y), len(gas.W))
	}
	ysum := floats.Sum(Y)
	if ysum <= 0 {
		return 0, fmt.Errorf("thermo: mass fractions sum to %g", ysum)
	}
	var s float64
	for k, y := range Y {
		s += y / gas.W[k]
	}
	return ysum / s, nil
}

// Density computes the ideal-gas density from temperature and composition
func (gas *IdealGasMix) Density(T float64, Y []float64) (rho float64, err error) {
	if T <= 0 {
		return 0, fmt.Errorf("thermo: non-positive temperature %g", T)
	}
	Wmx, err := gas.MixtureWeight(Y)
	if err != nil {
		return 0, err
	}
	return gas.DensityFromTW(T, Wmx), nil
}

// DensityFromTW computes rho = p*Wmx/(R*T). The caller guarantees T > 0.
func (gas *IdealGasMix) DensityFromTW(T, Wmx float64) float64 {
	return gas.p * Wmx / (GasConstant * T)
}
