package convection

import (
	"fmt"

	"github.com/notargets/goflame/FD1D"
	"github.com/notargets/goflame/ode"
	"github.com/notargets/goflame/utils"
)

/*
SpeciesSystem is the scalar convection system for a single species mass
fraction, active on the node range [StartIndex, StopIndex]. The velocity
is read from the library the UTW phase published, or from the quasi-2D
interpolators when those are installed. State index i maps to grid node
StartIndex + i.
*/
type SpeciesSystem struct {
	Grid *FD1D.Grid

	K          int // species index, identification only
	Yleft      float64
	SplitConst []float64 // one entry per active node

	StartIndex, StopIndex int

	VLib *VelocityLibrary

	VzInterp, VrInterp *BilinearInterpolator
	Quasi2D            bool

	v     []float64 // velocity on the active range
	vFull []float64 // scratch for sampling the full-domain profile
	dYdx  []float64
}

func NewSpeciesSystem(grid *FD1D.Grid, k int, vlib *VelocityLibrary) (sys *SpeciesSystem) {
	sys = &SpeciesSystem{
		Grid: grid,
		K:    k,
		VLib: vlib,
	}
	return sys
}

// SetDomain installs the active node range and sizes the working arrays
func (sys *SpeciesSystem) SetDomain(startIndex, stopIndex int) (err error) {
	var (
		n = sys.Grid.N
	)
	if startIndex < 0 || stopIndex >= n || stopIndex < startIndex {
		return fmt.Errorf("convection: species %d domain [%d, %d] invalid for %d nodes",
			sys.K, startIndex, stopIndex, n)
	}
	sys.StartIndex = startIndex
	sys.StopIndex = stopIndex
	np := sys.StateSize()
	sys.SplitConst = make([]float64, np)
	sys.v = make([]float64, np)
	sys.vFull = make([]float64, n)
	sys.dYdx = make([]float64, np)
	return nil
}

func (sys *SpeciesSystem) StateSize() int { return sys.StopIndex - sys.StartIndex + 1 }

func (sys *SpeciesSystem) ResetSplitConstants() {
	for i := range sys.SplitConst {
		sys.SplitConst[i] = 0
	}
}

// updateV fills the active-range velocity at time t
func (sys *SpeciesSystem) updateV(t float64) (err error) {
	var (
		g = sys.Grid
	)
	if sys.Quasi2D {
		for i := range sys.v {
			sys.v[i] = sys.VzInterp.At(g.X[sys.StartIndex+i], t)
		}
		return nil
	}
	if err = sys.VLib.Sample(t, sys.vFull); err != nil {
		return fmt.Errorf("%w: %v", ode.ErrRecoverable, err)
	}
	copy(sys.v, sys.vFull[sys.StartIndex:sys.StopIndex+1])
	return nil
}

// RHS is the ODE function for the single-species transport:
// dY/dt = -v dY/dx + splitConst on the active range
func (sys *SpeciesSystem) RHS(t float64, y, ydot []float64) (err error) {
	var (
		g  = sys.Grid
		np = sys.StateSize()
	)
	if np < 3 {
		// Too few active nodes to transport; the species is inert on this
		// step and integrates trivially
		for i := range ydot {
			ydot[i] = 0
		}
		return nil
	}
	if err = sys.updateV(t); err != nil {
		return err
	}
	for i := 0; i < np; i++ {
		var (
			j = sys.StartIndex + i
		)
		switch {
		case i == 0:
			if sys.v[0] < 0 || sys.StartIndex > 0 {
				// Interior left edge has no boundary prescription; fall
				// back to forward differencing
				sys.dYdx[0] = (y[1] - y[0]) / g.Hh[j]
			} else {
				sys.dYdx[0] = (y[0] - sys.Yleft) / g.Hh[j]
			}
		case i == np-1 || sys.v[i] >= 0:
			sys.dYdx[i] = (y[i] - y[i-1]) / g.Hh[j-1]
		default:
			sys.dYdx[i] = (y[i+1] - y[i]) / g.Hh[j]
		}
		ydot[i] = -sys.v[i]*sys.dYdx[i] + sys.SplitConst[i]
	}
	if ok, i := utils.AllFinite(ydot); !ok {
		return fmt.Errorf("%w: non-finite dY/dt for species %d at active index %d",
			ode.ErrRecoverable, sys.K, i)
	}
	return nil
}
