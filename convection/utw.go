package convection

import (
	"fmt"

	"github.com/notargets/goflame/FD1D"
	"github.com/notargets/goflame/ode"
	"github.com/notargets/goflame/thermo"
	"github.com/notargets/goflame/utils"
)

/*
UTWSystem is the coupled convection system for the tangential velocity U,
temperature T and mixture molecular weight Wmx. Every right-hand-side
evaluation recomputes the density from the ideal-gas law, integrates the
continuity equation to obtain the mass flux rV under the active boundary
condition, and upwinds the convective derivatives on the sign of V.

The packed state layout is node-major per variable: y[0:n] = U,
y[n:2n] = T, y[2n:3n] = Wmx.
*/
type UTWSystem struct {
	Grid *FD1D.Grid
	Gas  *thermo.IdealGasMix

	U, T, Wmx          []float64
	DUdt, DTdt, DWdt   []float64
	Tleft, Wleft       float64
	RVzero             float64
	Drhodt             []float64
	SplitConstU        []float64
	SplitConstT        []float64
	SplitConstW        []float64

	// Updated by every RHS evaluation
	V, RV, Rho []float64

	ContBC  ContinuityBC
	JContBC int
	XVzero  float64

	dUdx, dTdx, dWdx []float64
}

const nUTWVars = 3

func NewUTWSystem(grid *FD1D.Grid, gas *thermo.IdealGasMix) (sys *UTWSystem) {
	sys = &UTWSystem{
		Grid:   grid,
		Gas:    gas,
		ContBC: BCLeft,
	}
	sys.Resize(grid.N)
	return sys
}

func (sys *UTWSystem) Resize(n int) {
	sys.U = make([]float64, n)
	sys.T = make([]float64, n)
	sys.Wmx = make([]float64, n)
	sys.DUdt = make([]float64, n)
	sys.DTdt = make([]float64, n)
	sys.DWdt = make([]float64, n)
	sys.Drhodt = make([]float64, n)
	sys.SplitConstU = make([]float64, n)
	sys.SplitConstT = make([]float64, n)
	sys.SplitConstW = make([]float64, n)
	sys.V = make([]float64, n)
	sys.RV = make([]float64, n)
	sys.Rho = make([]float64, n)
	sys.dUdx = make([]float64, n)
	sys.dTdx = make([]float64, n)
	sys.dWdx = make([]float64, n)
	sys.JContBC = 0
	sys.XVzero = sys.Grid.X[0]
}

func (sys *UTWSystem) StateSize() int { return nUTWVars * sys.Grid.N }

func (sys *UTWSystem) ResetSplitConstants() {
	for j := range sys.SplitConstU {
		sys.SplitConstU[j] = 0
		sys.SplitConstT[j] = 0
		sys.SplitConstW[j] = 0
	}
}

// UnrollY fills the state arrays from the packed solver vector
func (sys *UTWSystem) UnrollY(y []float64) {
	var (
		n = sys.Grid.N
	)
	copy(sys.U, y[:n])
	copy(sys.T, y[n:2*n])
	copy(sys.Wmx, y[2*n:3*n])
}

// RollY fills the packed solver vector from the state arrays
func (sys *UTWSystem) RollY(y []float64) {
	var (
		n = sys.Grid.N
	)
	copy(y[:n], sys.U)
	copy(y[n:2*n], sys.T)
	copy(y[2*n:3*n], sys.Wmx)
}

// RollYdot fills the packed derivative vector from the state derivatives
func (sys *UTWSystem) RollYdot(ydot []float64) {
	var (
		n = sys.Grid.N
	)
	copy(ydot[:n], sys.DUdt)
	copy(ydot[n:2*n], sys.DTdt)
	copy(ydot[2*n:3*n], sys.DWdt)
}

// RHS is the ODE function ydot = f(t, y). A non-finite intermediate is
// reported as recoverable so the solver can retry on a smaller step.
func (sys *UTWSystem) RHS(t float64, y, ydot []float64) (err error) {
	var (
		g   = sys.Grid
		n   = g.N
		gas = sys.Gas
	)
	sys.UnrollY(y)

	// Left boundary values are prescribed
	sys.T[0] = sys.Tleft
	sys.Wmx[0] = sys.Wleft

	for j := 0; j < n; j++ {
		sys.Rho[j] = gas.DensityFromTW(sys.T[j], sys.Wmx[j])
	}
	if ok, j := utils.AllFinite(sys.Rho); !ok {
		return fmt.Errorf("%w: non-finite density at node %d (T=%g, Wmx=%g)",
			ode.ErrRecoverable, j, sys.T[j], sys.Wmx[j])
	}

	sys.integrateContinuity()
	sys.rV2V()

	sys.upwindDerivatives()

	sys.DUdt[0] = sys.SplitConstU[0]
	sys.DTdt[0] = 0
	sys.DWdt[0] = 0
	for j := 1; j < n; j++ {
		sys.DUdt[j] = -sys.V[j]*sys.dUdx[j] + sys.SplitConstU[j]
		sys.DTdt[j] = -sys.V[j]*sys.dTdx[j] + sys.SplitConstT[j]
		sys.DWdt[j] = -sys.V[j]*sys.dWdx[j] + sys.SplitConstW[j]
	}

	sys.RollYdot(ydot)
	if ok, i := utils.AllFinite(ydot); !ok {
		return fmt.Errorf("%w: non-finite time derivative at packed index %d", ode.ErrRecoverable, i)
	}
	return nil
}

// contFlux is the integrand of the continuity equation on the cell
// [j, j+1]: d(rV)/dx = -r^alpha * (drho/dt + rho * U) with U averaged over
// the cell
func (sys *UTWSystem) contFlux(j int) float64 {
	return sys.Grid.RPow(j) * (sys.Drhodt[j] + sys.Rho[j]*0.5*(sys.U[j]+sys.U[j+1]))
}

func (sys *UTWSystem) integrateContinuity() {
	var (
		g = sys.Grid
		n = g.N
	)
	switch sys.ContBC {
	case BCLeft:
		sys.RV[0] = sys.RVzero
		for j := 1; j < n; j++ {
			sys.RV[j] = sys.RV[j-1] - g.Hh[j-1]*sys.contFlux(j-1)
		}
	case BCZero, BCQdot:
		jz := sys.JContBC
		if sys.ContBC == BCQdot {
			sys.RV[jz] = 0
		} else {
			// rV varies linearly through the stagnation point with the
			// local continuity slope
			slope := -g.RPow(jz) * (sys.Drhodt[jz] + sys.Rho[jz]*sys.U[jz])
			sys.RV[jz] = (g.X[jz] - sys.XVzero) * slope
		}
		for j := jz + 1; j < n; j++ {
			sys.RV[j] = sys.RV[j-1] - g.Hh[j-1]*sys.contFlux(j-1)
		}
		for j := jz; j > 0; j-- {
			sys.RV[j-1] = sys.RV[j] + g.Hh[j-1]*sys.contFlux(j-1)
		}
	}
}

// rV2V recovers V = rV / r^alpha. On a cylindrical grid starting at the
// axis the leading node takes rV directly, which is the symmetric limit.
func (sys *UTWSystem) rV2V() {
	var (
		g = sys.Grid
		n = g.N
	)
	if g.Alpha == 0 {
		copy(sys.V, sys.RV)
		return
	}
	sys.V[0] = sys.RV[0]
	if g.X[0] != 0 {
		sys.V[0] = sys.RV[0] / g.R[0]
	}
	for j := 1; j < n; j++ {
		sys.V[j] = sys.RV[j] / g.R[j]
	}
}

// V2rV is the inverse map, used when installing an externally supplied V
func (sys *UTWSystem) V2rV() {
	var (
		g = sys.Grid
		n = g.N
	)
	if g.Alpha == 0 {
		copy(sys.RV, sys.V)
		return
	}
	sys.RV[0] = sys.V[0]
	if g.X[0] != 0 {
		sys.RV[0] = sys.V[0] * g.R[0]
	}
	for j := 1; j < n; j++ {
		sys.RV[j] = sys.V[j] * g.R[j]
	}
}

func (sys *UTWSystem) upwindDerivatives() {
	var (
		g = sys.Grid
		n = g.N
	)
	for j := 0; j < n; j++ {
		switch {
		case j == 0:
			if sys.V[0] < 0 {
				sys.dUdx[0] = (sys.U[1] - sys.U[0]) / g.Hh[0]
				sys.dTdx[0] = (sys.T[1] - sys.T[0]) / g.Hh[0]
				sys.dWdx[0] = (sys.Wmx[1] - sys.Wmx[0]) / g.Hh[0]
			} else {
				// Upwinded from the left: the ghost values are the
				// boundary prescriptions, which the Dirichlet condition
				// has already written into node 0
				sys.dUdx[0] = 0
				sys.dTdx[0] = (sys.T[0] - sys.Tleft) / g.Hh[0]
				sys.dWdx[0] = (sys.Wmx[0] - sys.Wleft) / g.Hh[0]
			}
		case j == n-1 || sys.V[j] >= 0:
			sys.dUdx[j] = (sys.U[j] - sys.U[j-1]) / g.Hh[j-1]
			sys.dTdx[j] = (sys.T[j] - sys.T[j-1]) / g.Hh[j-1]
			sys.dWdx[j] = (sys.Wmx[j] - sys.Wmx[j-1]) / g.Hh[j-1]
		default:
			sys.dUdx[j] = (sys.U[j+1] - sys.U[j]) / g.Hh[j]
			sys.dTdx[j] = (sys.T[j+1] - sys.T[j]) / g.Hh[j]
			sys.dWdx[j] = (sys.Wmx[j+1] - sys.Wmx[j]) / g.Hh[j]
		}
	}
}

/*
UpdateContinuityBoundaryCondition installs a new continuity anchor between
integration steps. For BCZero the anchor is placed at the first sign
change of the current rV from the left, with XVzero interpolated linearly
between the bracketing nodes; for BCQdot it is placed at the peak of the
supplied heat-release profile. On error the previous condition is
preserved.
*/
func (sys *UTWSystem) UpdateContinuityBoundaryCondition(qdot []float64, newBC ContinuityBC) (err error) {
	var (
		g = sys.Grid
		n = g.N
	)
	switch newBC {
	case BCLeft:
		sys.ContBC = BCLeft
		sys.JContBC = 0
		sys.XVzero = g.X[0]
	case BCQdot:
		if len(qdot) != n {
			return fmt.Errorf("convection: qdot has %d entries for %d nodes", len(qdot), n)
		}
		jmax, qmax := utils.MaxLoc(qdot)
		if qmax <= 0 {
			return fmt.Errorf("convection: qdot has no positive heat release, max %g", qmax)
		}
		sys.ContBC = BCQdot
		sys.JContBC = jmax
		sys.XVzero = g.X[jmax]
	case BCZero:
		found := false
		for j := 0; j < n-1; j++ {
			if sys.RV[j] != sys.RV[j+1] && sys.RV[j]*sys.RV[j+1] <= 0 {
				sys.ContBC = BCZero
				sys.JContBC = j
				sys.XVzero = g.X[j] + sys.RV[j]*(g.X[j+1]-g.X[j])/(sys.RV[j]-sys.RV[j+1])
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("convection: no sign change in rV, cannot place stagnation point")
		}
	default:
		return fmt.Errorf("convection: unknown continuity boundary condition %d", newBC)
	}
	return nil
}
