package convection

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/goflame/FD1D"
	"github.com/notargets/goflame/ode"
	"github.com/notargets/goflame/thermo"
)

/*
SplitSystem combines one UTWSystem and a set of SpeciesSystems into the
complete convection term of the operator split. IntegrateToTime advances
the UTW solver first, publishing the mass-flux profile at every accepted
step into the velocity library, then advances each species solver on its
own sub-domain against the published velocities.

The coordinator is not re-entrant: IntegrateToTime, Evaluate and the
setters must not overlap.
*/
type SplitSystem struct {
	Grid *FD1D.Grid
	Gas  *thermo.IdealGasMix

	U, T, Wmx []float64
	Y         *mat.Dense // nSpec rows by nPoints columns

	// Updated by Evaluate and at the end of IntegrateToTime
	V, DUdt, DTdt, DWdt []float64
	DYdt                *mat.Dense

	UTW *UTWSystem

	VLib *VelocityLibrary

	// Wall time spent in each phase of the last IntegrateToTime
	UTWTime, SpeciesTime time.Duration

	utwSolver      *ode.Integrator
	speciesSystems []*SpeciesSystem
	speciesSolvers []*ode.Integrator

	relTol                             float64
	absTolU, absTolT, absTolW, absTolY float64

	Yleft []float64

	nSpec, nPoints int
	tNow           float64

	vzInterp, vrInterp *BilinearInterpolator
	quasi2d            bool

	yScratch, ydotScratch []float64
	nSteps                uint
}

func NewSplitSystem(grid *FD1D.Grid, gas *thermo.IdealGasMix, nSpec int) (sys *SplitSystem, err error) {
	if nSpec < 1 {
		return nil, fmt.Errorf("convection: need at least one species, got %d", nSpec)
	}
	if gas.NSpec() != nSpec {
		return nil, fmt.Errorf("convection: %d species but gas mixture carries %d molecular weights",
			nSpec, gas.NSpec())
	}
	sys = &SplitSystem{
		Grid:    grid,
		Gas:     gas,
		VLib:    NewVelocityLibrary(),
		relTol:  1e-8,
		absTolU: 1e-8,
		absTolT: 1e-8,
		absTolW: 1e-7,
		absTolY: 1e-8,
	}
	sys.UTW = NewUTWSystem(grid, gas)
	sys.speciesSystems = make([]*SpeciesSystem, nSpec)
	sys.speciesSolvers = make([]*ode.Integrator, nSpec)
	for k := 0; k < nSpec; k++ {
		sys.speciesSystems[k] = NewSpeciesSystem(grid, k, sys.VLib)
	}
	sys.nSpec = nSpec
	sys.Resize(grid.N)
	return sys, nil
}

// SetGrid installs a new shared grid view after the outer driver regrids
// and resizes every sub-system to match. SetState and SetSpeciesDomains
// must follow before the next step.
func (sys *SplitSystem) SetGrid(grid *FD1D.Grid) {
	sys.Grid = grid
	sys.UTW.Grid = grid
	for _, sp := range sys.speciesSystems {
		sp.Grid = grid
	}
	sys.Resize(grid.N)
}

// Resize reallocates every node-indexed sequence. The caller is expected
// to follow with SetState and SetSpeciesDomains before the next step.
func (sys *SplitSystem) Resize(nPoints int) {
	sys.nPoints = nPoints
	sys.U = make([]float64, nPoints)
	sys.T = make([]float64, nPoints)
	sys.Wmx = make([]float64, nPoints)
	sys.V = make([]float64, nPoints)
	sys.DUdt = make([]float64, nPoints)
	sys.DTdt = make([]float64, nPoints)
	sys.DWdt = make([]float64, nPoints)
	sys.Y = mat.NewDense(sys.nSpec, nPoints, nil)
	sys.DYdt = mat.NewDense(sys.nSpec, nPoints, nil)
	sys.UTW.Resize(nPoints)
	for k := range sys.speciesSystems {
		// Full domain until the driver installs the real sub-domains
		if err := sys.speciesSystems[k].SetDomain(0, nPoints-1); err != nil {
			panic(err)
		}
	}
	sys.yScratch = make([]float64, sys.UTW.StateSize())
	sys.ydotScratch = make([]float64, sys.UTW.StateSize())
}

// SetTolerances installs the integrator tolerances: shared relative,
// per-variable absolute for the UTW block, one scalar for every species
func (sys *SplitSystem) SetTolerances(relTol, absTolU, absTolT, absTolW, absTolY float64) (err error) {
	for _, tol := range []float64{relTol, absTolU, absTolT, absTolW, absTolY} {
		if tol <= 0 {
			return fmt.Errorf("convection: tolerances must be positive")
		}
	}
	sys.relTol = relTol
	sys.absTolU = absTolU
	sys.absTolT = absTolT
	sys.absTolW = absTolW
	sys.absTolY = absTolY
	return nil
}

// SetState installs the solution at the start of a convection substep.
// Wmx is derived from the composition so the state is thermodynamically
// consistent at every node.
func (sys *SplitSystem) SetState(U, T []float64, Y *mat.Dense, tInitial float64) (err error) {
	var (
		n = sys.nPoints
	)
	r, c := Y.Dims()
	if len(U) != n || len(T) != n || r != sys.nSpec || c != n {
		return fmt.Errorf("convection: state sizes U=%d T=%d Y=%dx%d, want %d nodes and %d species",
			len(U), len(T), r, c, n, sys.nSpec)
	}
	for j := 0; j < n; j++ {
		if T[j] <= 0 {
			return fmt.Errorf("convection: non-positive temperature %g at node %d", T[j], j)
		}
	}
	yCol := make([]float64, sys.nSpec)
	wmx := make([]float64, n)
	for j := 0; j < n; j++ {
		mat.Col(yCol, j, Y)
		if wmx[j], err = sys.Gas.MixtureWeight(yCol); err != nil {
			return fmt.Errorf("convection: node %d: %w", j, err)
		}
	}
	copy(sys.U, U)
	copy(sys.T, T)
	sys.Y.Copy(Y)
	copy(sys.Wmx, wmx)
	sys.tNow = tInitial
	copy(sys.UTW.U, sys.U)
	copy(sys.UTW.T, sys.T)
	copy(sys.UTW.Wmx, sys.Wmx)
	return nil
}

// SetLeftBC installs the left-boundary prescriptions. Wleft follows from
// the boundary composition.
func (sys *SplitSystem) SetLeftBC(Tleft float64, Yleft []float64) (err error) {
	if Tleft <= 0 {
		return fmt.Errorf("convection: non-positive left boundary temperature %g", Tleft)
	}
	if len(Yleft) != sys.nSpec {
		return fmt.Errorf("convection: %d left boundary mass fractions for %d species",
			len(Yleft), sys.nSpec)
	}
	wleft, err := sys.Gas.MixtureWeight(Yleft)
	if err != nil {
		return err
	}
	sys.Yleft = append(sys.Yleft[:0], Yleft...)
	sys.UTW.Tleft = Tleft
	sys.UTW.Wleft = wleft
	for k, sp := range sys.speciesSystems {
		sp.Yleft = Yleft[k]
	}
	return nil
}

// SetRVzero installs the left mass-flux boundary value used by the Left
// continuity condition
func (sys *SplitSystem) SetRVzero(rVzero float64) {
	sys.UTW.RVzero = rVzero
}

// SetSpeciesDomains installs the active node range of every species
func (sys *SplitSystem) SetSpeciesDomains(startIndices, stopIndices []int) (err error) {
	if len(startIndices) != sys.nSpec || len(stopIndices) != sys.nSpec {
		return fmt.Errorf("convection: %d/%d domain bounds for %d species",
			len(startIndices), len(stopIndices), sys.nSpec)
	}
	for k := range startIndices {
		if err = sys.speciesSystems[k].SetDomain(startIndices[k], stopIndices[k]); err != nil {
			return err
		}
	}
	return nil
}

// SetDensityDerivative installs the density time derivative contributed
// by the source and diffusion splits, closing the continuity equation
func (sys *SplitSystem) SetDensityDerivative(drhodt []float64) (err error) {
	if len(drhodt) != sys.nPoints {
		return fmt.Errorf("convection: drhodt has %d entries for %d nodes", len(drhodt), sys.nPoints)
	}
	copy(sys.UTW.Drhodt, drhodt)
	return nil
}

// SetSplitConstants installs the additive forcings carrying the other
// split operators. splitConstY has one row per species over the full
// domain; each species keeps its active window.
func (sys *SplitSystem) SetSplitConstants(splitConstU, splitConstT []float64, splitConstY *mat.Dense) (err error) {
	var (
		n = sys.nPoints
	)
	r, c := splitConstY.Dims()
	if len(splitConstU) != n || len(splitConstT) != n || r != sys.nSpec || c != n {
		return fmt.Errorf("convection: split constant sizes U=%d T=%d Y=%dx%d, want %d nodes and %d species",
			len(splitConstU), len(splitConstT), r, c, n, sys.nSpec)
	}
	copy(sys.UTW.SplitConstU, splitConstU)
	copy(sys.UTW.SplitConstT, splitConstT)
	// The molecular weight forcing follows from the species forcings:
	// Wmx = 1/sum(Y_k/W_k), so dWmx/dt = -Wmx^2 * sum((dY_k/dt)/W_k)
	for j := 0; j < n; j++ {
		var s float64
		for k := 0; k < sys.nSpec; k++ {
			s += splitConstY.At(k, j) / sys.Gas.W[k]
		}
		sys.UTW.SplitConstW[j] = -sys.Wmx[j] * sys.Wmx[j] * s
	}
	for k, sp := range sys.speciesSystems {
		for i := range sp.SplitConst {
			sp.SplitConst[i] = splitConstY.At(k, sp.StartIndex+i)
		}
	}
	return nil
}

func (sys *SplitSystem) ResetSplitConstants() {
	sys.UTW.ResetSplitConstants()
	for _, sp := range sys.speciesSystems {
		sp.ResetSplitConstants()
	}
}

// UpdateContinuityBoundaryCondition forwards to the UTW system between
// steps; on error the previous condition is preserved
func (sys *SplitSystem) UpdateContinuityBoundaryCondition(qdot []float64, newBC ContinuityBC) (err error) {
	return sys.UTW.UpdateContinuityBoundaryCondition(qdot, newBC)
}

// SetupQuasi2D installs externally supplied axial and radial velocity
// fields and switches every species system to the prescribed-velocity
// path; the UTW system is no longer integrated
func (sys *SplitSystem) SetupQuasi2D(vzInterp, vrInterp *BilinearInterpolator) {
	sys.vzInterp = vzInterp
	sys.vrInterp = vrInterp
	sys.quasi2d = true
	for _, sp := range sys.speciesSystems {
		sp.VzInterp = vzInterp
		sp.VrInterp = vrInterp
		sp.Quasi2D = true
	}
}

// NumSteps reports the accepted UTW steps of the last IntegrateToTime
func (sys *SplitSystem) NumSteps() uint { return sys.nSteps }

func (sys *SplitSystem) utwConfig(dt float64) ode.Config {
	var (
		n      = sys.nPoints
		absTol = make([]float64, 3*n)
	)
	for j := 0; j < n; j++ {
		absTol[j] = sys.absTolU
		absTol[n+j] = sys.absTolT
		absTol[2*n+j] = sys.absTolW
	}
	return ode.Config{
		RelTol:      sys.relTol,
		AbsTol:      absTol,
		MaxStepSize: dt,
	}
}

func (sys *SplitSystem) speciesConfig(dt float64) ode.Config {
	return ode.Config{
		RelTol:      sys.relTol,
		AbsTol:      []float64{sys.absTolY},
		MaxStepSize: dt,
	}
}

/*
IntegrateToTime advances the full convection system from the state
installed by SetState to tf. The UTW phase runs first and publishes the
mass-flux profile at tInitial, at every accepted solver step, and at tf;
the species phase then consumes the published profiles. On return the
public state and its time derivatives are consistent at tf.
*/
func (sys *SplitSystem) IntegrateToTime(tf float64) (err error) {
	var (
		t0 = sys.tNow
		dt = tf - t0
	)
	if dt < 0 {
		return fmt.Errorf("convection: target time %g behind current time %g", tf, t0)
	}
	if dt == 0 {
		return sys.Evaluate()
	}

	if !sys.quasi2d {
		if err = sys.integrateUTW(t0, tf); err != nil {
			return err
		}
	}
	if err = sys.integrateSpecies(t0, tf); err != nil {
		return err
	}
	sys.tNow = tf
	return sys.Evaluate()
}

func (sys *SplitSystem) integrateUTW(t0, tf float64) (err error) {
	var (
		utw     = sys.UTW
		started = time.Now()
	)
	defer func() { sys.UTWTime = time.Since(started) }()

	if sys.utwSolver, err = ode.NewIntegrator(utw, sys.utwConfig(tf-t0)); err != nil {
		return err
	}
	utw.RollY(sys.yScratch)
	if err = sys.utwSolver.Init(t0, sys.yScratch); err != nil {
		return err
	}
	sys.VLib.Clear()
	// Init evaluated the RHS at t0, so the UTW velocity is current
	sys.VLib.Insert(t0, utw.V)

	sys.nSteps = 0
	for sys.utwSolver.Time() < tf {
		if _, err = sys.utwSolver.Step(); err != nil {
			return fmt.Errorf("convection: UTW integration failed: %w", err)
		}
		sys.nSteps++
		// The accepted derivative evaluation left V at the new state
		sys.VLib.Insert(sys.utwSolver.Time(), utw.V)
	}
	if err = sys.utwSolver.InterpolateTo(tf, sys.yScratch); err != nil {
		return err
	}
	if err = utw.RHS(tf, sys.yScratch, sys.ydotScratch); err != nil {
		return fmt.Errorf("convection: UTW endpoint evaluation failed: %w", err)
	}
	sys.VLib.Insert(tf, utw.V)

	copy(sys.U, utw.U)
	copy(sys.T, utw.T)
	copy(sys.Wmx, utw.Wmx)
	return nil
}

func (sys *SplitSystem) integrateSpecies(t0, tf float64) (err error) {
	var (
		started = time.Now()
	)
	defer func() { sys.SpeciesTime = time.Since(started) }()

	for k, sp := range sys.speciesSystems {
		var (
			np = sp.StateSize()
			y0 = make([]float64, np)
		)
		for i := 0; i < np; i++ {
			y0[i] = sys.Y.At(k, sp.StartIndex+i)
		}
		if sys.speciesSolvers[k], err = ode.NewIntegrator(sp, sys.speciesConfig(tf-t0)); err != nil {
			return err
		}
		solver := sys.speciesSolvers[k]
		if err = solver.Init(t0, y0); err != nil {
			return fmt.Errorf("convection: species %d solver init failed: %w", k, err)
		}
		if err = solver.IntegrateTo(tf); err != nil {
			return fmt.Errorf("convection: species %d integration failed: %w", k, err)
		}
		yf := solver.State()
		for i := 0; i < np; i++ {
			sys.Y.Set(k, sp.StartIndex+i, yf[i])
		}
	}
	return nil
}

/*
Evaluate computes the mass flux, density and all time derivatives at the
current state without advancing time. The outer splitting driver uses it
to obtain consistent derivatives for the other split operators. It is
idempotent.
*/
func (sys *SplitSystem) Evaluate() (err error) {
	var (
		utw = sys.UTW
	)
	copy(utw.U, sys.U)
	copy(utw.T, sys.T)
	copy(utw.Wmx, sys.Wmx)
	utw.RollY(sys.yScratch)
	if err = utw.RHS(sys.tNow, sys.yScratch, sys.ydotScratch); err != nil {
		return fmt.Errorf("convection: evaluation failed: %w", err)
	}
	copy(sys.U, utw.U)
	copy(sys.T, utw.T)
	copy(sys.Wmx, utw.Wmx)
	copy(sys.V, utw.V)
	copy(sys.DUdt, utw.DUdt)
	copy(sys.DTdt, utw.DTdt)
	copy(sys.DWdt, utw.DWdt)

	if sys.VLib.Len() == 0 {
		sys.VLib.Insert(sys.tNow, utw.V)
	}
	var (
		yRow    = make([]float64, sys.nPoints)
		ydotRow = make([]float64, sys.nPoints)
	)
	for k, sp := range sys.speciesSystems {
		var (
			np   = sp.StateSize()
			yk   = yRow[:np]
			ydot = ydotRow[:np]
		)
		for i := 0; i < np; i++ {
			yk[i] = sys.Y.At(k, sp.StartIndex+i)
		}
		if err = sp.RHS(sys.tNow, yk, ydot); err != nil {
			return fmt.Errorf("convection: species %d evaluation failed: %w", k, err)
		}
		for j := 0; j < sys.nPoints; j++ {
			sys.DYdt.Set(k, j, 0)
		}
		for i := 0; i < np; i++ {
			sys.DYdt.Set(k, sp.StartIndex+i, ydot[i])
		}
	}
	return nil
}

// Time reports the coordinator's current solution time
func (sys *SplitSystem) Time() float64 { return sys.tNow }
