package convection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notargets/goflame/FD1D"
	"github.com/notargets/goflame/thermo"
	"github.com/notargets/goflame/utils"
)

const testPressure = 101325.

// uniformUTW builds a UTW system on a uniform grid with a single species
// of molecular weight 0.029 kg/mol and a uniform 300 K state
func uniformUTW(t *testing.T, n int, alpha int, xmin, xmax float64) (sys *UTWSystem) {
	grid, err := FD1D.NewGrid(utils.Linspace(xmin, xmax, n), alpha)
	assert.NoError(t, err)
	gas, err := thermo.NewIdealGasMix([]float64{0.029}, testPressure)
	assert.NoError(t, err)
	sys = NewUTWSystem(grid, gas)
	sys.Tleft = 300
	sys.Wleft = 0.029
	for j := 0; j < n; j++ {
		sys.T[j] = 300
		sys.Wmx[j] = 0.029
	}
	return sys
}

func utwEval(t *testing.T, sys *UTWSystem) (ydot []float64) {
	var (
		y = make([]float64, sys.StateSize())
	)
	ydot = make([]float64, sys.StateSize())
	sys.RollY(y)
	assert.NoError(t, sys.RHS(0, y, ydot))
	return ydot
}

func TestUniformStateAtRest(t *testing.T) {
	sys := uniformUTW(t, 11, 0, 0, 0.01)
	ydot := utwEval(t, sys)
	for i := range ydot {
		assert.InDelta(t, 0, ydot[i], 1.e-14)
	}
	for j := 0; j < 11; j++ {
		assert.InDelta(t, 0, sys.RV[j], 1.e-14)
		assert.InDelta(t, 0, sys.V[j], 1.e-14)
		assert.True(t, near(sys.Rho[j], testPressure*0.029/(thermo.GasConstant*300)))
	}
}

func TestMassFluxMonotonicity(t *testing.T) {
	// With zero strain and zero density derivative, rV is constant in x
	sys := uniformUTW(t, 11, 0, 0, 0.01)
	sys.RVzero = 0.1
	utwEval(t, sys)
	for j := 0; j < 11; j++ {
		assert.True(t, near(sys.RV[j], 0.1))
		assert.True(t, near(sys.V[j], 0.1))
	}
}

func TestContinuityClosure(t *testing.T) {
	// The discrete continuity residual vanishes on every cell:
	// (rV[j+1]-rV[j])/hh[j] + r[j]^a*(drhodt[j] + rho[j]*(U[j]+U[j+1])/2) = 0
	check := func(sys *UTWSystem) {
		var (
			g = sys.Grid
		)
		for j := 0; j < g.N-1; j++ {
			resid := (sys.RV[j+1]-sys.RV[j])/g.Hh[j] +
				g.RPow(j)*(sys.Drhodt[j]+sys.Rho[j]*0.5*(sys.U[j]+sys.U[j+1]))
			assert.InDelta(t, 0, resid, 1.e-9)
		}
	}
	// Left anchor, planar, strained, nonzero density feedback
	{
		sys := uniformUTW(t, 21, 0, 0, 0.02)
		sys.RVzero = 0.05
		for j := 0; j < 21; j++ {
			sys.U[j] = 100 * (sys.Grid.X[j] - 0.01)
			sys.Drhodt[j] = 0.3 * math.Sin(600*sys.Grid.X[j])
		}
		utwEval(t, sys)
		check(sys)
	}
	// Qdot anchor, cylindrical: the residual holds on both sides of the
	// anchor point
	{
		sys := uniformUTW(t, 21, 1, 0.001, 0.021)
		for j := 0; j < 21; j++ {
			sys.U[j] = 50.
			sys.Drhodt[j] = -0.1
		}
		qdot := make([]float64, 21)
		for j := range qdot {
			qdot[j] = math.Exp(-utils.POW((sys.Grid.X[j]-0.011)/0.003, 2))
		}
		assert.NoError(t, sys.UpdateContinuityBoundaryCondition(qdot, BCQdot))
		utwEval(t, sys)
		assert.InDelta(t, 0, sys.RV[sys.JContBC], 1.e-14)
		check(sys)
	}
}

func TestDirichletBoundary(t *testing.T) {
	sys := uniformUTW(t, 11, 0, 0, 0.01)
	sys.RVzero = 0.1
	// Perturb the packed state away from the boundary prescriptions
	y := make([]float64, sys.StateSize())
	ydot := make([]float64, sys.StateSize())
	sys.RollY(y)
	y[11] = 999    // T[0]
	y[22] = 0.0555 // Wmx[0]
	assert.NoError(t, sys.RHS(0, y, ydot))
	assert.Equal(t, 300., sys.T[0])
	assert.Equal(t, 0.029, sys.Wmx[0])
	// dT/dt and dWmx/dt are pinned at the boundary
	assert.Equal(t, 0., sys.DTdt[0])
	assert.Equal(t, 0., sys.DWdt[0])
}

func TestSplitConstantLinearity(t *testing.T) {
	var (
		sys = uniformUTW(t, 11, 0, 0, 0.01)
		n   = 11
	)
	sys.RVzero = 0.07
	for j := 0; j < n; j++ {
		sys.T[j] = 300 + 5000*sys.Grid.X[j]
		sys.U[j] = 20 * sys.Grid.X[j]
	}
	base := utwEval(t, sys)

	for j := 0; j < n; j++ {
		sys.SplitConstU[j] = 1.5
		sys.SplitConstT[j] = 2.5
		sys.SplitConstW[j] = -0.5
	}
	forced := utwEval(t, sys)

	for j := 1; j < n; j++ {
		assert.True(t, near(forced[j]-base[j], 1.5))       // U block
		assert.True(t, near(forced[n+j]-base[n+j], 2.5))   // T block
		assert.True(t, near(forced[2*n+j]-base[2*n+j], -0.5)) // W block
	}
	// The boundary node carries only the U forcing
	assert.True(t, near(forced[0]-base[0], 1.5))
	assert.Equal(t, 0., forced[n])
	assert.Equal(t, 0., forced[2*n])

	sys.ResetSplitConstants()
	reset := utwEval(t, sys)
	for i := range reset {
		assert.True(t, near(reset[i], base[i]))
	}
}

func TestUpwindDirection(t *testing.T) {
	var (
		sys = uniformUTW(t, 11, 0, 0, 0.01)
		n   = 11
		hh  = 0.001
	)
	for j := 0; j < n; j++ {
		sys.T[j] = 300 + 100*float64(j)
	}
	sys.Tleft = 300

	// Positive mass flux upwinds backward
	sys.RVzero = 0.2
	ydot := utwEval(t, sys)
	for j := 1; j < n; j++ {
		want := -0.2 * (sys.T[j] - sys.T[j-1]) / hh
		assert.True(t, near(ydot[n+j], want))
	}

	// Negative mass flux upwinds forward except at the right edge
	sys.RVzero = -0.2
	ydot = utwEval(t, sys)
	for j := 1; j < n-1; j++ {
		want := 0.2 * (sys.T[j+1] - sys.T[j]) / hh
		assert.True(t, near(ydot[n+j], want))
	}
	want := 0.2 * (sys.T[n-1] - sys.T[n-2]) / hh
	assert.True(t, near(ydot[n+n-1], want))
}

func TestQdotBCSelection(t *testing.T) {
	var (
		sys  = uniformUTW(t, 11, 0, 0, 0.01)
		qdot = make([]float64, 11)
	)
	for j := range qdot {
		qdot[j] = math.Exp(-utils.POW(float64(j-7)/1.5, 2))
	}
	assert.NoError(t, sys.UpdateContinuityBoundaryCondition(qdot, BCQdot))
	assert.Equal(t, BCQdot, sys.ContBC)
	assert.Equal(t, 7, sys.JContBC)

	utwEval(t, sys)
	assert.Equal(t, 0., sys.RV[7])

	// Misconfigured requests preserve the previous condition
	assert.Error(t, sys.UpdateContinuityBoundaryCondition(make([]float64, 11), BCQdot))
	assert.Equal(t, BCQdot, sys.ContBC)
	assert.Equal(t, 7, sys.JContBC)
	assert.Error(t, sys.UpdateContinuityBoundaryCondition(qdot[:4], BCQdot))
}

func TestZeroBCStagnation(t *testing.T) {
	var (
		n   = 21
		sys = uniformUTW(t, n, 1, 0.05, 0.07)
		xc  = 0.06
	)
	// Strained counterflow-like state: rV from the left anchor rises and
	// falls through zero inside the domain
	sys.RVzero = -2.e-4
	for j := 0; j < n; j++ {
		sys.U[j] = 100 * (sys.Grid.X[j] - xc)
	}
	utwEval(t, sys)

	// Locate the first sign change by hand
	jWant := -1
	for j := 0; j < n-1; j++ {
		if sys.RV[j] != sys.RV[j+1] && sys.RV[j]*sys.RV[j+1] <= 0 {
			jWant = j
			break
		}
	}
	assert.GreaterOrEqual(t, jWant, 0)

	assert.NoError(t, sys.UpdateContinuityBoundaryCondition(nil, BCZero))
	assert.Equal(t, BCZero, sys.ContBC)
	assert.Equal(t, jWant, sys.JContBC)
	assert.GreaterOrEqual(t, sys.XVzero, sys.Grid.X[jWant])
	assert.LessOrEqual(t, sys.XVzero, sys.Grid.X[jWant+1])

	// Re-evaluating under the Zero anchor keeps the stagnation point in
	// place: rV interpolates to zero at XVzero within the cell
	utwEval(t, sys)
	var (
		j0     = sys.JContBC
		g      = sys.Grid
		s      = (sys.XVzero - g.X[j0]) / (g.X[j0+1] - g.X[j0])
		rvAtX0 = sys.RV[j0] + s*(sys.RV[j0+1]-sys.RV[j0])
		scale  = math.Abs(sys.RV[0]) + math.Abs(sys.RV[n-1])
	)
	assert.InDelta(t, 0, rvAtX0/scale, 0.05)

	// With no sign change the request is rejected and the previous BC kept
	for j := 0; j < n; j++ {
		sys.U[j] = 100.
	}
	sys.RVzero = 0.5
	assert.NoError(t, sys.UpdateContinuityBoundaryCondition(nil, BCLeft))
	utwEval(t, sys)
	assert.Error(t, sys.UpdateContinuityBoundaryCondition(nil, BCZero))
	assert.Equal(t, BCLeft, sys.ContBC)
}

func TestRollUnroll(t *testing.T) {
	var (
		sys = uniformUTW(t, 5, 0, 0, 0.01)
		y   = make([]float64, sys.StateSize())
	)
	for j := 0; j < 5; j++ {
		sys.U[j] = float64(j)
		sys.T[j] = 300 + float64(j)
		sys.Wmx[j] = 0.02 + 0.001*float64(j)
	}
	sys.RollY(y)
	assert.Equal(t, 2., y[2])
	assert.Equal(t, 303., y[8])
	assert.True(t, near(y[14], 0.024))

	sys2 := uniformUTW(t, 5, 0, 0, 0.01)
	sys2.UnrollY(y)
	for j := 0; j < 5; j++ {
		assert.Equal(t, sys.U[j], sys2.U[j])
		assert.Equal(t, sys.T[j], sys2.T[j])
		assert.Equal(t, sys.Wmx[j], sys2.Wmx[j])
	}
}

func near(a, b float64) (l bool) {
	if math.Abs(a-b) < 1.e-08*math.Abs(a) || math.Abs(a-b) < 1.e-12 {
		l = true
	}
	return
}
