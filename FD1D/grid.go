package FD1D

import (
	"fmt"

	"github.com/james-bowman/sparse"

	"github.com/notargets/goflame/utils"
)

/*
Grid is a read-only view of the 1D flame-normal mesh shared by every
sub-system of one split step. Node coordinates are strictly increasing.
Derived quantities:

	Hh[j]     = X[j+1] - X[j]
	R[j]      = X[j] (cylindrical, Alpha=1) or 1 (planar, Alpha=0)
	RPhalf[j] = (R[j] + R[j+1]) / 2
	Cfm/Cf/Cfp: centered first-derivative weights on the non-uniform mesh,
	            (df/dx)[j] = Cfm[j]*f[j-1] + Cf[j]*f[j] + Cfp[j]*f[j+1]
*/
type Grid struct {
	N      int // number of nodes
	Alpha  int // geometry flag: 0 planar, 1 cylindrical
	X      []float64
	Hh     []float64
	R      []float64
	RPhalf []float64

	Cfm, Cf, Cfp []float64

	gradOp *sparse.CSR
}

func NewGrid(x []float64, alpha int) (g *Grid, err error) {
	if alpha != 0 && alpha != 1 {
		return nil, fmt.Errorf("grid: alpha must be 0 or 1, got %d", alpha)
	}
	g = &Grid{Alpha: alpha}
	if err = g.Resize(x); err != nil {
		return nil, err
	}
	return g, nil
}

// Resize rebuilds every cached coefficient for a new set of node
// coordinates. Called by the coordinator after the outer driver regrids.
func (g *Grid) Resize(x []float64) (err error) {
	if len(x) < 3 {
		return fmt.Errorf("grid: need at least 3 nodes, got %d", len(x))
	}
	for j := 1; j < len(x); j++ {
		if x[j] <= x[j-1] {
			return fmt.Errorf("grid: node coordinates must be strictly increasing, x[%d]=%g >= x[%d]=%g",
				j-1, x[j-1], j, x[j])
		}
	}
	g.N = len(x)
	g.X = append(g.X[:0], x...)
	g.buildMetrics()
	g.buildGradOp()
	return nil
}

func (g *Grid) buildMetrics() {
	var (
		n = g.N
	)
	g.Hh = make([]float64, n-1)
	g.R = make([]float64, n)
	g.RPhalf = make([]float64, n-1)
	g.Cfm = make([]float64, n)
	g.Cf = make([]float64, n)
	g.Cfp = make([]float64, n)
	for j := 0; j < n-1; j++ {
		g.Hh[j] = g.X[j+1] - g.X[j]
	}
	for j := 0; j < n; j++ {
		if g.Alpha == 1 {
			g.R[j] = g.X[j]
		} else {
			g.R[j] = 1
		}
	}
	for j := 0; j < n-1; j++ {
		g.RPhalf[j] = 0.5 * (g.R[j] + g.R[j+1])
	}
	// One-sided first-order weights at the ends, centered three-point
	// weights on the interior
	g.Cf[0] = -1. / g.Hh[0]
	g.Cfp[0] = 1. / g.Hh[0]
	for j := 1; j < n-1; j++ {
		hm := g.Hh[j-1]
		hp := g.Hh[j]
		g.Cfm[j] = -hp / (hm * (hm + hp))
		g.Cf[j] = (hp - hm) / (hm * hp)
		g.Cfp[j] = hm / (hp * (hm + hp))
	}
	g.Cfm[n-1] = -1. / g.Hh[n-2]
	g.Cf[n-1] = 1. / g.Hh[n-2]
}

func (g *Grid) buildGradOp() {
	var (
		n   = g.N
		dok = sparse.NewDOK(n, n)
	)
	dok.Set(0, 0, g.Cf[0])
	dok.Set(0, 1, g.Cfp[0])
	for j := 1; j < n-1; j++ {
		dok.Set(j, j-1, g.Cfm[j])
		dok.Set(j, j, g.Cf[j])
		dok.Set(j, j+1, g.Cfp[j])
	}
	dok.Set(n-1, n-2, g.Cfm[n-1])
	dok.Set(n-1, n-1, g.Cf[n-1])
	g.gradOp = dok.ToCSR()
}

// GradOp returns the assembled first-derivative operator
func (g *Grid) GradOp() *sparse.CSR {
	return g.gradOp
}

// Grad computes the centered first derivative of f into df
func (g *Grid) Grad(f, df []float64) {
	var (
		n = g.N
	)
	if len(f) != n || len(df) != n {
		panic(fmt.Sprintf("grid: Grad size mismatch, n=%d len(f)=%d len(df)=%d", n, len(f), len(df)))
	}
	df[0] = g.Cf[0]*f[0] + g.Cfp[0]*f[1]
	for j := 1; j < n-1; j++ {
		df[j] = g.Cfm[j]*f[j-1] + g.Cf[j]*f[j] + g.Cfp[j]*f[j+1]
	}
	df[n-1] = g.Cfm[n-1]*f[n-2] + g.Cf[n-1]*f[n-1]
}

// RPow returns R[j]^Alpha
func (g *Grid) RPow(j int) float64 {
	return utils.POW(g.R[j], g.Alpha)
}
