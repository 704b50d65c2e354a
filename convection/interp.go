package convection

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

/*
VelocityLibrary is the time-keyed velocity carrier coupling the UTW phase
to the species phase: the coordinator inserts a spatial mass-flux profile
at every accepted UTW step, and each species system reads the profile at
its own integrator times through linear interpolation. Samples outside the
recorded interval clamp to the nearest end.
*/
type VelocityLibrary struct {
	times    []float64
	profiles [][]float64
}

func NewVelocityLibrary() *VelocityLibrary {
	return &VelocityLibrary{}
}

func (vl *VelocityLibrary) Clear() {
	vl.times = vl.times[:0]
	vl.profiles = vl.profiles[:0]
}

func (vl *VelocityLibrary) Len() int { return len(vl.times) }

// Insert stores a copy of v keyed by t, replacing any existing sample at
// the same time
func (vl *VelocityLibrary) Insert(t float64, v []float64) {
	i := sort.SearchFloat64s(vl.times, t)
	if i < len(vl.times) && vl.times[i] == t {
		vl.profiles[i] = append(vl.profiles[i][:0], v...)
		return
	}
	vl.times = append(vl.times, 0)
	vl.profiles = append(vl.profiles, nil)
	copy(vl.times[i+1:], vl.times[i:])
	copy(vl.profiles[i+1:], vl.profiles[i:])
	vl.times[i] = t
	vl.profiles[i] = append([]float64(nil), v...)
}

// Sample interpolates the stored profiles linearly in time into out
func (vl *VelocityLibrary) Sample(t float64, out []float64) (err error) {
	if len(vl.times) == 0 {
		return fmt.Errorf("convection: velocity library is empty")
	}
	i := sort.SearchFloat64s(vl.times, t)
	switch {
	case i == 0:
		copy(out, vl.profiles[0])
	case i == len(vl.times):
		copy(out, vl.profiles[len(vl.times)-1])
	default:
		var (
			t0, t1 = vl.times[i-1], vl.times[i]
			v0, v1 = vl.profiles[i-1], vl.profiles[i]
			s      = (t - t0) / (t1 - t0)
		)
		for j := range out {
			out[j] = v0[j] + s*(v1[j]-v0[j])
		}
	}
	return nil
}

/*
BilinearInterpolator samples an externally supplied field f(x, t) on a
rectangular grid of strictly increasing axes, clamping queries outside the
table. It serves the quasi-2D velocity path.
*/
type BilinearInterpolator struct {
	x, t []float64
	vals *mat.Dense // len(x) rows by len(t) columns
}

func NewBilinearInterpolator(x, t []float64, vals *mat.Dense) (bi *BilinearInterpolator, err error) {
	r, c := vals.Dims()
	if len(x) != r || len(t) != c {
		return nil, fmt.Errorf("convection: bilinear table is %dx%d for %d x-values and %d t-values",
			r, c, len(x), len(t))
	}
	if len(x) < 2 || len(t) < 2 {
		return nil, fmt.Errorf("convection: bilinear table needs at least 2 points per axis")
	}
	for i := 1; i < len(x); i++ {
		if x[i] <= x[i-1] {
			return nil, fmt.Errorf("convection: bilinear x axis not strictly increasing at %d", i)
		}
	}
	for i := 1; i < len(t); i++ {
		if t[i] <= t[i-1] {
			return nil, fmt.Errorf("convection: bilinear t axis not strictly increasing at %d", i)
		}
	}
	bi = &BilinearInterpolator{
		x:    append([]float64(nil), x...),
		t:    append([]float64(nil), t...),
		vals: mat.DenseCopyOf(vals),
	}
	return bi, nil
}

// NewConstantField builds a degenerate two-by-two table returning val
// everywhere on [x0,x1] x [t0,t1]
func NewConstantField(x0, x1, t0, t1, val float64) *BilinearInterpolator {
	vals := mat.NewDense(2, 2, []float64{val, val, val, val})
	bi, err := NewBilinearInterpolator([]float64{x0, x1}, []float64{t0, t1}, vals)
	if err != nil {
		panic(err)
	}
	return bi
}

func bracket(axis []float64, v float64) (i int, s float64) {
	i = sort.SearchFloat64s(axis, v)
	switch {
	case i == 0:
		return 0, 0
	case i == len(axis):
		return len(axis) - 2, 1
	}
	i--
	s = (v - axis[i]) / (axis[i+1] - axis[i])
	if s < 0 {
		s = 0
	} else if s > 1 {
		s = 1
	}
	return i, s
}

// At evaluates the field at (x, t)
func (bi *BilinearInterpolator) At(x, t float64) float64 {
	var (
		i, sx = bracket(bi.x, x)
		j, st = bracket(bi.t, t)
		f00   = bi.vals.At(i, j)
		f10   = bi.vals.At(i+1, j)
		f01   = bi.vals.At(i, j+1)
		f11   = bi.vals.At(i+1, j+1)
	)
	return (1-sx)*(1-st)*f00 + sx*(1-st)*f10 + (1-sx)*st*f01 + sx*st*f11
}
