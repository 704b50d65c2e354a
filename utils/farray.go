package utils

import (
	"math"
)

func ConstArray(N int, val float64) (v []float64) {
	v = make([]float64, N)
	for i := range v {
		v[i] = val
	}
	return
}

func Linspace(xmin, xmax float64, N int) (v []float64) {
	v = make([]float64, N)
	dx := (xmax - xmin) / float64(N-1)
	for i := range v {
		v[i] = xmin + float64(i)*dx
	}
	v[N-1] = xmax
	return
}

// AllFinite reports whether every entry is a normal number - no NaN, no Inf
func AllFinite(v []float64) (l bool, badIndex int) {
	for i, val := range v {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return false, i
		}
	}
	return true, -1
}

func MaxLoc(v []float64) (imax int, vmax float64) {
	vmax = math.Inf(-1)
	for i, val := range v {
		if val > vmax {
			vmax = val
			imax = i
		}
	}
	return
}

func POW(x float64, pp int) (y float64) {
	var (
		p       = pp
		flipped bool
	)
	if pp > 8 || pp < -8 {
		goto MATHPOW
	}

	if p < 0 {
		p = -pp
		flipped = true
	}
	switch p {
	case 0:
		y = 1
	case 1:
		y = x
	case 2:
		y = x * x
	case 3:
		y = x * x * x
	case 4:
		y = x * x
		y = y * y
	case 5:
		y = x * x
		y = y * y * x
	case 6:
		y = x * x
		y = y * y * y
	case 7:
		y = x * x
		y = y * y * y * x
	case 8:
		y = x * x
		y = y * y * y * y
	}
	if flipped {
		y = 1. / y
	}
	return

MATHPOW:
	y = math.Pow(x, float64(p))
	return
}
