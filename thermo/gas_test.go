package thermo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdealGasMix(t *testing.T) {
	// Air-like two-species mixture
	{
		gas, err := NewIdealGasMix([]float64{0.028, 0.032}, 101325)
		assert.NoError(t, err)
		assert.Equal(t, 2, gas.NSpec())
		assert.True(t, near(gas.Pressure(), 101325))

		Wmx, err := gas.MixtureWeight([]float64{0.767, 0.233})
		assert.NoError(t, err)
		assert.True(t, near(Wmx, 0.0288401))

		rho, err := gas.Density(300, []float64{0.767, 0.233})
		assert.NoError(t, err)
		assert.True(t, near(rho, 1.171541))
		assert.True(t, near(gas.DensityFromTW(300, Wmx), rho))

		// Unnormalized compositions are renormalized
		Wmx2, err := gas.MixtureWeight([]float64{2 * 0.767, 2 * 0.233})
		assert.NoError(t, err)
		assert.True(t, near(Wmx2, Wmx))
	}
	// A single species recovers its own molecular weight
	{
		gas, err := NewIdealGasMix([]float64{0.029}, 101325)
		assert.NoError(t, err)
		Wmx, err := gas.MixtureWeight([]float64{1})
		assert.NoError(t, err)
		assert.True(t, near(Wmx, 0.029))
	}
	// Invalid construction and queries
	{
		_, err := NewIdealGasMix(nil, 101325)
		assert.Error(t, err)
		_, err = NewIdealGasMix([]float64{0.028, -1}, 101325)
		assert.Error(t, err)
		_, err = NewIdealGasMix([]float64{0.028}, 0)
		assert.Error(t, err)

		gas, _ := NewIdealGasMix([]float64{0.028, 0.032}, 101325)
		_, err = gas.MixtureWeight([]float64{1})
		assert.Error(t, err)
		_, err = gas.MixtureWeight([]float64{0, 0})
		assert.Error(t, err)
		_, err = gas.Density(-5, []float64{0.767, 0.233})
		assert.Error(t, err)
	}
}

func near(a, b float64) (l bool) {
	if math.Abs(a-b) < 1.e-05*math.Abs(a) || math.Abs(a-b) < 1.e-12 {
		l = true
	}
	return
}
