package ode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

type decay struct {
	lambda float64
}

func (s *decay) StateSize() int { return 1 }
func (s *decay) RHS(t float64, y, ydot []float64) error {
	ydot[0] = -s.lambda * y[0]
	return nil
}

type oscillator struct{}

func (s *oscillator) StateSize() int { return 2 }
func (s *oscillator) RHS(t float64, y, ydot []float64) error {
	ydot[0] = y[1]
	ydot[1] = -y[0]
	return nil
}

// flaky fails recoverably for a test-controlled number of RHS calls
type flaky struct {
	failCount int
}

func (s *flaky) StateSize() int { return 1 }
func (s *flaky) RHS(t float64, y, ydot []float64) error {
	if s.failCount > 0 {
		s.failCount--
		return ErrRecoverable
	}
	ydot[0] = y[0]
	return nil
}

func TestIntegrateTo(t *testing.T) {
	// Exponential decay lands on the analytic solution
	{
		s, err := NewIntegrator(&decay{lambda: 1}, Config{RelTol: 1e-10, AbsTol: []float64{1e-12}})
		assert.NoError(t, err)
		assert.NoError(t, s.Init(0, []float64{1}))
		assert.NoError(t, s.IntegrateTo(1))
		assert.InDelta(t, math.Exp(-1), s.State()[0], 1.e-8)
		assert.InDelta(t, 1.0, s.Time(), 1.e-12)
		st := s.Stats()
		assert.Greater(t, st.StepCount, uint(0))
		assert.Greater(t, st.EvaluationCount, st.StepCount)
	}
	// Harmonic oscillator over one period
	{
		s, err := NewIntegrator(&oscillator{}, Config{RelTol: 1e-10, AbsTol: []float64{1e-12}})
		assert.NoError(t, err)
		assert.NoError(t, s.Init(0, []float64{1, 0}))
		assert.NoError(t, s.IntegrateTo(2 * math.Pi))
		assert.InDelta(t, 1, s.State()[0], 1.e-7)
		assert.InDelta(t, 0, s.State()[1], 1.e-7)
	}
	// Tighter tolerances take more steps
	{
		loose, _ := NewIntegrator(&oscillator{}, Config{RelTol: 1e-4, AbsTol: []float64{1e-6}})
		tight, _ := NewIntegrator(&oscillator{}, Config{RelTol: 1e-11, AbsTol: []float64{1e-13}})
		assert.NoError(t, loose.Init(0, []float64{1, 0}))
		assert.NoError(t, tight.Init(0, []float64{1, 0}))
		assert.NoError(t, loose.IntegrateTo(2*math.Pi))
		assert.NoError(t, tight.IntegrateTo(2*math.Pi))
		assert.Greater(t, tight.Stats().StepCount, loose.Stats().StepCount)
	}
}

func TestSingleStepAndDenseOutput(t *testing.T) {
	var (
		s, err = NewIntegrator(&decay{lambda: 2}, Config{
			RelTol: 1e-9, AbsTol: []float64{1e-11}, MaxStepSize: 0.25,
		})
		out = make([]float64, 1)
	)
	assert.NoError(t, err)
	assert.NoError(t, s.Init(0, []float64{1}))
	tPrev := s.Time()
	tNew, err := s.Step()
	assert.NoError(t, err)
	assert.Greater(t, tNew, tPrev)

	// Dense output at the step ends reproduces the stored states
	assert.NoError(t, s.InterpolateTo(tPrev, out))
	assert.InDelta(t, 1, out[0], 1.e-12)
	assert.NoError(t, s.InterpolateTo(tNew, out))
	assert.InDelta(t, s.State()[0], out[0], 1.e-12)

	// Midpoint value tracks the analytic solution
	tm := 0.5 * (tPrev + tNew)
	assert.NoError(t, s.InterpolateTo(tm, out))
	assert.InDelta(t, math.Exp(-2*tm), out[0], 1.e-6)

	// Outside the last step is rejected
	assert.Error(t, s.InterpolateTo(tNew+1, out))
}

func TestRecoverableFailureRetries(t *testing.T) {
	var (
		sys    = &flaky{}
		s, err = NewIntegrator(sys, Config{RelTol: 1e-8, AbsTol: []float64{1e-10}, MaxStepSize: 0.1})
	)
	assert.NoError(t, err)
	assert.NoError(t, s.Init(0, []float64{1}))

	// Three consecutive recoverable failures are absorbed by step halving
	sys.failCount = 3
	_, err = s.Step()
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, s.Stats().RejectedCount, uint(3))

	// A failure that never clears propagates after MaxRetries attempts
	sys.failCount = 1 << 30
	_, err = s.Step()
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	_, err := NewIntegrator(&decay{lambda: 1}, Config{RelTol: 0, AbsTol: []float64{1e-8}})
	assert.Error(t, err)
	_, err = NewIntegrator(&decay{lambda: 1}, Config{RelTol: 1e-8, AbsTol: nil})
	assert.Error(t, err)
	_, err = NewIntegrator(&decay{lambda: 1}, Config{RelTol: 1e-8, AbsTol: []float64{-1}})
	assert.Error(t, err)
	_, err = NewIntegrator(&oscillator{}, Config{RelTol: 1e-8, AbsTol: []float64{1e-8, 1e-8, 1e-8}})
	assert.Error(t, err)

	s, err := NewIntegrator(&oscillator{}, Config{RelTol: 1e-8, AbsTol: []float64{1e-8, 1e-10}})
	assert.NoError(t, err)
	assert.Error(t, s.Init(0, []float64{1}))

	// Step and IntegrateTo require Init
	s2, _ := NewIntegrator(&decay{lambda: 1}, Config{RelTol: 1e-8, AbsTol: []float64{1e-8}})
	_, err = s2.Step()
	assert.Error(t, err)
	assert.Error(t, s2.IntegrateTo(1))
}

func TestMaxStepCount(t *testing.T) {
	s, err := NewIntegrator(&oscillator{}, Config{
		RelTol: 1e-12, AbsTol: []float64{1e-14}, MaxStepSize: 1e-4, MaxStepCount: 10,
	})
	assert.NoError(t, err)
	assert.NoError(t, s.Init(0, []float64{1, 0}))
	assert.Error(t, s.IntegrateTo(100))
}
