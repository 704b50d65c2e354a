package ode

import (
	"errors"
	"fmt"
	"math"
)

// ErrRecoverable is returned by a System's RHS when the evaluation produced
// a result the integrator should not accept (non-finite values, state
// outside the physical range). The integrator reduces the step and retries;
// only a repeated failure propagates to the caller.
var ErrRecoverable = errors.New("recoverable right-hand-side failure")

// System is the capability an ODE system exposes to the integrator:
// ydot = f(t, y)
type System interface {
	StateSize() int
	RHS(t float64, y, ydot []float64) error
}

type Config struct {
	// InitialStepSize, if > 0, is used for the first integration step.
	// Else a conservative default is derived from the initial derivative.
	InitialStepSize float64

	// MinStepSize, if > 0, aborts integration when the controller would
	// go below it
	MinStepSize float64

	// MaxStepSize, if > 0, caps the step size
	MaxStepSize float64

	RelTol float64

	// AbsTol holds per-component absolute tolerances. A single entry is
	// broadcast across the state vector.
	AbsTol []float64

	// MaxStepCount, if > 0, bounds the number of accepted steps in one
	// IntegrateTo call
	MaxStepCount uint

	// MaxRetries bounds consecutive rejected or failed attempts of a
	// single step
	MaxRetries int
}

type Statistics struct {
	StepCount       uint
	RejectedCount   uint
	EvaluationCount uint
	LastStepSize    float64
	NextStepSize    float64
	CurrentTime     float64
}

/*
Integrator advances a System with the Tsitouras 5(4) embedded Runge-Kutta
pair under weighted-RMS error control. It supports the two driving modes
the convection split needs: repeated single accepted steps with dense
output over the last interval, and direct integration to a target time.
*/
type Integrator struct {
	sys System
	cfg Config

	t, h  float64
	y, f  []float64 // current state and derivative
	tPrev float64
	yPrev []float64
	fPrev []float64

	k          [7][]float64
	ytmp, yerr []float64

	stats       Statistics
	initialized bool
}

// Tsitouras 5(4) tableau. E is the difference between the 5th and the
// embedded 4th order weights.
var (
	tsC = [7]float64{0, 0.161, 0.327, 0.9, 0.9800255409045097, 1, 1}
	tsA = [7][]float64{
		{},
		{0.161},
		{-0.008480655492356924, 0.335480655492357},
		{2.8971530571054935, -6.359448489975075, 4.362295432869581},
		{5.325864828439257, -11.748883564062828, 7.4955393428898365, -0.09249506636175525},
		{5.86145544294642, -12.92096931784711, 8.159367898576159, -0.071584973281401, -0.028269050394068383},
		{0.09646076681806523, 0.01, 0.4798896504144996, 1.379008574103742, -3.290069515436081, 2.324710524099774, 0},
	}
	tsB = [7]float64{
		0.09646076681806523, 0.01, 0.4798896504144996, 1.379008574103742,
		-3.290069515436081, 2.324710524099774, 0,
	}
	tsE = [7]float64{
		0.001780011052226, 0.000816434459657, -0.007880878010262,
		0.144711007173263, -0.582357165452555, 0.458082105929187,
		-1.0 / 66.0,
	}
)

const (
	minStepFactor  = 0.2
	maxStepFactor  = 5.0
	safety         = 0.9
	defaultRetries = 20
)

func NewIntegrator(sys System, cfg Config) (s *Integrator, err error) {
	var (
		n = sys.StateSize()
	)
	if n < 1 {
		return nil, fmt.Errorf("ode: system has empty state")
	}
	if cfg.RelTol <= 0 {
		return nil, fmt.Errorf("ode: RelTol must be positive, got %g", cfg.RelTol)
	}
	switch len(cfg.AbsTol) {
	case 1, n:
	default:
		return nil, fmt.Errorf("ode: AbsTol must have 1 or %d entries, got %d", n, len(cfg.AbsTol))
	}
	for i, tol := range cfg.AbsTol {
		if tol <= 0 {
			return nil, fmt.Errorf("ode: AbsTol[%d] must be positive, got %g", i, tol)
		}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultRetries
	}
	s = &Integrator{
		sys:   sys,
		cfg:   cfg,
		y:     make([]float64, n),
		f:     make([]float64, n),
		yPrev: make([]float64, n),
		fPrev: make([]float64, n),
		ytmp:  make([]float64, n),
		yerr:  make([]float64, n),
	}
	for i := range s.k {
		s.k[i] = make([]float64, n)
	}
	return s, nil
}

// Init sets the state and evaluates the derivative at (t0, y0). Calling it
// again reinitializes the integrator, discarding step-size history.
func (s *Integrator) Init(t0 float64, y0 []float64) (err error) {
	if len(y0) != len(s.y) {
		return fmt.Errorf("ode: Init state size %d, want %d", len(y0), len(s.y))
	}
	copy(s.y, y0)
	s.t = t0
	s.stats = Statistics{CurrentTime: t0}
	if err = s.rhs(t0, s.y, s.f); err != nil {
		return fmt.Errorf("ode: initial RHS evaluation failed: %w", err)
	}
	copy(s.yPrev, s.y)
	copy(s.fPrev, s.f)
	s.tPrev = t0
	s.h = s.initialStep()
	s.initialized = true
	return nil
}

func (s *Integrator) Time() float64 { return s.t }

// State returns the live state vector; callers must copy before mutating
func (s *Integrator) State() []float64 { return s.y }

func (s *Integrator) Stats() Statistics {
	st := s.stats
	st.LastStepSize = s.t - s.tPrev
	st.NextStepSize = s.h
	st.CurrentTime = s.t
	return st
}

func (s *Integrator) rhs(t float64, y, ydot []float64) error {
	s.stats.EvaluationCount++
	return s.sys.RHS(t, y, ydot)
}

func (s *Integrator) initialStep() (h float64) {
	if s.cfg.InitialStepSize > 0 {
		return s.capStep(s.cfg.InitialStepSize)
	}
	// h0 ~ 0.01 * ||y||/||f|| in the error weights
	var ny, nf float64
	for i := range s.y {
		w := s.weight(i, s.y[i])
		ny = math.Max(ny, math.Abs(s.y[i])/w)
		nf = math.Max(nf, math.Abs(s.f[i])/w)
	}
	switch {
	case nf <= 0:
		h = 1.e-6
	default:
		h = 0.01 * math.Max(ny, 1) / nf
	}
	return s.capStep(h)
}

func (s *Integrator) capStep(h float64) float64 {
	if s.cfg.MaxStepSize > 0 && h > s.cfg.MaxStepSize {
		h = s.cfg.MaxStepSize
	}
	return h
}

func (s *Integrator) weight(i int, yi float64) float64 {
	atol := s.cfg.AbsTol[0]
	if len(s.cfg.AbsTol) > 1 {
		atol = s.cfg.AbsTol[i]
	}
	return s.cfg.RelTol*math.Abs(yi) + atol
}

// errorNorm is the CVODE-style weighted RMS norm of the embedded error
// estimate; a value <= 1 accepts the step
func (s *Integrator) errorNorm() (enorm float64) {
	var sum float64
	for i := range s.yerr {
		e := s.yerr[i] / s.weight(i, s.ytmp[i])
		sum += e * e
	}
	return math.Sqrt(sum / float64(len(s.yerr)))
}

// attempt runs the seven stages for step size h, leaving the candidate
// state in ytmp, its derivative in k[6] (FSAL) and the embedded error in
// yerr
func (s *Integrator) attempt(h float64) (err error) {
	var (
		n = len(s.y)
	)
	copy(s.k[0], s.f)
	for stage := 1; stage < 7; stage++ {
		a := tsA[stage]
		for i := 0; i < n; i++ {
			acc := 0.0
			for m := 0; m < stage; m++ {
				acc += a[m] * s.k[m][i]
			}
			s.ytmp[i] = s.y[i] + h*acc
		}
		if err = s.rhs(s.t+tsC[stage]*h, s.ytmp, s.k[stage]); err != nil {
			return err
		}
	}
	// 5th-order solution and embedded error; stage 7 was evaluated at the
	// candidate point so k[6] is the FSAL derivative
	for i := 0; i < n; i++ {
		var acc, eacc float64
		for m := 0; m < 7; m++ {
			acc += tsB[m] * s.k[m][i]
			eacc += tsE[m] * s.k[m][i]
		}
		s.ytmp[i] = s.y[i] + h*acc
		s.yerr[i] = h * eacc
	}
	return nil
}

// Step advances the system by exactly one accepted step and returns the
// new internal time
func (s *Integrator) Step() (t float64, err error) {
	if !s.initialized {
		return 0, fmt.Errorf("ode: Step before Init")
	}
	var (
		h     = s.capStep(s.h)
		tries int
	)
	for {
		if s.cfg.MinStepSize > 0 && h < s.cfg.MinStepSize {
			return s.t, fmt.Errorf("ode: step size %g below minimum %g at t=%g", h, s.cfg.MinStepSize, s.t)
		}
		if tries++; tries > s.cfg.MaxRetries {
			return s.t, fmt.Errorf("ode: step rejected %d times at t=%g", s.cfg.MaxRetries, s.t)
		}
		if err = s.attempt(h); err != nil {
			if errors.Is(err, ErrRecoverable) {
				s.stats.RejectedCount++
				h *= 0.5
				continue
			}
			return s.t, err
		}
		enorm := s.errorNorm()
		if enorm > 1 {
			s.stats.RejectedCount++
			h *= math.Max(minStepFactor, safety*math.Pow(enorm, -0.2))
			continue
		}
		// Accept
		copy(s.yPrev, s.y)
		copy(s.fPrev, s.f)
		s.tPrev = s.t
		copy(s.y, s.ytmp)
		copy(s.f, s.k[6])
		s.t += h
		s.stats.StepCount++
		fac := maxStepFactor
		if enorm > 0 {
			fac = math.Min(maxStepFactor, math.Max(minStepFactor, safety*math.Pow(enorm, -0.2)))
		}
		s.h = s.capStep(h * fac)
		return s.t, nil
	}
}

// InterpolateTo evaluates the solution at a time inside the last accepted
// step using cubic Hermite dense output
func (s *Integrator) InterpolateTo(t float64, out []float64) (err error) {
	if !s.initialized {
		return fmt.Errorf("ode: InterpolateTo before Init")
	}
	if len(out) != len(s.y) {
		return fmt.Errorf("ode: InterpolateTo output size %d, want %d", len(out), len(s.y))
	}
	var (
		t0, t1 = s.tPrev, s.t
	)
	if t1 == t0 {
		copy(out, s.y)
		return nil
	}
	if t < math.Min(t0, t1) || t > math.Max(t0, t1) {
		return fmt.Errorf("ode: interpolation time %g outside last step [%g, %g]", t, t0, t1)
	}
	var (
		dt    = t1 - t0
		theta = (t - t0) / dt
		h00   = (1 + 2*theta) * (1 - theta) * (1 - theta)
		h10   = theta * (1 - theta) * (1 - theta)
		h01   = theta * theta * (3 - 2*theta)
		h11   = theta * theta * (theta - 1)
	)
	for i := range out {
		out[i] = h00*s.yPrev[i] + h10*dt*s.fPrev[i] + h01*s.y[i] + h11*dt*s.f[i]
	}
	return nil
}

// IntegrateTo advances the system to exactly tf, shortening the final
// steps so the integration lands on the target time
func (s *Integrator) IntegrateTo(tf float64) (err error) {
	if !s.initialized {
		return fmt.Errorf("ode: IntegrateTo before Init")
	}
	if tf < s.t {
		return fmt.Errorf("ode: target time %g behind current time %g", tf, s.t)
	}
	var steps uint
	for s.t < tf {
		if s.cfg.MaxStepCount > 0 && steps >= s.cfg.MaxStepCount {
			return fmt.Errorf("ode: exceeded %d steps integrating to t=%g, reached t=%g",
				s.cfg.MaxStepCount, tf, s.t)
		}
		if s.t+s.h > tf {
			s.h = tf - s.t
		}
		if _, err = s.Step(); err != nil {
			return err
		}
		steps++
	}
	return nil
}
