/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/notargets/avs/chart2d"
	utils2 "github.com/notargets/avs/utils"

	"github.com/notargets/goflame/FD1D"
	"github.com/notargets/goflame/InputParameters"
	"github.com/notargets/goflame/convection"
	"github.com/notargets/goflame/thermo"
	"github.com/notargets/goflame/utils"

	"gonum.org/v1/gonum/mat"
)

// FlameCmd runs the convection substep of a strained premixed flame,
// standing in for the outer splitting driver with zero source and
// diffusion contributions
var FlameCmd = &cobra.Command{
	Use:   "flame",
	Short: "Strained premixed flame convection substeps",
	Long: `
Advances the split convection system - coupled (U, T, Wmx) with continuity
plus per-species scalar transport - over a sequence of substeps.

goflame flame -n 101 --finalTime 1e-3 --strain 100`,
	Run: func(cmd *cobra.Command, args []string) {
		fp := InputParameters.DefaultParameters()
		if icFile, _ := cmd.Flags().GetString("inputConditionsFile"); len(icFile) != 0 {
			data, err := os.ReadFile(icFile)
			if err != nil {
				panic(err)
			}
			if err = fp.Parse(data); err != nil {
				panic(err)
			}
		}
		if cmd.Flags().Changed("n") {
			fp.NPoints, _ = cmd.Flags().GetInt("n")
		}
		if cmd.Flags().Changed("xMax") {
			fp.XMax, _ = cmd.Flags().GetFloat64("xMax")
		}
		if cmd.Flags().Changed("alpha") {
			fp.Alpha, _ = cmd.Flags().GetInt("alpha")
		}
		if cmd.Flags().Changed("finalTime") {
			fp.FinalTime, _ = cmd.Flags().GetFloat64("finalTime")
		}
		if cmd.Flags().Changed("strain") {
			fp.StrainRate, _ = cmd.Flags().GetFloat64("strain")
		}
		if cmd.Flags().Changed("rVzero") {
			fp.RVzero, _ = cmd.Flags().GetFloat64("rVzero")
		}
		if cmd.Flags().Changed("contBC") {
			fp.ContinuityBC, _ = cmd.Flags().GetString("contBC")
		}
		if err := fp.Validate(); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
		graph, _ := cmd.Flags().GetBool("graph")
		delay, _ := cmd.Flags().GetInt("delay")
		cpuProfile, _ := cmd.Flags().GetBool("cpuprofile")
		usePerf, _ := cmd.Flags().GetBool("perf")

		if cpuProfile {
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
		}
		run := func() { RunFlame(fp, graph, time.Duration(delay)*time.Millisecond) }
		if usePerf {
			runWithPerf(run)
		} else {
			run()
		}
	},
}

func init() {
	rootCmd.AddCommand(FlameCmd)
	FlameCmd.Flags().IntP("n", "n", 101, "number of grid nodes")
	FlameCmd.Flags().Float64("xMax", 0.01, "right end of the domain [m]")
	FlameCmd.Flags().IntP("alpha", "a", 0, "geometry: 0 planar, 1 cylindrical")
	FlameCmd.Flags().Float64("finalTime", 1e-3, "target end time [s]")
	FlameCmd.Flags().Float64("strain", 100, "strain rate [1/s]")
	FlameCmd.Flags().Float64("rVzero", 0.05, "left mass-flux boundary value [kg/m^2 s]")
	FlameCmd.Flags().String("contBC", "Left", "continuity boundary condition: Left, Zero or Qdot")
	FlameCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML input parameters file")
	FlameCmd.Flags().BoolP("graph", "g", false, "display the temperature profile while computing")
	FlameCmd.Flags().IntP("delay", "d", 0, "milliseconds of delay for plotting")
	FlameCmd.Flags().Bool("cpuprofile", false, "write a CPU profile to the working directory")
	FlameCmd.Flags().Bool("perf", false, "report hardware performance counters (linux only)")
}

// RunFlame builds the initial strained-flame profiles and advances the
// convection system over NSubsteps equal substeps, printing progress in
// the same cadence the outer splitting driver would observe
func RunFlame(fp *InputParameters.FlameParameters, showGraph bool, graphDelay time.Duration) {
	var (
		n     = fp.NPoints
		nSpec = len(fp.Species)
		x     = utils.Linspace(fp.XMin, fp.XMax, n)
		xc    = 0.5 * (fp.XMin + fp.XMax)
		width = 0.1 * (fp.XMax - fp.XMin)
		chart *chart2d.Chart2D
		cmap  *utils2.ColorMap
	)
	fp.Print()

	grid, err := FD1D.NewGrid(x, fp.Alpha)
	if err != nil {
		panic(err)
	}
	gas, err := thermo.NewIdealGasMix(fp.MolWeights, fp.Pressure)
	if err != nil {
		panic(err)
	}
	sys, err := convection.NewSplitSystem(grid, gas, nSpec)
	if err != nil {
		panic(err)
	}
	if err = sys.SetTolerances(fp.RelTol, fp.AbsTolU, fp.AbsTolT, fp.AbsTolW, fp.AbsTolY); err != nil {
		panic(err)
	}

	// Unburned mixture on the left, equilibrium-like products on the
	// right, blended through a tanh flame brush
	var (
		U      = make([]float64, n)
		T      = make([]float64, n)
		Y      = mat.NewDense(nSpec, n, nil)
		yUnb   = unburnedComposition(nSpec)
		yBrn   = burnedComposition(nSpec)
		drhodt = make([]float64, n)
		qdot   = make([]float64, n)
	)
	for j := 0; j < n; j++ {
		s := 0.5 * (1 + math.Tanh((x[j]-xc)/width))
		T[j] = fp.Tleft + (fp.Tburned-fp.Tleft)*s
		U[j] = fp.StrainRate * (x[j] - xc)
		for k := 0; k < nSpec; k++ {
			Y.Set(k, j, yUnb[k]+(yBrn[k]-yUnb[k])*s)
		}
		qdot[j] = math.Exp(-utils.POW((x[j]-xc)/width, 2))
	}

	if err = sys.SetState(U, T, Y, 0); err != nil {
		panic(err)
	}
	yLeft := make([]float64, nSpec)
	mat.Col(yLeft, 0, Y)
	if err = sys.SetLeftBC(T[0], yLeft); err != nil {
		panic(err)
	}
	sys.SetRVzero(fp.RVzero)
	if err = sys.SetDensityDerivative(drhodt); err != nil {
		panic(err)
	}
	sys.ResetSplitConstants()
	start := make([]int, nSpec)
	stop := make([]int, nSpec)
	for k := range stop {
		stop[k] = n - 1
	}
	if err = sys.SetSpeciesDomains(start, stop); err != nil {
		panic(err)
	}
	if err = sys.Evaluate(); err != nil {
		panic(err)
	}
	switch fp.ContinuityBC {
	case "Zero":
		err = sys.UpdateContinuityBoundaryCondition(nil, convection.BCZero)
	case "Qdot":
		err = sys.UpdateContinuityBoundaryCondition(qdot, convection.BCQdot)
	}
	if err != nil {
		fmt.Printf("continuity BC %s rejected (%s), keeping Left\n", fp.ContinuityBC, err.Error())
	}

	if showGraph {
		chart = chart2d.NewChart2D(1024, 768, float32(x[0]), float32(x[n-1]),
			0, float32(1.1*fp.Tburned))
		cmap = utils2.NewColorMap(-1, 1, 1)
		go chart.Plot()
	}

	var (
		dt   = fp.FinalTime / float64(fp.NSubsteps)
		dTdx = make([]float64, n)
	)
	for step := 1; step <= fp.NSubsteps; step++ {
		tf := float64(step) * dt
		if err = sys.IntegrateToTime(tf); err != nil {
			fmt.Printf("integration failed at t = %g: %s\n", tf, err.Error())
			os.Exit(1)
		}
		grid.Grad(sys.T, dTdx)
		jFront, _ := utils.MaxLoc(dTdx)
		fmt.Printf("Time = %10.6f, steps = %4d, Tmax = %8.2f, Vmin = %8.4f, Vmax = %8.4f, front = %8.5f\n",
			tf, sys.NumSteps(), floatsMax(sys.T), floatsMin(sys.V), floatsMax(sys.V), x[jFront])
		if showGraph {
			if err := chart.AddSeries("T", x, sys.T,
				chart2d.CrossGlyph, chart2d.Dashed, cmap.GetRGB(0)); err != nil {
				panic("unable to add graph series")
			}
			if graphDelay != 0 {
				time.Sleep(graphDelay)
			}
		}
	}
	fmt.Printf("UTW phase %v, species phase %v\n", sys.UTWTime, sys.SpeciesTime)
}

// unburnedComposition is a stoichiometric methane-air mixture padded with zeros for
// any extra species
func unburnedComposition(nSpec int) (y []float64) {
	y = make([]float64, nSpec)
	base := []float64{0.055, 0.220, 0.725}
	for k := 0; k < nSpec && k < len(base); k++ {
		y[k] = base[k]
	}
	normalize(y)
	return
}

func burnedComposition(nSpec int) (y []float64) {
	y = make([]float64, nSpec)
	base := []float64{0.001, 0.055, 0.944}
	for k := 0; k < nSpec && k < len(base); k++ {
		y[k] = base[k]
	}
	normalize(y)
	return
}

func normalize(y []float64) {
	var sum float64
	for _, v := range y {
		sum += v
	}
	if sum == 0 {
		y[len(y)-1] = 1
		return
	}
	for k := range y {
		y[k] /= sum
	}
}

func floatsMax(v []float64) (m float64) {
	m = math.Inf(-1)
	for _, val := range v {
		m = math.Max(m, val)
	}
	return
}

func floatsMin(v []float64) (m float64) {
	m = math.Inf(1)
	for _, val := range v {
		m = math.Min(m, val)
	}
	return
}
