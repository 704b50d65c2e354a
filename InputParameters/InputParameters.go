package InputParameters

import (
	"fmt"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML input file
type FlameParameters struct {
	Title        string    `yaml:"Title"`
	NPoints      int       `yaml:"NPoints"`
	XMin         float64   `yaml:"XMin"`
	XMax         float64   `yaml:"XMax"`
	Alpha        int       `yaml:"Alpha"` // 0 planar, 1 cylindrical
	Pressure     float64   `yaml:"Pressure"`
	StrainRate   float64   `yaml:"StrainRate"`
	Tleft        float64   `yaml:"Tleft"`
	Tburned      float64   `yaml:"Tburned"`
	RVzero       float64   `yaml:"RVzero"`
	FinalTime    float64   `yaml:"FinalTime"`
	NSubsteps    int       `yaml:"NSubsteps"`
	ContinuityBC string    `yaml:"ContinuityBC"` // Left, Zero or Qdot
	Species      []string  `yaml:"Species"`
	MolWeights   []float64 `yaml:"MolWeights"` // kg/mol, one per species
	RelTol       float64   `yaml:"RelTol"`
	AbsTolU      float64   `yaml:"AbsTolU"`
	AbsTolT      float64   `yaml:"AbsTolT"`
	AbsTolW      float64   `yaml:"AbsTolW"`
	AbsTolY      float64   `yaml:"AbsTolY"`
}

func DefaultParameters() *FlameParameters {
	return &FlameParameters{
		Title:        "Strained premixed flame, convection substep",
		NPoints:      101,
		XMin:         0,
		XMax:         0.01,
		Alpha:        0,
		Pressure:     101325,
		StrainRate:   100,
		Tleft:        300,
		Tburned:      1900,
		RVzero:       0.05,
		FinalTime:    1e-3,
		NSubsteps:    20,
		ContinuityBC: "Left",
		Species:      []string{"CH4", "O2", "N2"},
		MolWeights:   []float64{0.016043, 0.031999, 0.028014},
		RelTol:       1e-8,
		AbsTolU:      1e-8,
		AbsTolT:      1e-8,
		AbsTolW:      1e-7,
		AbsTolY:      1e-8,
	}
}

func (fp *FlameParameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, fp); err != nil {
		return err
	}
	return fp.Validate()
}

func (fp *FlameParameters) Validate() error {
	if fp.NPoints < 3 {
		return fmt.Errorf("NPoints = %d, need at least 3", fp.NPoints)
	}
	if fp.XMax <= fp.XMin {
		return fmt.Errorf("XMax = %g must exceed XMin = %g", fp.XMax, fp.XMin)
	}
	if fp.Alpha != 0 && fp.Alpha != 1 {
		return fmt.Errorf("Alpha = %d, must be 0 (planar) or 1 (cylindrical)", fp.Alpha)
	}
	if len(fp.Species) == 0 || len(fp.Species) != len(fp.MolWeights) {
		return fmt.Errorf("%d species names for %d molecular weights", len(fp.Species), len(fp.MolWeights))
	}
	switch fp.ContinuityBC {
	case "Left", "Zero", "Qdot":
	default:
		return fmt.Errorf("ContinuityBC = %q, must be Left, Zero or Qdot", fp.ContinuityBC)
	}
	return nil
}

func (fp *FlameParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", fp.Title)
	fmt.Printf("[%d]\t\t\t= NPoints\n", fp.NPoints)
	fmt.Printf("%8.5f\t\t= XMin\n", fp.XMin)
	fmt.Printf("%8.5f\t\t= XMax\n", fp.XMax)
	fmt.Printf("[%d]\t\t\t= Alpha\n", fp.Alpha)
	fmt.Printf("%8.1f\t\t= Pressure\n", fp.Pressure)
	fmt.Printf("%8.2f\t\t= StrainRate\n", fp.StrainRate)
	fmt.Printf("%8.2f\t\t= Tleft\n", fp.Tleft)
	fmt.Printf("%8.2f\t\t= Tburned\n", fp.Tburned)
	fmt.Printf("%8.5f\t\t= RVzero\n", fp.RVzero)
	fmt.Printf("%8.6f\t\t= FinalTime\n", fp.FinalTime)
	fmt.Printf("[%s]\t\t\t= ContinuityBC\n", fp.ContinuityBC)
	for k, name := range fp.Species {
		fmt.Printf("Species[%s] W = %g\n", name, fp.MolWeights[k])
	}
}
