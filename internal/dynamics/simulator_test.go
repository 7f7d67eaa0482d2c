package dynamics

import (
	"math"
	"reflect"
	"testing"

	"drivesim/internal/model"
)

func TestSimulatorRunIsDeterministic(t *testing.T) {
	sim := NewSimulator()
	params := testParams()

	first, err := sim.Run(params)
	if err != nil {
		t.Fatal(err)
	}
	second, err := sim.Run(params)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical parameters produced different results")
	}

	// A fresh simulator (fresh catalog and zygote table) must reproduce
	// the same bits.
	third, err := NewSimulator().Run(params)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, third) {
		t.Fatal("fresh simulator produced different results")
	}
}

func TestSimulatorFixation(t *testing.T) {
	sim := NewSimulator()
	params := model.SimulationParameters{
		Generations:       500,
		DriveStrength:     1,
		PaternitySRMales:  0.5,
		FreqPolyandry:     0,
		FitnessSTSRFemale: 1,
		FitnessSRSRFemale: 1,
		FitnessSRMale:     1,
		InitialFreqSR:     0.1,
	}

	res, err := sim.Run(params)
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != ReasonFixed {
		t.Fatalf("reason = %s, want %s", res.Reason, ReasonFixed)
	}
	if res.GenerationsRun != 31 {
		t.Fatalf("fixation at generation %d, want 31", res.GenerationsRun)
	}
	if res.PropSR() <= 0.99 {
		t.Fatalf("terminal prop_SR %v not above fixation threshold", res.PropSR())
	}

	// One generation short of the crossing the run must exhaust its
	// budget below the threshold: fixation is declared on the first
	// crossing generation, never before.
	params.Generations = 30
	res, err = sim.Run(params)
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != ReasonBudgetExhausted {
		t.Fatalf("reason = %s, want %s", res.Reason, ReasonBudgetExhausted)
	}
	if res.PropSR() > 0.99 {
		t.Fatalf("prop_SR %v above threshold without fixation", res.PropSR())
	}
}

func TestSimulatorExtinction(t *testing.T) {
	sim := NewSimulator()
	params := model.SimulationParameters{
		Generations:       200,
		DriveStrength:     0,
		PaternitySRMales:  0.5,
		FreqPolyandry:     0,
		FitnessSTSRFemale: 0.9,
		FitnessSRSRFemale: 0.4,
		FitnessSRMale:     0.9,
		InitialFreqSR:     0.1,
	}

	res, err := sim.Run(params)
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != ReasonExtinct {
		t.Fatalf("reason = %s, want %s", res.Reason, ReasonExtinct)
	}
	if res.GenerationsRun != 64 {
		t.Fatalf("extinction at generation %d, want 64", res.GenerationsRun)
	}
	if res.PropSR() >= 0.0001 {
		t.Fatalf("terminal prop_SR %v not below extinction threshold", res.PropSR())
	}
}

func TestSimulatorBudgetExhaustion(t *testing.T) {
	sim := NewSimulator()
	params := testParams()
	params.Generations = 50

	res, err := sim.Run(params)
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != ReasonBudgetExhausted {
		t.Fatalf("reason = %s, want %s", res.Reason, ReasonBudgetExhausted)
	}
	if res.GenerationsRun != 50 {
		t.Fatalf("ran %d generations, want exactly 50", res.GenerationsRun)
	}
}

func TestSimulatorTrajectory(t *testing.T) {
	sim := NewSimulator()
	params := testParams()
	params.Generations = 40

	res, err := sim.RunWithTrajectory(params)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trajectory) != res.GenerationsRun {
		t.Fatalf("trajectory has %d points, want %d", len(res.Trajectory), res.GenerationsRun)
	}
	last := res.Trajectory[len(res.Trajectory)-1]
	if math.Abs(last-res.PropSR()) > 1e-12 {
		t.Fatalf("final trajectory point %v disagrees with terminal prop_SR %v", last, res.PropSR())
	}

	plain, err := sim.Run(params)
	if err != nil {
		t.Fatal(err)
	}
	if plain.Trajectory != nil {
		t.Fatal("untraced run recorded a trajectory")
	}
	if plain.Final != res.Final {
		t.Fatal("tracing changed the simulation outcome")
	}
}

func TestSimulatorEquilibriumMonotoneInDriveStrength(t *testing.T) {
	sim := NewSimulator()
	base := model.SimulationParameters{
		Generations:       100,
		PaternitySRMales:  0.2105,
		FreqPolyandry:     0,
		FitnessSTSRFemale: 0.92,
		FitnessSRSRFemale: 0.41,
		FitnessSRMale:     1,
		InitialFreqSR:     0.1,
	}

	prev := -1.0
	for _, k := range []float64{0, 0.25, 0.5, 0.75, 1} {
		params := base
		params.DriveStrength = k
		res, err := sim.Run(params)
		if err != nil {
			t.Fatalf("k=%v: %v", k, err)
		}
		got := res.PropSR()
		if got < prev-1e-9 {
			t.Fatalf("equilibrium prop_SR decreased from %v to %v as k rose to %v", prev, got, k)
		}
		prev = got
	}
}

// The published scenario: strong drive with high polyandry keeps SR rare,
// while the same population without polyandry carries SR at a much higher
// equilibrium.
func TestSimulatorPolyandrySuppressesDrive(t *testing.T) {
	sim := NewSimulator()
	params := model.SimulationParameters{
		Generations:       100,
		DriveStrength:     0.96,
		PaternitySRMales:  0.2105,
		FreqPolyandry:     0.73,
		FitnessSTSRFemale: 0.92,
		FitnessSRSRFemale: 0.41,
		FitnessSRMale:     1,
		InitialFreqSR:     0.1,
	}

	polyandrous, err := sim.Run(params)
	if err != nil {
		t.Fatal(err)
	}
	if polyandrous.Reason != ReasonBudgetExhausted {
		t.Fatalf("polyandrous run terminated early: %s", polyandrous.Reason)
	}
	if got := polyandrous.PropSR(); got >= 0.1 {
		t.Fatalf("prop_SR under polyandry = %v, want well below 0.1", got)
	}

	params.FreqPolyandry = 0
	monandrous, err := sim.Run(params)
	if err != nil {
		t.Fatal(err)
	}
	if got := monandrous.PropSR(); got <= 0.4 {
		t.Fatalf("prop_SR without polyandry = %v, want markedly higher than the polyandrous case", got)
	}
	if monandrous.PropSR() <= polyandrous.PropSR() {
		t.Fatal("polyandry did not suppress the drive allele")
	}
}

func TestSimulatorRejectsInvalidParameters(t *testing.T) {
	sim := NewSimulator()
	cases := []func(*model.SimulationParameters){
		func(p *model.SimulationParameters) { p.Generations = 0 },
		func(p *model.SimulationParameters) { p.DriveStrength = 1.2 },
		func(p *model.SimulationParameters) { p.PaternitySRMales = -0.1 },
		func(p *model.SimulationParameters) { p.FreqPolyandry = 2 },
		func(p *model.SimulationParameters) { p.FitnessSRSRFemale = -1 },
		func(p *model.SimulationParameters) { p.InitialFreqSR = 0 },
		func(p *model.SimulationParameters) { p.InitialFreqSR = 1 },
	}
	for i, mutate := range cases {
		params := testParams()
		mutate(&params)
		if _, err := sim.Run(params); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
