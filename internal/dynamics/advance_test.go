package dynamics

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"drivesim/internal/genetics"
	"drivesim/internal/model"
)

func testParams() model.SimulationParameters {
	return model.SimulationParameters{
		Generations:       100,
		DriveStrength:     0.5,
		PaternitySRMales:  0.5,
		FreqPolyandry:     0.3,
		FitnessSTSRFemale: 0.95,
		FitnessSRSRFemale: 0.7,
		FitnessSRMale:     1,
		InitialFreqSR:     0.2,
	}
}

func buildTables(t *testing.T, k, p float64) ([]genetics.MatingType, []genetics.ZygoteOutcome) {
	t.Helper()
	catalog := genetics.BuildMatingTypes()
	zygotes, err := genetics.BuildZygoteTable(k, p, catalog)
	if err != nil {
		t.Fatal(err)
	}
	return catalog, zygotes
}

func TestInitialStateHardyWeinberg(t *testing.T) {
	params := testParams()
	state := InitialState(params)

	q := params.InitialFreqSR
	want := genetics.FrequencyVector{
		0.5 * (1 - q) * (1 - q),
		0.5 * 2 * q * (1 - q),
		0.5 * q * q,
		0.5 * (1 - q),
		0.5 * q,
	}
	for i := range want {
		if math.Abs(state.Freq[i]-want[i]) > 1e-12 {
			t.Fatalf("genotype %s: got %v, want %v", genetics.Genotypes[i], state.Freq[i], want[i])
		}
	}

	if got := genetics.AlleleFrequencySR(state.Freq); math.Abs(got-q) > 1e-12 {
		t.Fatalf("initial allele frequency %v, want %v", got, q)
	}
	if state.Fitness[genetics.IdxSTSTFemale] != 1 || state.Fitness[genetics.IdxSTMale] != 1 {
		t.Fatal("ST genotypes must have fitness 1")
	}
	if state.Fitness[genetics.IdxSRSRFemale] != params.FitnessSRSRFemale {
		t.Fatalf("SRSR fitness %v, want %v", state.Fitness[genetics.IdxSRSRFemale], params.FitnessSRSRFemale)
	}
}

func TestAdvancePreservesSimplex(t *testing.T) {
	catalog, zygotes := buildTables(t, 0.7, 0.3)
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 50; trial++ {
		var state State
		var sum float64
		for i := range state.Freq {
			state.Freq[i] = rng.Float64()
			state.Fitness[i] = 0.2 + rng.Float64()
			sum += state.Freq[i]
		}
		for i := range state.Freq {
			state.Freq[i] /= sum
		}

		next, err := Advance(state, catalog, zygotes, rng.Float64())
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		var total float64
		for i, v := range next.Freq {
			if v < 0 {
				t.Fatalf("trial %d: negative frequency %v at %s", trial, v, genetics.Genotypes[i])
			}
			total += v
		}
		if math.Abs(total-1) > 1e-9 {
			t.Fatalf("trial %d: frequencies sum to %v, want 1", trial, total)
		}
		if next.Fitness != state.Fitness {
			t.Fatalf("trial %d: fitness values changed across a generation", trial)
		}
	}
}

func TestAdvanceNeutralConservesAlleleFrequency(t *testing.T) {
	catalog, zygotes := buildTables(t, 0, 0.5)

	params := testParams()
	params.DriveStrength = 0
	params.FitnessSTSRFemale = 1
	params.FitnessSRSRFemale = 1
	params.FitnessSRMale = 1
	params.InitialFreqSR = 0.37

	state := InitialState(params)
	for gen := 0; gen < 50; gen++ {
		next, err := Advance(state, catalog, zygotes, 0.9)
		if err != nil {
			t.Fatalf("generation %d: %v", gen, err)
		}
		state = next
		got := genetics.AlleleFrequencySR(state.Freq)
		if math.Abs(got-params.InitialFreqSR) > 1e-9 {
			t.Fatalf("generation %d: neutral model drifted to %v from %v", gen, got, params.InitialFreqSR)
		}
	}
}

func TestAdvanceMonomorphicPopulation(t *testing.T) {
	catalog, zygotes := buildTables(t, 0.8, 0.3)

	// All-ST population: one generation must reproduce the 50:50
	// female/male split with no SR genotypes.
	state := State{
		Freq:    genetics.FrequencyVector{0.6, 0, 0, 0.4, 0},
		Fitness: genetics.FrequencyVector{1, 1, 1, 1, 1},
	}
	next, err := Advance(state, catalog, zygotes, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	want := genetics.FrequencyVector{0.5, 0, 0, 0.5, 0}
	for i := range want {
		if math.Abs(next.Freq[i]-want[i]) > 1e-12 {
			t.Fatalf("genotype %s: got %v, want %v", genetics.Genotypes[i], next.Freq[i], want[i])
		}
	}
}

func TestAdvanceDegenerateFitnessFailsExplicitly(t *testing.T) {
	catalog, zygotes := buildTables(t, 0.5, 0.5)

	state := InitialState(testParams())
	state.Fitness = genetics.FrequencyVector{}

	_, err := Advance(state, catalog, zygotes, 0.3)
	if !errors.Is(err, ErrDegenerateFrequencies) {
		t.Fatalf("expected ErrDegenerateFrequencies, got %v", err)
	}
}

func TestAdvanceDegenerateSexPoolFailsExplicitly(t *testing.T) {
	catalog, zygotes := buildTables(t, 0.5, 0.5)

	// Zero fitness for every male genotype leaves no fathers.
	state := InitialState(testParams())
	state.Fitness[genetics.IdxSTMale] = 0
	state.Fitness[genetics.IdxSRMale] = 0

	_, err := Advance(state, catalog, zygotes, 0.3)
	if !errors.Is(err, ErrDegenerateFrequencies) {
		t.Fatalf("expected ErrDegenerateFrequencies, got %v", err)
	}
}

func TestAdvanceRejectsTableLengthMismatch(t *testing.T) {
	catalog, zygotes := buildTables(t, 0.5, 0.5)
	state := InitialState(testParams())

	if _, err := Advance(state, catalog, zygotes[:10], 0.3); err == nil {
		t.Fatal("expected mismatch error for truncated zygote table")
	}
	if _, err := Advance(state, catalog[:10], zygotes, 0.3); err == nil {
		t.Fatal("expected mismatch error for truncated catalog")
	}
}
