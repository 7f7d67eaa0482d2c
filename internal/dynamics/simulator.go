package dynamics

import (
	"fmt"
	"sync"

	"drivesim/internal/genetics"
	"drivesim/internal/model"
)

// TerminationReason classifies how a simulation run ended.
type TerminationReason string

const (
	ReasonFixed           TerminationReason = "fixed"
	ReasonExtinct         TerminationReason = "extinct"
	ReasonBudgetExhausted TerminationReason = "budget_exhausted"
)

const (
	fixationThreshold   = 0.99
	extinctionThreshold = 0.0001
)

// Result is the terminal population state of a run, the generation count
// at termination, and the reason the run stopped. Trajectory holds the
// SR allele frequency after each executed generation when tracing was
// requested.
type Result struct {
	Final          State
	GenerationsRun int
	Reason         TerminationReason
	Trajectory     []float64
}

// PropSR recomputes the SR allele frequency from the terminal state.
func (r Result) PropSR() float64 {
	return genetics.AlleleFrequencySR(r.Final.Freq)
}

// Simulator drives the generation loop for any number of parameter
// rows. The mating-type catalog is built once; zygote tables are
// memoized per (k, paternity) pair and shared read-only, so concurrent
// Run calls from sweep workers reuse them.
type Simulator struct {
	catalog []genetics.MatingType

	mu      sync.RWMutex
	zygotes map[zygoteKey][]genetics.ZygoteOutcome
}

type zygoteKey struct {
	k         float64
	paternity float64
}

func NewSimulator() *Simulator {
	return &Simulator{
		catalog: genetics.BuildMatingTypes(),
		zygotes: make(map[zygoteKey][]genetics.ZygoteOutcome),
	}
}

// Catalog exposes the shared mating-type catalog.
func (s *Simulator) Catalog() []genetics.MatingType {
	return s.catalog
}

// Run executes one deterministic simulation. The loop advances at most
// params.Generations times and stops the first generation the SR allele
// frequency crosses the fixation or extinction threshold. Identical
// parameters produce bit-identical results; there is no randomness
// anywhere on this path.
func (s *Simulator) Run(params model.SimulationParameters) (Result, error) {
	return s.run(params, false)
}

// RunWithTrajectory is Run with the per-generation allele-frequency
// series recorded.
func (s *Simulator) RunWithTrajectory(params model.SimulationParameters) (Result, error) {
	return s.run(params, true)
}

func (s *Simulator) run(params model.SimulationParameters, trace bool) (Result, error) {
	if err := params.Validate(); err != nil {
		return Result{}, err
	}
	zygotes, err := s.zygoteTable(params.DriveStrength, params.PaternitySRMales)
	if err != nil {
		return Result{}, err
	}

	state := InitialState(params)
	var trajectory []float64
	if trace {
		trajectory = make([]float64, 0, params.Generations)
	}

	for gen := 1; gen <= params.Generations; gen++ {
		state, err = Advance(state, s.catalog, zygotes, params.FreqPolyandry)
		if err != nil {
			return Result{}, fmt.Errorf("generation %d: %w", gen, err)
		}
		freqSR := genetics.AlleleFrequencySR(state.Freq)
		if trace {
			trajectory = append(trajectory, freqSR)
		}
		if freqSR > fixationThreshold {
			return Result{Final: state, GenerationsRun: gen, Reason: ReasonFixed, Trajectory: trajectory}, nil
		}
		if freqSR < extinctionThreshold {
			return Result{Final: state, GenerationsRun: gen, Reason: ReasonExtinct, Trajectory: trajectory}, nil
		}
	}
	return Result{Final: state, GenerationsRun: params.Generations, Reason: ReasonBudgetExhausted, Trajectory: trajectory}, nil
}

func (s *Simulator) zygoteTable(k, paternity float64) ([]genetics.ZygoteOutcome, error) {
	key := zygoteKey{k: k, paternity: paternity}

	s.mu.RLock()
	table, ok := s.zygotes[key]
	s.mu.RUnlock()
	if ok {
		return table, nil
	}

	table, err := genetics.BuildZygoteTable(k, paternity, s.catalog)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if cached, ok := s.zygotes[key]; ok {
		table = cached
	} else {
		s.zygotes[key] = table
	}
	s.mu.Unlock()
	return table, nil
}
