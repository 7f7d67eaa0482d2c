package dynamics

import (
	"errors"
	"fmt"

	"drivesim/internal/genetics"
	"drivesim/internal/model"
)

// ErrDegenerateFrequencies reports a frequency vector that failed to sum
// to a positive value during selection or aggregation, e.g. when every
// genotype with non-zero frequency has zero fitness. This is a fatal
// configuration error for the affected run.
var ErrDegenerateFrequencies = errors.New("frequency vector does not sum to a positive value")

// State is the mutable per-run population state: genotype frequencies in
// catalog order, plus the fixed relative fitness of each genotype for
// the run.
type State struct {
	Freq    genetics.FrequencyVector
	Fitness genetics.FrequencyVector
}

// InitialState builds the generation-zero population from
// initial_freq_SR: Hardy-Weinberg proportions for the three female
// genotypes, linear proportions for the two male genotypes, with the
// sexes weighted equally. ST genotypes have fitness 1; the rest come
// from the parameters.
func InitialState(params model.SimulationParameters) State {
	q := params.InitialFreqSR
	var s State
	s.Freq[genetics.IdxSTSTFemale] = 0.5 * (1 - q) * (1 - q)
	s.Freq[genetics.IdxSTSRFemale] = 0.5 * 2 * q * (1 - q)
	s.Freq[genetics.IdxSRSRFemale] = 0.5 * q * q
	s.Freq[genetics.IdxSTMale] = 0.5 * (1 - q)
	s.Freq[genetics.IdxSRMale] = 0.5 * q

	s.Fitness[genetics.IdxSTSTFemale] = 1
	s.Fitness[genetics.IdxSTSRFemale] = params.FitnessSTSRFemale
	s.Fitness[genetics.IdxSRSRFemale] = params.FitnessSRSRFemale
	s.Fitness[genetics.IdxSTMale] = 1
	s.Fitness[genetics.IdxSRMale] = params.FitnessSRMale
	return s
}

// Advance applies one discrete generation: viability selection, mating-
// type frequency computation under the given polyandry rate, and
// offspring aggregation through the zygote table. The catalog and
// zygote table are read-only; the returned state carries the input
// fitness values unchanged.
func Advance(state State, catalog []genetics.MatingType, zygotes []genetics.ZygoteOutcome, polyandry float64) (State, error) {
	if len(catalog) != len(zygotes) {
		return State{}, fmt.Errorf("mating catalog has %d entries but zygote table has %d", len(catalog), len(zygotes))
	}

	selected, err := normalize(applySelection(state))
	if err != nil {
		return State{}, fmt.Errorf("selection: %w", err)
	}

	matingFreq, err := matingTypeFrequencies(selected, catalog, polyandry)
	if err != nil {
		return State{}, err
	}

	var offspring genetics.FrequencyVector
	for i := range catalog {
		for g := 0; g < genetics.GenotypeCount; g++ {
			offspring[g] += matingFreq[i] * zygotes[i][g]
		}
	}
	offspring, err = normalize(offspring)
	if err != nil {
		return State{}, fmt.Errorf("offspring aggregation: %w", err)
	}

	return State{Freq: offspring, Fitness: state.Fitness}, nil
}

func applySelection(state State) genetics.FrequencyVector {
	var out genetics.FrequencyVector
	for i := range out {
		out[i] = state.Freq[i] * state.Fitness[i]
	}
	return out
}

// matingTypeFrequencies computes the post-selection encounter frequency
// of every catalog entry. Mother and father frequencies enter as shares
// within their own sex, since every mating draws one female from the
// female pool and each father slot from the male pool. Mixed ST+SR
// double matings carry weight 2 because either male can occupy the
// first father slot of the collapsed entry; same-genotype pairs are not
// doubled.
func matingTypeFrequencies(selected genetics.FrequencyVector, catalog []genetics.MatingType, polyandry float64) ([]float64, error) {
	femaleSum := selected[genetics.IdxSTSTFemale] + selected[genetics.IdxSTSRFemale] + selected[genetics.IdxSRSRFemale]
	maleSum := selected[genetics.IdxSTMale] + selected[genetics.IdxSRMale]
	if femaleSum <= 0 || maleSum <= 0 {
		return nil, fmt.Errorf("mating-type frequencies: %w", ErrDegenerateFrequencies)
	}

	freq := make([]float64, len(catalog))
	var sum float64
	for i, mt := range catalog {
		mother := genetics.Index(mt.Mother)
		father1 := genetics.Index(mt.Father1)
		if mother < 0 || father1 < 0 {
			return nil, fmt.Errorf("mating type %d references unknown genotype (%s x %s)", i, mt.Mother, mt.Father1)
		}
		motherShare := selected[mother] / femaleSum
		father1Share := selected[father1] / maleSum
		var v float64
		if mt.IsDoubleMating() {
			father2 := genetics.Index(mt.Father2)
			if father2 < 0 {
				return nil, fmt.Errorf("mating type %d references unknown genotype %s", i, mt.Father2)
			}
			v = polyandry * motherShare * father1Share * (selected[father2] / maleSum)
			if mt.IsMixedDoubleMating {
				v *= 2
			}
		} else {
			v = (1 - polyandry) * motherShare * father1Share
		}
		freq[i] = v
		sum += v
	}
	if sum <= 0 {
		return nil, fmt.Errorf("mating-type frequencies: %w", ErrDegenerateFrequencies)
	}
	for i := range freq {
		freq[i] /= sum
	}
	return freq, nil
}

func normalize(v genetics.FrequencyVector) (genetics.FrequencyVector, error) {
	var sum float64
	for _, x := range v {
		sum += x
	}
	if sum <= 0 {
		return genetics.FrequencyVector{}, ErrDegenerateFrequencies
	}
	for i := range v {
		v[i] /= sum
	}
	return v, nil
}
