package sweep

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"drivesim/internal/model"
)

// Grid declares one value list per simulation parameter; the requested
// sweep is the Cartesian product of all eight axes. Axis order in the
// expansion is fixed so the same grid file always yields the same row
// order.
type Grid struct {
	Generations      []int     `yaml:"generations"`
	DriveStrength    []float64 `yaml:"k"`
	PaternitySRMales []float64 `yaml:"paternity_of_SR_males"`
	FreqPolyandry    []float64 `yaml:"freq_polyandry"`
	FitnessSTSR      []float64 `yaml:"w_STSR_female"`
	FitnessSRSR      []float64 `yaml:"w_SRSR_female"`
	FitnessSRMale    []float64 `yaml:"w_SR_male"`
	InitialFreqSR    []float64 `yaml:"initial_freq_SR"`
}

// LoadGrid reads a YAML grid definition.
func LoadGrid(path string) (Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Grid{}, err
	}
	var grid Grid
	if err := yaml.Unmarshal(data, &grid); err != nil {
		return Grid{}, fmt.Errorf("parse grid file %s: %w", path, err)
	}
	return grid, nil
}

// Size is the number of parameter rows the grid expands to.
func (g Grid) Size() int {
	return len(g.Generations) * len(g.DriveStrength) * len(g.PaternitySRMales) *
		len(g.FreqPolyandry) * len(g.FitnessSTSR) * len(g.FitnessSRSR) *
		len(g.FitnessSRMale) * len(g.InitialFreqSR)
}

// Expand materializes the Cartesian product and validates every row
// before any simulation executes.
func (g Grid) Expand() ([]model.SimulationParameters, error) {
	if g.Size() == 0 {
		return nil, fmt.Errorf("grid is empty: every axis needs at least one value")
	}

	rows := make([]model.SimulationParameters, 0, g.Size())
	for _, generations := range g.Generations {
		for _, k := range g.DriveStrength {
			for _, paternity := range g.PaternitySRMales {
				for _, polyandry := range g.FreqPolyandry {
					for _, wSTSR := range g.FitnessSTSR {
						for _, wSRSR := range g.FitnessSRSR {
							for _, wSRMale := range g.FitnessSRMale {
								for _, initial := range g.InitialFreqSR {
									rows = append(rows, model.SimulationParameters{
										Generations:       generations,
										DriveStrength:     k,
										PaternitySRMales:  paternity,
										FreqPolyandry:     polyandry,
										FitnessSTSRFemale: wSTSR,
										FitnessSRSRFemale: wSRSR,
										FitnessSRMale:     wSRMale,
										InitialFreqSR:     initial,
									})
								}
							}
						}
					}
				}
			}
		}
	}

	seen := make(map[string]struct{}, len(rows))
	for i, row := range rows {
		if err := row.Validate(); err != nil {
			return nil, fmt.Errorf("grid row %d: %w", i, err)
		}
		key := row.Key()
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("grid row %d duplicates parameter tuple %s", i, key)
		}
		seen[key] = struct{}{}
	}
	return rows, nil
}

// HashRows derives the grid identity pinned in the sweep manifest: a
// digest over the full ordered parameter tuples.
func HashRows(rows []model.SimulationParameters) string {
	h := sha256.New()
	for _, row := range rows {
		h.Write([]byte(row.Key()))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
