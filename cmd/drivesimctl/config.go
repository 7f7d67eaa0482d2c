package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	simapi "drivesim/pkg/drivesim"
)

// runConfig mirrors the grid file vocabulary, one scalar per
// parameter. Pointer fields distinguish "unset" from an explicit zero.
type runConfig struct {
	Generations       *int     `yaml:"generations"`
	DriveStrength     *float64 `yaml:"k"`
	PaternitySRMales  *float64 `yaml:"paternity_of_SR_males"`
	FreqPolyandry     *float64 `yaml:"freq_polyandry"`
	FitnessSTSRFemale *float64 `yaml:"w_STSR_female"`
	FitnessSRSRFemale *float64 `yaml:"w_SRSR_female"`
	FitnessSRMale     *float64 `yaml:"w_SR_male"`
	InitialFreqSR     *float64 `yaml:"initial_freq_SR"`
}

func loadRunRequestFromConfig(path string) (simapi.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return simapi.RunRequest{}, err
	}
	var cfg runConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return simapi.RunRequest{}, fmt.Errorf("parse run config %s: %w", path, err)
	}

	req := simapi.RunRequest{
		Generations:      200,
		PaternitySRMales: 0.5,
		InitialFreqSR:    0.01,
	}
	if cfg.Generations != nil {
		req.Generations = *cfg.Generations
	}
	if cfg.DriveStrength != nil {
		req.DriveStrength = *cfg.DriveStrength
	}
	if cfg.PaternitySRMales != nil {
		req.PaternitySRMales = *cfg.PaternitySRMales
	}
	if cfg.FreqPolyandry != nil {
		req.FreqPolyandry = *cfg.FreqPolyandry
	}
	req.FitnessSTSRFemale = cfg.FitnessSTSRFemale
	req.FitnessSRSRFemale = cfg.FitnessSRSRFemale
	req.FitnessSRMale = cfg.FitnessSRMale
	if cfg.InitialFreqSR != nil {
		req.InitialFreqSR = *cfg.InitialFreqSR
	}
	return req, nil
}

// overrideFromFlags lets explicitly set flags win over a loaded config.
func overrideFromFlags(req *simapi.RunRequest, flags simapi.RunRequest, setFlags map[string]bool) {
	if setFlags["gens"] {
		req.Generations = flags.Generations
	}
	if setFlags["k"] {
		req.DriveStrength = flags.DriveStrength
	}
	if setFlags["paternity"] {
		req.PaternitySRMales = flags.PaternitySRMales
	}
	if setFlags["polyandry"] {
		req.FreqPolyandry = flags.FreqPolyandry
	}
	if setFlags["w-stsr-female"] {
		req.FitnessSTSRFemale = flags.FitnessSTSRFemale
	}
	if setFlags["w-srsr-female"] {
		req.FitnessSRSRFemale = flags.FitnessSRSRFemale
	}
	if setFlags["w-sr-male"] {
		req.FitnessSRMale = flags.FitnessSRMale
	}
	if setFlags["initial"] {
		req.InitialFreqSR = flags.InitialFreqSR
	}
}
