package model

import (
	"fmt"
	"strconv"
	"strings"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Genotype is one of the five heritable types in the X-linked drive model.
// Females carry two X copies, males one.
type Genotype string

const (
	GenotypeSTSTFemale Genotype = "STST_female"
	GenotypeSTSRFemale Genotype = "STSR_female"
	GenotypeSRSRFemale Genotype = "SRSR_female"
	GenotypeSTMale     Genotype = "ST_male"
	GenotypeSRMale     Genotype = "SR_male"
)

// SimulationParameters is one immutable row of a sweep grid.
type SimulationParameters struct {
	Generations       int     `json:"generations" yaml:"generations"`
	DriveStrength     float64 `json:"k" yaml:"k"`
	PaternitySRMales  float64 `json:"paternity_of_SR_males" yaml:"paternity_of_SR_males"`
	FreqPolyandry     float64 `json:"freq_polyandry" yaml:"freq_polyandry"`
	FitnessSTSRFemale float64 `json:"w_STSR_female" yaml:"w_STSR_female"`
	FitnessSRSRFemale float64 `json:"w_SRSR_female" yaml:"w_SRSR_female"`
	FitnessSRMale     float64 `json:"w_SR_male" yaml:"w_SR_male"`
	InitialFreqSR     float64 `json:"initial_freq_SR" yaml:"initial_freq_SR"`
}

func (p SimulationParameters) Validate() error {
	if p.Generations <= 0 {
		return fmt.Errorf("generations must be > 0, got %d", p.Generations)
	}
	if err := checkUnitInterval("k", p.DriveStrength); err != nil {
		return err
	}
	if err := checkUnitInterval("paternity_of_SR_males", p.PaternitySRMales); err != nil {
		return err
	}
	if err := checkUnitInterval("freq_polyandry", p.FreqPolyandry); err != nil {
		return err
	}
	if p.FitnessSTSRFemale < 0 {
		return fmt.Errorf("w_STSR_female must be >= 0, got %v", p.FitnessSTSRFemale)
	}
	if p.FitnessSRSRFemale < 0 {
		return fmt.Errorf("w_SRSR_female must be >= 0, got %v", p.FitnessSRSRFemale)
	}
	if p.FitnessSRMale < 0 {
		return fmt.Errorf("w_SR_male must be >= 0, got %v", p.FitnessSRMale)
	}
	if p.InitialFreqSR <= 0 || p.InitialFreqSR >= 1 {
		return fmt.Errorf("initial_freq_SR must be in (0,1), got %v", p.InitialFreqSR)
	}
	return nil
}

// Key is the deterministic identity of the full parameter tuple. Sweep
// resume logic reconciles requested against completed rows on this key,
// never on row positions.
func (p SimulationParameters) Key() string {
	parts := []string{
		strconv.Itoa(p.Generations),
		formatParam(p.DriveStrength),
		formatParam(p.PaternitySRMales),
		formatParam(p.FreqPolyandry),
		formatParam(p.FitnessSTSRFemale),
		formatParam(p.FitnessSRSRFemale),
		formatParam(p.FitnessSRMale),
		formatParam(p.InitialFreqSR),
	}
	return strings.Join(parts, "|")
}

func checkUnitInterval(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be in [0,1], got %v", name, v)
	}
	return nil
}

func formatParam(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// SweepRow is one persisted result of a sweep: the submitted parameters
// plus the terminal genotype frequencies, or a failure marker when the
// row's configuration was degenerate.
type SweepRow struct {
	VersionedRecord
	Params         SimulationParameters `json:"params"`
	FinalFreq      map[Genotype]float64 `json:"final_freq,omitempty"`
	GenerationsRun int                  `json:"generations_run"`
	Reason         string               `json:"reason"`
	Failed         bool                 `json:"failed,omitempty"`
	Error          string               `json:"error,omitempty"`
}

// PropSR derives the SR allele frequency from the terminal state. It is
// never stored, so the reported value can not drift from the frequencies.
func (r SweepRow) PropSR() float64 {
	if r.Failed {
		return 0
	}
	num := r.FinalFreq[GenotypeSTSRFemale] + 2*r.FinalFreq[GenotypeSRSRFemale] + r.FinalFreq[GenotypeSRMale]
	den := 2*(r.FinalFreq[GenotypeSTSTFemale]+r.FinalFreq[GenotypeSTSRFemale]+r.FinalFreq[GenotypeSRSRFemale]) +
		r.FinalFreq[GenotypeSTMale] + r.FinalFreq[GenotypeSRMale]
	if den == 0 {
		return 0
	}
	return num / den
}

// SweepManifest records the identity of a sweep invocation. GridHash pins
// the requested parameter grid so a resumed sweep can detect that the
// checkpoint directory belongs to a different grid.
type SweepManifest struct {
	VersionedRecord
	SweepID      string `json:"sweep_id"`
	GridHash     string `json:"grid_hash"`
	RowCount     int    `json:"row_count"`
	ChunkSize    int    `json:"chunk_size"`
	CreatedAtUTC string `json:"created_at_utc"`
}
