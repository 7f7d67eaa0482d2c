package genetics

import "drivesim/internal/model"

// GenotypeCount is the size of the closed genotype catalog. Frequency
// vectors throughout the engine are arrays indexed by catalog position,
// which makes the catalog order the join key between every table.
const GenotypeCount = 5

// Genotypes is the fixed, ordered genotype catalog: three female
// genotypes followed by the two male genotypes.
var Genotypes = [GenotypeCount]model.Genotype{
	model.GenotypeSTSTFemale,
	model.GenotypeSTSRFemale,
	model.GenotypeSRSRFemale,
	model.GenotypeSTMale,
	model.GenotypeSRMale,
}

const (
	IdxSTSTFemale = 0
	IdxSTSRFemale = 1
	IdxSRSRFemale = 2
	IdxSTMale     = 3
	IdxSRMale     = 4
)

// Index returns the catalog position of a genotype, or -1 when the value
// is not part of the catalog.
func Index(g model.Genotype) int {
	switch g {
	case model.GenotypeSTSTFemale:
		return IdxSTSTFemale
	case model.GenotypeSTSRFemale:
		return IdxSTSRFemale
	case model.GenotypeSRSRFemale:
		return IdxSRSRFemale
	case model.GenotypeSTMale:
		return IdxSTMale
	case model.GenotypeSRMale:
		return IdxSRMale
	default:
		return -1
	}
}

// FrequencyVector is a frequency (or probability) value per genotype in
// catalog order.
type FrequencyVector [GenotypeCount]float64

// ToMap projects the vector onto genotype-keyed form for serialization.
func (v FrequencyVector) ToMap() map[model.Genotype]float64 {
	out := make(map[model.Genotype]float64, GenotypeCount)
	for i, g := range Genotypes {
		out[g] = v[i]
	}
	return out
}

// AlleleFrequencySR computes the SR allele frequency of a genotype
// frequency vector. Each heterozygous female contributes one SR copy,
// each SR homozygote two, each SR male one; the denominator weights
// female genotypes by their two X copies and male genotypes by one.
func AlleleFrequencySR(freq FrequencyVector) float64 {
	num := freq[IdxSTSRFemale] + 2*freq[IdxSRSRFemale] + freq[IdxSRMale]
	den := 2*(freq[IdxSTSTFemale]+freq[IdxSTSRFemale]+freq[IdxSRSRFemale]) +
		freq[IdxSTMale] + freq[IdxSRMale]
	if den == 0 {
		return 0
	}
	return num / den
}
