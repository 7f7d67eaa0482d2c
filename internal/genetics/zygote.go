package genetics

import (
	"fmt"
	"math"

	"drivesim/internal/model"
)

// ZygoteOutcome is the offspring genotype distribution of one mating
// type, indexed by genotype catalog position. Entries sum to 1.
type ZygoteOutcome = FrequencyVector

// zygoteSumTolerance bounds the floating-point slack allowed on the
// per-mating-type distribution sum.
const zygoteSumTolerance = 1e-9

// BuildZygoteTable computes the offspring distribution for every mating
// type in the catalog, in catalog order. k is the segregation distortion
// strength of SR males: an SR father's gametes carry his X with
// probability 0.5*(1+k) instead of the Mendelian 0.5. paternitySRMales
// is the probability that the SR male sires a given offspring in a mixed
// ST+SR double mating.
//
// The table is a pure function of (catalog, k, paternitySRMales); it has
// no hidden state and is safe to share read-only across workers.
func BuildZygoteTable(k, paternitySRMales float64, types []MatingType) ([]ZygoteOutcome, error) {
	if k < 0 || k > 1 {
		return nil, fmt.Errorf("k must be in [0,1], got %v", k)
	}
	if paternitySRMales < 0 || paternitySRMales > 1 {
		return nil, fmt.Errorf("paternity_of_SR_males must be in [0,1], got %v", paternitySRMales)
	}

	table := make([]ZygoteOutcome, len(types))
	for i, mt := range types {
		outcome, err := zygoteOutcome(mt, k, paternitySRMales)
		if err != nil {
			return nil, fmt.Errorf("mating type %d (%s x %s,%s): %w", i, mt.Mother, mt.Father1, mt.Father2, err)
		}
		var sum float64
		for _, v := range outcome {
			if v < 0 {
				return nil, fmt.Errorf("mating type %d (%s x %s,%s): negative offspring frequency %v", i, mt.Mother, mt.Father1, mt.Father2, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > zygoteSumTolerance {
			return nil, fmt.Errorf("mating type %d (%s x %s,%s): offspring frequencies sum to %v, want 1", i, mt.Mother, mt.Father1, mt.Father2, sum)
		}
		table[i] = outcome
	}
	return table, nil
}

func zygoteOutcome(mt MatingType, k, paternitySRMales float64) (ZygoteOutcome, error) {
	switch {
	case !mt.IsDoubleMating():
		return singleCross(mt.Mother, mt.Father1, k)
	case !mt.IsMixedDoubleMating:
		// Two same-genotype fathers are gametically indistinguishable.
		return singleCross(mt.Mother, mt.Father1, k)
	default:
		return mixedDoubleCross(mt.Mother, k, paternitySRMales)
	}
}

// singleCross applies Mendelian segregation, replacing the father's
// 50:50 X/Y gametic ratio with 0.5*(1+k) / 0.5*(1-k) when he carries SR.
func singleCross(mother, father model.Genotype, k float64) (ZygoteOutcome, error) {
	var out ZygoteOutcome

	alleles, weights, err := motherTransmission(mother)
	if err != nil {
		return out, err
	}
	daughterShare, fatherAllele, err := fatherTransmission(father, k)
	if err != nil {
		return out, err
	}

	for i, allele := range alleles {
		out[daughterIndex(allele, fatherAllele)] += weights[i] * daughterShare
		out[sonIndex(allele)] += weights[i] * (1 - daughterShare)
	}
	return out, nil
}

// mixedDoubleCross resolves an ST+SR double mating. Daughters are
// attributed to an identifiable father: the SR male sires with
// probability paternitySRMales and transmits with distortion, the ST
// male sires the remainder and transmits Mendelian. Sons carry no
// paternal X, so their mass is the residual needed to bring the
// distribution to 1, split evenly between the two paternal-origin son
// slots. The even split is inherited from the original model.
func mixedDoubleCross(mother model.Genotype, k, paternitySRMales float64) (ZygoteOutcome, error) {
	var out ZygoteOutcome

	alleles, weights, err := motherTransmission(mother)
	if err != nil {
		return out, err
	}

	daughterShareST := 0.5
	daughterShareSR := 0.5 * (1 + k)
	for i, allele := range alleles {
		out[daughterIndex(allele, alleleST)] += weights[i] * (1 - paternitySRMales) * daughterShareST
		out[daughterIndex(allele, alleleSR)] += weights[i] * paternitySRMales * daughterShareSR
	}

	var daughterTotal float64
	for _, v := range out {
		daughterTotal += v
	}
	residual := 1 - daughterTotal

	for i, allele := range alleles {
		out[sonIndex(allele)] += residual * weights[i]
	}
	return out, nil
}

type allele int

const (
	alleleST allele = iota
	alleleSR
)

func motherTransmission(mother model.Genotype) ([]allele, []float64, error) {
	switch mother {
	case model.GenotypeSTSTFemale:
		return []allele{alleleST}, []float64{1}, nil
	case model.GenotypeSTSRFemale:
		return []allele{alleleST, alleleSR}, []float64{0.5, 0.5}, nil
	case model.GenotypeSRSRFemale:
		return []allele{alleleSR}, []float64{1}, nil
	default:
		return nil, nil, fmt.Errorf("not a female genotype: %s", mother)
	}
}

func fatherTransmission(father model.Genotype, k float64) (daughterShare float64, transmitted allele, err error) {
	switch father {
	case model.GenotypeSTMale:
		return 0.5, alleleST, nil
	case model.GenotypeSRMale:
		return 0.5 * (1 + k), alleleSR, nil
	default:
		return 0, 0, fmt.Errorf("not a male genotype: %s", father)
	}
}

func daughterIndex(maternal, paternal allele) int {
	switch {
	case maternal == alleleST && paternal == alleleST:
		return IdxSTSTFemale
	case maternal == alleleSR && paternal == alleleSR:
		return IdxSRSRFemale
	default:
		return IdxSTSRFemale
	}
}

func sonIndex(maternal allele) int {
	if maternal == alleleSR {
		return IdxSRMale
	}
	return IdxSTMale
}
