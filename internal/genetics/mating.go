package genetics

import "drivesim/internal/model"

// MatingType is one distinguishable mating configuration: a mother, a
// first father, and an optional second father. Father2 is empty for
// single matings. Configurations that differ only by swapping the two
// father slots are collapsed into one catalog entry;
// IsMixedDoubleMating marks the collapsed ST+SR entries so the dynamics
// can apply the x2 combinatorial weighting explicitly rather than by row
// position.
type MatingType struct {
	Mother              model.Genotype
	Father1             model.Genotype
	Father2             model.Genotype
	IsMixedDoubleMating bool
}

// IsDoubleMating reports whether the female mated twice.
func (mt MatingType) IsDoubleMating() bool {
	return mt.Father2 != ""
}

var femaleGenotypes = [3]model.Genotype{
	model.GenotypeSTSTFemale,
	model.GenotypeSTSRFemale,
	model.GenotypeSRSRFemale,
}

var maleGenotypes = [2]model.Genotype{
	model.GenotypeSTMale,
	model.GenotypeSRMale,
}

// BuildMatingTypes enumerates the full catalog of distinguishable mating
// types: the Cartesian product of mothers, first fathers, and
// {none, fathers}, deduplicated under canonical ordering of the two
// father slots. The result is 6 single-mating plus 9 double-mating
// entries in a fixed order; every downstream table joins on this order.
func BuildMatingTypes() []MatingType {
	types := make([]MatingType, 0, 15)
	seen := make(map[[3]model.Genotype]struct{}, 18)

	for _, mother := range femaleGenotypes {
		for _, father1 := range maleGenotypes {
			for _, father2 := range append([]model.Genotype{""}, maleGenotypes[:]...) {
				key := canonicalKey(mother, father1, father2)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				types = append(types, MatingType{
					Mother:              mother,
					Father1:             father1,
					Father2:             father2,
					IsMixedDoubleMating: father2 != "" && father1 != father2,
				})
			}
		}
	}
	return types
}

func canonicalKey(mother, father1, father2 model.Genotype) [3]model.Genotype {
	if father2 != "" && father2 < father1 {
		father1, father2 = father2, father1
	}
	return [3]model.Genotype{mother, father1, father2}
}
