package genetics

import (
	"math"
	"testing"

	"drivesim/internal/model"
)

func TestBuildZygoteTableRowsSumToOne(t *testing.T) {
	types := BuildMatingTypes()
	ks := []float64{0, 0.25, 0.5, 0.75, 0.96, 1}
	ps := []float64{0, 0.2105, 0.5, 0.8, 1}
	for _, k := range ks {
		for _, p := range ps {
			table, err := BuildZygoteTable(k, p, types)
			if err != nil {
				t.Fatalf("k=%v p=%v: %v", k, p, err)
			}
			if len(table) != len(types) {
				t.Fatalf("k=%v p=%v: table has %d rows, want %d", k, p, len(table), len(types))
			}
			for i, outcome := range table {
				var sum float64
				for _, v := range outcome {
					if v < 0 {
						t.Fatalf("k=%v p=%v row %d: negative frequency %v", k, p, i, v)
					}
					sum += v
				}
				if math.Abs(sum-1) > 1e-9 {
					t.Fatalf("k=%v p=%v row %d: sum = %v, want 1", k, p, i, sum)
				}
			}
		}
	}
}

func TestZygoteMendelianReductionAtNoDriveFairPaternity(t *testing.T) {
	types := BuildMatingTypes()
	table, err := BuildZygoteTable(0, 0.5, types)
	if err != nil {
		t.Fatal(err)
	}

	expect := map[[3]model.Genotype]ZygoteOutcome{
		{model.GenotypeSTSTFemale, model.GenotypeSTMale, ""}:                     {0.5, 0, 0, 0.5, 0},
		{model.GenotypeSTSTFemale, model.GenotypeSRMale, ""}:                     {0, 0.5, 0, 0.5, 0},
		{model.GenotypeSTSRFemale, model.GenotypeSTMale, ""}:                     {0.25, 0.25, 0, 0.25, 0.25},
		{model.GenotypeSTSRFemale, model.GenotypeSRMale, ""}:                     {0, 0.25, 0.25, 0.25, 0.25},
		{model.GenotypeSRSRFemale, model.GenotypeSTMale, ""}:                     {0, 0.5, 0, 0, 0.5},
		{model.GenotypeSRSRFemale, model.GenotypeSRMale, ""}:                     {0, 0, 0.5, 0, 0.5},
		{model.GenotypeSTSTFemale, model.GenotypeSTMale, model.GenotypeSTMale}:   {0.5, 0, 0, 0.5, 0},
		{model.GenotypeSTSTFemale, model.GenotypeSTMale, model.GenotypeSRMale}:   {0.25, 0.25, 0, 0.5, 0},
		{model.GenotypeSTSTFemale, model.GenotypeSRMale, model.GenotypeSRMale}:   {0, 0.5, 0, 0.5, 0},
		{model.GenotypeSTSRFemale, model.GenotypeSTMale, model.GenotypeSTMale}:   {0.25, 0.25, 0, 0.25, 0.25},
		{model.GenotypeSTSRFemale, model.GenotypeSTMale, model.GenotypeSRMale}:   {0.125, 0.25, 0.125, 0.25, 0.25},
		{model.GenotypeSTSRFemale, model.GenotypeSRMale, model.GenotypeSRMale}:   {0, 0.25, 0.25, 0.25, 0.25},
		{model.GenotypeSRSRFemale, model.GenotypeSTMale, model.GenotypeSTMale}:   {0, 0.5, 0, 0, 0.5},
		{model.GenotypeSRSRFemale, model.GenotypeSTMale, model.GenotypeSRMale}:   {0, 0.25, 0.25, 0, 0.5},
		{model.GenotypeSRSRFemale, model.GenotypeSRMale, model.GenotypeSRMale}:   {0, 0, 0.5, 0, 0.5},
	}

	for i, mt := range types {
		want, ok := expect[[3]model.Genotype{mt.Mother, mt.Father1, mt.Father2}]
		if !ok {
			t.Fatalf("unexpected mating type in catalog: %+v", mt)
		}
		for g := 0; g < GenotypeCount; g++ {
			if math.Abs(table[i][g]-want[g]) > 1e-12 {
				t.Fatalf("mating type %d (%s x %s,%s) genotype %s: got %v, want %v",
					i, mt.Mother, mt.Father1, mt.Father2, Genotypes[g], table[i][g], want[g])
			}
		}
	}
}

func TestZygoteDistortedSingleCross(t *testing.T) {
	types := BuildMatingTypes()
	k := 0.96
	table, err := BuildZygoteTable(k, 0.5, types)
	if err != nil {
		t.Fatal(err)
	}

	for i, mt := range types {
		if mt.Mother != model.GenotypeSTSTFemale || mt.Father1 != model.GenotypeSRMale || mt.IsDoubleMating() {
			continue
		}
		wantDaughters := 0.5 * (1 + k)
		wantSons := 0.5 * (1 - k)
		if math.Abs(table[i][IdxSTSRFemale]-wantDaughters) > 1e-12 {
			t.Fatalf("STSR daughters: got %v, want %v", table[i][IdxSTSRFemale], wantDaughters)
		}
		if math.Abs(table[i][IdxSTMale]-wantSons) > 1e-12 {
			t.Fatalf("ST sons: got %v, want %v", table[i][IdxSTMale], wantSons)
		}
		return
	}
	t.Fatal("STST x SR single mating not found in catalog")
}

func TestZygoteMixedDoubleResidualSons(t *testing.T) {
	types := BuildMatingTypes()
	k, p := 0.8, 0.3
	table, err := BuildZygoteTable(k, p, types)
	if err != nil {
		t.Fatal(err)
	}

	// Daughter mass of a mixed mating is (1-p)*0.5 + p*0.5*(1+k); sons
	// take the residual. For a heterozygous mother the residual splits
	// evenly between the two son genotypes.
	daughterMass := (1-p)*0.5 + p*0.5*(1+k)
	residual := 1 - daughterMass

	for i, mt := range types {
		if !mt.IsMixedDoubleMating {
			continue
		}
		var sons float64
		sons = table[i][IdxSTMale] + table[i][IdxSRMale]
		if math.Abs(sons-residual) > 1e-12 {
			t.Fatalf("%s mixed mating: son mass %v, want residual %v", mt.Mother, sons, residual)
		}
		switch mt.Mother {
		case model.GenotypeSTSRFemale:
			if math.Abs(table[i][IdxSTMale]-residual/2) > 1e-12 || math.Abs(table[i][IdxSRMale]-residual/2) > 1e-12 {
				t.Fatalf("heterozygous mother: sons %v/%v, want even split of %v",
					table[i][IdxSTMale], table[i][IdxSRMale], residual)
			}
		case model.GenotypeSTSTFemale:
			if table[i][IdxSRMale] != 0 {
				t.Fatalf("STST mother produced SR sons: %v", table[i][IdxSRMale])
			}
		case model.GenotypeSRSRFemale:
			if table[i][IdxSTMale] != 0 {
				t.Fatalf("SRSR mother produced ST sons: %v", table[i][IdxSTMale])
			}
		}
	}
}

func TestBuildZygoteTableRejectsOutOfRangeInputs(t *testing.T) {
	types := BuildMatingTypes()
	if _, err := BuildZygoteTable(-0.1, 0.5, types); err == nil {
		t.Fatal("expected error for k < 0")
	}
	if _, err := BuildZygoteTable(1.1, 0.5, types); err == nil {
		t.Fatal("expected error for k > 1")
	}
	if _, err := BuildZygoteTable(0.5, -0.1, types); err == nil {
		t.Fatal("expected error for paternity < 0")
	}
	if _, err := BuildZygoteTable(0.5, 1.1, types); err == nil {
		t.Fatal("expected error for paternity > 1")
	}
}

func TestZygoteTableDeterministic(t *testing.T) {
	types := BuildMatingTypes()
	a, err := BuildZygoteTable(0.37, 0.61, types)
	if err != nil {
		t.Fatal(err)
	}
	b, err := BuildZygoteTable(0.37, 0.61, types)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("row %d differs across identical builds", i)
		}
	}
}
