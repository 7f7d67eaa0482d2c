package stats

import (
	"math"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"drivesim/internal/model"
)

// Summary condenses a completed sweep into the headline numbers of the
// equilibrium surface.
type Summary struct {
	Rows       int     `json:"rows"`
	FailedRows int     `json:"failed_rows"`
	MeanPropSR float64 `json:"mean_prop_sr"`
	StdPropSR  float64 `json:"std_prop_sr"`
	MinPropSR  float64 `json:"min_prop_sr"`
	MaxPropSR  float64 `json:"max_prop_sr"`
}

// Summarize aggregates prop_SR over the successful rows of a sweep.
func Summarize(rows []model.SweepRow) Summary {
	summary := Summary{Rows: len(rows)}

	values := make([]float64, 0, len(rows))
	for _, row := range rows {
		if row.Failed {
			summary.FailedRows++
			continue
		}
		values = append(values, row.PropSR())
	}
	if len(values) == 0 {
		return summary
	}

	summary.MinPropSR = values[0]
	summary.MaxPropSR = values[0]
	var sum float64
	for _, v := range values {
		sum += v
		summary.MinPropSR = math.Min(summary.MinPropSR, v)
		summary.MaxPropSR = math.Max(summary.MaxPropSR, v)
	}
	mean := sum / float64(len(values))
	summary.MeanPropSR = mean

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	summary.StdPropSR = math.Sqrt(sq / float64(len(values)))
	return summary
}

// MarginalPoint is the mean equilibrium prop_SR over every successful
// row sharing one value of the chosen parameter axis.
type MarginalPoint struct {
	Value      float64 `json:"value"`
	MeanPropSR float64 `json:"mean_prop_sr"`
	Rows       int     `json:"rows"`
}

// MarginalMeans collapses the equilibrium surface along one parameter
// axis, selected by the pick function. Points come back sorted by axis
// value.
func MarginalMeans(rows []model.SweepRow, pick func(model.SimulationParameters) float64) []MarginalPoint {
	sums := make(map[float64]float64)
	counts := make(map[float64]int)
	for _, row := range rows {
		if row.Failed {
			continue
		}
		v := pick(row.Params)
		sums[v] += row.PropSR()
		counts[v]++
	}

	values := maps.Keys(sums)
	slices.Sort(values)

	points := make([]MarginalPoint, 0, len(values))
	for _, v := range values {
		points = append(points, MarginalPoint{
			Value:      v,
			MeanPropSR: sums[v] / float64(counts[v]),
			Rows:       counts[v],
		})
	}
	return points
}
