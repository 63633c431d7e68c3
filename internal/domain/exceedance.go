package domain

import (
	"math"
	"sort"
)

// ComputeExceedance evaluates every forecast date and lead-time step of the
// cube at one grid cell against a threshold. Members marked missing are
// excluded; a member exactly at the threshold does not count as exceeding.
// When no member is present the entry is returned with Defined=false.
func ComputeExceedance(cube *ForecastCube, row, col int, threshold float64) []Exceedance {
	out := make([]Exceedance, 0, len(cube.Dates)*len(cube.LeadDays))
	values := make([]float64, 0, cube.Members)

	for d, date := range cube.Dates {
		for s, lead := range cube.LeadDays {
			values = values[:0]
			for m := 0; m < cube.Members; m++ {
				if v, ok := cube.At(d, m, s, row, col); ok {
					values = append(values, v)
				}
			}

			e := Exceedance{
				ForecastDate: date,
				LeadTimeStep: s,
				LeadTimeDays: lead,
				Members:      cube.Members,
				ValidMembers: len(values),
			}
			if len(values) > 0 {
				e.Exceeding = countAbove(values, threshold)
				e.Probability = float64(e.Exceeding) / float64(len(values))
				e.Defined = true
				e.Stats = ensembleStats(values, threshold)
			}
			out = append(out, e)
		}
	}
	return out
}

func countAbove(values []float64, threshold float64) int {
	n := 0
	for _, v := range values {
		if v > threshold {
			n++
		}
	}
	return n
}

// ensembleStats summarizes valid members. Percentiles use linear interpolation
// between closest ranks.
func ensembleStats(values []float64, threshold float64) EnsembleStats {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	median := percentile(sorted, 50)
	stats := EnsembleStats{
		Median: median,
		Mean:   sum / float64(len(sorted)),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		P25:    percentile(sorted, 25),
		P75:    percentile(sorted, 75),
	}
	if threshold > 0 {
		stats.MedianExceedancePct = (median/threshold - 1) * 100
	}
	return stats
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
