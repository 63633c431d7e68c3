package domain

import (
	"math"
	"time"
)

var (
	day1 = time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2025, time.October, 2, 0, 0, 0, 0, time.UTC)
	day3 = time.Date(2025, time.October, 3, 0, 0, 0, 0, time.UTC)
)

// singleCellCube builds a one-cell cube with every value missing.
func singleCellCube(members int, leadDays []int, dates ...time.Time) *ForecastCube {
	c := &ForecastCube{
		Grid:     GridCoordinates{Lats: []float64{14.2}, Lons: []float64{-90.35}},
		Dates:    dates,
		Members:  members,
		LeadDays: leadDays,
	}
	c.Values = make([]float32, c.Len())
	for i := range c.Values {
		c.Values[i] = float32(math.NaN())
	}
	return c
}

// setMembers writes values for one date and step of a single-cell cube.
func setMembers(c *ForecastCube, date, step int, values []float64) {
	for m, v := range values {
		idx := (date*c.Members+m)*len(c.LeadDays) + step
		c.Values[idx] = float32(v)
	}
}

// ensemble returns n members, the first `above` of which exceed threshold by 10.
func ensemble(n, above int, threshold float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i < above {
			out[i] = threshold + 10
		} else {
			out[i] = threshold - 10
		}
	}
	return out
}

func basin(id string, threshold float64, leadDays int) BasinConfig {
	return BasinConfig{
		ID:        id,
		Name:      id + " River",
		Station:   Station{ID: "G-" + id, Coordinate: Coordinate{Lat: 14.2, Lon: -90.35}},
		Provinces: []string{"Escuintla"},
		Policy:    TriggerPolicy{ReturnPeriod: 5, ProbabilityThreshold: threshold, LeadTimeDays: leadDays},
	}
}

func primaryRecord(basinID string, date time.Time, leadDays int, probability float64, defined bool) AnalysisRecord {
	return AnalysisRecord{
		BasinID:      basinID,
		StationID:    "G-" + basinID,
		Primary:      true,
		ForecastDate: date,
		LeadTimeDays: leadDays,
		Probability:  probability,
		Defined:      defined,
	}
}
