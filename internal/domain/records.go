package domain

import (
	"fmt"
	"math"
	"sort"
)

// BuildRecords turns one station's exceedances into analysis records. Records
// carry both the display tier and the policy trigger state.
func BuildRecords(country string, basin BasinConfig, station Station, primary bool, th Threshold, exceedances []Exceedance) []AnalysisRecord {
	bounds := basin.DisplayBoundaries()
	out := make([]AnalysisRecord, 0, len(exceedances))
	for _, e := range exceedances {
		status := Classify(e.Probability, e.Defined, bounds)
		out = append(out, AnalysisRecord{
			Country:      country,
			BasinID:      basin.ID,
			BasinName:    basin.Name,
			StationID:    station.ID,
			Primary:      primary,
			ForecastDate: e.ForecastDate,
			ValidDate:    e.ForecastDate.AddDate(0, 0, e.LeadTimeDays),
			LeadTimeStep: e.LeadTimeStep,
			LeadTimeDays: e.LeadTimeDays,
			ReturnPeriod: th.ReturnPeriod,
			ThresholdM3s: th.DischargeM3s,
			Interpolated: th.Interpolated,
			Probability:  e.Probability,
			Defined:      e.Defined,
			ValidMembers: e.ValidMembers,
			Exceeding:    e.Exceeding,
			MedianM3s:    e.Stats.Median,
			AlertStatus:  status,
			Triggered:    IsTriggered(e, basin.Policy),
			Narrative:    Narrative(basin.Name, status, e.Probability, e.LeadTimeDays, th.ReturnPeriod),
			Provinces:    basin.Provinces,
		})
	}
	return out
}

// SortRecords orders records by forecast date, then lead-time step, then station.
func SortRecords(records []AnalysisRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.ForecastDate.Equal(b.ForecastDate) {
			return a.ForecastDate.Before(b.ForecastDate)
		}
		if a.LeadTimeStep != b.LeadTimeStep {
			return a.LeadTimeStep < b.LeadTimeStep
		}
		return a.StationID < b.StationID
	})
}

// StatusCounts tallies records by alert status.
func StatusCounts(records []AnalysisRecord) map[AlertStatus]int {
	counts := make(map[AlertStatus]int, 4)
	for _, r := range records {
		counts[r.AlertStatus]++
	}
	return counts
}

// Narrative renders the risk text for one record.
func Narrative(basinName string, status AlertStatus, probability float64, leadDays int, returnPeriod float64) string {
	pct := math.Round(probability * 100)
	switch status {
	case AlertHigh:
		return fmt.Sprintf("HIGH flood risk for %s: %.0f%% of ensemble members exceed the %s-year return period discharge at %d-day lead time.",
			basinName, pct, formatReturnPeriod(returnPeriod), leadDays)
	case AlertMedium:
		return fmt.Sprintf("MEDIUM flood risk for %s: %.0f%% of ensemble members exceed the %s-year return period discharge at %d-day lead time. Monitor closely.",
			basinName, pct, formatReturnPeriod(returnPeriod), leadDays)
	case AlertLow:
		return fmt.Sprintf("LOW flood risk for %s: %.0f%% of ensemble members exceed the %s-year return period discharge at %d-day lead time.",
			basinName, pct, formatReturnPeriod(returnPeriod), leadDays)
	default:
		return fmt.Sprintf("No ensemble data available for %s at %d-day lead time; risk cannot be assessed.", basinName, leadDays)
	}
}

func formatReturnPeriod(rp float64) string {
	if rp == math.Trunc(rp) {
		return fmt.Sprintf("%.0f", rp)
	}
	return fmt.Sprintf("%g", rp)
}
