package domain

import (
	"slices"
	"strings"
	"time"
)

// AlertGate is the outcome of filtering decisions down to current forecasts.
type AlertGate struct {
	Eligible []ActivationDecision
	Stale    []StaleForecastSkipped
}

// SelectLatest returns the most recent forecast date among a basin's records.
// The result does not depend on record order.
func SelectLatest(records []AnalysisRecord, basinID string) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, rec := range records {
		if rec.BasinID != basinID {
			continue
		}
		if !found || rec.ForecastDate.After(latest) {
			latest = rec.ForecastDate
			found = true
		}
	}
	return latest, found
}

// GateAlerts keeps the triggered decisions whose forecast date is the latest
// known date for every triggering basin. Triggered decisions from superseded
// forecast runs are returned as stale skips instead.
func GateAlerts(decisions []ActivationDecision, records []AnalysisRecord) AlertGate {
	latest := make(map[string]time.Time)
	for _, rec := range records {
		if cur, ok := latest[rec.BasinID]; !ok || rec.ForecastDate.After(cur) {
			latest[rec.BasinID] = rec.ForecastDate
		}
	}

	var gate AlertGate
	for _, d := range decisions {
		if !d.Triggered {
			continue
		}
		var stale []StaleForecastSkipped
		for _, basin := range d.TriggeringBasins {
			l, ok := latest[basin]
			if ok && l.Equal(d.ForecastDate) {
				continue
			}
			stale = append(stale, StaleForecastSkipped{
				Country:      d.Country,
				ForecastDate: d.ForecastDate,
				Basin:        basin,
				LatestDate:   l,
			})
		}
		if len(stale) > 0 {
			gate.Stale = append(gate.Stale, stale...)
			continue
		}
		gate.Eligible = append(gate.Eligible, d)
	}
	return gate
}

// WithholdSuperseded moves eligible alerts to the stale list when a forecast
// month after the alert's month exists but could not be read. The unreadable
// month may hold a newer forecast, so the alert cannot be shown to be current.
func WithholdSuperseded(gate AlertGate, unreadable []time.Time) AlertGate {
	if len(unreadable) == 0 {
		return gate
	}
	var newest time.Time
	for _, m := range unreadable {
		if m.After(newest) {
			newest = m
		}
	}

	out := AlertGate{Stale: gate.Stale}
	for _, d := range gate.Eligible {
		month := time.Date(d.ForecastDate.Year(), d.ForecastDate.Month(), 1, 0, 0, 0, 0, time.UTC)
		if !newest.After(month) {
			out.Eligible = append(out.Eligible, d)
			continue
		}
		for _, basin := range d.TriggeringBasins {
			out.Stale = append(out.Stale, StaleForecastSkipped{
				Country:      d.Country,
				ForecastDate: d.ForecastDate,
				Basin:        basin,
				LatestDate:   newest,
			})
		}
	}
	return out
}

// AlertKey identifies an activation by country, forecast date and the
// triggering basins in sorted order.
func (d ActivationDecision) AlertKey() string {
	basins := slices.Clone(d.TriggeringBasins)
	slices.Sort(basins)
	return d.Country + "|" + d.ForecastDate.Format("2006-01-02") + "|" + strings.Join(basins, ",")
}
