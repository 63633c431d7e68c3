package domain

import (
	"sort"
	"time"
)

// BasinResult is one basin's contribution to a country run: either the
// records of its primary station or the reason it was skipped.
type BasinResult struct {
	BasinID string
	Records []AnalysisRecord
	Gap     *BasinGap
}

// Aggregate combines the basins of a country into one decision for a forecast
// date. Only each basin's record at its configured lead time is considered,
// and a basin is triggered when its probability meets its own threshold.
//
// Basins without a usable record are listed as missing, and the rule is
// evaluated with three-valued logic so that missing data never reads as safe:
// ANY_BASIN is undetermined when nothing triggered and a basin is missing,
// ALL_BASINS is undetermined when every evaluable basin triggered but one is
// missing. With no evaluable basin the decision is always undetermined.
func Aggregate(country CountryConfig, forecastDate time.Time, results []BasinResult) ActivationDecision {
	byBasin := make(map[string]BasinResult, len(results))
	for _, r := range results {
		byBasin[r.BasinID] = r
	}

	d := ActivationDecision{
		Country:          country.Code,
		ForecastDate:     forecastDate,
		Rule:             country.Rule,
		TriggeringBasins: []string{},
	}

	evaluable, triggered := 0, 0
	for _, basin := range country.Basins {
		r, ok := byBasin[basin.ID]
		if !ok {
			d.MissingBasins = append(d.MissingBasins, BasinGap{BasinID: basin.ID, Reason: SkipNoRecord})
			continue
		}
		if r.Gap != nil {
			d.MissingBasins = append(d.MissingBasins, *r.Gap)
			continue
		}

		rec, found := recordAt(r.Records, forecastDate, basin.Policy.LeadTimeDays)
		switch {
		case !found:
			d.MissingBasins = append(d.MissingBasins, BasinGap{BasinID: basin.ID, Reason: SkipNoRecord})
			continue
		case !rec.Defined:
			d.MissingBasins = append(d.MissingBasins, BasinGap{BasinID: basin.ID, Reason: SkipInsufficientData})
			continue
		}

		evaluable++
		if rec.Probability >= basin.Policy.ProbabilityThreshold {
			triggered++
			d.TriggeringBasins = append(d.TriggeringBasins, basin.ID)
		}
	}

	missing := len(d.MissingBasins) > 0
	switch {
	case evaluable == 0:
		d.State = DecisionUndetermined
	case country.Rule == ActivationAllBasins:
		switch {
		case triggered < evaluable:
			d.State = DecisionNotTriggered
		case missing:
			d.State = DecisionUndetermined
		default:
			d.State = DecisionTriggered
		}
	default:
		switch {
		case triggered > 0:
			d.State = DecisionTriggered
		case missing:
			d.State = DecisionUndetermined
		default:
			d.State = DecisionNotTriggered
		}
	}
	d.Triggered = d.State == DecisionTriggered
	return d
}

// AggregateAll produces one decision per forecast date, in ascending date
// order. When dates is empty the dates present in the basins' records are used.
// Passing the forecast's own dates yields undetermined decisions for dates on
// which no basin produced a record.
func AggregateAll(country CountryConfig, dates []time.Time, results []BasinResult) []ActivationDecision {
	if len(dates) == 0 {
		dates = nil
		for _, r := range results {
			for _, rec := range r.Records {
				dates = append(dates, rec.ForecastDate)
			}
		}
	}
	unique := make([]time.Time, 0, len(dates))
	seen := make(map[time.Time]struct{}, len(dates))
	for _, d := range dates {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		unique = append(unique, d)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i].Before(unique[j]) })

	out := make([]ActivationDecision, 0, len(unique))
	for _, date := range unique {
		out = append(out, Aggregate(country, date, results))
	}
	return out
}

func recordAt(records []AnalysisRecord, forecastDate time.Time, leadDays int) (AnalysisRecord, bool) {
	for _, rec := range records {
		if rec.Primary && rec.LeadTimeDays == leadDays && rec.ForecastDate.Equal(forecastDate) {
			return rec, true
		}
	}
	return AnalysisRecord{}, false
}
