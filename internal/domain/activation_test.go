package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func country(rule ActivationRule, basins ...BasinConfig) CountryConfig {
	return CountryConfig{Code: "ph", Name: "Philippines", Rule: rule, Basins: basins}
}

func TestAggregate_SingleBasinScenario(t *testing.T) {
	cube := singleCellCube(51, []int{1, 2, 3}, day1)
	setMembers(cube, 0, 2, ensemble(51, 40, 850))

	b := basin("cagayan", 0.7, 3)
	th := Threshold{ReturnPeriod: 5, DischargeM3s: 850}
	records := BuildRecords("ph", b, b.Station, true, th, ComputeExceedance(cube, 0, 0, 850))

	rec := records[2]
	assert.Equal(t, 3, rec.LeadTimeDays)
	assert.InDelta(t, 0.784, rec.Probability, 0.001)
	assert.Equal(t, AlertHigh, rec.AlertStatus)
	assert.True(t, rec.Triggered)

	for _, rule := range []ActivationRule{ActivationAnyBasin, ActivationAllBasins} {
		d := Aggregate(country(rule, b), day1, []BasinResult{{BasinID: "cagayan", Records: records}})
		assert.Equal(t, DecisionTriggered, d.State, rule)
		assert.True(t, d.Triggered)
		assert.Equal(t, []string{"cagayan"}, d.TriggeringBasins)
		assert.Empty(t, d.MissingBasins)
	}
}

func TestAggregate_OnlyConfiguredLeadTimeCounts(t *testing.T) {
	b := basin("a", 0.7, 3)
	results := []BasinResult{{BasinID: "a", Records: []AnalysisRecord{
		primaryRecord("a", day1, 1, 0.95, true),
		primaryRecord("a", day1, 3, 0.10, true),
	}}}

	d := Aggregate(country(ActivationAnyBasin, b), day1, results)
	assert.Equal(t, DecisionNotTriggered, d.State)
	assert.False(t, d.Triggered)
}

func TestAggregate_SecondaryStationsIgnored(t *testing.T) {
	b := basin("a", 0.7, 3)
	secondary := primaryRecord("a", day1, 3, 0.99, true)
	secondary.Primary = false
	secondary.StationID = "G-a-2"

	d := Aggregate(country(ActivationAnyBasin, b), day1, []BasinResult{{BasinID: "a", Records: []AnalysisRecord{
		secondary,
		primaryRecord("a", day1, 3, 0.2, true),
	}}})
	assert.Equal(t, DecisionNotTriggered, d.State)
}

func TestAggregate_AllBasinsRequiresEveryBasin(t *testing.T) {
	a, b := basin("a", 0.7, 3), basin("b", 0.7, 3)
	results := []BasinResult{
		{BasinID: "a", Records: []AnalysisRecord{primaryRecord("a", day1, 3, 0.8, true)}},
		{BasinID: "b", Records: []AnalysisRecord{primaryRecord("b", day1, 3, 0.3, true)}},
	}

	all := Aggregate(country(ActivationAllBasins, a, b), day1, results)
	assert.Equal(t, DecisionNotTriggered, all.State)
	assert.False(t, all.Triggered)
	assert.Equal(t, []string{"a"}, all.TriggeringBasins)

	anyBasin := Aggregate(country(ActivationAnyBasin, a, b), day1, results)
	assert.Equal(t, DecisionTriggered, anyBasin.State)
	assert.Equal(t, []string{"a"}, anyBasin.TriggeringBasins)
}

func TestAggregate_EachBasinUsesItsOwnThreshold(t *testing.T) {
	a, b := basin("a", 0.5, 3), basin("b", 0.9, 3)
	results := []BasinResult{
		{BasinID: "a", Records: []AnalysisRecord{primaryRecord("a", day1, 3, 0.6, true)}},
		{BasinID: "b", Records: []AnalysisRecord{primaryRecord("b", day1, 3, 0.92, true)}},
	}

	d := Aggregate(country(ActivationAllBasins, a, b), day1, results)
	assert.Equal(t, DecisionTriggered, d.State)
	assert.ElementsMatch(t, []string{"a", "b"}, d.TriggeringBasins)

	results[1].Records[0].Probability = 0.85
	d = Aggregate(country(ActivationAllBasins, a, b), day1, results)
	assert.Equal(t, DecisionNotTriggered, d.State)
}

func TestAggregate_MissingThresholdNotesGap(t *testing.T) {
	a, b, c := basin("a", 0.7, 3), basin("b", 0.7, 3), basin("c", 0.7, 3)
	results := []BasinResult{
		{BasinID: "a", Records: []AnalysisRecord{primaryRecord("a", day1, 3, 0.2, true)}},
		{BasinID: "b", Gap: &BasinGap{BasinID: "b", Reason: SkipMissingThreshold}},
		{BasinID: "c", Records: []AnalysisRecord{primaryRecord("c", day1, 3, 0.9, true)}},
	}

	d := Aggregate(country(ActivationAnyBasin, a, b, c), day1, results)
	assert.Equal(t, DecisionTriggered, d.State)
	require.Len(t, d.MissingBasins, 1)
	assert.Equal(t, "b", d.MissingBasins[0].BasinID)
	assert.Equal(t, SkipMissingThreshold, d.MissingBasins[0].Reason)

	results[2].Records[0].Probability = 0.1
	d = Aggregate(country(ActivationAnyBasin, a, b, c), day1, results)
	assert.Equal(t, DecisionUndetermined, d.State, "a missing basin could still trigger ANY_BASIN")
	assert.False(t, d.Triggered)
}

func TestAggregate_AllBasinsWithGap(t *testing.T) {
	a, b := basin("a", 0.7, 3), basin("b", 0.7, 3)
	gap := BasinResult{BasinID: "b", Gap: &BasinGap{BasinID: "b", Reason: SkipMissingThreshold}}

	d := Aggregate(country(ActivationAllBasins, a, b), day1, []BasinResult{
		{BasinID: "a", Records: []AnalysisRecord{primaryRecord("a", day1, 3, 0.9, true)}}, gap,
	})
	assert.Equal(t, DecisionUndetermined, d.State)

	d = Aggregate(country(ActivationAllBasins, a, b), day1, []BasinResult{
		{BasinID: "a", Records: []AnalysisRecord{primaryRecord("a", day1, 3, 0.1, true)}}, gap,
	})
	assert.Equal(t, DecisionNotTriggered, d.State)
}

func TestAggregate_NoEvaluableBasinIsUndetermined(t *testing.T) {
	a := basin("a", 0.7, 3)
	for _, rule := range []ActivationRule{ActivationAnyBasin, ActivationAllBasins} {
		d := Aggregate(country(rule, a), day1, []BasinResult{
			{BasinID: "a", Gap: &BasinGap{BasinID: "a", Reason: SkipMissingThreshold}},
		})
		assert.Equal(t, DecisionUndetermined, d.State)
		assert.False(t, d.Triggered)
	}
}

func TestAggregate_NoDataProbabilityIsGap(t *testing.T) {
	a := basin("a", 0.7, 3)
	d := Aggregate(country(ActivationAnyBasin, a), day1, []BasinResult{
		{BasinID: "a", Records: []AnalysisRecord{primaryRecord("a", day1, 3, 0, false)}},
	})
	assert.Equal(t, DecisionUndetermined, d.State)
	require.Len(t, d.MissingBasins, 1)
	assert.Equal(t, SkipInsufficientData, d.MissingBasins[0].Reason)
}

func TestAggregate_SingleBasinRulesAgree(t *testing.T) {
	a := basin("a", 0.6, 2)
	for _, p := range []float64{0, 0.59, 0.6, 1} {
		results := []BasinResult{{BasinID: "a", Records: []AnalysisRecord{primaryRecord("a", day1, 2, p, true)}}}
		anyBasin := Aggregate(country(ActivationAnyBasin, a), day1, results)
		all := Aggregate(country(ActivationAllBasins, a), day1, results)
		assert.Equal(t, anyBasin.State, all.State, "p=%v", p)
	}
}

func TestAggregateAll_OneDecisionPerDate(t *testing.T) {
	a := basin("a", 0.7, 3)
	results := []BasinResult{{BasinID: "a", Records: []AnalysisRecord{
		primaryRecord("a", day2, 3, 0.9, true),
		primaryRecord("a", day1, 3, 0.1, true),
	}}}

	decisions := AggregateAll(country(ActivationAnyBasin, a), nil, results)
	require.Len(t, decisions, 2)
	assert.Equal(t, day1, decisions[0].ForecastDate)
	assert.Equal(t, DecisionNotTriggered, decisions[0].State)
	assert.Equal(t, day2, decisions[1].ForecastDate)
	assert.Equal(t, DecisionTriggered, decisions[1].State)
}

func TestAggregateAll_ForecastDatesWithoutRecordsAreUndetermined(t *testing.T) {
	a := basin("a", 0.7, 3)
	results := []BasinResult{{BasinID: "a", Gap: &BasinGap{BasinID: "a", Reason: SkipMissingThreshold}}}

	decisions := AggregateAll(country(ActivationAllBasins, a), []time.Time{day2, day1, day2}, results)
	require.Len(t, decisions, 2)
	assert.Equal(t, day1, decisions[0].ForecastDate)
	for _, d := range decisions {
		assert.Equal(t, DecisionUndetermined, d.State)
		require.Len(t, d.MissingBasins, 1)
		assert.Equal(t, SkipMissingThreshold, d.MissingBasins[0].Reason)
	}
}
