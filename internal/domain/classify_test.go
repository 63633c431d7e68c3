package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_TierBoundaries(t *testing.T) {
	cases := []struct {
		p    float64
		want AlertStatus
	}{
		{1.0, AlertHigh},
		{0.70, AlertHigh},
		{0.699999, AlertMedium},
		{0.50, AlertMedium},
		{0.4999, AlertLow},
		{0, AlertLow},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.p, true, DefaultBoundaries), "p=%v", tc.p)
	}
}

func TestClassify_UndefinedIsNoData(t *testing.T) {
	assert.Equal(t, AlertNoData, Classify(0, false, DefaultBoundaries))
	assert.Equal(t, AlertNoData, Classify(0.9, false, DefaultBoundaries))
}

func TestClassify_CustomBoundaries(t *testing.T) {
	b := AlertBoundaries{High: 0.6, Medium: 0.3}
	assert.Equal(t, AlertHigh, Classify(0.6, true, b))
	assert.Equal(t, AlertMedium, Classify(0.3, true, b))
	assert.Equal(t, AlertLow, Classify(0.29, true, b))
}

func TestIsTriggered_UsesPolicyNotTier(t *testing.T) {
	policy := TriggerPolicy{ReturnPeriod: 5, ProbabilityThreshold: 0.5, LeadTimeDays: 3}

	e := Exceedance{Probability: 0.55, Defined: true}
	assert.True(t, IsTriggered(e, policy))
	assert.Equal(t, AlertMedium, Classify(e.Probability, e.Defined, DefaultBoundaries))

	assert.False(t, IsTriggered(Exceedance{Probability: 0.49, Defined: true}, policy))
	assert.False(t, IsTriggered(Exceedance{Probability: 1, Defined: false}, policy))
}

func TestRelativeBoundaries(t *testing.T) {
	b := RelativeBoundaries(TriggerPolicy{ProbabilityThreshold: 0.7})
	assert.Equal(t, 0.7, b.High)
	assert.Equal(t, 0.5, b.Medium)
	assert.Equal(t, AlertMedium, Classify(0.5, true, b))

	b = RelativeBoundaries(TriggerPolicy{ProbabilityThreshold: 0.1})
	assert.Equal(t, 0.0, b.Medium)
}

func TestBasinConfig_DisplayBoundaries(t *testing.T) {
	b := basin("a", 0.5, 3)
	assert.Equal(t, DefaultBoundaries, b.DisplayBoundaries())

	b.Boundaries = &AlertBoundaries{High: 0.8, Medium: 0.4}
	assert.Equal(t, AlertBoundaries{High: 0.8, Medium: 0.4}, b.DisplayBoundaries())

	b.Tiers = TierRelative
	assert.Equal(t, AlertBoundaries{High: 0.5, Medium: 0.3}, b.DisplayBoundaries())
}
