package domain

import "math"

// relativeMediumOffset is how far below the trigger threshold the medium tier
// starts when a basin uses relative tiers.
const relativeMediumOffset = 0.20

// Classify maps an exceedance probability to its display tier. Undefined
// probabilities are no_data, never low.
func Classify(probability float64, defined bool, b AlertBoundaries) AlertStatus {
	if !defined {
		return AlertNoData
	}
	switch {
	case probability >= b.High:
		return AlertHigh
	case probability >= b.Medium:
		return AlertMedium
	default:
		return AlertLow
	}
}

// IsTriggered reports whether an exceedance meets the basin's own probability
// threshold. It is independent of the display tier.
func IsTriggered(e Exceedance, p TriggerPolicy) bool {
	return e.Defined && e.Probability >= p.ProbabilityThreshold
}

// RelativeBoundaries places the high tier at the policy's probability threshold
// and the medium tier 20 points below it, floored at zero.
func RelativeBoundaries(p TriggerPolicy) AlertBoundaries {
	// Rounded so that 0.7-0.2 compares equal to 0.5.
	medium := math.Round((p.ProbabilityThreshold-relativeMediumOffset)*1e9) / 1e9
	if medium < 0 {
		medium = 0
	}
	return AlertBoundaries{High: p.ProbabilityThreshold, Medium: medium}
}
