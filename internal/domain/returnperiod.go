package domain

import (
	"fmt"
	"math"
	"strconv"
)

// ReturnPeriodLabel formats a return period the way threshold files are named,
// with one decimal place. Periods that would not survive that formatting, such
// as 2.25, are rejected so they never resolve to a neighboring file.
func ReturnPeriodLabel(rp float64) (string, error) {
	if rp <= 0 || math.IsInf(rp, 0) || math.IsNaN(rp) {
		return "", fmt.Errorf("return period %v must be positive and finite", rp)
	}
	label := strconv.FormatFloat(rp, 'f', 1, 64)
	if back, err := strconv.ParseFloat(label, 64); err != nil || back != rp {
		return "", fmt.Errorf("return period %v has more than one decimal place", rp)
	}
	return label, nil
}

// InterpolateReturnPeriod estimates the discharge for a target return period
// from two bracketing return periods. Flood frequency curves are close to
// linear in log(return period), so interpolation is done in log space.
func InterpolateReturnPeriod(lowerRP, lowerVal, upperRP, upperVal, targetRP float64) float64 {
	if lowerRP == upperRP {
		return lowerVal
	}
	w := (math.Log(targetRP) - math.Log(lowerRP)) / (math.Log(upperRP) - math.Log(lowerRP))
	return lowerVal + (upperVal-lowerVal)*w
}
