package domain

import (
	"errors"
	"fmt"
	"time"
)

// SkipReason categorizes why a basin or station produced no decision input.
type SkipReason string

const (
	SkipMissingThreshold    SkipReason = "missing_threshold"
	SkipCoordinateOutOfGrid SkipReason = "coordinate_out_of_bounds"
	SkipNoForecastData      SkipReason = "no_forecast_data"
	SkipLeadTimeUnavailable SkipReason = "lead_time_unavailable"
	SkipInsufficientData    SkipReason = "insufficient_ensemble_data"
	SkipNoRecord            SkipReason = "no_record_for_date"
	SkipInternal            SkipReason = "internal_error"
)

// ErrInsufficientEnsembleData marks a date/step where every ensemble member is missing.
var ErrInsufficientEnsembleData = errors.New("insufficient ensemble data")

// MissingThresholdError reports an absent return-period file for a basin.
type MissingThresholdError struct {
	Country      string
	Basin        string
	ReturnPeriod float64
	Path         string
	Err          error
}

func (e *MissingThresholdError) Error() string {
	return fmt.Sprintf("missing %.1f-year threshold for %s/%s at %s", e.ReturnPeriod, e.Country, e.Basin, e.Path)
}

func (e *MissingThresholdError) Unwrap() error { return e.Err }

// CoordinateOutOfBoundsError reports a location outside a grid's covered extent.
type CoordinateOutOfBoundsError struct {
	Axis  string
	Value float64
	Min   float64
	Max   float64
}

func (e *CoordinateOutOfBoundsError) Error() string {
	return fmt.Sprintf("%s %.4f outside grid extent [%.4f, %.4f]", e.Axis, e.Value, e.Min, e.Max)
}

// StaleForecastSkipped records a triggered decision withheld from alerting because
// a newer forecast exists for one of its basins. It is a decision, not a failure.
type StaleForecastSkipped struct {
	Country      string    `json:"country"`
	ForecastDate time.Time `json:"forecast_date"`
	Basin        string    `json:"basin"`
	LatestDate   time.Time `json:"latest_date"`
}

// ReasonFor maps an error to the SkipReason reported for the affected basin.
func ReasonFor(err error) SkipReason {
	var missing *MissingThresholdError
	var oob *CoordinateOutOfBoundsError
	switch {
	case errors.As(err, &missing):
		return SkipMissingThreshold
	case errors.As(err, &oob):
		return SkipCoordinateOutOfGrid
	case errors.Is(err, ErrInsufficientEnsembleData):
		return SkipInsufficientData
	default:
		return SkipInternal
	}
}
