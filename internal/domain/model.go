package domain

import (
	"math"
	"time"
)

// ActivationRule combines per-basin trigger states into one country decision.
type ActivationRule string

const (
	ActivationAnyBasin  ActivationRule = "ANY_BASIN"
	ActivationAllBasins ActivationRule = "ALL_BASINS"
)

// TierMode selects how a basin's display boundaries are derived.
type TierMode string

const (
	// TierFixed uses AlertBoundaries as configured (default 0.70 / 0.50).
	TierFixed TierMode = "fixed"
	// TierRelative derives boundaries from the trigger policy: high at the
	// probability threshold, medium 20 points below it.
	TierRelative TierMode = "relative"
)

// Coordinate is a WGS-84 latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `yaml:"lat" json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `yaml:"lon" json:"lon" validate:"gte=-180,lte=360"`
}

// TriggerPolicy is the basin-specific activation policy.
type TriggerPolicy struct {
	ReturnPeriod         float64 `yaml:"return_period" json:"return_period" validate:"gt=0"`
	ProbabilityThreshold float64 `yaml:"probability_threshold" json:"probability_threshold" validate:"gte=0,lte=1"`
	LeadTimeDays         int     `yaml:"lead_time_days" json:"lead_time_days" validate:"gte=0"`
	// Interpolate allows a threshold to be derived from the neighboring
	// return-period files when no file exists for ReturnPeriod itself.
	Interpolate bool `yaml:"interpolate" json:"interpolate,omitempty"`
}

// AlertBoundaries are the lower bounds of the high and medium display tiers.
type AlertBoundaries struct {
	High   float64 `yaml:"high" json:"high" validate:"gte=0,lte=1,gtefield=Medium"`
	Medium float64 `yaml:"medium" json:"medium" validate:"gte=0,lte=1"`
}

// DefaultBoundaries are the tier cutoffs observed in operational trigger policies.
var DefaultBoundaries = AlertBoundaries{High: 0.70, Medium: 0.50}

// Station is a monitoring point on a river. The basin's own station is the
// primary one; secondary stations are informational.
type Station struct {
	ID         string     `yaml:"id" json:"id" validate:"required"`
	Name       string     `yaml:"name" json:"name"`
	Coordinate Coordinate `yaml:"coordinate" json:"coordinate"`
}

// BasinConfig is the static configuration of one river basin.
type BasinConfig struct {
	ID                string           `yaml:"id" json:"id" validate:"required"`
	Name              string           `yaml:"name" json:"name" validate:"required"`
	Station           Station          `yaml:"station" json:"station"`
	DrainageAreaKm2   float64          `yaml:"drainage_area_km2" json:"drainage_area_km2" validate:"gte=0"`
	Provinces         []string         `yaml:"provinces" json:"provinces"`
	Policy            TriggerPolicy    `yaml:"trigger" json:"trigger"`
	Tiers             TierMode         `yaml:"tiers" json:"tiers" validate:"omitempty,oneof=fixed relative"`
	Boundaries        *AlertBoundaries `yaml:"alert_boundaries" json:"alert_boundaries,omitempty"`
	SecondaryStations []Station        `yaml:"secondary_stations" json:"secondary_stations,omitempty" validate:"dive"`
}

// DisplayBoundaries returns the alert tier boundaries in effect for the basin.
func (b BasinConfig) DisplayBoundaries() AlertBoundaries {
	if b.Tiers == TierRelative {
		return RelativeBoundaries(b.Policy)
	}
	if b.Boundaries != nil {
		return *b.Boundaries
	}
	return DefaultBoundaries
}

// Stations returns the primary station followed by any secondary stations.
func (b BasinConfig) Stations() []Station {
	out := make([]Station, 0, 1+len(b.SecondaryStations))
	out = append(out, b.Station)
	return append(out, b.SecondaryStations...)
}

// BoundingBox is a country's extent as [north, west, south, east].
type BoundingBox struct {
	North float64 `yaml:"north" json:"north"`
	West  float64 `yaml:"west" json:"west"`
	South float64 `yaml:"south" json:"south"`
	East  float64 `yaml:"east" json:"east"`
}

// CountryConfig groups the basins of one country under an activation rule.
// Single-point countries are a one-element basin list.
type CountryConfig struct {
	Code   string         `yaml:"code" json:"code" validate:"required,alpha,lowercase"`
	Name   string         `yaml:"name" json:"name" validate:"required"`
	BBox   BoundingBox    `yaml:"bbox" json:"bbox"`
	Rule   ActivationRule `yaml:"activation_rule" json:"activation_rule" validate:"required,oneof=ANY_BASIN ALL_BASINS"`
	Basins []BasinConfig  `yaml:"basins" json:"basins" validate:"required,min=1,dive"`
}

// Basin returns the basin with the given ID.
func (c CountryConfig) Basin(id string) (BasinConfig, bool) {
	for _, b := range c.Basins {
		if b.ID == id {
			return b, true
		}
	}
	return BasinConfig{}, false
}

// GridCoordinates holds the cell-center axes of a regular lat/lon grid.
// Axes may be ascending or descending.
type GridCoordinates struct {
	Lats []float64
	Lons []float64
}

// ForecastCube is an ensemble discharge cube for one country and month,
// laid out as [date][member][step][lat][lon]. It is never mutated after load.
type ForecastCube struct {
	Grid     GridCoordinates
	Dates    []time.Time
	Members  int
	LeadDays []int
	Values   []float32
	// FillValue marks missing cells in addition to NaN.
	FillValue *float32
}

// At returns the discharge at the given indices and whether it is present.
func (c *ForecastCube) At(date, member, step, row, col int) (float64, bool) {
	nLat, nLon := len(c.Grid.Lats), len(c.Grid.Lons)
	idx := (((date*c.Members+member)*len(c.LeadDays)+step)*nLat+row)*nLon + col
	return present(c.Values[idx], c.FillValue)
}

// Len is the number of values the cube's dimensions imply.
func (c *ForecastCube) Len() int {
	return len(c.Dates) * c.Members * len(c.LeadDays) * len(c.Grid.Lats) * len(c.Grid.Lons)
}

// StepFor returns the step index for a lead time in days.
func (c *ForecastCube) StepFor(leadDays int) (int, bool) {
	for i, d := range c.LeadDays {
		if d == leadDays {
			return i, true
		}
	}
	return 0, false
}

// ThresholdGrid is a 2-D grid of discharge values for one return period.
type ThresholdGrid struct {
	Grid         GridCoordinates
	ReturnPeriod float64
	Values       []float32
	FillValue    *float32
}

// At returns the threshold at a cell and whether it is present.
func (g *ThresholdGrid) At(row, col int) (float64, bool) {
	return present(g.Values[row*len(g.Grid.Lons)+col], g.FillValue)
}

func present(v float32, fill *float32) (float64, bool) {
	if math.IsNaN(float64(v)) {
		return 0, false
	}
	if fill != nil && v == *fill {
		return 0, false
	}
	return float64(v), true
}

// Threshold is the discharge level for one basin and return period.
type Threshold struct {
	ReturnPeriod float64
	DischargeM3s float64
	GridLat      float64
	GridLon      float64
	// Interpolated is set when the value was derived from bracketing return periods.
	Interpolated bool
}

// AlertStatus is the informational display tier of an exceedance probability.
type AlertStatus string

const (
	AlertLow    AlertStatus = "low"
	AlertMedium AlertStatus = "medium"
	AlertHigh   AlertStatus = "high"
	AlertNoData AlertStatus = "no_data"
)

// EnsembleStats summarizes the valid members of one ensemble.
type EnsembleStats struct {
	Median              float64
	Mean                float64
	Min                 float64
	Max                 float64
	P25                 float64
	P75                 float64
	MedianExceedancePct float64
}

// Exceedance is the ensemble exceedance of a threshold at one date and step.
type Exceedance struct {
	ForecastDate time.Time
	LeadTimeStep int
	LeadTimeDays int
	Members      int
	ValidMembers int
	Exceeding    int
	Probability  float64
	// Defined is false when every member was missing.
	Defined bool
	Stats   EnsembleStats
}

// AnalysisRecord is one output row for a basin station at a forecast date and step.
type AnalysisRecord struct {
	Country      string
	BasinID      string
	BasinName    string
	StationID    string
	Primary      bool
	ForecastDate time.Time
	ValidDate    time.Time
	LeadTimeStep int
	LeadTimeDays int
	ReturnPeriod float64
	ThresholdM3s float64
	Interpolated bool
	Probability  float64
	Defined      bool
	ValidMembers int
	Exceeding    int
	MedianM3s    float64
	AlertStatus  AlertStatus
	Triggered    bool
	Narrative    string
	Provinces    []string
}

// DecisionState is the three-valued outcome of country activation.
type DecisionState string

const (
	DecisionTriggered    DecisionState = "triggered"
	DecisionNotTriggered DecisionState = "not_triggered"
	DecisionUndetermined DecisionState = "undetermined"
)

// BasinGap records why a basin could not take part in a decision.
type BasinGap struct {
	BasinID string     `json:"basin_id"`
	Reason  SkipReason `json:"reason"`
	Detail  string     `json:"detail,omitempty"`
}

// ActivationDecision is the country-level trigger outcome for one forecast date.
type ActivationDecision struct {
	Country          string         `json:"country"`
	ForecastDate     time.Time      `json:"forecast_date"`
	Rule             ActivationRule `json:"activation_rule"`
	State            DecisionState  `json:"state"`
	Triggered        bool           `json:"triggered"`
	TriggeringBasins []string       `json:"triggering_basins"`
	MissingBasins    []BasinGap     `json:"missing_basins,omitempty"`
}

// ForecastFile is a forecast cube file tagged with the month it covers.
type ForecastFile struct {
	Month time.Time
	Path  string
}

// ArtifactKey identifies the records artifact of one basin for one forecast month.
type ArtifactKey struct {
	Country      string
	BasinID      string
	Month        time.Time
	ReturnPeriod float64
	LeadTimeDays int
}
