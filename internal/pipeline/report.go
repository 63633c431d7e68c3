package pipeline

import (
	"time"

	"github.com/couchcryptid/flood-trigger-service/internal/domain"
)

// SkippedStation records a station, or a whole basin, that produced no
// decision input and why.
type SkippedStation struct {
	Country   string            `json:"country"`
	BasinID   string            `json:"basin_id"`
	StationID string            `json:"station_id,omitempty"`
	Month     time.Time         `json:"month,omitzero"`
	Reason    domain.SkipReason `json:"reason"`
	Error     string            `json:"error,omitempty"`
}

// CountryReport is the outcome of analyzing one country.
type CountryReport struct {
	Country      string                        `json:"country"`
	Artifacts    []string                      `json:"artifacts"`
	Records      int                           `json:"records"`
	StatusCounts map[domain.AlertStatus]int    `json:"status_counts"`
	Skipped      []SkippedStation              `json:"skipped,omitempty"`
	Decisions    []domain.ActivationDecision   `json:"decisions"`
	Alerts       []domain.ActivationDecision   `json:"alerts"`
	Published    int                           `json:"published"`
	Stale        []domain.StaleForecastSkipped `json:"stale,omitempty"`
	Error        string                        `json:"error,omitempty"`
}

// RunReport is the outcome of one analysis run across all configured countries.
type RunReport struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Countries  []CountryReport `json:"countries"`
}

// Skipped returns every skipped station across countries.
func (r RunReport) Skipped() []SkippedStation {
	var out []SkippedStation
	for _, c := range r.Countries {
		out = append(out, c.Skipped...)
	}
	return out
}

// Alerts returns every eligible alert across countries.
func (r RunReport) Alerts() []domain.ActivationDecision {
	var out []domain.ActivationDecision
	for _, c := range r.Countries {
		out = append(out, c.Alerts...)
	}
	return out
}

// Decisions returns every activation decision across countries.
func (r RunReport) Decisions() []domain.ActivationDecision {
	var out []domain.ActivationDecision
	for _, c := range r.Countries {
		out = append(out, c.Decisions...)
	}
	return out
}
