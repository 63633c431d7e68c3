package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/flood-trigger-service/internal/domain"
	"github.com/couchcryptid/flood-trigger-service/internal/observability"
)

// ForecastSource lists and loads a country's monthly forecast cubes.
type ForecastSource interface {
	List(ctx context.Context, country string) ([]domain.ForecastFile, error)
	Read(ctx context.Context, f domain.ForecastFile) (*domain.ForecastCube, error)
}

// ThresholdLoader resolves a station's threshold for its basin's return period.
// Reset is called at the start of every run.
type ThresholdLoader interface {
	LoadThreshold(ctx context.Context, country string, basin domain.BasinConfig, station domain.Station) (domain.Threshold, error)
	Reset()
}

// RecordWriter persists the records of one basin for one forecast month.
type RecordWriter interface {
	Write(ctx context.Context, key domain.ArtifactKey, records []domain.AnalysisRecord) (string, error)
}

// AlertPublisher delivers eligible activation alerts.
type AlertPublisher interface {
	PublishAlerts(ctx context.Context, runID string, decisions []domain.ActivationDecision) error
}

// Analyzer runs the per-basin analysis for countries and turns the results
// into activation decisions.
type Analyzer struct {
	forecasts  ForecastSource
	thresholds ThresholdLoader
	writer     RecordWriter
	publisher  AlertPublisher
	logger     *slog.Logger
	metrics    *observability.Metrics
	workers    int
	tolerance  float64

	mu sync.Mutex
	// published holds the alert keys delivered by earlier runs of this process.
	published map[string]struct{}
}

// NewAnalyzer creates an Analyzer. publisher may be nil to skip alert delivery.
func NewAnalyzer(f ForecastSource, t ThresholdLoader, w RecordWriter, publisher AlertPublisher,
	logger *slog.Logger, metrics *observability.Metrics, workers int, toleranceCells float64,
) *Analyzer {
	if workers < 1 {
		workers = 1
	}
	return &Analyzer{
		forecasts:  f,
		thresholds: t,
		writer:     w,
		publisher:  publisher,
		logger:     logger,
		metrics:    metrics,
		workers:    workers,
		tolerance:  toleranceCells,
		published:  make(map[string]struct{}),
	}
}

// Analyze runs every country in turn. A country that fails is reported and
// the run continues with the next; the returned error joins all failures.
func (a *Analyzer) Analyze(ctx context.Context, countries []domain.CountryConfig) (RunReport, error) {
	a.thresholds.Reset()
	report := RunReport{RunID: uuid.NewString(), StartedAt: domain.Now()}

	var errs []error
	for _, c := range countries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		cr, err := a.AnalyzeCountry(ctx, report.RunID, c)
		if err != nil {
			cr.Error = err.Error()
			errs = append(errs, fmt.Errorf("country %s: %w", c.Code, err))
		}
		report.Countries = append(report.Countries, cr)
	}
	report.FinishedAt = domain.Now()
	return report, errors.Join(errs...)
}

// basinOutcome is one basin's analysis of one forecast month.
type basinOutcome struct {
	result   domain.BasinResult
	skipped  []SkippedStation
	artifact string
}

// AnalyzeCountry analyzes every basin of a country against each forecast
// month, writes the record artifacts, aggregates the activation decisions and
// publishes those that pass the latest-forecast gate. A failing basin never
// stops its siblings; it is reported as skipped and counted as missing.
func (a *Analyzer) AnalyzeCountry(ctx context.Context, runID string, country domain.CountryConfig) (CountryReport, error) {
	cr := CountryReport{
		Country:      country.Code,
		Artifacts:    []string{},
		StatusCounts: map[domain.AlertStatus]int{},
		Decisions:    []domain.ActivationDecision{},
		Alerts:       []domain.ActivationDecision{},
	}

	files, err := a.forecasts.List(ctx, country.Code)
	if err != nil {
		return cr, err
	}
	if len(files) == 0 {
		for _, b := range country.Basins {
			a.skip(&cr, SkippedStation{Country: country.Code, BasinID: b.ID, Reason: domain.SkipNoForecastData, Error: "no forecast files"})
		}
		a.logger.Warn("no forecast data", "country", country.Code)
		return cr, nil
	}

	var allRecords []domain.AnalysisRecord
	var unreadable []time.Time
	for _, f := range files {
		cube, err := a.forecasts.Read(ctx, f)
		if err != nil {
			if ctx.Err() != nil {
				return cr, ctx.Err()
			}
			a.logger.Error("read forecast failed", "country", country.Code, "path", f.Path, "error", err)
			for _, b := range country.Basins {
				a.skip(&cr, SkippedStation{Country: country.Code, BasinID: b.ID, Month: f.Month, Reason: domain.SkipNoForecastData, Error: err.Error()})
			}
			unreadable = append(unreadable, f.Month)
			continue
		}

		outcomes, err := a.analyzeMonth(ctx, country, cube, f)
		if err != nil {
			return cr, err
		}

		results := make([]domain.BasinResult, 0, len(outcomes))
		for _, o := range outcomes {
			results = append(results, o.result)
			for _, s := range o.skipped {
				a.skip(&cr, s)
			}
			if o.artifact != "" {
				cr.Artifacts = append(cr.Artifacts, o.artifact)
			}
			allRecords = append(allRecords, o.result.Records...)
		}
		cr.Decisions = append(cr.Decisions, domain.AggregateAll(country, cube.Dates, results)...)
	}

	cr.Records = len(allRecords)
	for status, n := range domain.StatusCounts(allRecords) {
		cr.StatusCounts[status] = n
	}
	a.metrics.RecordsWritten.WithLabelValues(country.Code).Add(float64(cr.Records))
	a.metrics.NoDataCells.WithLabelValues(country.Code).Add(float64(cr.StatusCounts[domain.AlertNoData]))
	for _, d := range cr.Decisions {
		a.metrics.Decisions.WithLabelValues(country.Code, string(d.State)).Inc()
	}

	gate := domain.WithholdSuperseded(domain.GateAlerts(cr.Decisions, allRecords), unreadable)
	cr.Stale = gate.Stale
	for _, s := range gate.Stale {
		a.logger.Info("stale forecast skipped",
			"country", s.Country, "forecast_date", s.ForecastDate.Format("2006-01-02"),
			"basin", s.Basin, "latest_date", s.LatestDate.Format("2006-01-02"))
	}
	a.metrics.StaleSkipped.Add(float64(len(gate.Stale)))

	if len(gate.Eligible) > 0 {
		cr.Alerts = gate.Eligible
	}
	if a.publisher != nil && len(gate.Eligible) > 0 {
		fresh := a.unpublished(gate.Eligible)
		if err := a.publish(ctx, runID, fresh); err != nil {
			return cr, err
		}
		a.markPublished(fresh)
		cr.Published = len(fresh)
	}

	a.logger.Info("country analyzed",
		"country", country.Code,
		"artifacts", len(cr.Artifacts),
		"records", cr.Records,
		"decisions", len(cr.Decisions),
		"alerts", len(cr.Alerts),
		"published", cr.Published,
		"skipped", len(cr.Skipped),
	)
	return cr, nil
}

func publishedKey(d domain.ActivationDecision) string {
	return d.Country + "|" + d.ForecastDate.Format("2006-01-02")
}

// unpublished drops the alerts already delivered for the same country and
// forecast date.
func (a *Analyzer) unpublished(alerts []domain.ActivationDecision) []domain.ActivationDecision {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.ActivationDecision
	for _, d := range alerts {
		if _, ok := a.published[publishedKey(d)]; ok {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (a *Analyzer) markPublished(alerts []domain.ActivationDecision) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, d := range alerts {
		a.published[publishedKey(d)] = struct{}{}
	}
}

func (a *Analyzer) publish(ctx context.Context, runID string, alerts []domain.ActivationDecision) error {
	if len(alerts) == 0 {
		return nil
	}
	if err := a.publisher.PublishAlerts(ctx, runID, alerts); err != nil {
		a.metrics.AlertErrors.Inc()
		return fmt.Errorf("publish alerts: %w", err)
	}
	a.metrics.AlertsPublished.Add(float64(len(alerts)))
	return nil
}

// analyzeMonth fans the country's basins out over a bounded worker pool.
func (a *Analyzer) analyzeMonth(ctx context.Context, country domain.CountryConfig, cube *domain.ForecastCube, f domain.ForecastFile) ([]basinOutcome, error) {
	outcomes := make([]basinOutcome, len(country.Basins))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, basin := range country.Basins {
		g.Go(func() error {
			// Error isolation: basin failures are recorded in the outcome and
			// never returned, so sibling basins keep running.
			outcomes[i] = a.analyzeBasin(gCtx, country.Code, basin, cube, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (a *Analyzer) analyzeBasin(ctx context.Context, country string, basin domain.BasinConfig, cube *domain.ForecastCube, f domain.ForecastFile) basinOutcome {
	out := basinOutcome{result: domain.BasinResult{BasinID: basin.ID}}
	skip := func(station domain.Station, primary bool, reason domain.SkipReason, err error) {
		out.skipped = append(out.skipped, SkippedStation{
			Country:   country,
			BasinID:   basin.ID,
			StationID: station.ID,
			Month:     f.Month,
			Reason:    reason,
			Error:     err.Error(),
		})
		if primary {
			out.result.Gap = &domain.BasinGap{BasinID: basin.ID, Reason: reason, Detail: err.Error()}
		}
	}

	var records []domain.AnalysisRecord
	for i, station := range basin.Stations() {
		primary := i == 0

		th, err := a.thresholds.LoadThreshold(ctx, country, basin, station)
		if err != nil {
			skip(station, primary, domain.ReasonFor(err), err)
			continue
		}
		row, col, err := domain.Resolve(cube.Grid, station.Coordinate.Lat, station.Coordinate.Lon, a.tolerance)
		if err != nil {
			skip(station, primary, domain.ReasonFor(err), fmt.Errorf("station %s on forecast grid: %w", station.ID, err))
			continue
		}

		exceedances := domain.ComputeExceedance(cube, row, col, th.DischargeM3s)
		records = append(records, domain.BuildRecords(country, basin, station, primary, th, exceedances)...)

		if primary {
			if _, ok := cube.StepFor(basin.Policy.LeadTimeDays); !ok {
				skip(station, true, domain.SkipLeadTimeUnavailable,
					fmt.Errorf("lead time %d days not in forecast %v", basin.Policy.LeadTimeDays, cube.LeadDays))
			}
		}
	}
	if len(records) == 0 {
		return out
	}

	key := domain.ArtifactKey{
		Country:      country,
		BasinID:      basin.ID,
		Month:        f.Month,
		ReturnPeriod: basin.Policy.ReturnPeriod,
		LeadTimeDays: basin.Policy.LeadTimeDays,
	}
	path, err := a.writer.Write(ctx, key, records)
	if err != nil {
		skip(basin.Station, true, domain.SkipInternal, fmt.Errorf("write records: %w", err))
		return out
	}

	counts := domain.StatusCounts(records)
	a.logger.Info("artifact written",
		"country", country,
		"basin", basin.ID,
		"month", f.Month.Format("2006-01"),
		"path", path,
		"records", len(records),
		"high", counts[domain.AlertHigh],
		"medium", counts[domain.AlertMedium],
		"low", counts[domain.AlertLow],
		"no_data", counts[domain.AlertNoData],
	)
	a.metrics.BasinsAnalyzed.WithLabelValues(country).Inc()

	out.result.Records = records
	out.artifact = path
	return out
}

// skip adds a skipped station to the report, counts it and logs it.
func (a *Analyzer) skip(cr *CountryReport, s SkippedStation) {
	cr.Skipped = append(cr.Skipped, s)
	a.metrics.BasinsSkipped.WithLabelValues(s.Country, string(s.Reason)).Inc()
	a.logger.Warn("basin skipped",
		"country", s.Country,
		"basin", s.BasinID,
		"station", s.StationID,
		"reason", s.Reason,
		"error", s.Error,
	)
}
