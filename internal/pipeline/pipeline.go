package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flood-trigger-service/internal/domain"
	"github.com/couchcryptid/flood-trigger-service/internal/observability"
)

// Runner performs one analysis run over a set of countries.
type Runner interface {
	Analyze(ctx context.Context, countries []domain.CountryConfig) (RunReport, error)
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Pipeline schedules analysis runs on a fixed interval.
type Pipeline struct {
	runner    Runner
	countries []domain.CountryConfig
	interval  time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	last      atomic.Pointer[RunReport]
}

// New creates a Pipeline. A nil clock uses real time.
func New(r Runner, countries []domain.CountryConfig, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		runner:    r,
		countries: countries,
		interval:  interval,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once a run has completed without error.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no analysis run has completed yet")
	}
	return nil
}

// LastReport returns the most recent run report, if any.
func (p *Pipeline) LastReport() (RunReport, bool) {
	r := p.last.Load()
	if r == nil {
		return RunReport{}, false
	}
	return *r, true
}

// RunOnce performs a single analysis run and records its report.
func (p *Pipeline) RunOnce(ctx context.Context) (RunReport, error) {
	start := p.clock.Now()
	report, err := p.runner.Analyze(ctx, p.countries)
	p.metrics.RunDuration.Observe(p.clock.Since(start).Seconds())
	p.last.Store(&report)

	if err != nil {
		p.metrics.RunsTotal.WithLabelValues("error").Inc()
		p.logger.Error("analysis run failed", "run_id", report.RunID, "error", err)
		return report, err
	}
	p.metrics.RunsTotal.WithLabelValues("success").Inc()
	p.ready.Store(true)
	p.logger.Info("analysis run complete",
		"run_id", report.RunID,
		"countries", len(report.Countries),
		"decisions", len(report.Decisions()),
		"alerts", len(report.Alerts()),
		"skipped", len(report.Skipped()),
	)
	return report, nil
}

// Run executes analysis runs until the context is cancelled. A failed run is
// retried with exponential backoff before the regular interval resumes.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "interval", p.interval, "countries", len(p.countries))
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}

		wait := p.interval
		if _, err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return nil
			}
			wait = backoff
			backoff = nextBackoff(backoff, maxBackoff)
		} else {
			backoff = initialBackoff
		}

		if !sleepWithContext(ctx, p.clock, wait) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
