// Package threshold looks up return-period discharge thresholds for stations
// from per-country threshold grids.
package threshold

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/flood-trigger-service/internal/adapter/gridfile"
	"github.com/couchcryptid/flood-trigger-service/internal/domain"
)

// errNoValue marks a grid cell that holds no threshold.
var errNoValue = errors.New("threshold cell has no value")

// Store reads threshold grids from DATA_DIR. Each grid file is decoded once
// and kept until Reset.
type Store struct {
	dataDir   string
	tolerance float64
	logger    *slog.Logger

	mu    sync.RWMutex
	grids map[string]*domain.ThresholdGrid
	load  singleflight.Group
}

// NewStore creates a threshold store rooted at dataDir. toleranceCells is the
// coordinate slack passed to domain.Resolve.
func NewStore(dataDir string, toleranceCells float64, logger *slog.Logger) *Store {
	return &Store{
		dataDir:   dataDir,
		tolerance: toleranceCells,
		logger:    logger,
		grids:     make(map[string]*domain.ThresholdGrid),
	}
}

// LoadThreshold returns the discharge threshold at the station for the basin's
// policy return period. Without an exact return-period file the lookup fails
// with MissingThresholdError, unless the policy sets Interpolate, in which case
// the value is interpolated on a log scale between the closest available
// periods on either side.
func (s *Store) LoadThreshold(ctx context.Context, country string, basin domain.BasinConfig, station domain.Station) (domain.Threshold, error) {
	rp := basin.Policy.ReturnPeriod
	if _, err := domain.ReturnPeriodLabel(rp); err != nil {
		return domain.Threshold{}, fmt.Errorf("basin %s: %w", basin.ID, err)
	}
	path := gridfile.ThresholdPath(s.dataDir, country, rp)

	grid, err := s.grid(ctx, path)
	if err == nil {
		return s.at(grid, country, basin.ID, station, rp, path)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return domain.Threshold{}, err
	}
	if !basin.Policy.Interpolate {
		return domain.Threshold{}, &domain.MissingThresholdError{
			Country: country, Basin: basin.ID, ReturnPeriod: rp, Path: path, Err: err,
		}
	}

	lower, upper, ok, err := s.bracket(country, rp)
	if err != nil {
		return domain.Threshold{}, err
	}
	if !ok {
		return domain.Threshold{}, &domain.MissingThresholdError{
			Country: country, Basin: basin.ID, ReturnPeriod: rp, Path: path, Err: fs.ErrNotExist,
		}
	}

	lo, err := s.exact(ctx, country, basin.ID, station, lower)
	if err != nil {
		return domain.Threshold{}, err
	}
	hi, err := s.exact(ctx, country, basin.ID, station, upper)
	if err != nil {
		return domain.Threshold{}, err
	}

	s.logger.Debug("interpolated threshold",
		"country", country, "basin", basin.ID, "station", station.ID,
		"return_period", rp, "lower", lower, "upper", upper)

	return domain.Threshold{
		ReturnPeriod: rp,
		DischargeM3s: domain.InterpolateReturnPeriod(lower, lo.DischargeM3s, upper, hi.DischargeM3s, rp),
		GridLat:      lo.GridLat,
		GridLon:      lo.GridLon,
		Interpolated: true,
	}, nil
}

// Reset drops every decoded grid so the next run re-reads the files.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grids = make(map[string]*domain.ThresholdGrid)
}

func (s *Store) exact(ctx context.Context, country, basinID string, station domain.Station, rp float64) (domain.Threshold, error) {
	path := gridfile.ThresholdPath(s.dataDir, country, rp)
	grid, err := s.grid(ctx, path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Threshold{}, &domain.MissingThresholdError{
			Country: country, Basin: basinID, ReturnPeriod: rp, Path: path, Err: err,
		}
	}
	if err != nil {
		return domain.Threshold{}, err
	}
	return s.at(grid, country, basinID, station, rp, path)
}

func (s *Store) at(grid *domain.ThresholdGrid, country, basinID string, station domain.Station, rp float64, path string) (domain.Threshold, error) {
	row, col, err := domain.Resolve(grid.Grid, station.Coordinate.Lat, station.Coordinate.Lon, s.tolerance)
	if err != nil {
		return domain.Threshold{}, fmt.Errorf("station %s on threshold grid: %w", station.ID, err)
	}
	v, ok := grid.At(row, col)
	if !ok {
		return domain.Threshold{}, &domain.MissingThresholdError{
			Country: country, Basin: basinID, ReturnPeriod: rp, Path: path, Err: errNoValue,
		}
	}
	return domain.Threshold{
		ReturnPeriod: rp,
		DischargeM3s: v,
		GridLat:      grid.Grid.Lats[row],
		GridLon:      grid.Grid.Lons[col],
	}, nil
}

// bracket finds the closest available return periods below and above rp.
func (s *Store) bracket(country string, rp float64) (lower, upper float64, ok bool, err error) {
	periods, err := gridfile.ThresholdPeriods(s.dataDir, country)
	if err != nil {
		return 0, 0, false, fmt.Errorf("list thresholds for %s: %w", country, err)
	}
	var haveLower, haveUpper bool
	for _, p := range periods {
		if p < rp {
			lower, haveLower = p, true
		}
		if p > rp && !haveUpper {
			upper, haveUpper = p, true
		}
	}
	return lower, upper, haveLower && haveUpper, nil
}

func (s *Store) grid(ctx context.Context, path string) (*domain.ThresholdGrid, error) {
	s.mu.RLock()
	g, ok := s.grids[path]
	s.mu.RUnlock()
	if ok {
		return g, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err, _ := s.load.Do(path, func() (any, error) {
		g, err := gridfile.ReadThreshold(path)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.grids[path] = g
		s.mu.Unlock()
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.ThresholdGrid), nil
}
