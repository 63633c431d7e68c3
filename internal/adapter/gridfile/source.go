package gridfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/couchcryptid/flood-trigger-service/internal/domain"
)

var cubeName = regexp.MustCompile(`^glofas_([a-z]+)_ensemble_(\d{4})_(\d{2})_combined\.grid$`)

// CubePath is the location of a country's forecast cube for one month.
func CubePath(dataDir, country string, month time.Time) string {
	name := fmt.Sprintf("glofas_%s_ensemble_%04d_%02d_combined.grid", country, month.Year(), int(month.Month()))
	return filepath.Join(dataDir, country, "ensemble_forecast", name)
}

// ThresholdPath is the location of a country's threshold grid for one return
// period. The period must be valid for domain.ReturnPeriodLabel.
func ThresholdPath(dataDir, country string, returnPeriod float64) string {
	name := "flood_threshold_glofas_v4_rl_" + strconv.FormatFloat(returnPeriod, 'f', 1, 64) + ".grid"
	return filepath.Join(dataDir, country, "return_periods", name)
}

// CubeSource lists forecast cube files under a data directory.
type CubeSource struct {
	DataDir string
}

// List returns the country's cube files sorted by month ascending. A missing
// forecast directory yields an empty list.
func (s CubeSource) List(ctx context.Context, country string) ([]domain.ForecastFile, error) {
	dir := filepath.Join(s.DataDir, country, "ensemble_forecast")
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list forecasts for %s: %w", country, err)
	}

	var out []domain.ForecastFile
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() {
			continue
		}
		m := cubeName.FindStringSubmatch(e.Name())
		if m == nil || m[1] != country {
			continue
		}
		year, _ := strconv.Atoi(m[2])
		month, _ := strconv.Atoi(m[3])
		if month < 1 || month > 12 {
			continue
		}
		out = append(out, domain.ForecastFile{
			Month: time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC),
			Path:  filepath.Join(dir, e.Name()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out, nil
}

// Read loads the cube behind a listed file.
func (s CubeSource) Read(ctx context.Context, f domain.ForecastFile) (*domain.ForecastCube, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ReadCube(f.Path)
}

// ThresholdPeriods returns the return periods with a threshold file for the country, ascending.
func ThresholdPeriods(dataDir, country string) ([]float64, error) {
	pattern := filepath.Join(dataDir, country, "return_periods", "flood_threshold_glofas_v4_rl_*.grid")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	var out []float64
	for _, m := range matches {
		base := filepath.Base(m)
		s := base[len("flood_threshold_glofas_v4_rl_") : len(base)-len(".grid")]
		rp, err := strconv.ParseFloat(s, 64)
		if err != nil || rp <= 0 {
			continue
		}
		out = append(out, rp)
	}
	sort.Float64s(out)
	return out, nil
}
