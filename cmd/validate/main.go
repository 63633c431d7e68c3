// Command validate checks a countries file against a data directory before
// the analysis engine runs on it: every basin must have a threshold, every
// forecast cube must cover every station and lead time, and any analysis
// artifacts already written must be well formed.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -countries config/countries.yaml \
//	  -data-dir data \
//	  -output-dir data
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/couchcryptid/flood-trigger-service/internal/adapter/gridfile"
	"github.com/couchcryptid/flood-trigger-service/internal/adapter/recordfile"
	"github.com/couchcryptid/flood-trigger-service/internal/adapter/threshold"
	"github.com/couchcryptid/flood-trigger-service/internal/config"
	"github.com/couchcryptid/flood-trigger-service/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	countriesFile := flag.String("countries", "config/countries.yaml", "countries configuration file")
	dataDir := flag.String("data-dir", "data", "directory holding forecasts and thresholds")
	outputDir := flag.String("output-dir", "", "directory holding analysis artifacts (default: -data-dir)")
	tolerance := flag.Float64("tolerance", domain.DefaultToleranceCells, "grid tolerance in cells")
	flag.Parse()

	if *outputDir == "" {
		*outputDir = *dataDir
	}
	os.Exit(run(*countriesFile, *dataDir, *outputDir, *tolerance))
}

func run(countriesFile, dataDir, outputDir string, tolerance float64) int {
	fmt.Println("=== Flood Trigger Data Validation ===")
	fmt.Println()

	countries, err := config.LoadCountries(countriesFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load countries: %v\n", err)
		return 1
	}

	ctx := context.Background()
	phases := []*phase{
		validateThresholds(ctx, countries, dataDir, tolerance),
		validateForecasts(ctx, countries, dataDir, tolerance),
		validateArtifacts(countries, outputDir),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	basins := 0
	for _, c := range countries {
		basins += len(c.Basins)
	}
	fmt.Println()
	fmt.Printf("Countries: %d, basins: %d\n", len(countries), basins)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phases ──

func validateThresholds(ctx context.Context, countries []domain.CountryConfig, dataDir string, tolerance float64) *phase {
	p := &phase{name: "Thresholds cover every station"}
	store := threshold.NewStore(dataDir, tolerance, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for _, c := range countries {
		for _, b := range c.Basins {
			for _, s := range b.Stations() {
				th, err := store.LoadThreshold(ctx, c.Code, b, s)
				if err != nil {
					p.errorf("%s/%s station %s: %s: %v", c.Code, b.ID, s.ID, domain.ReasonFor(err), err)
					continue
				}
				if th.DischargeM3s <= 0 {
					p.errorf("%s/%s station %s: non-positive threshold %.2f", c.Code, b.ID, s.ID, th.DischargeM3s)
				}
			}
		}
	}
	return p
}

func validateForecasts(ctx context.Context, countries []domain.CountryConfig, dataDir string, tolerance float64) *phase {
	p := &phase{name: "Forecast cubes cover stations and lead times"}
	src := gridfile.CubeSource{DataDir: dataDir}

	for _, c := range countries {
		files, err := src.List(ctx, c.Code)
		if err != nil {
			p.errorf("%s: %v", c.Code, err)
			continue
		}
		if len(files) == 0 {
			p.errorf("%s: no forecast cubes under %s", c.Code, filepath.Join(dataDir, c.Code))
			continue
		}
		for _, f := range files {
			cube, err := src.Read(ctx, f)
			if err != nil {
				p.errorf("%s: %v", f.Path, err)
				continue
			}
			month := f.Month.Format("2006-01")
			for _, d := range cube.Dates {
				if d.Year() != f.Month.Year() || d.Month() != f.Month.Month() {
					p.errorf("%s %s: forecast date %s outside file month", c.Code, month, d.Format("2006-01-02"))
				}
			}
			for _, b := range c.Basins {
				if _, ok := cube.StepFor(b.Policy.LeadTimeDays); !ok {
					p.errorf("%s %s/%s: lead time %dd not in %v", c.Code, month, b.ID, b.Policy.LeadTimeDays, cube.LeadDays)
				}
				for _, s := range b.Stations() {
					if _, _, err := domain.Resolve(cube.Grid, s.Coordinate.Lat, s.Coordinate.Lon, tolerance); err != nil {
						p.errorf("%s %s/%s station %s: %v", c.Code, month, b.ID, s.ID, err)
					}
				}
			}
		}
	}
	return p
}

func validateArtifacts(countries []domain.CountryConfig, outputDir string) *phase {
	p := &phase{name: "Analysis artifacts are well formed"}

	for _, c := range countries {
		pattern := filepath.Join(outputDir, c.Code, "analysis", "*", "flood_trigger_analysis_*.csv")
		paths, err := filepath.Glob(pattern)
		if err != nil {
			p.errorf("%s: %v", c.Code, err)
			continue
		}
		for _, path := range paths {
			validateArtifact(p, path)
		}
	}
	return p
}

func validateArtifact(p *phase, path string) {
	f, err := os.Open(path)
	if err != nil {
		p.errorf("%s: %v", path, err)
		return
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		p.errorf("%s: %v", path, err)
		return
	}
	if len(rows) == 0 || !slices.Equal(rows[0], recordfile.Header) {
		p.errorf("%s: unexpected header", path)
		return
	}

	col := make(map[string]int, len(recordfile.Header))
	for i, h := range recordfile.Header {
		col[h] = i
	}
	prev := ""
	for i, row := range rows[1:] {
		line := i + 2
		status := domain.AlertStatus(row[col["alert_status"]])
		prob := row[col["exceedance_probability"]]

		switch {
		case prob == "" && status != domain.AlertNoData:
			p.errorf("%s:%d: empty probability with status %s", path, line, status)
		case prob != "":
			v, err := strconv.ParseFloat(prob, 64)
			if err != nil || v < 0 || v > 1 {
				p.errorf("%s:%d: probability %q outside [0,1]", path, line, prob)
			}
			if status == domain.AlertNoData {
				p.errorf("%s:%d: no_data row with probability %s", path, line, prob)
			}
		}

		valid, err1 := strconv.Atoi(row[col["valid_members"]])
		exceeding, err2 := strconv.Atoi(row[col["exceeding_members"]])
		if err1 != nil || err2 != nil || exceeding > valid {
			p.errorf("%s:%d: member counts %q/%q", path, line, row[col["exceeding_members"]], row[col["valid_members"]])
		}

		step, _ := strconv.Atoi(row[col["lead_time_step"]])
		key := fmt.Sprintf("%s|%04d|%s", row[col["forecast_date"]], step, row[col["station_id"]])
		if key < prev {
			p.errorf("%s:%d: rows out of order", path, line)
		}
		prev = key
	}
}
