// Command genmock writes synthetic forecast cubes and return-period threshold
// grids for every country in a countries file, so the analysis engine can be
// run end to end without real GloFAS data.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -countries config/countries.yaml \
//	  -data-dir data \
//	  -month 2025-10 \
//	  -surge ph/cagayan,gt/achiguate
package main

import (
	"flag"
	"fmt"
	"hash/fnv"
	"log"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/couchcryptid/flood-trigger-service/internal/adapter/gridfile"
	"github.com/couchcryptid/flood-trigger-service/internal/config"
	"github.com/couchcryptid/flood-trigger-service/internal/domain"
)

const members = 51

// returnPeriods are written for every country, with the threshold as a
// multiple of the cell's base discharge.
var returnPeriods = []struct {
	years  float64
	factor float64
}{
	{2, 1.5},
	{5, 2.0},
	{20, 3.0},
}

var leadDays = []int{1, 2, 3, 5, 7, 10}

type options struct {
	countriesFile string
	dataDir       string
	month         time.Time
	dates         int
	resolution    float64
	seed          uint64
	surge         map[string]bool
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	countriesFile := flag.String("countries", "config/countries.yaml", "countries configuration file")
	dataDir := flag.String("data-dir", "data", "output data directory")
	month := flag.String("month", "2025-10", "forecast month (YYYY-MM)")
	dates := flag.Int("dates", 3, "number of daily forecast runs in the month")
	resolution := flag.Float64("resolution", 0.25, "grid resolution in degrees")
	seed := flag.Uint64("seed", 1, "random seed")
	surge := flag.String("surge", "", "comma-separated country/basin pairs whose primary station floods")
	flag.Parse()

	m, err := time.Parse("2006-01", *month)
	if err != nil {
		return fmt.Errorf("invalid -month: %w", err)
	}
	if *dates < 1 || *dates > 28 {
		return fmt.Errorf("-dates must be between 1 and 28")
	}
	if *resolution <= 0 {
		return fmt.Errorf("-resolution must be positive")
	}

	opts := options{
		countriesFile: *countriesFile,
		dataDir:       *dataDir,
		month:         m,
		dates:         *dates,
		resolution:    *resolution,
		seed:          *seed,
		surge:         map[string]bool{},
	}
	for _, s := range strings.Split(*surge, ",") {
		if s = strings.TrimSpace(s); s != "" {
			opts.surge[s] = true
		}
	}

	countries, err := config.LoadCountries(opts.countriesFile)
	if err != nil {
		return err
	}
	for _, c := range countries {
		if err := generate(opts, c); err != nil {
			return fmt.Errorf("country %s: %w", c.Code, err)
		}
	}
	return nil
}

func generate(opts options, c domain.CountryConfig) error {
	grid := gridFor(c.BBox, opts.resolution)
	nLat, nLon := len(grid.Lats), len(grid.Lons)
	h := fnv.New64a()
	_, _ = h.Write([]byte(c.Code))
	rng := rand.New(rand.NewPCG(opts.seed, h.Sum64()))

	base := make([]float64, nLat*nLon)
	for i := range base {
		base[i] = 100 + rng.Float64()*900
	}

	for _, rp := range returnPeriods {
		values := make([]float32, len(base))
		for i, b := range base {
			values[i] = float32(b * rp.factor)
		}
		path := gridfile.ThresholdPath(opts.dataDir, c.Code, rp.years)
		if err := gridfile.WriteThreshold(path, &domain.ThresholdGrid{Grid: grid, ReturnPeriod: rp.years, Values: values}); err != nil {
			return err
		}
		log.Printf("%s: wrote %s", c.Code, path)
	}

	// Cells whose members are centered above the 5-year level.
	flooded := map[int]bool{}
	for _, b := range c.Basins {
		if !opts.surge[c.Code+"/"+b.ID] {
			continue
		}
		row, col, err := domain.Resolve(grid, b.Station.Coordinate.Lat, b.Station.Coordinate.Lon, domain.DefaultToleranceCells)
		if err != nil {
			return fmt.Errorf("basin %s: %w", b.ID, err)
		}
		flooded[row*nLon+col] = true
	}

	cube := &domain.ForecastCube{Grid: grid, Members: members, LeadDays: leadDays}
	for d := 0; d < opts.dates; d++ {
		cube.Dates = append(cube.Dates, opts.month.AddDate(0, 0, d))
	}
	cube.Values = make([]float32, cube.Len())
	i := 0
	for range cube.Dates {
		for m := 0; m < members; m++ {
			for range cube.LeadDays {
				for cell := range base {
					mu := -0.2
					if flooded[cell] {
						mu = math.Log(2.0) + 0.25
					}
					cube.Values[i] = float32(base[cell] * math.Exp(mu+0.3*rng.NormFloat64()))
					i++
				}
			}
		}
	}

	path := gridfile.CubePath(opts.dataDir, c.Code, opts.month)
	if err := gridfile.WriteCube(path, cube); err != nil {
		return err
	}
	log.Printf("%s: wrote %s (%d dates, %dx%d cells)", c.Code, path, len(cube.Dates), nLat, nLon)
	return nil
}

// gridFor lays a regular grid over the bounding box with latitudes descending.
func gridFor(b domain.BoundingBox, res float64) domain.GridCoordinates {
	var g domain.GridCoordinates
	for lat := b.North; lat >= b.South-res/2; lat -= res {
		g.Lats = append(g.Lats, round(lat))
	}
	for lon := b.West; lon <= b.East+res/2; lon += res {
		g.Lons = append(g.Lons, round(lon))
	}
	return g
}

func round(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
