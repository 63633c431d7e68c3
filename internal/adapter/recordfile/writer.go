// Package recordfile persists analysis records as CSV artifacts, one file per
// country, basin, month, return period and lead time.
package recordfile

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/flood-trigger-service/internal/domain"
)

const dateLayout = "2006-01-02"

// Header is the fixed column order of every artifact.
var Header = []string{
	"forecast_date",
	"valid_date",
	"lead_time_days",
	"return_period",
	"exceedance_probability",
	"alert_status",
	"narrative",
	"affected_provinces",
	"station_id",
	"lead_time_step",
	"threshold_discharge_m3s",
	"threshold_interpolated",
	"valid_members",
	"exceeding_members",
	"median_discharge_m3s",
	"triggered",
}

// Path returns the artifact location for key under outputDir.
func Path(outputDir string, k domain.ArtifactKey) string {
	name := fmt.Sprintf("flood_trigger_analysis_%04d_%02d_%syr_lead%dd.csv",
		k.Month.Year(), int(k.Month.Month()), formatFloat(k.ReturnPeriod), k.LeadTimeDays)
	return filepath.Join(outputDir, k.Country, "analysis", k.BasinID, name)
}

// Writer writes record artifacts under an output directory.
type Writer struct {
	outputDir string
}

// NewWriter creates a record writer rooted at outputDir.
func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: outputDir}
}

// Write replaces the artifact for key with records. Rows are sorted by
// forecast date, lead-time step and station, so equal inputs produce
// byte-identical files. The previous file stays intact if writing fails.
func (w *Writer) Write(ctx context.Context, key domain.ArtifactKey, records []domain.AnalysisRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := Path(w.outputDir, key)

	data, err := Encode(records)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// Encode renders records as CSV with the fixed header.
func Encode(records []domain.AnalysisRecord) ([]byte, error) {
	sorted := make([]domain.AnalysisRecord, len(records))
	copy(sorted, records)
	domain.SortRecords(sorted)

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(Header); err != nil {
		return nil, err
	}
	for _, r := range sorted {
		if err := cw.Write(row(r)); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func row(r domain.AnalysisRecord) []string {
	probability, median := "", ""
	if r.Defined {
		probability = formatFloat(r.Probability)
		median = formatFloat(r.MedianM3s)
	}
	return []string{
		r.ForecastDate.Format(dateLayout),
		r.ValidDate.Format(dateLayout),
		strconv.Itoa(r.LeadTimeDays),
		formatFloat(r.ReturnPeriod),
		probability,
		string(r.AlertStatus),
		r.Narrative,
		strings.Join(r.Provinces, ";"),
		r.StationID,
		strconv.Itoa(r.LeadTimeStep),
		formatFloat(r.ThresholdM3s),
		strconv.FormatBool(r.Interpolated),
		strconv.Itoa(r.ValidMembers),
		strconv.Itoa(r.Exceeding),
		median,
		strconv.FormatBool(r.Triggered),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
