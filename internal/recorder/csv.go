package recorder

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/stitts-dev/market-value-forecast/internal/models"
)

const (
	HeaderFile = "header_output.csv"
	DetailFile = "detail_output.csv"
)

var (
	headerColumns = []string{"model_output_id", "model_run_date", "time_taken_seconds", "features_used", "model_type", "split_year", "version"}
	detailColumns = []string{"player_id", "year", "age", "predicted_value", "actual_value", "capped", "name", "model_output_id"}
)

// CSVRecorder appends runs to header_output.csv and detail_output.csv in Dir. Column
// headers are written only when a file is created or empty.
type CSVRecorder struct {
	Dir string
	mu  sync.Mutex
}

func NewCSVRecorder(dir string) *CSVRecorder {
	return &CSVRecorder{Dir: dir}
}

func (r *CSVRecorder) Name() string {
	return "csv"
}

func (r *CSVRecorder) Record(ctx context.Context, header models.RunHeader, details []models.RunDetail) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	headerRow := []string{
		header.ModelOutputID,
		header.ModelRunDate.UTC().Format(time.RFC3339),
		strconv.FormatFloat(header.TimeTakenSeconds, 'f', 3, 64),
		header.FeaturesUsed,
		header.ModelType,
		strconv.Itoa(header.SplitYear),
		header.Version,
	}
	if err := appendRows(filepath.Join(r.Dir, HeaderFile), headerColumns, [][]string{headerRow}); err != nil {
		return err
	}

	rows := make([][]string, len(details))
	for i, d := range details {
		actual := ""
		if d.ActualValue != nil {
			actual = formatFloat(*d.ActualValue)
		}
		rows[i] = []string{
			d.PlayerID,
			strconv.Itoa(d.Year),
			formatFloat(d.Age),
			formatFloat(d.PredictedValue),
			actual,
			strconv.FormatBool(d.Capped),
			d.Name,
			d.ModelOutputID,
		}
	}
	return appendRows(filepath.Join(r.Dir, DetailFile), detailColumns, rows)
}

func appendRows(path string, columns []string, rows [][]string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", filepath.Base(path), err)
	}

	w := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := w.Write(columns); err != nil {
			return fmt.Errorf("failed to write %s header: %w", filepath.Base(path), err)
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
