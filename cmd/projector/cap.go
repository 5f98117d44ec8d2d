package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stitts-dev/market-value-forecast/internal/growthcap"
	"github.com/stitts-dev/market-value-forecast/internal/panel"
)

const (
	predictedValueColumn = "predicted_value"
	originalValueColumn  = "original_value"
	cappedColumn         = "capped"
)

var capRequiredColumns = []string{panel.ColPlayerID, panel.ColYear, panel.ColAge, predictedValueColumn}

func newCapCmd(flags *globalFlags) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "cap <predictions.csv>",
		Short: "Apply the growth cap to a CSV of predictions",
		Long: `Reads a CSV with player_id, year, age and predicted_value columns and writes it back
in input order with predicted_value capped. Every other column is copied unchanged;
original_value and capped columns are added, or overwritten when already present.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}

			table, err := readPredictions(args[0])
			if err != nil {
				return err
			}

			engine := growthcap.New(cfg.AgeLimit, cfg.ScaleLimit, cfg.CapWorkers)
			results, err := engine.Apply(cmd.Context(), table.rows)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outPath != "" {
				file, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("failed to create output: %w", err)
				}
				defer file.Close()
				out = file
			}
			if err := table.write(out, results); err != nil {
				return err
			}

			capped := 0
			for _, r := range results {
				if r.Capped {
					capped++
				}
			}
			log.WithField("rows", len(results)).WithField("capped", capped).Info("Growth cap applied")
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output CSV (default stdout)")
	return cmd
}

// predictionTable keeps the raw records next to the parsed rows so untouched
// columns round-trip as text.
type predictionTable struct {
	header  []string
	records [][]string
	index   map[string]int
	rows    []growthcap.Row
}

func readPredictions(path string) (*predictionTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open predictions: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty predictions file")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	t := &predictionTable{header: header, index: make(map[string]int, len(header))}
	for i, name := range header {
		t.index[strings.TrimSpace(name)] = i
	}
	for _, required := range capRequiredColumns {
		if _, ok := t.index[required]; !ok {
			return nil, fmt.Errorf("predictions file has no %s column", required)
		}
	}

	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := growthcap.Row{PlayerID: strings.TrimSpace(rec[t.index[panel.ColPlayerID]])}
		if row.Year, err = panel.ParseYear(rec[t.index[panel.ColYear]]); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if row.Age, err = panel.ParseCell(rec[t.index[panel.ColAge]]); err != nil {
			return nil, fmt.Errorf("line %d: age: %w", line, err)
		}
		if row.Value, err = panel.ParseCell(rec[t.index[predictedValueColumn]]); err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, predictedValueColumn, err)
		}
		t.records = append(t.records, rec)
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// write emits the input header and records with predicted_value replaced in place.
func (t *predictionTable) write(out io.Writer, results []growthcap.Result) error {
	header := append([]string(nil), t.header...)
	originalIdx, ok := t.index[originalValueColumn]
	if !ok {
		originalIdx = len(header)
		header = append(header, originalValueColumn)
	}
	cappedIdx, ok := t.index[cappedColumn]
	if !ok {
		cappedIdx = len(header)
		header = append(header, cappedColumn)
	}

	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return err
	}
	for i, r := range results {
		record := make([]string, len(header))
		copy(record, t.records[i])
		record[t.index[predictedValueColumn]] = strconv.FormatFloat(r.Value, 'f', -1, 64)
		record[originalIdx] = strconv.FormatFloat(r.Original, 'f', -1, 64)
		record[cappedIdx] = strconv.FormatBool(r.Capped)
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
