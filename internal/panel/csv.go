package panel

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// LoadCSV reads a panel from a CSV file. valueColumn names the column holding the
// market value (the regression target, or "predicted_value" for projection files).
func LoadCSV(path, valueColumn string) (*Panel, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open panel file: %w", err)
	}
	defer file.Close()

	p, err := ReadCSV(bufio.NewReader(file), valueColumn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ReadCSV parses a panel. The header must contain player_id, year and valueColumn;
// age and name are optional. Every other column is numeric. Empty cells are missing.
func ReadCSV(r io.Reader, valueColumn string) (*Panel, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty panel file")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	idx := map[string]int{ColPlayerID: -1, ColName: -1, ColYear: -1, ColAge: -1, valueColumn: -1}
	var columns []string
	var columnIdx []int
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, known := idx[h]; known {
			idx[h] = i
			continue
		}
		columns = append(columns, h)
		columnIdx = append(columnIdx, i)
	}
	for _, required := range []string{ColPlayerID, ColYear, valueColumn} {
		if idx[required] < 0 {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	var rows []Observation
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

		obs := Observation{
			PlayerID: strings.TrimSpace(rec[idx[ColPlayerID]]),
			Features: make(map[string]float64, len(columns)),
		}
		if obs.PlayerID == "" {
			return nil, fmt.Errorf("line %d: empty %s", line, ColPlayerID)
		}
		if i := idx[ColName]; i >= 0 {
			obs.Name = rec[i]
		}

		if obs.Year, err = ParseYear(rec[idx[ColYear]]); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if i := idx[ColAge]; i >= 0 {
			if obs.Age, err = ParseCell(rec[i]); err != nil {
				return nil, fmt.Errorf("line %d: age: %w", line, err)
			}
		}
		if obs.Value, err = ParseCell(rec[idx[valueColumn]]); err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, valueColumn, err)
		}

		for j, i := range columnIdx {
			v, err := ParseCell(rec[i])
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, columns[j], err)
			}
			if v != nil {
				obs.Features[columns[j]] = *v
			}
		}
		rows = append(rows, obs)
	}

	return New(columns, rows), nil
}

// ParseYear parses a year cell. Whole-number floats such as "2023.0" are accepted;
// fractions and empty cells are not.
func ParseYear(s string) (int, error) {
	v, err := ParseCell(s)
	if err != nil || v == nil || math.IsInf(*v, 0) || *v != math.Trunc(*v) {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	return int(*v), nil
}

// ParseCell returns nil for an empty or NaN cell. Booleans from one-hot exports are
// accepted as 0/1.
func ParseCell(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "null", "none":
		return nil, nil
	case "true":
		return Float(1), nil
	case "false":
		return Float(0), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) {
		return nil, nil
	}
	return &v, nil
}
