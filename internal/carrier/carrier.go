package carrier

import (
	"fmt"
	"math"

	"github.com/stitts-dev/market-value-forecast/internal/panel"
)

// ValidationError reports a row that cannot be carried into next year.
type ValidationError struct {
	PlayerID string
	Year     int
	Field    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("carry forward: player %s year %d: missing %s", e.PlayerID, e.Year, e.Field)
}

// lagged are the features rebuilt from this year's outputs rather than copied.
var lagged = map[string]bool{
	panel.ColValueLastYear:     true,
	panel.ColAgeLastYear:       true,
	panel.ColContractYearsLeft: true,
	panel.ColAge:               true,
}

// StaticColumns derives the columns copied unchanged into next year: every resolved
// feature that is not rebuilt from this year's value or age, followed by any one-hot
// column not already listed.
func StaticColumns(resolved, oneHot []string) []string {
	seen := make(map[string]bool, len(resolved)+len(oneHot))
	var out []string
	for _, list := range [][]string{resolved, oneHot} {
		for _, c := range list {
			if lagged[c] || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// Carry turns this year's rows into next year's "last year" inputs. Value moves into
// value_last_year and age into age_last_year; static columns and contract years left
// are copied when the row has them. The result keeps the source year; Advance moves
// it forward.
func Carry(p *panel.Panel, static []string) (*panel.Panel, error) {
	columns := append([]string{panel.ColValueLastYear, panel.ColAgeLastYear}, static...)
	hasContract := p.HasColumn(panel.ColContractYearsLeft)
	if hasContract {
		columns = append(columns, panel.ColContractYearsLeft)
	}

	rows := make([]panel.Observation, len(p.Rows))
	for i, r := range p.Rows {
		if r.Value == nil || math.IsNaN(*r.Value) {
			return nil, &ValidationError{PlayerID: r.PlayerID, Year: r.Year, Field: "value"}
		}
		if r.Age == nil || math.IsNaN(*r.Age) {
			return nil, &ValidationError{PlayerID: r.PlayerID, Year: r.Year, Field: "age"}
		}

		feats := make(map[string]float64, len(columns))
		feats[panel.ColValueLastYear] = *r.Value
		feats[panel.ColAgeLastYear] = *r.Age
		for _, c := range static {
			if v, ok := r.Features[c]; ok {
				feats[c] = v
			}
		}
		if v, ok := r.Features[panel.ColContractYearsLeft]; ok {
			feats[panel.ColContractYearsLeft] = v
		}

		rows[i] = panel.Observation{
			PlayerID: r.PlayerID,
			Name:     r.Name,
			Year:     r.Year,
			Features: feats,
		}
	}

	return panel.New(columns, rows), nil
}

// Advance moves carried rows to the following season: year and age step by one and
// contract years left counts down, never below zero. Input rows are not modified.
func Advance(p *panel.Panel) *panel.Panel {
	rows := make([]panel.Observation, len(p.Rows))
	for i, r := range p.Rows {
		next := r.Clone()
		next.Year = r.Year + 1
		next.Value = nil
		if ageLast, ok := r.Features[panel.ColAgeLastYear]; ok {
			next.Age = panel.Float(ageLast + 1)
		}
		if left, ok := r.Features[panel.ColContractYearsLeft]; ok {
			next.Features[panel.ColContractYearsLeft] = math.Max(left-1, 0)
		}
		rows[i] = next
	}
	return panel.New(p.Columns, rows)
}
