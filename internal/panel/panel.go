package panel

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// Well-known column names of the player-year panel.
const (
	ColPlayerID          = "player_id"
	ColName              = "name"
	ColYear              = "year"
	ColAge               = "age"
	ColValueLastYear     = "value_last_year"
	ColAgeLastYear       = "age_last_year"
	ColContractYearsLeft = "contract_years_left"
	ColSynthetic         = "is_synthetic"

	DefaultTargetColumn = "market_value_in_million_eur"
)

var (
	ErrMissingFeature  = errors.New("feature not present")
	ErrMissingValue    = errors.New("observation has no value")
	ErrDuplicateRecord = errors.New("duplicate player-year observation")
)

// Observation is one (player, year) row. Value holds the actual market value for
// historical rows and the predicted one for projected rows.
type Observation struct {
	PlayerID string             `json:"player_id"`
	Name     string             `json:"name,omitempty"`
	Year     int                `json:"year"`
	Age      *float64           `json:"age"`
	Value    *float64           `json:"value"`
	Features map[string]float64 `json:"features,omitempty"`
}

// Feature returns the named numeric attribute. "age" resolves to the Age field.
func (o Observation) Feature(name string) (float64, bool) {
	if name == ColAge {
		if o.Age == nil {
			return 0, false
		}
		return *o.Age, true
	}
	v, ok := o.Features[name]
	return v, ok
}

// Clone returns a deep copy.
func (o Observation) Clone() Observation {
	c := o
	if o.Age != nil {
		c.Age = Float(*o.Age)
	}
	if o.Value != nil {
		c.Value = Float(*o.Value)
	}
	c.Features = make(map[string]float64, len(o.Features))
	for k, v := range o.Features {
		c.Features[k] = v
	}
	return c
}

// Panel is a table of observations indexed by (player, year). Columns lists the
// numeric feature columns in source order; identity, age and value are not part of it.
type Panel struct {
	Columns []string
	Rows    []Observation
}

// New builds a panel over the given columns and rows.
func New(columns []string, rows []Observation) *Panel {
	return &Panel{Columns: columns, Rows: rows}
}

func (p *Panel) Len() int {
	return len(p.Rows)
}

// HasColumn reports whether name is addressable on the panel's rows.
func (p *Panel) HasColumn(name string) bool {
	return name == ColAge || slices.Contains(p.Columns, name)
}

// Years returns the distinct years in ascending order.
func (p *Panel) Years() []int {
	seen := make(map[int]bool)
	var years []int
	for _, r := range p.Rows {
		if !seen[r.Year] {
			seen[r.Year] = true
			years = append(years, r.Year)
		}
	}
	slices.Sort(years)
	return years
}

// Filter returns a new panel holding the rows keep accepts, in order.
func (p *Panel) Filter(keep func(Observation) bool) *Panel {
	rows := make([]Observation, 0, len(p.Rows))
	for _, r := range p.Rows {
		if keep(r) {
			rows = append(rows, r)
		}
	}
	return &Panel{Columns: p.Columns, Rows: rows}
}

// Validate checks the one-observation-per-player-year invariant.
func (p *Panel) Validate() error {
	seen := make(map[string]map[int]bool)
	for _, r := range p.Rows {
		years, ok := seen[r.PlayerID]
		if !ok {
			years = make(map[int]bool)
			seen[r.PlayerID] = years
		}
		if years[r.Year] {
			return fmt.Errorf("player %s year %d: %w", r.PlayerID, r.Year, ErrDuplicateRecord)
		}
		years[r.Year] = true
	}
	return nil
}

// Matrix assembles the feature matrix for the given feature names, one row per
// observation in panel order. A feature absent from a row is an error naming the
// player and year so bad configuration surfaces at prediction time.
func (p *Panel) Matrix(features []string) ([][]float64, error) {
	X := make([][]float64, len(p.Rows))
	for i, r := range p.Rows {
		row := make([]float64, len(features))
		for j, f := range features {
			v, ok := r.Feature(f)
			if !ok || math.IsNaN(v) {
				return nil, fmt.Errorf("player %s year %d: %q: %w", r.PlayerID, r.Year, f, ErrMissingFeature)
			}
			row[j] = v
		}
		X[i] = row
	}
	return X, nil
}

// Targets returns the value of every row.
func (p *Panel) Targets() ([]float64, error) {
	y := make([]float64, len(p.Rows))
	for i, r := range p.Rows {
		if r.Value == nil || math.IsNaN(*r.Value) {
			return nil, fmt.Errorf("player %s year %d: %w", r.PlayerID, r.Year, ErrMissingValue)
		}
		y[i] = *r.Value
	}
	return y, nil
}

// FilterSynthetic drops rows flagged as synthetic.
func FilterSynthetic(p *Panel) *Panel {
	return p.Filter(func(o Observation) bool {
		return o.Features[ColSynthetic] != 1
	})
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
