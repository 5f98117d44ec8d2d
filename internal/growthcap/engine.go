// Package growthcap limits projected market values for veteran players.
//
// Each player's rows are walked in year order. Once a player reaches the age limit,
// a year's value may be at most ScaleLimit times the value emitted for that player
// the year before. The reference is the previous emitted value, already capped, so
// the ceiling compounds: k capped years after a baseline v0 stay under
// ScaleLimit^k * v0.
package growthcap

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultAgeLimit   = 32
	DefaultScaleLimit = 0.8
)

// Row is the minimum a prediction needs to be capped.
type Row struct {
	PlayerID string   `json:"player_id"`
	Year     int      `json:"year"`
	Age      *float64 `json:"age"`
	Value    *float64 `json:"predicted_value"`
}

// Result is a row after capping. Value is the emitted, possibly reduced, value and
// Original the value it was given.
type Result struct {
	PlayerID string  `json:"player_id"`
	Year     int     `json:"year"`
	Age      float64 `json:"age"`
	Original float64 `json:"original_value"`
	Value    float64 `json:"predicted_value"`
	Capped   bool    `json:"capped"`
}

// Ledger maps a player to the last value emitted for them. It carries the
// compounding reference between calls when projections are capped one year at a
// time.
type Ledger map[string]float64

// Clone returns an independent copy.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Engine applies the growth cap. The zero value is not usable; use New.
type Engine struct {
	// AgeLimit is inclusive: a row is eligible once Age >= AgeLimit.
	AgeLimit float64
	// ScaleLimit is the largest allowed ratio between consecutive emitted values.
	ScaleLimit float64
	// Workers bounds how many players are processed concurrently.
	Workers int
}

// New returns an engine with the given limits. workers <= 0 means GOMAXPROCS.
func New(ageLimit, scaleLimit float64, workers int) *Engine {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{AgeLimit: ageLimit, ScaleLimit: scaleLimit, Workers: workers}
}

// NewDefault returns an engine with age limit 32 and scale limit 0.8.
func NewDefault() *Engine {
	return New(DefaultAgeLimit, DefaultScaleLimit, 0)
}

// Apply caps a multi-year batch with no prior state. Output is one result per input
// row, in input order.
func (e *Engine) Apply(ctx context.Context, rows []Row) ([]Result, error) {
	results, _, err := e.ApplyWithLedger(ctx, rows, nil)
	return results, err
}

// ApplyWithLedger caps rows using ledger as each player's value before the first row
// in this batch. ledger is not modified; the returned ledger holds the last emitted
// value for every player seen so far.
func (e *Engine) ApplyWithLedger(ctx context.Context, rows []Row, ledger Ledger) ([]Result, Ledger, error) {
	if err := validate(rows); err != nil {
		return nil, nil, err
	}

	groups := groupByPlayer(rows)
	results := make([]Result, len(rows))
	last := make([]float64, len(groups))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.Workers, 1))
	for gi := range groups {
		gi := gi
		group := groups[gi]
		prior, hasPrior := ledger[group.playerID]
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			last[gi] = e.walk(rows, group.indices, prior, hasPrior, results)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	next := ledger.Clone()
	for gi, group := range groups {
		next[group.playerID] = last[gi]
	}
	return results, next, nil
}

// walk folds one player's rows in year order, writing each result at its original
// index, and returns the last emitted value.
func (e *Engine) walk(rows []Row, indices []int, prior float64, hasPrior bool, results []Result) float64 {
	for _, idx := range indices {
		row := rows[idx]
		age, value := *row.Age, *row.Value

		emitted := value
		if age >= e.AgeLimit && hasPrior {
			emitted = math.Min(value, e.ScaleLimit*prior)
		}

		results[idx] = Result{
			PlayerID: row.PlayerID,
			Year:     row.Year,
			Age:      age,
			Original: value,
			Value:    emitted,
			Capped:   emitted < value,
		}
		prior, hasPrior = emitted, true
	}
	return prior
}

type playerGroup struct {
	playerID string
	indices  []int
}

// groupByPlayer groups row indices by player in order of first appearance, each
// group sorted by year.
func groupByPlayer(rows []Row) []playerGroup {
	pos := make(map[string]int)
	var groups []playerGroup
	for i, r := range rows {
		gi, ok := pos[r.PlayerID]
		if !ok {
			gi = len(groups)
			pos[r.PlayerID] = gi
			groups = append(groups, playerGroup{playerID: r.PlayerID})
		}
		groups[gi].indices = append(groups[gi].indices, i)
	}
	for _, g := range groups {
		sort.SliceStable(g.indices, func(a, b int) bool {
			return rows[g.indices[a]].Year < rows[g.indices[b]].Year
		})
	}
	return groups
}

func validate(rows []Row) error {
	seen := make(map[string]map[int]bool)
	for _, r := range rows {
		if r.Age == nil || math.IsNaN(*r.Age) {
			return &ValidationError{PlayerID: r.PlayerID, Year: r.Year, Field: "age", Reason: "missing"}
		}
		if r.Value == nil || math.IsNaN(*r.Value) {
			return &ValidationError{PlayerID: r.PlayerID, Year: r.Year, Field: "predicted_value", Reason: "missing"}
		}
		years := seen[r.PlayerID]
		if years == nil {
			years = make(map[int]bool)
			seen[r.PlayerID] = years
		}
		if years[r.Year] {
			return &ValidationError{PlayerID: r.PlayerID, Year: r.Year, Field: "year", Reason: "duplicate player-year row"}
		}
		years[r.Year] = true
	}
	return nil
}

// ValidationError reports a row the engine refuses to cap.
type ValidationError struct {
	PlayerID string
	Year     int
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("growth cap: player %s year %d: %s %s", e.PlayerID, e.Year, e.Field, e.Reason)
}
