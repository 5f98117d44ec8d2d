// Package charts renders run output as PNG/SVG files with gonum/plot. The output
// format follows the file extension.
package charts

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/stitts-dev/market-value-forecast/internal/forecast"
	"github.com/stitts-dev/market-value-forecast/internal/panel"
)

// DefaultStartYear is the earliest season drawn on trend charts.
const DefaultStartYear = 2015

var (
	ErrNoSelection = errors.New("trend chart needs player ids or a year with a top-N count")
	ErrNoPoints    = errors.New("no values for the selected players")
)

// TrendSelection chooses the players on a trend chart: either explicit ids, or the
// TopN highest projected values in Year.
type TrendSelection struct {
	PlayerIDs []string `json:"player_ids,omitempty"`
	Year      int      `json:"year,omitempty"`
	TopN      int      `json:"top_n,omitempty"`
	StartYear int      `json:"start_year,omitempty"`
}

// Series is one player's value line, ordered by year.
type Series struct {
	PlayerID string
	Label    string
	Points   plotter.XYs
}

// SelectPlayers resolves a selection to player ids.
func SelectPlayers(projections []forecast.Projection, sel TrendSelection) ([]string, error) {
	if len(sel.PlayerIDs) > 0 {
		return sel.PlayerIDs, nil
	}
	if sel.Year == 0 || sel.TopN <= 0 {
		return nil, ErrNoSelection
	}

	var inYear []forecast.Projection
	for _, p := range projections {
		if p.Year == sel.Year {
			inYear = append(inYear, p)
		}
	}
	sort.SliceStable(inYear, func(i, j int) bool {
		return inYear[i].PredictedValue > inYear[j].PredictedValue
	})

	ids := make([]string, 0, sel.TopN)
	for _, p := range inYear[:min(sel.TopN, len(inYear))] {
		ids = append(ids, p.PlayerID)
	}
	return ids, nil
}

// TrendSeries combines actual history with projections for the given players,
// keeping seasons from startYear on. Series follow the order of ids; players with
// no points are left out.
func TrendSeries(history *panel.Panel, projections []forecast.Projection, ids []string, startYear int) []Series {
	type point struct {
		year  int
		value float64
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	points := make(map[string][]point)
	labels := make(map[string]string)

	add := func(id, name string, year int, value float64) {
		if !wanted[id] || year < startYear {
			return
		}
		points[id] = append(points[id], point{year, value})
		if name != "" {
			labels[id] = name
		}
	}
	if history != nil {
		for _, o := range history.Rows {
			if o.Value != nil && !math.IsNaN(*o.Value) {
				add(o.PlayerID, o.Name, o.Year, *o.Value)
			}
		}
	}
	for _, p := range projections {
		add(p.PlayerID, p.Name, p.Year, p.PredictedValue)
	}

	var out []Series
	for _, id := range ids {
		pts := points[id]
		if len(pts) == 0 {
			continue
		}
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].year < pts[j].year })
		xys := make(plotter.XYs, len(pts))
		for i, p := range pts {
			xys[i] = plotter.XY{X: float64(p.year), Y: p.value}
		}
		label := labels[id]
		if label == "" {
			label = id
		}
		out = append(out, Series{PlayerID: id, Label: label, Points: xys})
		delete(points, id)
	}
	return out
}

// Trends draws value lines for the selected players with a dashed boundary between
// the last actual season and the first projected one.
func Trends(result *forecast.Result, sel TrendSelection, path string) error {
	ids, err := SelectPlayers(result.Projections, sel)
	if err != nil {
		return err
	}
	start := sel.StartYear
	if start == 0 {
		start = DefaultStartYear
	}

	series := TrendSeries(result.History, result.Projections, ids, start)
	if len(series) == 0 {
		return ErrNoPoints
	}

	p := plot.New()
	p.Title.Text = "Predicted Market Values for Selected Players"
	p.X.Label.Text = "Year"
	p.Y.Label.Text = "Market value (EUR m)"
	p.Add(plotter.NewGrid())

	lo, hi := math.Inf(1), math.Inf(-1)
	args := make([]interface{}, 0, 2*len(series))
	for _, s := range series {
		args = append(args, s.Label, s.Points)
		for _, pt := range s.Points {
			lo, hi = math.Min(lo, pt.Y), math.Max(hi, pt.Y)
		}
	}
	if err := plotutil.AddLinePoints(p, args...); err != nil {
		return fmt.Errorf("failed to add trend lines: %w", err)
	}

	boundary := float64(result.SplitYear) - 0.5
	line, err := plotter.NewLine(plotter.XYs{{X: boundary, Y: lo}, {X: boundary, Y: hi}})
	if err != nil {
		return fmt.Errorf("failed to add boundary: %w", err)
	}
	line.Color = color.RGBA{R: 220, A: 255}
	line.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
	p.Add(line)
	p.Legend.Add(fmt.Sprintf("%d/%d boundary", result.SplitYear-1, result.SplitYear), line)
	p.Legend.Top = true

	return save(p, 10*vg.Inch, 6*vg.Inch, path)
}

func save(p *plot.Plot, w, h vg.Length, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create chart directory: %w", err)
		}
	}
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("failed to save chart: %w", err)
	}
	return nil
}
