package charts

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/stitts-dev/market-value-forecast/internal/predictor"
)

// DefaultTopFeatures is how many features the importance chart shows.
const DefaultTopFeatures = 20

// Importance draws a horizontal bar chart of the topN most important features, the
// largest at the top. Importances must already be ranked. Nothing is drawn when the
// list is empty or every score is zero; drawn reports whether a file was written.
func Importance(importances []predictor.FeatureImportance, topN int, path string, logger *logrus.Logger) (drawn bool, err error) {
	allZero := true
	for _, imp := range importances {
		if imp.Score != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		logger.Warn("All feature importances are zero or no features found")
		return false, nil
	}

	if topN <= 0 {
		topN = DefaultTopFeatures
	}
	top := importances[:min(topN, len(importances))]

	// Bars are laid out bottom-up, so reverse to put the largest first.
	values := make(plotter.Values, len(top))
	names := make([]string, len(top))
	for i, imp := range top {
		values[len(top)-1-i] = imp.Score
		names[len(top)-1-i] = imp.Feature
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Top %d Feature Importances", len(top))
	p.X.Label.Text = "Importance"

	bars, err := plotter.NewBarChart(values, vg.Points(14))
	if err != nil {
		return false, fmt.Errorf("failed to build bar chart: %w", err)
	}
	bars.Horizontal = true
	bars.Color = plotutil.Color(0)
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalY(names...)

	height := vg.Inch + vg.Length(len(top))*vg.Points(20)
	if err := save(p, 8*vg.Inch, height, path); err != nil {
		return false, err
	}
	return true, nil
}
