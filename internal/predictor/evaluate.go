package predictor

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Metrics summarises prediction error on a labelled set.
type Metrics struct {
	N    int     `json:"n"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
}

// Evaluate compares predictions against actual values.
func Evaluate(predicted, actual []float64) (Metrics, error) {
	if len(predicted) != len(actual) {
		return Metrics{}, fmt.Errorf("%d predictions for %d actuals: %w", len(predicted), len(actual), ErrShapeMismatch)
	}
	if len(actual) == 0 {
		return Metrics{}, nil
	}

	var sq, abs float64
	for i := range actual {
		d := predicted[i] - actual[i]
		sq += d * d
		abs += math.Abs(d)
	}
	n := float64(len(actual))

	return Metrics{
		N:    len(actual),
		RMSE: math.Sqrt(sq / n),
		MAE:  abs / n,
		R2:   stat.RSquaredFrom(predicted, actual, nil),
	}, nil
}

// FeatureImportance pairs a feature with its importance score.
type FeatureImportance struct {
	Feature string  `json:"feature"`
	Score   float64 `json:"score"`
}

// RankImportances pairs names with scores and sorts by descending score. Ties keep
// feature order.
func RankImportances(names []string, scores []float64) []FeatureImportance {
	n := min(len(names), len(scores))
	out := make([]FeatureImportance, n)
	for i := 0; i < n; i++ {
		out[i] = FeatureImportance{Feature: names[i], Score: scores[i]}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
