// Package forecast runs the rolling multi-year projection: split the panel, fit a
// model on earlier seasons, then predict, cap and carry forward one year at a time.
package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/stitts-dev/market-value-forecast/internal/carrier"
	"github.com/stitts-dev/market-value-forecast/internal/features"
	"github.com/stitts-dev/market-value-forecast/internal/growthcap"
	"github.com/stitts-dev/market-value-forecast/internal/metrics"
	"github.com/stitts-dev/market-value-forecast/internal/models"
	"github.com/stitts-dev/market-value-forecast/internal/panel"
	"github.com/stitts-dev/market-value-forecast/internal/predictor"
	"github.com/stitts-dev/market-value-forecast/internal/recorder"
)

var (
	ErrNoTrainingData = errors.New("no labelled rows before the split year")
	ErrNoTestData     = errors.New("no rows in the split year")
	ErrInvalidYears   = errors.New("projection years must be at least 1")
)

// Options controls a single run.
type Options struct {
	SplitYear    int             `json:"split_year"`
	Years        int             `json:"years"`
	Features     features.Config `json:"features"`
	ModelVersion string          `json:"model_version"`
}

// Projection is one projected player-season.
type Projection struct {
	PlayerID       string   `json:"player_id"`
	Name           string   `json:"name,omitempty"`
	Year           int      `json:"year"`
	Age            float64  `json:"age"`
	PredictedValue float64  `json:"predicted_value"`
	RawValue       float64  `json:"raw_value"`
	Capped         bool     `json:"capped"`
	ActualValue    *float64 `json:"actual_value,omitempty"`
}

// Result describes a completed run.
type Result struct {
	RunID       string                        `json:"model_output_id"`
	RunDate     time.Time                     `json:"model_run_date"`
	Elapsed     time.Duration                 `json:"-"`
	ElapsedSecs float64                       `json:"time_taken_seconds"`
	SplitYear   int                           `json:"split_year"`
	Years       int                           `json:"years"`
	ModelType   string                        `json:"model_type"`
	Version     string                        `json:"version,omitempty"`
	Features    []string                      `json:"features_used"`
	Metrics     predictor.Metrics             `json:"metrics"`
	Importances []predictor.FeatureImportance `json:"importances,omitempty"`
	Projections []Projection                  `json:"projections"`

	// History is the training panel, kept for trend charts.
	History *panel.Panel `json:"-"`
}

// CappedCount returns how many projections the growth cap reduced.
func (r *Result) CappedCount() int {
	n := 0
	for _, p := range r.Projections {
		if p.Capped {
			n++
		}
	}
	return n
}

// importancer is implemented by models that can score their inputs.
type importancer interface {
	Importances() []float64
}

// Forecaster wires a model factory, the growth cap and an optional recorder.
type Forecaster struct {
	newModel func() predictor.Trainer
	engine   *growthcap.Engine
	recorder recorder.Recorder
	logger   *logrus.Logger
}

// New creates a forecaster. rec may be nil to skip persistence.
func New(newModel func() predictor.Trainer, engine *growthcap.Engine, rec recorder.Recorder, logger *logrus.Logger) *Forecaster {
	return &Forecaster{
		newModel: newModel,
		engine:   engine,
		recorder: rec,
		logger:   logger,
	}
}

// Run projects every player in the split year forward opts.Years seasons. The first
// projected season is the split year itself; its actual values, where known, are
// used for evaluation. When only recording fails the result is still returned
// alongside the error.
func (f *Forecaster) Run(ctx context.Context, data *panel.Panel, opts Options) (result *Result, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		switch {
		case err != nil && result != nil:
			status = "record_failed"
		case err != nil:
			status = "failed"
		}
		metrics.ProjectionRunsTotal.WithLabelValues(status).Inc()
		metrics.ProjectionRunDuration.Observe(time.Since(start).Seconds())
	}()

	if opts.Years < 1 {
		return nil, ErrInvalidYears
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	log := f.logger.WithFields(logrus.Fields{
		"model_output_id": runID,
		"split_year":      opts.SplitYear,
	})

	train, test := panel.Split(data, opts.SplitYear)
	labelled := train.Filter(func(o panel.Observation) bool {
		return o.Value != nil && !math.IsNaN(*o.Value)
	})
	if labelled.Len() == 0 {
		return nil, ErrNoTrainingData
	}
	if test.Len() == 0 {
		return nil, ErrNoTestData
	}

	resolved := features.Resolve(data.Columns, opts.Features.Features, opts.Features.Groups)
	static := carrier.StaticColumns(resolved, features.GroupColumns(data.Columns, opts.Features.Groups))
	log.WithFields(logrus.Fields{
		"train_rows": labelled.Len(),
		"test_rows":  test.Len(),
		"features":   len(resolved),
	}).Info("Starting projection run")

	model := f.newModel()
	X, err := labelled.Matrix(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to build training matrix: %w", err)
	}
	y, err := labelled.Targets()
	if err != nil {
		return nil, fmt.Errorf("failed to build training targets: %w", err)
	}
	if err := model.Fit(X, y); err != nil {
		return nil, fmt.Errorf("failed to fit %s: %w", model.Name(), err)
	}

	result = &Result{
		RunID:     runID,
		RunDate:   start.UTC(),
		SplitYear: opts.SplitYear,
		Years:     opts.Years,
		ModelType: model.Name(),
		Version:   opts.ModelVersion,
		Features:  resolved,
		History:   train,
	}

	current := test
	ledger := growthcap.Ledger{}
	for step := 0; step < opts.Years; step++ {
		var projected *panel.Panel
		projected, ledger, err = f.project(ctx, model, current, resolved, ledger, result, step == 0)
		if err != nil {
			return nil, err
		}

		if step == opts.Years-1 {
			break
		}
		carried, err := carrier.Carry(projected, static)
		if err != nil {
			return nil, err
		}
		current = carrier.Advance(carried)
	}

	if m, ok := model.(importancer); ok {
		result.Importances = predictor.RankImportances(resolved, m.Importances())
	}

	result.Elapsed = time.Since(start)
	result.ElapsedSecs = result.Elapsed.Seconds()
	log.WithFields(logrus.Fields{
		"projections": len(result.Projections),
		"capped":      result.CappedCount(),
		"rmse":        result.Metrics.RMSE,
		"elapsed":     result.Elapsed,
	}).Info("Projection run completed")

	if f.recorder != nil {
		header, details := ToRecords(result)
		if err := f.recorder.Record(ctx, header, details); err != nil {
			return result, fmt.Errorf("failed to record run %s: %w", runID, err)
		}
	}
	return result, nil
}

// project predicts one season, caps it and appends the projections to result. The
// returned panel holds the capped values in Value, ready to be carried forward.
func (f *Forecaster) project(
	ctx context.Context,
	model predictor.Predictor,
	current *panel.Panel,
	resolved []string,
	ledger growthcap.Ledger,
	result *Result,
	evaluate bool,
) (*panel.Panel, growthcap.Ledger, error) {
	X, err := current.Matrix(resolved)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build features: %w", err)
	}
	raw, err := model.Predict(X)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to predict: %w", err)
	}
	if len(raw) != current.Len() {
		return nil, nil, fmt.Errorf("%d predictions for %d rows: %w", len(raw), current.Len(), predictor.ErrShapeMismatch)
	}

	rows := make([]growthcap.Row, current.Len())
	for i, o := range current.Rows {
		rows[i] = growthcap.Row{PlayerID: o.PlayerID, Year: o.Year, Age: o.Age, Value: &raw[i]}
	}
	capped, next, err := f.engine.ApplyWithLedger(ctx, rows, ledger)
	if err != nil {
		return nil, nil, err
	}

	if evaluate {
		var pred, actual []float64
		for i, o := range current.Rows {
			if o.Value != nil && !math.IsNaN(*o.Value) {
				pred = append(pred, raw[i])
				actual = append(actual, *o.Value)
			}
		}
		if result.Metrics, err = predictor.Evaluate(pred, actual); err != nil {
			return nil, nil, err
		}
	}

	out := make([]panel.Observation, current.Len())
	nCapped := 0
	for i, o := range current.Rows {
		c := capped[i]
		p := Projection{
			PlayerID:       o.PlayerID,
			Name:           o.Name,
			Year:           o.Year,
			Age:            c.Age,
			PredictedValue: c.Value,
			RawValue:       c.Original,
			Capped:         c.Capped,
		}
		if evaluate && o.Value != nil && !math.IsNaN(*o.Value) {
			p.ActualValue = panel.Float(*o.Value)
		}
		if c.Capped {
			nCapped++
		}
		result.Projections = append(result.Projections, p)

		out[i] = o.Clone()
		out[i].Value = panel.Float(c.Value)
	}

	metrics.RowsProjected.Add(float64(len(capped)))
	metrics.RowsCapped.Add(float64(nCapped))
	if len(capped) > 0 {
		f.logger.WithFields(logrus.Fields{
			"model_output_id": result.RunID,
			"year":            capped[0].Year,
			"rows":            len(capped),
			"capped":          nCapped,
		}).Debug("Projected season")
	}

	return panel.New(current.Columns, out), next, nil
}

// ToRecords converts a result into the header and detail rows persisted per run.
func ToRecords(r *Result) (models.RunHeader, []models.RunDetail) {
	header := models.RunHeader{
		ModelOutputID:    r.RunID,
		ModelRunDate:     r.RunDate,
		TimeTakenSeconds: r.ElapsedSecs,
		FeaturesUsed:     strings.Join(r.Features, ","),
		ModelType:        r.ModelType,
		SplitYear:        r.SplitYear,
		Version:          r.Version,
	}
	if len(r.Importances) > 0 {
		if data, err := json.Marshal(r.Importances); err == nil {
			header.Importances = datatypes.JSON(data)
		}
	}
	details := make([]models.RunDetail, len(r.Projections))
	for i, p := range r.Projections {
		details[i] = models.RunDetail{
			ModelOutputID:  r.RunID,
			PlayerID:       p.PlayerID,
			Name:           p.Name,
			Year:           p.Year,
			Age:            p.Age,
			PredictedValue: p.PredictedValue,
			ActualValue:    p.ActualValue,
			Capped:         p.Capped,
		}
	}
	return header, details
}

// FromRecords rebuilds a result from a stored header and its details.
func FromRecords(header models.RunHeader) (*Result, error) {
	r := &Result{
		RunID:       header.ModelOutputID,
		RunDate:     header.ModelRunDate,
		ElapsedSecs: header.TimeTakenSeconds,
		Elapsed:     time.Duration(header.TimeTakenSeconds * float64(time.Second)),
		SplitYear:   header.SplitYear,
		ModelType:   header.ModelType,
		Version:     header.Version,
		Features:    header.Features(),
	}
	if len(header.Importances) > 0 {
		if err := json.Unmarshal(header.Importances, &r.Importances); err != nil {
			return nil, fmt.Errorf("failed to decode importances for run %s: %w", header.ModelOutputID, err)
		}
	}
	years := map[int]bool{}
	for _, d := range header.Details {
		years[d.Year] = true
		r.Projections = append(r.Projections, Projection{
			PlayerID:       d.PlayerID,
			Name:           d.Name,
			Year:           d.Year,
			Age:            d.Age,
			PredictedValue: d.PredictedValue,
			RawValue:       d.PredictedValue,
			Capped:         d.Capped,
			ActualValue:    d.ActualValue,
		})
	}
	r.Years = len(years)
	return r, nil
}
