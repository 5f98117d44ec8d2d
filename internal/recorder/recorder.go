package recorder

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/market-value-forecast/internal/metrics"
	"github.com/stitts-dev/market-value-forecast/internal/models"
)

// Recorder persists the header and detail tables of a projection run.
type Recorder interface {
	Record(ctx context.Context, header models.RunHeader, details []models.RunDetail) error
	Name() string
}

// Multi fans a run out to several sinks. Every sink is attempted; failures are
// joined.
type Multi struct {
	sinks  []Recorder
	logger *logrus.Logger
}

func NewMulti(logger *logrus.Logger, sinks ...Recorder) *Multi {
	return &Multi{sinks: sinks, logger: logger}
}

func (m *Multi) Name() string {
	return "multi"
}

func (m *Multi) Record(ctx context.Context, header models.RunHeader, details []models.RunDetail) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Record(ctx, header, details); err != nil {
			metrics.RecorderErrors.WithLabelValues(sink.Name()).Inc()
			m.logger.WithFields(logrus.Fields{
				"sink":            sink.Name(),
				"model_output_id": header.ModelOutputID,
			}).WithError(err).Error("Failed to record projection run")
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		m.logger.WithFields(logrus.Fields{
			"sink":            sink.Name(),
			"model_output_id": header.ModelOutputID,
			"detail_rows":     len(details),
		}).Debug("Recorded projection run")
	}
	return errors.Join(errs...)
}
