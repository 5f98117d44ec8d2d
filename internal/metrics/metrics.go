package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProjectionRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forecast",
		Subsystem: "runs",
		Name:      "total",
		Help:      "Total projection runs by outcome",
	}, []string{"status"})

	ProjectionRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "forecast",
		Subsystem: "runs",
		Name:      "duration_seconds",
		Help:      "Wall time of a full projection run",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	RowsProjected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "forecast",
		Subsystem: "growthcap",
		Name:      "rows_total",
		Help:      "Predicted rows passed through the growth cap",
	})

	RowsCapped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "forecast",
		Subsystem: "growthcap",
		Name:      "rows_capped_total",
		Help:      "Predicted rows reduced by the growth cap",
	})

	RecorderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forecast",
		Subsystem: "recorder",
		Name:      "errors_total",
		Help:      "Run recorder failures by sink",
	}, []string{"sink"})

	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forecast",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Projection cache lookups by result",
	}, []string{"result"})
)
