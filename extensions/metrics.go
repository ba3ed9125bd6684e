package extensions

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	featurea "github.com/featurea/featurea-go"
)

// Metric label values for operation status.
const (
	statusOK     = "ok"
	statusFailed = "failed"
)

// MetricsExtension records operation counts and durations on a prometheus
// registerer. Each container it is attached to also exports a gauge of its
// live modules.
type MetricsExtension struct {
	featurea.BaseExtension

	registerer      prometheus.Registerer
	operationsTotal *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	cleanupFailures *prometheus.CounterVec
}

// NewMetricsExtension creates the collectors and registers them on reg
func NewMetricsExtension(reg prometheus.Registerer) (*MetricsExtension, error) {
	e := &MetricsExtension{
		BaseExtension: featurea.NewBaseExtension("metrics"),
		registerer:    reg,
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "featurea_operations_total",
				Help: "Total number of container and module operations.",
			},
			[]string{"operation", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "featurea_operation_duration_seconds",
				Help:    "Operation duration in seconds, including nested resolution.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		cleanupFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "featurea_cleanup_failures_total",
				Help: "Total number of cleanup functions that returned an error.",
			},
			[]string{"context"},
		),
	}

	for _, c := range []prometheus.Collector{e.operationsTotal, e.duration, e.cleanupFailures} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	// Pre-initialize label combinations so they appear with value 0.
	for _, op := range []featurea.OperationKind{
		featurea.OpResolve, featurea.OpProvide, featurea.OpStatic, featurea.OpReload, featurea.OpDelete,
	} {
		e.operationsTotal.WithLabelValues(string(op), statusOK)
		e.operationsTotal.WithLabelValues(string(op), statusFailed)
	}

	return e, nil
}

// Order runs metrics outside other extensions so durations include them
func (e *MetricsExtension) Order() int {
	return 10
}

// Init exports the live module gauge for c
func (e *MetricsExtension) Init(c *featurea.Container) error {
	gauge := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "featurea_live_modules",
			Help:        "Number of live modules in the container.",
			ConstLabels: prometheus.Labels{"container": c.Registry().Root()},
		},
		func() float64 { return float64(len(c.Modules())) },
	)
	return e.registerer.Register(gauge)
}

func (e *MetricsExtension) Wrap(ctx context.Context, next func() (any, error), op *featurea.Operation) (any, error) {
	start := time.Now()
	result, err := next()

	status := statusOK
	if err != nil {
		status = statusFailed
	}
	e.operationsTotal.WithLabelValues(string(op.Kind), status).Inc()
	e.duration.WithLabelValues(string(op.Kind)).Observe(time.Since(start).Seconds())

	return result, err
}

func (e *MetricsExtension) OnCleanupError(err *featurea.CleanupError) bool {
	e.cleanupFailures.WithLabelValues(err.Context).Inc()
	return false
}
