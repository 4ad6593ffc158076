// Package metrics exposes Prometheus metrics for the upload pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upload outcomes.
const (
	OutcomeAnalyzed      = "analyzed"
	OutcomeConfirmed     = "confirmed"
	OutcomeRejected      = "rejected"
	OutcomeFormatError   = "format_error"
	OutcomeCancelled     = "cancelled"
	OutcomeInternalError = "internal_error"
)

// Recorder holds the pipeline collectors on a private registry. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	uploads           *prometheus.CounterVec
	rowsIngested      prometheus.Counter
	customersMapped   prometheus.Counter
	duplicatesSkipped prometheus.Counter
	rowsFailed        prometheus.Counter
	stageDuration     *prometheus.HistogramVec
}

// New registers the collectors under namespace.
func New(namespace string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "uploads_total",
			Help:      "Uploads processed, by outcome.",
		}, []string{"outcome"}),
		rowsIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "rows_ingested_total",
			Help:      "Data rows parsed from uploaded files.",
		}),
		customersMapped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "customers_mapped_total",
			Help:      "Customer records produced by mapping.",
		}),
		duplicatesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duplicates_skipped_total",
			Help:      "Rows skipped because their identifier was already seen.",
		}),
		rowsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "rows_failed_total",
			Help:      "Rows skipped because mapping them failed.",
		}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Time spent per pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Upload(outcome string) {
	if r == nil {
		return
	}
	r.uploads.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RowsIngested(n int) {
	if r == nil {
		return
	}
	r.rowsIngested.Add(float64(n))
}

func (r *Recorder) Mapped(customers, duplicates, failed int) {
	if r == nil {
		return
	}
	r.customersMapped.Add(float64(customers))
	r.duplicatesSkipped.Add(float64(duplicates))
	r.rowsFailed.Add(float64(failed))
}

// Stage records how long a named stage took since start.
func (r *Recorder) Stage(stage string, start time.Time) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
