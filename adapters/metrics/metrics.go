// Package metrics provides Prometheus metrics collection for modreg.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/artpar/modreg/core/errs"
	"github.com/artpar/modreg/ports"
)

// Collector holds all Prometheus metrics for modreg.
type Collector struct {
	// Schedule metrics
	ScheduleOps *prometheus.CounterVec

	// Apply metrics
	Applies       *prometheus.CounterVec
	ApplyDuration prometheus.Histogram
	LastApply     prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates a new metrics collector registered with a fresh registry.
func New() *Collector {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates a collector registered with reg. When reg is also
// a Gatherer, WriteTextfile exports from it.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	c := &Collector{
		ScheduleOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modreg",
				Name:      "schedule_operations_total",
				Help:      "Schedule operations by operation and result",
			},
			[]string{"op", "result"},
		),
		Applies: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modreg",
				Name:      "apply_runs_total",
				Help:      "Apply runs by outcome",
			},
			[]string{"outcome"},
		),
		ApplyDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "modreg",
				Name:      "apply_duration_seconds",
				Help:      "Duration of apply runs in seconds",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
			},
		),
		LastApply: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "modreg",
				Name:      "last_apply_timestamp_seconds",
				Help:      "Unix time of the last apply run",
			},
		),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	}
	return c
}

// ScheduleOp implements ports.ChangeObserver.
func (c *Collector) ScheduleOp(op string, err error) {
	c.ScheduleOps.WithLabelValues(op, result(err)).Inc()
}

// Applied implements ports.ChangeObserver.
func (c *Collector) Applied(changed, failed bool, err error, d time.Duration) {
	outcome := "unchanged"
	switch {
	case err != nil:
		outcome = "error"
	case failed:
		outcome = "failed"
	case changed:
		outcome = "applied"
	}
	c.Applies.WithLabelValues(outcome).Inc()
	c.ApplyDuration.Observe(d.Seconds())
	c.LastApply.SetToCurrentTime()
}

// WriteTextfile writes every gathered metric to path in the text exposition
// format, for node_exporter's textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if c.gatherer == nil {
		return errs.New(errs.Internal, "metrics registry cannot be gathered")
	}
	return prometheus.WriteToTextfile(path, c.gatherer)
}

// result maps an error to a label value.
func result(err error) string {
	if err == nil {
		return "ok"
	}
	switch errs.KindOf(err) {
	case errs.Exists:
		return "exists"
	case errs.NotFound:
		return "not_found"
	case errs.InvalArg:
		return "invalid"
	case errs.Unsupported:
		return "unsupported"
	default:
		return "error"
	}
}

var _ ports.ChangeObserver = (*Collector)(nil)
