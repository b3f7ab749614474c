package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records per-stage outcomes of a pipeline run.
type PipelineMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	rows     *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "etl_stage_duration_seconds",
		Help:    "Duration of pipeline stages in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_stage_success_total",
		Help: "Successful pipeline stage executions.",
	}, []string{"stage"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_stage_failure_total",
		Help: "Failed pipeline stage executions.",
	}, []string{"stage"})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_rows_processed_total",
		Help: "Rows written by pipeline stage and table.",
	}, []string{"stage", "table"})
	reg.MustRegister(duration, success, failure, rows)
	return &PipelineMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		rows:     rows,
	}
}

// ObserveDuration records the duration for the named stage.
func (p *PipelineMetrics) ObserveDuration(stage string, duration time.Duration) {
	if p == nil || p.duration == nil {
		return
	}
	p.duration.WithLabelValues(normalizeLabel(stage)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named stage.
func (p *PipelineMetrics) IncSuccess(stage string) {
	if p == nil || p.success == nil {
		return
	}
	p.success.WithLabelValues(normalizeLabel(stage)).Inc()
}

// IncFailure increments the failure counter for the named stage.
func (p *PipelineMetrics) IncFailure(stage string) {
	if p == nil || p.failure == nil {
		return
	}
	p.failure.WithLabelValues(normalizeLabel(stage)).Inc()
}

// AddRows accumulates rows written for the named stage and table.
func (p *PipelineMetrics) AddRows(stage, table string, count int64) {
	if p == nil || p.rows == nil || count <= 0 {
		return
	}
	p.rows.WithLabelValues(normalizeLabel(stage), normalizeLabel(table)).Add(float64(count))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
