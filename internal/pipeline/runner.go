// Package pipeline orchestrates the three warehouse stages plus the
// closing audit. Each run carries a run id through the logging context
// and reports per-stage durations and row counts to the metrics
// registry.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shoplake/etl/internal/aggregate"
	"github.com/shoplake/etl/internal/audit"
	"github.com/shoplake/etl/internal/ingest"
	"github.com/shoplake/etl/internal/staging"
	"github.com/shoplake/etl/pkg/errors"
	"github.com/shoplake/etl/pkg/logger"
	"github.com/shoplake/etl/pkg/metrics"
)

// Stage names, used for logging and metric labels.
const (
	StageRaw        = "raw"
	StageStaging    = "staging"
	StageProduction = "production"
	StageAudit      = "audit"
)

// Runner wires the stages together.
type Runner struct {
	ingestor    *ingest.Ingestor
	transformer *staging.Transformer
	builder     *aggregate.Builder
	auditor     *audit.Auditor

	logg *logger.Logger
	mets *metrics.PipelineMetrics
}

// StageOutcome reports one executed stage.
type StageOutcome struct {
	Stage    string
	Duration time.Duration
	Rows     int64
	Err      error
}

// RunReport is the outcome of a full pipeline run.
type RunReport struct {
	RunID  string
	Stages []StageOutcome
	Audit  *audit.Report
}

// Failed returns the first stage error, nil on a clean run.
func (r *RunReport) Failed() error {
	for _, s := range r.Stages {
		if s.Err != nil {
			return s.Err
		}
	}
	return nil
}

func New(
	ingestor *ingest.Ingestor,
	transformer *staging.Transformer,
	builder *aggregate.Builder,
	auditor *audit.Auditor,
	logg *logger.Logger,
	mets *metrics.PipelineMetrics,
) *Runner {
	return &Runner{
		ingestor:    ingestor,
		transformer: transformer,
		builder:     builder,
		auditor:     auditor,
		logg:        logg,
		mets:        mets,
	}
}

// withRun attaches a fresh run id to the context.
func (r *Runner) withRun(ctx context.Context) (context.Context, string) {
	runID := uuid.NewString()
	return r.logg.WithRunID(ctx, runID), runID
}

func (r *Runner) observe(ctx context.Context, stage string, started time.Time, rows int64, err error) StageOutcome {
	elapsed := time.Since(started)
	r.mets.ObserveDuration(stage, elapsed)
	sctx := r.logg.WithFields(r.logg.WithStage(ctx, stage), map[string]any{
		"duration_ms": elapsed.Milliseconds(),
		"rows":        rows,
	})
	if err != nil {
		r.mets.IncFailure(stage)
		r.logg.Error(sctx, "stage failed", err)
	} else {
		r.mets.IncSuccess(stage)
		r.logg.Info(sctx, "stage complete")
	}
	return StageOutcome{Stage: stage, Duration: elapsed, Rows: rows, Err: err}
}

// RunRaw ingests pending partitions. With fullRefresh the raw tables
// are truncated first and every partition reloads.
func (r *Runner) RunRaw(ctx context.Context, fullRefresh bool) StageOutcome {
	started := time.Now()
	sctx := r.logg.WithStage(ctx, StageRaw)

	if fullRefresh {
		if err := r.ingestor.TruncateAll(sctx); err != nil {
			return r.observe(ctx, StageRaw, started, 0, err)
		}
	}
	results, err := r.ingestor.IngestAll(sctx, !fullRefresh)

	var rows int64
	for name, res := range results {
		rows += res.Rows
		r.mets.AddRows(StageRaw, name, res.Rows)
	}
	return r.observe(ctx, StageRaw, started, rows, err)
}

// RunStaging rebuilds the staging tier.
func (r *Runner) RunStaging(ctx context.Context) StageOutcome {
	started := time.Now()
	results, err := r.transformer.TransformAll(r.logg.WithStage(ctx, StageStaging))

	var rows int64
	for name, out := range results {
		rows += out.RowsWritten
		r.mets.AddRows(StageStaging, name, out.RowsWritten)
	}
	return r.observe(ctx, StageStaging, started, rows, err)
}

// RunProduction rebuilds the prod aggregations.
func (r *Runner) RunProduction(ctx context.Context) StageOutcome {
	started := time.Now()
	results, err := r.builder.BuildAll(r.logg.WithStage(ctx, StageProduction))

	var rows int64
	for name, res := range results {
		rows += res.Rows
		r.mets.AddRows(StageProduction, name, res.Rows)
	}
	return r.observe(ctx, StageProduction, started, rows, err)
}

// RunAudit checks the warehouse end to end.
func (r *Runner) RunAudit(ctx context.Context) (*audit.Report, StageOutcome) {
	started := time.Now()
	rep, err := r.auditor.Run(r.logg.WithStage(ctx, StageAudit))
	return rep, r.observe(ctx, StageAudit, started, 0, err)
}

// RunFull executes raw, staging, production and the audit in order. A
// stage whose error aborts the pipeline stops the run; later stages
// never see a half-written upstream tier.
func (r *Runner) RunFull(ctx context.Context, fullRefresh bool) *RunReport {
	rctx, runID := r.withRun(ctx)
	rep := &RunReport{RunID: runID}
	r.logg.Info(rctx, "pipeline starting")

	out := r.RunRaw(rctx, fullRefresh)
	rep.Stages = append(rep.Stages, out)
	if out.Err != nil && errors.AbortsPipeline(out.Err) {
		return rep
	}

	out = r.RunStaging(rctx)
	rep.Stages = append(rep.Stages, out)
	if out.Err != nil {
		return rep
	}

	out = r.RunProduction(rctx)
	rep.Stages = append(rep.Stages, out)
	if out.Err != nil {
		return rep
	}

	auditRep, out := r.RunAudit(rctx)
	rep.Audit = auditRep
	rep.Stages = append(rep.Stages, out)

	r.logg.Info(rctx, "pipeline finished")
	return rep
}
