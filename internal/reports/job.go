package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/agencyhub/agencyhub/internal/jobs"
	"github.com/agencyhub/agencyhub/internal/shared"
	"github.com/agencyhub/agencyhub/jobs"
)

// JobConfig wires dependencies required by the worker jobs.
type JobConfig struct {
	Generator *Generator
	Repo      Repository
	Metrics   *jobmetrics.Metrics
	Logger    *slog.Logger
}

// SnapshotJob processes report snapshot requests coming from the queue.
type SnapshotJob struct {
	generator *Generator
	metrics   *jobmetrics.Metrics
	logger    *slog.Logger
}

// NewSnapshotJob constructs a SnapshotJob handler.
func NewSnapshotJob(cfg JobConfig) *SnapshotJob {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotJob{generator: cfg.Generator, metrics: cfg.Metrics, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *SnapshotJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.generator == nil {
		return fmt.Errorf("report snapshot job not configured")
	}
	var payload jobs.ReportSnapshotPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.TenantID <= 0 || payload.ReportID <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics.Track(jobs.TaskReportSnapshot)
	defer func() { err = tracker.End(err) }()

	result, err := j.generator.GenerateReport(ctx, payload.TenantID, payload.ReportID, payload.WidgetIDs...)
	j.metrics.AddWidgets("ok", result.Generated)
	j.metrics.AddWidgets("failed", result.Failed)
	if err != nil {
		if shared.IsClientError(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	j.logger.Info("report snapshot job done",
		slog.Int64("tenant_id", payload.TenantID),
		slog.Int64("report_id", payload.ReportID),
		slog.Int("generated", result.Generated),
		slog.Int("failed", result.Failed))
	return nil
}

// RefreshJob regenerates every dashboard, optionally scoped to one tenant.
type RefreshJob struct {
	generator *Generator
	repo      Repository
	metrics   *jobmetrics.Metrics
	logger    *slog.Logger
}

// NewRefreshJob constructs a RefreshJob handler.
func NewRefreshJob(cfg JobConfig) *RefreshJob {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshJob{generator: cfg.Generator, repo: cfg.Repo, metrics: cfg.Metrics, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract. One failing dashboard does
// not stop the others; their errors are joined and the task is retried.
func (j *RefreshJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.generator == nil || j.repo == nil {
		return fmt.Errorf("dashboard refresh job not configured")
	}
	var payload jobs.DashboardRefreshPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics.Track(jobs.TaskDashboardRefresh)
	defer func() { err = tracker.End(err) }()

	refs, err := j.repo.ListDashboards(ctx, payload.TenantID)
	if err != nil {
		return err
	}
	var errs []error
	for _, ref := range refs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		result, genErr := j.generator.GenerateReport(ctx, ref.TenantID, ref.ReportID)
		j.metrics.AddWidgets("ok", result.Generated)
		j.metrics.AddWidgets("failed", result.Failed)
		if genErr != nil {
			if errors.Is(genErr, shared.ErrReportNotFound) {
				continue
			}
			j.logger.Warn("dashboard refresh failed",
				slog.Int64("tenant_id", ref.TenantID),
				slog.Int64("report_id", ref.ReportID),
				slog.Any("error", genErr))
			errs = append(errs, fmt.Errorf("report %d: %w", ref.ReportID, genErr))
		}
	}
	j.logger.Info("dashboard refresh done", slog.Int("dashboards", len(refs)), slog.Int("errors", len(errs)))
	return errors.Join(errs...)
}
