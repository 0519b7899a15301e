package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agencyhub/agencyhub/internal/metrics"
	"github.com/agencyhub/agencyhub/internal/shared"
	"github.com/agencyhub/agencyhub/internal/snapshot"
)

// Querier answers widget queries.
type Querier interface {
	QueryMetrics(ctx context.Context, tenantID int64, payload metrics.Payload) (metrics.Result, error)
}

// SnapshotObserver counts snapshot writes.
type SnapshotObserver interface {
	ObserveSnapshotWrite(status string)
}

// GeneratorConfig wires a Generator.
type GeneratorConfig struct {
	Repo        Repository
	Querier     Querier
	Store       snapshot.Store
	Formatter   *snapshot.Formatter
	Concurrency int
	AdhocTTL    time.Duration
	Logger      *slog.Logger
	Observer    SnapshotObserver
}

// Generator computes widget snapshots and writes them to the snapshot store.
type Generator struct {
	repo        Repository
	querier     Querier
	store       snapshot.Store
	formatter   *snapshot.Formatter
	concurrency int
	adhocTTL    time.Duration
	logger      *slog.Logger
	observer    SnapshotObserver
	clock       func() time.Time
}

// NewGenerator constructs a Generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	formatter := cfg.Formatter
	if formatter == nil {
		formatter = snapshot.NewFormatter("en", "")
	}
	return &Generator{
		repo:        cfg.Repo,
		querier:     cfg.Querier,
		store:       cfg.Store,
		formatter:   formatter,
		concurrency: concurrency,
		adhocTTL:    cfg.AdhocTTL,
		logger:      logger,
		observer:    cfg.Observer,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// BatchResult summarises one report generation.
type BatchResult struct {
	ReportID  int64                     `json:"reportId"`
	Generated int                       `json:"generated"`
	Failed    int                       `json:"failed"`
	Snapshots []snapshot.WidgetSnapshot `json:"snapshots"`
}

// GenerateReport regenerates the snapshots of a report, or of the listed
// widgets only. Widgets run concurrently and a failing widget is recorded as
// an error snapshot without stopping its siblings. An error is returned when
// the report cannot be loaded or when a snapshot could not be written.
func (g *Generator) GenerateReport(ctx context.Context, tenantID, reportID int64, widgetIDs ...int64) (BatchResult, error) {
	if tenantID <= 0 {
		return BatchResult{}, shared.TenantRequired()
	}
	report, err := g.repo.GetReport(ctx, tenantID, reportID)
	if err != nil {
		return BatchResult{}, err
	}
	widgets := report.Widgets
	if len(widgetIDs) > 0 {
		widgets = make([]Widget, 0, len(widgetIDs))
		for _, id := range widgetIDs {
			w, ok := report.Widget(id)
			if !ok {
				return BatchResult{}, shared.WidgetNotFound(reportID, id)
			}
			widgets = append(widgets, w)
		}
	}

	snaps := make([]snapshot.WidgetSnapshot, len(widgets))
	writeErrs := make([]error, len(widgets))
	var group errgroup.Group
	group.SetLimit(g.concurrency)
	for i, w := range widgets {
		group.Go(func() error {
			snaps[i], writeErrs[i] = g.generateWidget(ctx, tenantID, report.ID, w)
			return nil
		})
	}
	_ = group.Wait()

	result := BatchResult{ReportID: report.ID, Snapshots: snaps}
	for _, snap := range snaps {
		if snap.Failed() {
			result.Failed++
			continue
		}
		result.Generated++
	}
	if err := errors.Join(writeErrs...); err != nil {
		return result, fmt.Errorf("reports: write snapshots: %w", err)
	}
	g.logger.Info("report snapshots generated",
		slog.Int64("tenant_id", tenantID),
		slog.Int64("report_id", report.ID),
		slog.Int("generated", result.Generated),
		slog.Int("failed", result.Failed))
	return result, nil
}

// RefreshWidget regenerates one widget snapshot.
func (g *Generator) RefreshWidget(ctx context.Context, tenantID, reportID, widgetID int64) (snapshot.WidgetSnapshot, error) {
	result, err := g.GenerateReport(ctx, tenantID, reportID, widgetID)
	if err != nil {
		return snapshot.WidgetSnapshot{}, err
	}
	return result.Snapshots[0], nil
}

// Snapshot returns the stored snapshot of a widget, nil when none has been generated.
func (g *Generator) Snapshot(ctx context.Context, tenantID, reportID, widgetID int64) (*snapshot.WidgetSnapshot, error) {
	report, err := g.repo.GetReport(ctx, tenantID, reportID)
	if err != nil {
		return nil, err
	}
	if _, ok := report.Widget(widgetID); !ok {
		return nil, shared.WidgetNotFound(reportID, widgetID)
	}
	key, err := g.store.ReportKey(ctx, tenantID, reportID, widgetID)
	if err != nil {
		return nil, err
	}
	return g.store.Get(ctx, key)
}

// QueryAdhoc answers a dashboard query through the fingerprint cache. Query
// errors are returned as-is and never cached; refresh bypasses a cached entry.
func (g *Generator) QueryAdhoc(ctx context.Context, tenantID int64, payload metrics.Payload, refresh bool) (snapshot.WidgetSnapshot, bool, error) {
	fp, err := snapshot.Fingerprint(tenantID, payload)
	if err != nil {
		return snapshot.WidgetSnapshot{}, false, err
	}
	key, err := g.store.AdhocKey(ctx, tenantID, fp)
	if err != nil {
		return snapshot.WidgetSnapshot{}, false, err
	}
	if !refresh {
		cached, err := g.store.Get(ctx, key)
		if err != nil {
			g.logger.Warn("read adhoc snapshot", slog.String("key", key), slog.Any("error", err))
		}
		if cached != nil && !cached.Failed() {
			return *cached, true, nil
		}
	}

	result, err := g.querier.QueryMetrics(ctx, tenantID, payload)
	if err != nil {
		return snapshot.WidgetSnapshot{}, false, err
	}
	data := snapshot.BuildWidgetData(result, g.formatter)
	snap := snapshot.WidgetSnapshot{GeneratedAt: g.clock(), CacheKey: key, Data: &data}
	if err := g.store.Set(ctx, key, snap, g.adhocTTL); err != nil {
		g.observe("error")
		g.logger.Warn("write adhoc snapshot", slog.String("key", key), slog.Any("error", err))
		return snap, false, nil
	}
	g.observe("ok")
	return snap, false, nil
}

func (g *Generator) generateWidget(ctx context.Context, tenantID, reportID int64, w Widget) (snapshot.WidgetSnapshot, error) {
	now := g.clock()
	key, err := g.store.ReportKey(ctx, tenantID, reportID, w.ID)
	if err != nil {
		g.observe("error")
		return snapshot.NewErrorSnapshot(reportID, w.ID, now, err), err
	}

	var snap snapshot.WidgetSnapshot
	result, err := g.queryWidget(ctx, tenantID, w)
	if err != nil {
		g.logger.Warn("widget generation failed",
			slog.Int64("tenant_id", tenantID),
			slog.Int64("report_id", reportID),
			slog.Int64("widget_id", w.ID),
			slog.Any("error", err))
		snap = snapshot.NewErrorSnapshot(reportID, w.ID, now, err)
	} else {
		data := snapshot.BuildWidgetData(result, g.formatter)
		snap = snapshot.WidgetSnapshot{WidgetID: w.ID, ReportID: reportID, GeneratedAt: now, Data: &data}
	}
	snap.CacheKey = key

	if err := g.store.Set(ctx, key, snap, 0); err != nil {
		g.observe("error")
		return snap, err
	}
	g.observe("ok")
	return snap, nil
}

func (g *Generator) queryWidget(ctx context.Context, tenantID int64, w Widget) (metrics.Result, error) {
	if w.DecodeErr != nil {
		return metrics.Result{}, w.DecodeErr
	}
	return g.querier.QueryMetrics(ctx, tenantID, w.Query)
}

func (g *Generator) observe(status string) {
	if g.observer != nil {
		g.observer.ObserveSnapshotWrite(status)
	}
}
