package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agencyhub/agencyhub/internal/metrics"
	"github.com/agencyhub/agencyhub/internal/shared"
)

// PGRepository reads reports from Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const getReportSQL = `SELECT id, tenant_id, name, is_dashboard
FROM reports
WHERE id = $1 AND tenant_id = $2 AND archived_at IS NULL`

const listWidgetsSQL = `SELECT id, report_id, title, widget_type, query
FROM report_widgets
WHERE report_id = $1
ORDER BY position, id`

// GetReport implements Repository.
func (r *PGRepository) GetReport(ctx context.Context, tenantID, reportID int64) (Report, error) {
	var report Report
	err := r.pool.QueryRow(ctx, getReportSQL, reportID, tenantID).
		Scan(&report.ID, &report.TenantID, &report.Name, &report.IsDashboard)
	if errors.Is(err, pgx.ErrNoRows) {
		return Report{}, shared.ReportNotFound(reportID)
	}
	if err != nil {
		return Report{}, fmt.Errorf("reports: get report: %w", err)
	}

	rows, err := r.pool.Query(ctx, listWidgetsSQL, reportID)
	if err != nil {
		return Report{}, fmt.Errorf("reports: list widgets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			w   Widget
			raw []byte
		)
		if err := rows.Scan(&w.ID, &w.ReportID, &w.Title, &w.Type, &raw); err != nil {
			return Report{}, fmt.Errorf("reports: scan widget: %w", err)
		}
		decodeWidgetQuery(&w, raw)
		report.Widgets = append(report.Widgets, w)
	}
	if err := rows.Err(); err != nil {
		return Report{}, fmt.Errorf("reports: list widgets: %w", err)
	}
	return report, nil
}

// decodeWidgetQuery fills w.Query from its stored JSON. A corrupt query only
// fails its own widget.
func decodeWidgetQuery(w *Widget, raw []byte) {
	if err := json.Unmarshal(raw, &w.Query); err != nil {
		w.Query = metrics.Payload{}
		w.DecodeErr = shared.InvalidPayload(map[string]string{"query": err.Error()})
	}
}

const listDashboardsSQL = `SELECT tenant_id, id
FROM reports
WHERE is_dashboard AND archived_at IS NULL AND ($1::bigint <= 0 OR tenant_id = $1)
ORDER BY tenant_id, id`

// ListDashboards implements Repository.
func (r *PGRepository) ListDashboards(ctx context.Context, tenantID int64) ([]Ref, error) {
	rows, err := r.pool.Query(ctx, listDashboardsSQL, tenantID)
	if err != nil {
		return nil, fmt.Errorf("reports: list dashboards: %w", err)
	}
	refs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Ref, error) {
		var ref Ref
		err := row.Scan(&ref.TenantID, &ref.ReportID)
		return ref, err
	})
	if err != nil {
		return nil, fmt.Errorf("reports: list dashboards: %w", err)
	}
	return refs, nil
}
