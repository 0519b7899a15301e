// Package reports owns report and dashboard definitions and regenerates
// their widget snapshots.
package reports

import (
	"context"

	"github.com/agencyhub/agencyhub/internal/metrics"
)

// WidgetType hints how a widget is rendered.
type WidgetType string

const (
	WidgetKPI   WidgetType = "kpi"
	WidgetTable WidgetType = "table"
	WidgetLine  WidgetType = "line"
	WidgetBar   WidgetType = "bar"
)

// Widget is one query tile of a report.
type Widget struct {
	ID        int64           `json:"id"`
	ReportID  int64           `json:"reportId"`
	Title     string          `json:"title"`
	Type      WidgetType      `json:"type"`
	Query     metrics.Payload `json:"query"`
	// DecodeErr is set when the stored query could not be decoded. Such a
	// widget is written as an error snapshot and never queried.
	DecodeErr error           `json:"-"`
}

// Report groups widgets under one tenant.
type Report struct {
	ID          int64    `json:"id"`
	TenantID    int64    `json:"tenantId"`
	Name        string   `json:"name"`
	IsDashboard bool     `json:"isDashboard"`
	Widgets     []Widget `json:"widgets"`
}

// Widget returns the widget with id.
func (r Report) Widget(id int64) (Widget, bool) {
	for _, w := range r.Widgets {
		if w.ID == id {
			return w, true
		}
	}
	return Widget{}, false
}

// Ref identifies a report of a tenant.
type Ref struct {
	TenantID int64
	ReportID int64
}

// Repository loads report definitions.
type Repository interface {
	// GetReport returns the report with its widgets or a REPORT_NOT_FOUND error.
	GetReport(ctx context.Context, tenantID, reportID int64) (Report, error)
	// ListDashboards returns dashboards, limited to tenantID when it is positive.
	ListDashboards(ctx context.Context, tenantID int64) ([]Ref, error)
}
