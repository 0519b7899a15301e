package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueReports carries report snapshot generation.
	QueueReports = "reports"

	// TaskReportSnapshot regenerates the widget snapshots of one report.
	TaskReportSnapshot = "reports:snapshot:generate"
	// TaskDashboardRefresh regenerates every dashboard, optionally for one tenant.
	TaskDashboardRefresh = "dashboards:refresh"
)

// ReportSnapshotPayload selects the report, and optionally a subset of its
// widgets, to regenerate.
type ReportSnapshotPayload struct {
	TenantID  int64   `json:"tenant_id"`
	ReportID  int64   `json:"report_id"`
	WidgetIDs []int64 `json:"widget_ids,omitempty"`
}

// DashboardRefreshPayload scopes a dashboard refresh. A zero tenant refreshes all tenants.
type DashboardRefreshPayload struct {
	TenantID int64 `json:"tenant_id,omitempty"`
}

// NewReportSnapshotTask constructs an Asynq task.
func NewReportSnapshotTask(payload ReportSnapshotPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportSnapshot, data), nil
}

// NewDashboardRefreshTask constructs an Asynq task.
func NewDashboardRefreshTask(payload DashboardRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDashboardRefresh, data), nil
}
