package jobs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReportSnapshotTask(t *testing.T) {
	task, err := NewReportSnapshotTask(ReportSnapshotPayload{TenantID: 1, ReportID: 7, WidgetIDs: []int64{3}})
	require.NoError(t, err)
	assert.Equal(t, TaskReportSnapshot, task.Type())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, map[string]any{"tenant_id": 1.0, "report_id": 7.0, "widget_ids": []any{3.0}}, decoded)
}

func TestNewDashboardRefreshTaskOmitsZeroTenant(t *testing.T) {
	task, err := NewDashboardRefreshTask(DashboardRefreshPayload{})
	require.NoError(t, err)
	assert.Equal(t, TaskDashboardRefresh, task.Type())
	assert.JSONEq(t, `{}`, string(task.Payload()))
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"reports","pending":0}`, rec.Body.String())
}

func TestNewWorkerRejectsBadCron(t *testing.T) {
	task, err := NewDashboardRefreshTask(DashboardRefreshPayload{})
	require.NoError(t, err)

	_, err = NewWorker(WorkerConfig{Cron: []CronRegistration{{Spec: "not a cron", Task: task}}})
	assert.Error(t, err)
}
