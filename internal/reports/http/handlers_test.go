package reportshttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyhub/agencyhub/internal/platform/httpx"
	"github.com/agencyhub/agencyhub/internal/shared"
	"github.com/agencyhub/agencyhub/internal/snapshot"
	"github.com/agencyhub/agencyhub/jobs"
)

type stubSnapshots struct {
	stored map[int64]*snapshot.WidgetSnapshot
}

func (s *stubSnapshots) Snapshot(_ context.Context, tenantID, reportID, widgetID int64) (*snapshot.WidgetSnapshot, error) {
	if tenantID != 1 || reportID != 7 {
		return nil, shared.ReportNotFound(reportID)
	}
	return s.stored[widgetID], nil
}

func (s *stubSnapshots) RefreshWidget(_ context.Context, _, reportID, widgetID int64) (snapshot.WidgetSnapshot, error) {
	if widgetID == 42 {
		return snapshot.WidgetSnapshot{}, shared.WidgetNotFound(reportID, widgetID)
	}
	return snapshot.WidgetSnapshot{WidgetID: widgetID, ReportID: reportID, GeneratedAt: time.Now().UTC()}, nil
}

type stubEnqueuer struct {
	last jobs.ReportSnapshotPayload
	err  error
}

func (s *stubEnqueuer) EnqueueReportSnapshot(_ context.Context, payload jobs.ReportSnapshotPayload) (*asynq.TaskInfo, error) {
	s.last = payload
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{ID: "task-1", Queue: jobs.QueueReports}, nil
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func serve(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(httpx.TenantHeader, "1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSnapshotEndpoint(t *testing.T) {
	snaps := &stubSnapshots{stored: map[int64]*snapshot.WidgetSnapshot{
		1: {WidgetID: 1, ReportID: 7, CacheKey: "snapshot:1:report:7:widget:1:v1"},
	}}
	router := newRouter(NewHandler(nil, snaps, nil))

	rec := serve(router, http.MethodGet, "/api/v1/reports/7/widgets/1/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "snapshot:1:report:7:widget:1:v1")

	rec = serve(router, http.MethodGet, "/api/v1/reports/7/widgets/2/snapshot", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(router, http.MethodGet, "/api/v1/reports/8/widgets/1/snapshot", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), string(shared.CodeReportNotFound))

	rec = serve(router, http.MethodGet, "/api/v1/reports/x/widgets/1/snapshot", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshReportEnqueues(t *testing.T) {
	enq := &stubEnqueuer{}
	router := newRouter(NewHandler(nil, &stubSnapshots{}, enq))

	rec := serve(router, http.MethodPost, "/api/v1/reports/7/refresh", `{"widgetIds":[1,3]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"taskId":"task-1"`)
	assert.Equal(t, jobs.ReportSnapshotPayload{TenantID: 1, ReportID: 7, WidgetIDs: []int64{1, 3}}, enq.last)

	rec = serve(router, http.MethodPost, "/api/v1/reports/7/refresh", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, enq.last.WidgetIDs)
}

func TestRefreshReportDuplicateIsAccepted(t *testing.T) {
	router := newRouter(NewHandler(nil, &stubSnapshots{}, &stubEnqueuer{err: asynq.ErrDuplicateTask}))
	rec := serve(router, http.MethodPost, "/api/v1/reports/7/refresh", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestRefreshWidget(t *testing.T) {
	router := newRouter(NewHandler(nil, &stubSnapshots{}, nil))

	rec := serve(router, http.MethodPost, "/api/v1/reports/7/widgets/3/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"widgetId":3`)

	rec = serve(router, http.MethodPost, "/api/v1/reports/7/widgets/42/refresh", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), string(shared.CodeWidgetNotFound))
}

type stubInvalidator struct {
	tenants []int64
	widgets []int64
}

func (s *stubInvalidator) Invalidate(_ context.Context, tenantID int64) error {
	s.tenants = append(s.tenants, tenantID)
	return nil
}

func (s *stubInvalidator) InvalidateWidget(_ context.Context, _, _, widgetID int64) error {
	s.widgets = append(s.widgets, widgetID)
	return nil
}

func TestInvalidationEndpoints(t *testing.T) {
	inv := &stubInvalidator{}
	router := newRouter(NewHandler(nil, &stubSnapshots{}, nil).WithInvalidator(inv))

	rec := serve(router, http.MethodDelete, "/api/v1/reports/7/widgets/3/snapshot", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int64{3}, inv.widgets)

	rec = serve(router, http.MethodPost, "/api/v1/snapshots/invalidate", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int64{1}, inv.tenants)
}
