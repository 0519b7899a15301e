// Package reportshttp serves stored widget snapshots and refresh requests.
package reportshttp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/agencyhub/agencyhub/internal/platform/httpx"
	"github.com/agencyhub/agencyhub/internal/shared"
	"github.com/agencyhub/agencyhub/internal/snapshot"
	"github.com/agencyhub/agencyhub/jobs"
)

// SnapshotService reads and regenerates widget snapshots.
type SnapshotService interface {
	Snapshot(ctx context.Context, tenantID, reportID, widgetID int64) (*snapshot.WidgetSnapshot, error)
	RefreshWidget(ctx context.Context, tenantID, reportID, widgetID int64) (snapshot.WidgetSnapshot, error)
}

// Enqueuer schedules report generation on the job queue.
type Enqueuer interface {
	EnqueueReportSnapshot(ctx context.Context, payload jobs.ReportSnapshotPayload) (*asynq.TaskInfo, error)
}

// Invalidator drops stored snapshots.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID int64) error
	InvalidateWidget(ctx context.Context, tenantID, reportID, widgetID int64) error
}

// Handler serves report snapshot endpoints.
type Handler struct {
	logger      *slog.Logger
	service     SnapshotService
	enqueuer    Enqueuer
	invalidator Invalidator
}

// NewHandler constructs the reports HTTP handler.
func NewHandler(logger *slog.Logger, service SnapshotService, enqueuer Enqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, enqueuer: enqueuer}
}

// WithInvalidator enables the snapshot invalidation endpoints.
func (h *Handler) WithInvalidator(inv Invalidator) *Handler {
	h.invalidator = inv
	return h
}

type refreshRequest struct {
	WidgetIDs []int64 `json:"widgetIds"`
}

type refreshResponse struct {
	TaskID   string `json:"taskId"`
	Queue    string `json:"queue"`
	ReportID int64  `json:"reportId"`
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	tenantID, reportID, widgetID, err := h.params(r, true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	snap, err := h.service.Snapshot(r.Context(), tenantID, reportID, widgetID)
	if err != nil {
		h.fail(w, err)
		return
	}
	if snap == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "snapshot has not been generated yet")
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) handleRefreshReport(w http.ResponseWriter, r *http.Request) {
	tenantID, reportID, _, err := h.params(r, false)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.RespondError(w, shared.InvalidPayload(map[string]string{"body": err.Error()}))
		return
	}
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "job queue not configured")
		return
	}
	info, err := h.enqueuer.EnqueueReportSnapshot(r.Context(), jobs.ReportSnapshotPayload{
		TenantID:  tenantID,
		ReportID:  reportID,
		WidgetIDs: req.WidgetIDs,
	})
	if errors.Is(err, asynq.ErrDuplicateTask) {
		httpx.JSON(w, http.StatusAccepted, refreshResponse{Queue: jobs.QueueReports, ReportID: reportID})
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, refreshResponse{TaskID: info.ID, Queue: info.Queue, ReportID: reportID})
}

func (h *Handler) handleRefreshWidget(w http.ResponseWriter, r *http.Request) {
	tenantID, reportID, widgetID, err := h.params(r, true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	snap, err := h.service.RefreshWidget(r.Context(), tenantID, reportID, widgetID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) handleInvalidateWidget(w http.ResponseWriter, r *http.Request) {
	tenantID, reportID, widgetID, err := h.params(r, true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.invalidator.InvalidateWidget(r.Context(), tenantID, reportID, widgetID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleInvalidateTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.invalidator.Invalidate(r.Context(), tenantID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) params(r *http.Request, withWidget bool) (tenantID, reportID, widgetID int64, err error) {
	tenantID, err = httpx.TenantID(r)
	if err != nil {
		return 0, 0, 0, err
	}
	reportID, err = strconv.ParseInt(chi.URLParam(r, "reportID"), 10, 64)
	if err != nil || reportID <= 0 {
		return 0, 0, 0, shared.InvalidPayload(map[string]string{"reportId": "must be a positive integer"})
	}
	if withWidget {
		widgetID, err = strconv.ParseInt(chi.URLParam(r, "widgetID"), 10, 64)
		if err != nil || widgetID <= 0 {
			return 0, 0, 0, shared.InvalidPayload(map[string]string{"widgetId": "must be a positive integer"})
		}
	}
	return tenantID, reportID, widgetID, nil
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if !shared.IsClientError(err) {
		h.logger.Error("reports request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
