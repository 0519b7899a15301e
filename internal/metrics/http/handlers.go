// Package metricshttp exposes the metric query engine over HTTP.
package metricshttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/agencyhub/agencyhub/internal/catalog"
	"github.com/agencyhub/agencyhub/internal/metrics"
	"github.com/agencyhub/agencyhub/internal/platform/httpx"
	"github.com/agencyhub/agencyhub/internal/shared"
	"github.com/agencyhub/agencyhub/internal/snapshot"
)

const defaultRateLimit = 120

// MetricsService answers metric queries for a tenant.
type MetricsService interface {
	QueryMetrics(ctx context.Context, tenantID int64, payload metrics.Payload) (metrics.Result, error)
	Catalog(ctx context.Context, tenantID int64) (catalog.Catalog, error)
}

// AdhocCache answers queries through the snapshot cache.
type AdhocCache interface {
	QueryAdhoc(ctx context.Context, tenantID int64, payload metrics.Payload, refresh bool) (snapshot.WidgetSnapshot, bool, error)
}

// Handler serves the metric query API.
type Handler struct {
	logger    *slog.Logger
	service   MetricsService
	cache     AdhocCache
	rateLimit int
	timeout   time.Duration
}

// NewHandler constructs the metrics HTTP handler. cache may be nil, in which
// case cache=1 requests are answered directly.
func NewHandler(logger *slog.Logger, service MetricsService, cache AdhocCache, rateLimit int, timeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if rateLimit <= 0 {
		rateLimit = defaultRateLimit
	}
	return &Handler{logger: logger, service: service, cache: cache, rateLimit: rateLimit, timeout: timeout}
}

type cachedResponse struct {
	Cached   bool                    `json:"cached"`
	Snapshot snapshot.WidgetSnapshot `json:"snapshot"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var payload metrics.Payload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, shared.InvalidPayload(map[string]string{"body": err.Error()}))
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	query := r.URL.Query()
	if h.cache != nil && (query.Get("cache") == "1" || query.Get("refresh") == "1") {
		snap, cached, err := h.cache.QueryAdhoc(ctx, tenantID, payload, query.Get("refresh") == "1")
		if err != nil {
			h.fail(w, tenantID, err)
			return
		}
		httpx.JSON(w, http.StatusOK, cachedResponse{Cached: cached, Snapshot: snap})
		return
	}

	result, err := h.service.QueryMetrics(ctx, tenantID, payload)
	if err != nil {
		h.fail(w, tenantID, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.TenantID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cat, err := h.service.Catalog(r.Context(), tenantID)
	if err != nil {
		h.fail(w, tenantID, err)
		return
	}
	defs := lo.FilterMap(cat.Keys(), func(key string, _ int) (catalog.MetricDefinition, bool) {
		return cat.Lookup(key)
	})
	httpx.JSON(w, http.StatusOK, map[string]any{"metrics": defs})
}

func (h *Handler) fail(w http.ResponseWriter, tenantID int64, err error) {
	if !shared.IsClientError(err) && !errors.Is(err, context.Canceled) {
		h.logger.Error("metrics request failed", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
