package metricshttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyhub/agencyhub/internal/catalog"
	"github.com/agencyhub/agencyhub/internal/metrics"
	"github.com/agencyhub/agencyhub/internal/platform/httpx"
	"github.com/agencyhub/agencyhub/internal/shared"
	"github.com/agencyhub/agencyhub/internal/snapshot"
)

type stubService struct {
	err      error
	tenantID int64
	payload  metrics.Payload
}

func (s *stubService) QueryMetrics(_ context.Context, tenantID int64, payload metrics.Payload) (metrics.Result, error) {
	s.tenantID = tenantID
	s.payload = payload
	if s.err != nil {
		return metrics.Result{}, s.err
	}
	return metrics.Result{
		Rows:   []metrics.Row{{"platform": "meta", "clicks": 10.0}},
		Totals: metrics.Row{"clicks": 10.0},
	}, nil
}

func (s *stubService) Catalog(context.Context, int64) (catalog.Catalog, error) {
	return catalog.New(catalog.BuiltinRegistry()), nil
}

type stubCache struct {
	refresh bool
	calls   int
}

func (s *stubCache) QueryAdhoc(_ context.Context, _ int64, _ metrics.Payload, refresh bool) (snapshot.WidgetSnapshot, bool, error) {
	s.calls++
	s.refresh = refresh
	return snapshot.WidgetSnapshot{CacheKey: "snapshot:1:adhoc:abc:v1"}, !refresh, nil
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

const body = `{"brandId":10,"dateRange":{"start":"2026-01-10","end":"2026-01-19"},"metrics":["clicks"]}`

func doQuery(t *testing.T, router http.Handler, target, tenant, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(payload))
	if tenant != "" {
		req.Header.Set(httpx.TenantHeader, tenant)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestQueryRequiresTenant(t *testing.T) {
	router := newRouter(NewHandler(nil, &stubService{}, nil, 0, 0))
	rec := doQuery(t, router, "/api/v1/metrics/query", "", body)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, string(shared.CodeTenantRequired), problem.Code)
}

func TestQueryReturnsResult(t *testing.T) {
	svc := &stubService{}
	router := newRouter(NewHandler(nil, svc, nil, 0, 0))
	rec := doQuery(t, router, "/api/v1/metrics/query", "1", body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), svc.tenantID)
	assert.Equal(t, int64(10), svc.payload.BrandID)
	var result metrics.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.InDelta(t, 10, result.Totals["clicks"], 1e-9)
}

func TestQueryRejectsUnknownFields(t *testing.T) {
	router := newRouter(NewHandler(nil, &stubService{}, nil, 0, 0))
	rec := doQuery(t, router, "/api/v1/metrics/query", "1", `{"brandId":10,"bogus":true}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(shared.CodeInvalidPayload))
}

func TestQueryMapsEngineErrors(t *testing.T) {
	svc := &stubService{err: shared.MetricNotFound([]string{"bogus"})}
	router := newRouter(NewHandler(nil, svc, nil, 0, 0))
	rec := doQuery(t, router, "/api/v1/metrics/query", "1", body)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, string(shared.CodeMetricNotFound), problem.Code)
	assert.Equal(t, []any{"bogus"}, problem.Details["missing"])
}

func TestQueryHidesInfrastructureErrors(t *testing.T) {
	svc := &stubService{err: assert.AnError}
	router := newRouter(NewHandler(nil, svc, nil, 0, 0))
	rec := doQuery(t, router, "/api/v1/metrics/query", "1", body)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestQueryThroughAdhocCache(t *testing.T) {
	cache := &stubCache{}
	svc := &stubService{}
	router := newRouter(NewHandler(nil, svc, cache, 0, 0))

	rec := doQuery(t, router, "/api/v1/metrics/query?cache=1", "1", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cached":true`)
	assert.False(t, cache.refresh)

	rec = doQuery(t, router, "/api/v1/metrics/query?refresh=1", "1", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, cache.refresh)
	assert.Equal(t, 2, cache.calls)
	assert.Zero(t, svc.tenantID)
}

func TestQueryRateLimitedPerTenant(t *testing.T) {
	router := newRouter(NewHandler(nil, &stubService{}, nil, 1, 0))

	require.Equal(t, http.StatusOK, doQuery(t, router, "/api/v1/metrics/query", "1", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, doQuery(t, router, "/api/v1/metrics/query", "1", body).Code)
	assert.Equal(t, http.StatusOK, doQuery(t, router, "/api/v1/metrics/query", "2", body).Code)
}

func TestCatalogListsDefinitions(t *testing.T) {
	router := newRouter(NewHandler(nil, &stubService{}, nil, 0, 0))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/catalog", nil)
	req.Header.Set(httpx.TenantHeader, "1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"key":"ctr"`)
}
