package metricshttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/agencyhub/agencyhub/internal/platform/httpx"
)

// MountRoutes registers metric query endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(h.rateLimit, time.Minute,
		httprate.WithKeyFuncs(httpx.TenantRateKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "query rate limit exceeded")
		}),
	)

	r.Get("/api/v1/metrics/catalog", h.handleCatalog)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/api/v1/metrics/query", h.handleQuery)
	})
}
