package reportshttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/agencyhub/agencyhub/internal/platform/httpx"
)

// MountRoutes registers report snapshot endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(httpx.TenantRateKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "refresh rate limit exceeded")
		}),
	)

	r.Route("/api/v1/reports/{reportID}", func(rr chi.Router) {
		rr.Get("/widgets/{widgetID}/snapshot", h.handleSnapshot)
		rr.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Post("/refresh", h.handleRefreshReport)
			gr.Post("/widgets/{widgetID}/refresh", h.handleRefreshWidget)
		})
		if h.invalidator != nil {
			rr.Delete("/widgets/{widgetID}/snapshot", h.handleInvalidateWidget)
		}
	})
	if h.invalidator != nil {
		r.Post("/api/v1/snapshots/invalidate", h.handleInvalidateTenant)
	}
}
