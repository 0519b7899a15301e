package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/httprate"

	"github.com/agencyhub/agencyhub/internal/shared"
)

// TenantHeader carries the caller's tenant scope.
const TenantHeader = "X-Tenant-ID"

// TenantID reads the tenant scope of the request.
func TenantID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(TenantHeader))
	if raw == "" {
		return 0, shared.TenantRequired()
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.TenantRequired()
	}
	return id, nil
}

// TenantRateKey keys rate limits by tenant, falling back to the client IP.
func TenantRateKey(r *http.Request) (string, error) {
	if id, err := TenantID(r); err == nil {
		return "tenant:" + strconv.FormatInt(id, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
