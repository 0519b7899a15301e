// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/agencyhub/agencyhub/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807. Typed
// engine errors keep their status and code; anything else is opaque.
func RespondError(w http.ResponseWriter, err error) {
	if appErr, ok := shared.AsError(err); ok {
		status := appErr.Status
		if status == 0 {
			status = http.StatusBadRequest
		}
		JSON(w, status, ProblemDetail{
			Type:    "about:blank",
			Title:   http.StatusText(status),
			Status:  status,
			Detail:  appErr.Message,
			Code:    string(appErr.Code),
			Details: appErr.Details,
		})
		return
	}
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		Problem(w, http.StatusGatewayTimeout, "Timeout", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
