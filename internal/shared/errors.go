package shared

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code is a stable, UI-facing error identifier.
type Code string

const (
	CodeTenantRequired           Code = "TENANT_REQUIRED"
	CodeBrandNotFound            Code = "BRAND_NOT_FOUND"
	CodeMetricNotFound           Code = "METRIC_NOT_FOUND"
	CodeUnsupportedDerivedMetric Code = "UNSUPPORTED_DERIVED_METRIC"
	CodeInvalidMetricCatalog     Code = "INVALID_METRIC_CATALOG"
	CodeUnsupportedMetric        Code = "UNSUPPORTED_METRIC"
	CodeInvalidPayload           Code = "INVALID_PAYLOAD"
	CodeInvalidDateRange         Code = "INVALID_DATE_RANGE"
	CodeReportNotFound           Code = "REPORT_NOT_FOUND"
	CodeWidgetNotFound           Code = "WIDGET_NOT_FOUND"
)

// Error is a deterministic, non-retryable request error. Status is an
// HTTP-style hint for transports.
type Error struct {
	Code    Code
	Status  int
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error carrying the same code so package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")

	ErrTenantRequired           = &Error{Code: CodeTenantRequired, Status: http.StatusUnauthorized}
	ErrBrandNotFound            = &Error{Code: CodeBrandNotFound, Status: http.StatusNotFound}
	ErrMetricNotFound           = &Error{Code: CodeMetricNotFound, Status: http.StatusNotFound}
	ErrUnsupportedDerivedMetric = &Error{Code: CodeUnsupportedDerivedMetric, Status: http.StatusUnprocessableEntity}
	ErrInvalidMetricCatalog     = &Error{Code: CodeInvalidMetricCatalog, Status: http.StatusUnprocessableEntity}
	ErrUnsupportedMetric        = &Error{Code: CodeUnsupportedMetric, Status: http.StatusUnprocessableEntity}
	ErrInvalidPayload           = &Error{Code: CodeInvalidPayload, Status: http.StatusBadRequest}
	ErrInvalidDateRange         = &Error{Code: CodeInvalidDateRange, Status: http.StatusBadRequest}
	ErrReportNotFound           = &Error{Code: CodeReportNotFound, Status: http.StatusNotFound}
	ErrWidgetNotFound           = &Error{Code: CodeWidgetNotFound, Status: http.StatusNotFound}
)

// TenantRequired reports a missing tenant scope.
func TenantRequired() *Error {
	return &Error{Code: CodeTenantRequired, Status: http.StatusUnauthorized, Message: "tenant scope required"}
}

// BrandNotFound reports a brand that does not belong to the tenant.
func BrandNotFound(brandID int64) *Error {
	return &Error{
		Code:    CodeBrandNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("brand %d not found", brandID),
		Details: map[string]any{"brandId": brandID},
	}
}

// MetricNotFound lists every requested key missing from the catalog.
func MetricNotFound(keys []string) *Error {
	return &Error{
		Code:    CodeMetricNotFound,
		Status:  http.StatusNotFound,
		Message: "unknown metrics: " + strings.Join(keys, ", "),
		Details: map[string]any{"missing": keys},
	}
}

// UnsupportedDerivedMetric reports a derived metric whose kind is not supported.
func UnsupportedDerivedMetric(key, kind string) *Error {
	return &Error{
		Code:    CodeUnsupportedDerivedMetric,
		Status:  http.StatusUnprocessableEntity,
		Message: fmt.Sprintf("derived metric %s has unsupported kind %q", key, kind),
		Details: map[string]any{"metric": key, "kind": kind},
	}
}

// InvalidMetricCatalog reports a malformed catalog entry.
func InvalidMetricCatalog(key, reason string) *Error {
	return &Error{
		Code:    CodeInvalidMetricCatalog,
		Status:  http.StatusUnprocessableEntity,
		Message: fmt.Sprintf("metric %s: %s", key, reason),
		Details: map[string]any{"metric": key},
	}
}

// UnsupportedMetric lists base metrics without a physical column mapping.
func UnsupportedMetric(keys []string) *Error {
	return &Error{
		Code:    CodeUnsupportedMetric,
		Status:  http.StatusUnprocessableEntity,
		Message: "metrics without column mapping: " + strings.Join(keys, ", "),
		Details: map[string]any{"metrics": keys},
	}
}

// InvalidPayload wraps boundary validation failures keyed by field.
func InvalidPayload(fields map[string]string) *Error {
	parts := make([]string, 0, len(fields))
	for field, msg := range fields {
		parts = append(parts, field+": "+msg)
	}
	return &Error{
		Code:    CodeInvalidPayload,
		Status:  http.StatusBadRequest,
		Message: "invalid payload: " + strings.Join(parts, "; "),
		Details: map[string]any{"fields": fields},
	}
}

// InvalidDateRange reports an unparseable or inverted date range.
func InvalidDateRange(start, end string) *Error {
	return &Error{
		Code:    CodeInvalidDateRange,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("invalid date range %s..%s", start, end),
		Details: map[string]any{"start": start, "end": end},
	}
}

// ReportNotFound reports a report outside the tenant scope.
func ReportNotFound(reportID int64) *Error {
	return &Error{
		Code:    CodeReportNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("report %d not found", reportID),
		Details: map[string]any{"reportId": reportID},
	}
}

// WidgetNotFound reports a widget outside the report.
func WidgetNotFound(reportID, widgetID int64) *Error {
	return &Error{
		Code:    CodeWidgetNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("widget %d not found in report %d", widgetID, reportID),
		Details: map[string]any{"reportId": reportID, "widgetId": widgetID},
	}
}

// AsError extracts a request error from err.
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsClientError reports whether err is a deterministic request error rather than infrastructure failure.
func IsClientError(err error) bool {
	_, ok := AsError(err)
	return ok
}
