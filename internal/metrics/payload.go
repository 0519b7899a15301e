package metrics

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/agencyhub/agencyhub/internal/compare"
	"github.com/agencyhub/agencyhub/internal/query"
	"github.com/agencyhub/agencyhub/internal/shared"
)

// DateRange is an inclusive window of YYYY-MM-DD dates.
type DateRange struct {
	Start string `json:"start" validate:"required,datetime=2006-01-02"`
	End   string `json:"end" validate:"required,datetime=2006-01-02"`
}

// CompareTo requests a comparison window.
type CompareTo struct {
	Mode compare.Mode `json:"mode" validate:"required,oneof=previous_period previous_year"`
}

// Payload is the primary query request.
type Payload struct {
	BrandID    int64             `json:"brandId" validate:"required,gt=0"`
	DateRange  DateRange         `json:"dateRange"`
	Dimensions []string          `json:"dimensions,omitempty" validate:"max=4,dive,required"`
	Metrics    []string          `json:"metrics" validate:"required,min=1,max=50,dive,required"`
	Filters    []query.Filter    `json:"filters,omitempty" validate:"max=20,dive"`
	Sort       *query.Sort       `json:"sort,omitempty"`
	Pagination *query.Pagination `json:"pagination,omitempty"`
	CompareTo  *CompareTo        `json:"compareTo,omitempty"`
}

// window is a validated payload's date bounds.
type window struct {
	from time.Time
	to   time.Time
}

// validatePayload checks p at the boundary. Unknown filter fields and sort
// state are left to the planner, which drops them.
func validatePayload(v *validator.Validate, whitelist query.Whitelist, p Payload) (window, error) {
	if err := v.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fieldErr := range verrs {
				fields[fieldPath(fieldErr.Namespace())] = fieldErr.Tag()
			}
			return window{}, shared.InvalidPayload(fields)
		}
		return window{}, shared.InvalidPayload(map[string]string{"payload": err.Error()})
	}
	for _, dim := range p.Dimensions {
		if !whitelist.HasDimension(dim) {
			return window{}, shared.InvalidPayload(map[string]string{"dimensions": "unsupported dimension " + dim})
		}
	}
	from, err := time.ParseInLocation(compare.DateLayout, p.DateRange.Start, time.UTC)
	if err != nil {
		return window{}, shared.InvalidDateRange(p.DateRange.Start, p.DateRange.End)
	}
	to, err := time.ParseInLocation(compare.DateLayout, p.DateRange.End, time.UTC)
	if err != nil || to.Before(from) {
		return window{}, shared.InvalidDateRange(p.DateRange.Start, p.DateRange.End)
	}
	return window{from: from, to: to}, nil
}

// fieldPath turns "Payload.DateRange.Start" into "dateRange.start".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToLower(part[:1]) + part[1:]
	}
	return strings.Join(parts, ".")
}
