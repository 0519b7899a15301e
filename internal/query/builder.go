package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/lo"

	"github.com/agencyhub/agencyhub/internal/shared"
)

// FilterOp is the closed set of filter operators.
type FilterOp string

const (
	OpEq FilterOp = "eq"
	OpIn FilterOp = "in"
)

// Filter restricts the aggregation to rows whose dimension matches Value.
type Filter struct {
	Field string   `json:"field" validate:"required"`
	Op    FilterOp `json:"op" validate:"required,oneof=eq in"`
	Value any      `json:"value"`
}

// Direction is the sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort is optional UI sort state.
type Sort struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// Pagination is offset/limit paging over grouped rows. An offset needs a limit.
type Pagination struct {
	Limit  int `json:"limit" validate:"required_with=Offset,gte=0,lte=5000"`
	Offset int `json:"offset" validate:"gte=0"`
}

// Input is the validated request for one aggregation.
type Input struct {
	TenantID    int64
	BrandID     int64
	DateFrom    time.Time
	DateTo      time.Time
	Dimensions  []string
	BaseMetrics []string
	// Requested lists the metrics the caller asked for. Only those, and the
	// dimensions, may be sorted on.
	Requested   []string
	Filters     []Filter
	Sort        *Sort
	Pagination  *Pagination
}

// Query is the grouped query and the totals query sharing one WHERE clause and argument list.
type Query struct {
	SQL        string
	TotalsSQL  string
	Args       []any
	Dimensions []string
	Metrics    []string
	// Filters lists the filters that made it into the WHERE clause.
	Filters    []Filter
	OrderBy    string
	Paginated  bool
	Limit      int
	Offset     int
}

// BuildQuery renders the parameterized aggregation queries for in.
func (p *Planner) BuildQuery(in Input) (Query, error) {
	dims := lo.Uniq(in.Dimensions)
	dimCols := make([]string, 0, len(dims))
	for _, dim := range dims {
		col, ok := p.whitelist.DimensionColumn(dim)
		if !ok {
			return Query{}, shared.InvalidPayload(map[string]string{"dimensions": "unsupported dimension " + dim})
		}
		dimCols = append(dimCols, col)
	}

	metrics := lo.Uniq(in.BaseMetrics)
	metricCols := make([]string, 0, len(metrics))
	var unsupported []string
	for _, m := range metrics {
		col, ok := p.whitelist.MetricColumn(m)
		if !ok {
			unsupported = append(unsupported, m)
			continue
		}
		metricCols = append(metricCols, col)
	}
	if len(unsupported) > 0 {
		return Query{}, shared.UnsupportedMetric(unsupported)
	}
	if len(metrics) == 0 {
		return Query{}, shared.InvalidPayload(map[string]string{"metrics": "at least one base metric required"})
	}

	dateCol, ok := p.whitelist.DimensionColumn(DimensionDate)
	if !ok {
		dateCol = "date"
	}
	args := []any{in.TenantID, in.BrandID, dateParam(in.DateFrom), dateParam(in.DateTo)}
	conds := []string{
		"tenant_id = $1",
		"brand_id = $2",
		dateCol + " >= $3",
		dateCol + " <= $4",
	}
	var applied []Filter
	for _, f := range in.Filters {
		col, ok := p.whitelist.DimensionColumn(f.Field)
		if !ok {
			continue
		}
		values := filterValues(f.Value)
		switch f.Op {
		case OpEq:
			if len(values) != 1 || isSlice(f.Value) {
				continue
			}
			args = append(args, values[0])
			conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
			applied = append(applied, Filter{Field: f.Field, Op: OpEq, Value: values[0]})
		case OpIn:
			if len(values) == 0 {
				continue
			}
			holders := make([]string, 0, len(values))
			for _, v := range values {
				args = append(args, v)
				holders = append(holders, "$"+strconv.Itoa(len(args)))
			}
			conds = append(conds, fmt.Sprintf("%s IN (%s)", col, strings.Join(holders, ", ")))
			applied = append(applied, Filter{Field: f.Field, Op: OpIn, Value: values})
		}
	}
	where := strings.Join(conds, " AND ")

	selects := make([]string, 0, len(dims)+len(metrics))
	for i, dim := range dims {
		selects = append(selects, aliased(dimCols[i], dim))
	}
	totals := make([]string, 0, len(metrics))
	for i, m := range metrics {
		selects = append(selects, fmt.Sprintf("SUM(%s) AS %s", metricCols[i], m))
		totals = append(totals, fmt.Sprintf("COALESCE(SUM(%s), 0) AS %s", metricCols[i], m))
	}

	q := Query{
		Args:       args,
		Dimensions: dims,
		Metrics:    metrics,
		Filters:    applied,
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selects, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(p.whitelist.Table)
	sb.WriteString(" WHERE ")
	sb.WriteString(where)
	if len(dimCols) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(dimCols, ", "))
	}
	if order := orderClause(in.Sort, dims, lo.Intersect(metrics, in.Requested)); order != "" {
		q.OrderBy = order
		sb.WriteString(" ORDER BY ")
		sb.WriteString(order)
	}
	if in.Pagination != nil && in.Pagination.Limit > 0 {
		offset := in.Pagination.Offset
		if offset < 0 {
			offset = 0
		}
		q.Paginated = true
		q.Limit = in.Pagination.Limit
		q.Offset = offset
		// One extra row tells the caller whether another page exists.
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(q.Limit + 1))
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(offset))
	}
	q.SQL = sb.String()
	q.TotalsSQL = "SELECT " + strings.Join(totals, ", ") + " FROM " + p.whitelist.Table + " WHERE " + where
	return q, nil
}

func orderClause(s *Sort, dims, sortable []string) string {
	if s == nil {
		return ""
	}
	var dir string
	switch Direction(strings.ToLower(string(s.Direction))) {
	case Asc:
		dir = "ASC"
	case Desc:
		dir = "DESC"
	default:
		return ""
	}
	if lo.Contains(dims, s.Field) || lo.Contains(sortable, s.Field) {
		return s.Field + " " + dir
	}
	return ""
}

func aliased(col, key string) string {
	if col == key {
		return col
	}
	return col + " AS " + key
}

func dateParam(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}

func isSlice(v any) bool {
	switch v.(type) {
	case []any, []string, []int64, []int, []float64:
		return true
	}
	return false
}

func filterValues(v any) []any {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		return lo.Filter(val, func(item any, _ int) bool { return item != nil })
	case []string:
		return lo.ToAnySlice(val)
	case []int64:
		return lo.ToAnySlice(val)
	case []int:
		return lo.ToAnySlice(val)
	case []float64:
		return lo.ToAnySlice(val)
	default:
		return []any{val}
	}
}
