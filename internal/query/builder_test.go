package query

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyhub/agencyhub/internal/shared"
)

func baseInput() Input {
	return Input{
		TenantID:    1,
		BrandID:     2,
		DateFrom:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:      time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		Dimensions:  []string{"platform"},
		BaseMetrics: []string{"clicks", "impressions"},
		Requested:   []string{"clicks", "impressions"},
	}
}

func TestBuildQueryGroupsAndTotals(t *testing.T) {
	q, err := NewPlanner(DefaultWhitelist()).BuildQuery(baseInput())
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT platform, SUM(clicks) AS clicks, SUM(impressions) AS impressions FROM metrics_daily"+
			" WHERE tenant_id = $1 AND brand_id = $2 AND date >= $3 AND date <= $4 GROUP BY platform",
		q.SQL)
	assert.Equal(t,
		"SELECT COALESCE(SUM(clicks), 0) AS clicks, COALESCE(SUM(impressions), 0) AS impressions FROM metrics_daily"+
			" WHERE tenant_id = $1 AND brand_id = $2 AND date >= $3 AND date <= $4",
		q.TotalsSQL)
	assert.Len(t, q.Args, 4)
	assert.False(t, q.Paginated)
}

func TestBuildQueryFiltersBindValuesOnly(t *testing.T) {
	in := baseInput()
	in.Filters = []Filter{
		{Field: "platform", Op: OpEq, Value: "meta'; DROP TABLE metrics_daily; --"},
		{Field: "campaign_id", Op: OpIn, Value: []any{"c1", "c2"}},
		{Field: "1=1 OR tenant_id", Op: OpEq, Value: "x"},
		{Field: "account_id", Op: OpIn, Value: []any{}},
	}
	q, err := NewPlanner(DefaultWhitelist()).BuildQuery(in)
	require.NoError(t, err)

	assert.Contains(t, q.SQL, "platform = $5")
	assert.Contains(t, q.SQL, "campaign_id IN ($6, $7)")
	assert.NotContains(t, q.SQL, "DROP")
	assert.NotContains(t, q.SQL, "1=1")
	assert.NotContains(t, q.SQL, "account_id")
	require.Len(t, q.Args, 7)
	assert.Equal(t, "meta'; DROP TABLE metrics_daily; --", q.Args[4])
	assert.Equal(t, []any{"c1", "c2"}, q.Args[5:])
	assert.True(t, strings.HasSuffix(q.TotalsSQL, "platform = $5 AND campaign_id IN ($6, $7)"))
}

func TestBuildQueryEqRejectsListValue(t *testing.T) {
	in := baseInput()
	in.Filters = []Filter{{Field: "platform", Op: OpEq, Value: []any{"meta", "google"}}}
	q, err := NewPlanner(DefaultWhitelist()).BuildQuery(in)
	require.NoError(t, err)
	assert.Len(t, q.Args, 4)
}

func TestBuildQuerySortWhitelist(t *testing.T) {
	planner := NewPlanner(DefaultWhitelist())

	in := baseInput()
	in.Sort = &Sort{Field: "clicks", Direction: Desc}
	q, err := planner.BuildQuery(in)
	require.NoError(t, err)
	assert.Contains(t, q.SQL, " ORDER BY clicks DESC")
	assert.Equal(t, "clicks DESC", q.OrderBy)

	in.Sort = &Sort{Field: "clicks; DROP TABLE x", Direction: Asc}
	q, err = planner.BuildQuery(in)
	require.NoError(t, err)
	assert.NotContains(t, q.SQL, "ORDER BY")

	in.Sort = &Sort{Field: "clicks", Direction: "sideways"}
	q, err = planner.BuildQuery(in)
	require.NoError(t, err)
	assert.NotContains(t, q.SQL, "ORDER BY")
}

func TestBuildQuerySortsOnlyRequestedMetrics(t *testing.T) {
	planner := NewPlanner(DefaultWhitelist())

	in := baseInput()
	in.Requested = []string{"ctr"}
	in.Sort = &Sort{Field: "clicks", Direction: Desc}
	q, err := planner.BuildQuery(in)
	require.NoError(t, err)
	assert.NotContains(t, q.SQL, "ORDER BY")
	assert.Empty(t, q.OrderBy)

	in.Sort = &Sort{Field: "platform", Direction: Asc}
	q, err = planner.BuildQuery(in)
	require.NoError(t, err)
	assert.Equal(t, "platform ASC", q.OrderBy)
}

func TestBuildQueryPaginationFetchesOneExtraRow(t *testing.T) {
	in := baseInput()
	in.Pagination = &Pagination{Limit: 25, Offset: 50}
	q, err := NewPlanner(DefaultWhitelist()).BuildQuery(in)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(q.SQL, " LIMIT 26 OFFSET 50"))
	assert.NotContains(t, q.TotalsSQL, "LIMIT")
	assert.True(t, q.Paginated)
	assert.Equal(t, 25, q.Limit)
}

func TestBuildQueryRejectsUnknownIdentifiers(t *testing.T) {
	planner := NewPlanner(DefaultWhitelist())

	in := baseInput()
	in.Dimensions = []string{"platform", "creative"}
	_, err := planner.BuildQuery(in)
	assert.True(t, errors.Is(err, shared.ErrInvalidPayload))

	in = baseInput()
	in.BaseMetrics = []string{"clicks", "saves"}
	_, err = planner.BuildQuery(in)
	assert.True(t, errors.Is(err, shared.ErrUnsupportedMetric))

	in = baseInput()
	in.BaseMetrics = nil
	_, err = planner.BuildQuery(in)
	assert.True(t, errors.Is(err, shared.ErrInvalidPayload))
}
