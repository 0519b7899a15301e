package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyhub/agencyhub/internal/catalog"
	"github.com/agencyhub/agencyhub/internal/compare"
	"github.com/agencyhub/agencyhub/internal/metrics"
	"github.com/agencyhub/agencyhub/internal/shared"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, 15*time.Minute), mr
}

func sampleResult() metrics.Result {
	return metrics.Result{
		Meta: metrics.Meta{
			GeneratedAt: time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC),
			Timezone:    "UTC",
			Currency:    "USD",
			DateRange:   compare.Range{Start: "2026-01-10", End: "2026-01-19"},
			Dimensions:  []string{"platform"},
			Metrics: []metrics.MetricInfo{
				{Key: "clicks", Label: "Clicks", DisplayFormat: catalog.FormatNumber},
				{Key: "ctr", Label: "CTR", DisplayFormat: catalog.FormatPercent, Derived: true},
			},
		},
		Rows: []metrics.Row{
			{"platform": "meta", "clicks": 10.0, "ctr": 0.1},
			{"platform": "google", "clicks": 20.0, "ctr": 0.2},
		},
		Totals: metrics.Row{"clicks": 30.0, "ctr": 0.15},
		Compare: &metrics.Block{
			Totals: metrics.Row{"clicks": 20.0, "ctr": 0.1},
		},
	}
}

func TestGetReturnsNilOnMiss(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	key, err := store.ReportKey(ctx, 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, "snapshot:1:report:2:widget:3:v1", key)

	snap, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSetAndGetRoundTrip(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	key, err := store.ReportKey(ctx, 1, 2, 3)
	require.NoError(t, err)
	data := BuildWidgetData(sampleResult(), NewFormatter("en", "USD"))
	snap := WidgetSnapshot{WidgetID: 3, ReportID: 2, GeneratedAt: time.Now().UTC(), Data: &data}
	require.NoError(t, store.Set(ctx, key, snap, 0))
	assert.Equal(t, time.Duration(0), mr.TTL(key))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, key, got.CacheKey)
	assert.False(t, got.Failed())
	require.NotNil(t, got.Data)
	assert.InDelta(t, 30, got.Data.Totals["clicks"], 1e-9)
	assert.Len(t, got.Data.Table.Rows, 2)
	assert.Equal(t, "UTC", got.Data.Meta.Timezone)
}

func TestAdhocSnapshotsExpire(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	fp, err := Fingerprint(1, map[string]any{"metrics": []string{"clicks"}})
	require.NoError(t, err)
	key, err := store.AdhocKey(ctx, 1, fp)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, key, WidgetSnapshot{}, store.AdhocTTL()))
	assert.Equal(t, 15*time.Minute, mr.TTL(key))

	mr.FastForward(16 * time.Minute)
	snap, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestInvalidateBumpsTenantVersion(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	before, err := store.ReportKey(ctx, 1, 2, 3)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, before, WidgetSnapshot{WidgetID: 3}, 0))
	other, err := store.ReportKey(ctx, 9, 2, 3)
	require.NoError(t, err)

	require.NoError(t, store.Invalidate(ctx, 1))

	after, err := store.ReportKey(ctx, 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, "snapshot:1:report:2:widget:3:v2", after)
	snap, err := store.Get(ctx, after)
	require.NoError(t, err)
	assert.Nil(t, snap)

	untouched, err := store.ReportKey(ctx, 9, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, other, untouched)
}

func TestInvalidateWidgetDeletesKey(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	key, err := store.ReportKey(ctx, 1, 2, 3)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, key, WidgetSnapshot{WidgetID: 3}, 0))
	require.NoError(t, store.InvalidateWidget(ctx, 1, 2, 3))

	snap, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestFingerprintIsStableAndTenantScoped(t *testing.T) {
	payload := metrics.Payload{BrandID: 4, Metrics: []string{"clicks", "ctr"}}
	a, err := Fingerprint(1, payload)
	require.NoError(t, err)
	b, err := Fingerprint(1, payload)
	require.NoError(t, err)
	c, err := Fingerprint(2, payload)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestBuildWidgetData(t *testing.T) {
	data := BuildWidgetData(sampleResult(), NewFormatter("en", "USD"))

	require.Len(t, data.Table.Columns, 3)
	assert.Equal(t, Column{Key: "platform", Label: "platform", Kind: "dimension"}, data.Table.Columns[0])
	assert.Equal(t, "metric", data.Table.Columns[2].Kind)
	assert.NotNil(t, data.Series)

	require.Len(t, data.Meta.Display, 2)
	clicks := data.Meta.Display[0]
	assert.Equal(t, "30", clicks.Formatted)
	require.NotNil(t, clicks.ChangePct)
	assert.InDelta(t, 50, *clicks.ChangePct, 1e-9)
	assert.Equal(t, "15.00%", data.Meta.Display[1].Formatted)
}

func TestFormatter(t *testing.T) {
	f := NewFormatter("en", "USD")
	assert.Equal(t, "1,234,567", f.Format(catalog.FormatNumber, 1234567.0))
	assert.Equal(t, "USD 1,234.50", f.Format(catalog.FormatCurrency, 1234.5))
	assert.Equal(t, "2.50", f.Format(catalog.FormatDecimal, 2.5))
	assert.Equal(t, "1m30s", f.Format(catalog.FormatDuration, 90.0))
	assert.Equal(t, "-", f.Format(catalog.FormatNumber, nil))
}

func TestNewErrorSnapshot(t *testing.T) {
	now := time.Now().UTC()
	snap := NewErrorSnapshot(2, 3, now, shared.MetricNotFound([]string{"bogus"}))
	require.True(t, snap.Failed())
	assert.Equal(t, string(shared.CodeMetricNotFound), snap.Error.Code)
	assert.Nil(t, snap.Data)

	snap = NewErrorSnapshot(2, 3, now, errors.New("dial tcp: connection refused"))
	assert.Equal(t, "INTERNAL", snap.Error.Code)
	assert.NotContains(t, snap.Error.Message, "dial tcp")
}
