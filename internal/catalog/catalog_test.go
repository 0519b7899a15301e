package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyhub/agencyhub/internal/shared"
)

type mockRepository struct {
	defs  []MetricDefinition
	err   error
	scope Scope
}

func (m *mockRepository) ListDefinitions(_ context.Context, scope Scope) ([]MetricDefinition, error) {
	m.scope = scope
	return m.defs, m.err
}

func TestResolveReturnsRequestOrder(t *testing.T) {
	cat := New(BuiltinRegistry())
	defs, err := cat.Resolve([]string{"CTR", "clicks", " clicks ", "spend"})
	require.NoError(t, err)
	keys := make([]string, 0, len(defs))
	for _, d := range defs {
		keys = append(keys, d.Key)
	}
	assert.Equal(t, []string{"ctr", "clicks", "spend"}, keys)
}

func TestResolveListsAllMissingKeys(t *testing.T) {
	cat := New(BuiltinRegistry())
	_, err := cat.Resolve([]string{"clicks", "bogus", "nope"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrMetricNotFound))

	appErr, ok := shared.AsError(err)
	require.True(t, ok)
	assert.Equal(t, []string{"bogus", "nope"}, appErr.Details["missing"])
}

func TestLoadLayersTenantDefinitionsOverBuiltins(t *testing.T) {
	repo := &mockRepository{defs: []MetricDefinition{
		{Key: "ctr", Label: "Click rate", Formula: strPtr("{clicks} / {impressions} * 100"), RequiredFields: []string{"Clicks", "impressions"}, Kind: KindFormula},
		{Key: "profit", Label: "Profit", Formula: strPtr("{revenue} - {spend}"), RequiredFields: []string{"revenue", "spend"}},
	}}
	resolver := NewResolver(BuiltinRegistry(), repo)

	cat, err := resolver.Load(context.Background(), Scope{TenantID: 7, Source: "meta"})
	require.NoError(t, err)
	assert.Equal(t, Scope{TenantID: 7, Source: "meta"}, repo.scope)

	ctr, ok := cat.Lookup("ctr")
	require.True(t, ok)
	assert.Equal(t, "Click rate", ctr.Label)
	assert.Equal(t, KindFormula, ctr.DerivedKind())
	assert.Equal(t, []string{"clicks", "impressions"}, ctr.RequiredFields)

	profit, ok := cat.Lookup("PROFIT")
	require.True(t, ok)
	assert.True(t, profit.IsDerived())
	assert.Equal(t, KindFormula, profit.DerivedKind())
}

func TestLoadWrapsRepositoryError(t *testing.T) {
	boom := errors.New("connection refused")
	resolver := NewResolver(BuiltinRegistry(), &mockRepository{err: boom})
	_, err := resolver.Load(context.Background(), Scope{TenantID: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestBuiltinRatioKindsAreInferred(t *testing.T) {
	cat := New(BuiltinRegistry())
	for _, key := range []string{"ctr", "cpc", "cpm", "cpa", "roas"} {
		def, ok := cat.Lookup(key)
		require.True(t, ok, key)
		assert.True(t, def.DerivedKind().IsRatio(), key)
		assert.Len(t, def.RequiredFields, 2, key)
	}
	clicks, _ := cat.Lookup("clicks")
	assert.False(t, clicks.IsDerived())
}

func TestFormulaTokens(t *testing.T) {
	assert.Equal(t, []string{"revenue", "spend"}, FormulaTokens("({Revenue} - {spend}) / {revenue}"))
	assert.Empty(t, FormulaTokens("1 + 2"))
}
