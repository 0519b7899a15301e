package catalog

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/agencyhub/agencyhub/internal/shared"
)

// Catalog is an immutable lookup of the metric definitions visible to one scope.
type Catalog struct {
	defs  map[string]MetricDefinition
	order []string
}

// New builds a Catalog from layered definition sets; later layers override earlier ones by key.
func New(layers ...[]MetricDefinition) Catalog {
	c := Catalog{defs: make(map[string]MetricDefinition)}
	for _, layer := range layers {
		for _, def := range layer {
			def.Key = NormalizeKey(def.Key)
			if def.Key == "" {
				continue
			}
			def.RequiredFields = lo.Compact(lo.Map(def.RequiredFields, func(f string, _ int) string {
				return NormalizeKey(f)
			}))
			if _, exists := c.defs[def.Key]; !exists {
				c.order = append(c.order, def.Key)
			}
			c.defs[def.Key] = def
		}
	}
	return c
}

// Lookup returns the definition for key.
func (c Catalog) Lookup(key string) (MetricDefinition, bool) {
	def, ok := c.defs[NormalizeKey(key)]
	return def, ok
}

// Keys lists every key in insertion order.
func (c Catalog) Keys() []string {
	return append([]string(nil), c.order...)
}

// Len returns the number of definitions.
func (c Catalog) Len() int {
	return len(c.defs)
}

// Resolve returns the definitions for exactly the requested keys, in request
// order with duplicates collapsed. Any miss fails the whole call.
func (c Catalog) Resolve(keys []string) ([]MetricDefinition, error) {
	normalized := lo.Uniq(lo.Compact(lo.Map(keys, func(k string, _ int) string {
		return NormalizeKey(k)
	})))
	var missing []string
	defs := make([]MetricDefinition, 0, len(normalized))
	for _, key := range normalized {
		def, ok := c.defs[key]
		if !ok {
			missing = append(missing, key)
			continue
		}
		defs = append(defs, def)
	}
	if len(missing) > 0 {
		return nil, shared.MetricNotFound(missing)
	}
	return defs, nil
}

// Repository loads tenant and global calculated metric definitions.
type Repository interface {
	ListDefinitions(ctx context.Context, scope Scope) ([]MetricDefinition, error)
}

// Resolver merges the built-in registry with repository definitions.
type Resolver struct {
	builtins []MetricDefinition
	repo     Repository
}

// NewResolver wires the process-wide builtins with an optional repository.
func NewResolver(builtins []MetricDefinition, repo Repository) *Resolver {
	return &Resolver{builtins: builtins, repo: repo}
}

// Load builds the catalog for a scope. It has no side effects.
func (r *Resolver) Load(ctx context.Context, scope Scope) (Catalog, error) {
	if r == nil {
		return Catalog{}, fmt.Errorf("catalog: resolver not configured")
	}
	if r.repo == nil {
		return New(r.builtins), nil
	}
	stored, err := r.repo.ListDefinitions(ctx, scope)
	if err != nil {
		return Catalog{}, fmt.Errorf("catalog: list definitions: %w", err)
	}
	return New(r.builtins, stored), nil
}
