package query

import (
	"sort"

	"github.com/samber/lo"

	"github.com/agencyhub/agencyhub/internal/catalog"
	"github.com/agencyhub/agencyhub/internal/shared"
)

// DerivedSpec is one derived metric the engine must compute.
type DerivedSpec struct {
	Key            string
	Kind           catalog.DerivedKind
	Formula        string
	RequiredFields []string
	// Requested is false for derived metrics pulled in only as dependencies.
	Requested bool
}

// MetricsPlan is the request-scoped classification of requested metrics.
type MetricsPlan struct {
	Requested      []string
	BaseMetrics    []string
	DerivedMetrics []DerivedSpec
}

// Ratios returns the derived specs computed by safe division, in dependency order.
func (p MetricsPlan) Ratios() []DerivedSpec {
	return lo.Filter(p.DerivedMetrics, func(s DerivedSpec, _ int) bool { return s.Kind.IsRatio() })
}

// Formulas returns the derived specs evaluated by the formula engine.
func (p MetricsPlan) Formulas() []DerivedSpec {
	return lo.Filter(p.DerivedMetrics, func(s DerivedSpec, _ int) bool { return s.Kind == catalog.KindFormula })
}

// Planner builds plans and queries against a fixed whitelist.
type Planner struct {
	whitelist Whitelist
}

// NewPlanner constructs a Planner.
func NewPlanner(whitelist Whitelist) *Planner {
	return &Planner{whitelist: whitelist}
}

// Whitelist exposes the planner's identifier mapping.
func (p *Planner) Whitelist() Whitelist {
	return p.whitelist
}

// BuildPlan classifies the requested definitions into base columns and
// derived specs. Dependencies are expanded with a worklist over the catalog so
// deep or cyclic formula graphs never recurse.
func (p *Planner) BuildPlan(requested []catalog.MetricDefinition, cat catalog.Catalog) (MetricsPlan, error) {
	plan := MetricsPlan{Requested: make([]string, 0, len(requested))}
	requestedSet := make(map[string]bool, len(requested))
	for _, def := range requested {
		plan.Requested = append(plan.Requested, def.Key)
		requestedSet[def.Key] = true
	}

	visited := make(map[string]bool)
	baseSeen := make(map[string]bool)
	derived := make(map[string]DerivedSpec)
	var derivedOrder []string

	queue := append([]catalog.MetricDefinition(nil), requested...)
	for len(queue) > 0 {
		def := queue[0]
		queue = queue[1:]
		if visited[def.Key] {
			continue
		}
		visited[def.Key] = true

		if !def.IsDerived() {
			if !baseSeen[def.Key] {
				baseSeen[def.Key] = true
				plan.BaseMetrics = append(plan.BaseMetrics, def.Key)
			}
			continue
		}

		spec, deps, err := classifyDerived(def, cat)
		if err != nil {
			return MetricsPlan{}, err
		}
		spec.Requested = requestedSet[def.Key]
		derived[def.Key] = spec
		derivedOrder = append(derivedOrder, def.Key)
		queue = append(queue, deps...)
	}

	var unsupported []string
	for _, key := range plan.BaseMetrics {
		if _, ok := p.whitelist.MetricColumn(key); !ok {
			unsupported = append(unsupported, key)
		}
	}
	if len(unsupported) > 0 {
		return MetricsPlan{}, shared.UnsupportedMetric(unsupported)
	}

	plan.DerivedMetrics = orderDerived(derivedOrder, derived)
	return plan, nil
}

func classifyDerived(def catalog.MetricDefinition, cat catalog.Catalog) (DerivedSpec, []catalog.MetricDefinition, error) {
	kind := def.DerivedKind()
	if !kind.Supported() {
		return DerivedSpec{}, nil, shared.UnsupportedDerivedMetric(def.Key, string(kind))
	}
	if len(def.RequiredFields) == 0 {
		return DerivedSpec{}, nil, shared.InvalidMetricCatalog(def.Key, "derived metric has no required fields")
	}
	if kind.IsRatio() && len(def.RequiredFields) != 2 {
		return DerivedSpec{}, nil, shared.InvalidMetricCatalog(def.Key, "ratio metric needs exactly a numerator and a denominator")
	}
	formula := def.FormulaText()
	if kind == catalog.KindFormula && formula == "" {
		return DerivedSpec{}, nil, shared.InvalidMetricCatalog(def.Key, "formula is empty")
	}

	refs := lo.Uniq(append(append([]string(nil), def.RequiredFields...), catalog.FormulaTokens(formula)...))
	deps := make([]catalog.MetricDefinition, 0, len(refs))
	for _, ref := range refs {
		dep, ok := cat.Lookup(ref)
		if !ok {
			return DerivedSpec{}, nil, shared.InvalidMetricCatalog(def.Key, "references unknown metric "+ref)
		}
		deps = append(deps, dep)
	}
	if kind.IsRatio() {
		for _, dep := range deps {
			if dep.IsDerived() {
				return DerivedSpec{}, nil, shared.InvalidMetricCatalog(def.Key, "ratio inputs must be base metrics")
			}
		}
	}
	spec := DerivedSpec{
		Key:            def.Key,
		Kind:           kind,
		Formula:        formula,
		RequiredFields: append([]string(nil), def.RequiredFields...),
	}
	return spec, deps, nil
}

// orderDerived sorts specs dependencies-first (Kahn). Members of a cycle keep
// their discovery order at the tail; the formula engine reports them unresolved.
func orderDerived(order []string, specs map[string]DerivedSpec) []DerivedSpec {
	position := make(map[string]int, len(order))
	for i, key := range order {
		position[key] = i
	}
	indegree := make(map[string]int, len(order))
	dependents := make(map[string][]string, len(order))
	for _, key := range order {
		spec := specs[key]
		refs := lo.Uniq(append(append([]string(nil), spec.RequiredFields...), catalog.FormulaTokens(spec.Formula)...))
		for _, ref := range refs {
			if _, ok := specs[ref]; ok && ref != key {
				indegree[key]++
				dependents[ref] = append(dependents[ref], key)
			}
		}
	}

	var ready []string
	for _, key := range order {
		if indegree[key] == 0 {
			ready = append(ready, key)
		}
	}
	out := make([]DerivedSpec, 0, len(order))
	placed := make(map[string]bool, len(order))
	for len(ready) > 0 {
		key := ready[0]
		ready = ready[1:]
		out = append(out, specs[key])
		placed[key] = true
		var next []string
		for _, dep := range dependents[key] {
			indegree[dep]--
			if indegree[dep] == 0 {
				next = append(next, dep)
			}
		}
		sort.Slice(next, func(i, j int) bool { return position[next[i]] < position[next[j]] })
		ready = append(ready, next...)
	}
	for _, key := range order {
		if !placed[key] {
			out = append(out, specs[key])
		}
	}
	return out
}
