package formula

import (
	"encoding/json"
)

// Resolution is the outcome of evaluating a program against totals.
type Resolution struct {
	// Values holds the known inputs plus every resolved formula.
	Values map[string]float64
	// Order lists resolved formulas in the order they became resolvable.
	Order []string
	// Unresolved lists formulas that never resolved, sorted.
	Unresolved []string
}

// Point is one sample of a time series.
type Point struct {
	X string   `json:"x"`
	Y *float64 `json:"y"`
}

// Series is a named sequence of points sharing one x axis.
type Series struct {
	Key    string  `json:"key"`
	Points []Point `json:"points"`
}

// ResolveTotals evaluates formulas to a fixed point. A formula is attempted
// once every formula it references has resolved; each pass evaluates what it
// can and the loop stops when a pass makes no progress. Cycles, references to
// invalid formulas and non-finite results end up in Unresolved.
func (p *Program) ResolveTotals(known map[string]float64) Resolution {
	values := make(map[string]float64, len(known)+len(p.formulas))
	for k, v := range known {
		values[k] = v
	}
	res := Resolution{Values: values}
	order, left := p.fixpoint(values, make(map[string]bool, len(p.formulas)))
	res.Order = order

	pending := make(map[string]bool, len(left))
	for _, f := range left {
		pending[f.key] = true
	}
	res.Unresolved = sortedKeys(pending)
	return res
}

// fixpoint evaluates every formula not in done against values, writing each
// result back into values and marking it done. Keys already in done count as
// resolved and are never evaluated. It returns the keys it resolved in order
// and the formulas left over.
func (p *Program) fixpoint(values map[string]float64, done map[string]bool) ([]string, []*compiled) {
	var order []string
	pending := make([]*compiled, 0, len(p.formulas))
	for _, f := range p.formulas {
		if !done[f.key] {
			pending = append(pending, f)
		}
	}
	for len(pending) > 0 {
		progress := false
		next := pending[:0]
		for _, f := range pending {
			if !p.ready(f, done) {
				next = append(next, f)
				continue
			}
			v, ok := f.eval(values)
			if !ok {
				next = append(next, f)
				continue
			}
			values[f.key] = v
			done[f.key] = true
			order = append(order, f.key)
			progress = true
		}
		pending = next
		if !progress {
			break
		}
	}
	return order, pending
}

func (p *Program) ready(f *compiled, resolved map[string]bool) bool {
	for _, ref := range f.refs {
		if p.Has(ref) && !resolved[ref] {
			return false
		}
	}
	return true
}

// fallback copies the non-formula values of res, the totals a row or point
// falls back to when it lacks a column.
func (p *Program) fallback(res Resolution, extra int) map[string]float64 {
	scope := make(map[string]float64, len(res.Values)+extra)
	for k, v := range res.Values {
		if p.Has(k) {
			continue
		}
		scope[k] = v
	}
	return scope
}

// ApplyRows evaluates every valid formula on every row in place, resolving
// each row to its own fixed point. Row values take precedence over totals; a
// formula already present as a non-nil row column is left alone and counts as
// resolved. Formulas that do not resolve for a row are stored as nil.
func (p *Program) ApplyRows(rows []map[string]any, res Resolution) {
	for _, row := range rows {
		scope := p.fallback(res, len(row))
		done := make(map[string]bool, len(p.formulas))
		for k, raw := range row {
			if v, ok := ToFloat(raw); ok {
				scope[k] = v
			}
			if raw != nil && p.Has(k) {
				done[k] = true
			}
		}
		order, left := p.fixpoint(scope, done)
		for _, key := range order {
			row[key] = scope[key]
		}
		for _, f := range left {
			row[f.key] = nil
		}
	}
}

// ApplySeries derives a series for every valid formula that is not already
// present, sampling on the x axis of the first series. Each point resolves
// on its own with that x's values across all series, falling back to the
// totals; points that do not resolve have a nil Y.
func (p *Program) ApplySeries(series []Series, res Resolution) []Series {
	if len(series) == 0 {
		return series
	}
	byX := make(map[string]map[string]float64)
	present := make(map[string]bool, len(series))
	for _, s := range series {
		present[s.Key] = true
		for _, pt := range s.Points {
			if pt.Y == nil {
				continue
			}
			if byX[pt.X] == nil {
				byX[pt.X] = make(map[string]float64)
			}
			byX[pt.X][s.Key] = *pt.Y
		}
	}
	axis := series[0].Points

	var derived []*compiled
	for _, f := range p.formulas {
		if !present[f.key] {
			derived = append(derived, f)
		}
	}
	if len(derived) == 0 {
		return series
	}

	resolved := make([]map[string]bool, len(axis))
	scopes := make([]map[string]float64, len(axis))
	for i, pt := range axis {
		scope := p.fallback(res, len(byX[pt.X]))
		done := make(map[string]bool, len(p.formulas))
		for k, v := range byX[pt.X] {
			scope[k] = v
			if p.Has(k) {
				done[k] = true
			}
		}
		order, _ := p.fixpoint(scope, done)
		resolved[i] = make(map[string]bool, len(order))
		for _, key := range order {
			resolved[i][key] = true
		}
		scopes[i] = scope
	}

	out := append([]Series(nil), series...)
	for _, f := range derived {
		s := Series{Key: f.key, Points: make([]Point, 0, len(axis))}
		for i, pt := range axis {
			point := Point{X: pt.X}
			if resolved[i][f.key] {
				v := scopes[i][f.key]
				point.Y = &v
			}
			s.Points = append(s.Points, point)
		}
		out = append(out, s)
	}
	return out
}

// ToFloat converts a row value into a float64.
func ToFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
