package metrics

import (
	"sort"

	"github.com/samber/lo"

	"github.com/agencyhub/agencyhub/internal/catalog"
	"github.com/agencyhub/agencyhub/internal/formula"
	"github.com/agencyhub/agencyhub/internal/query"
)

// evaluator turns one raw aggregation into an output block. Ratio metrics
// come first since formulas may reference them.
type evaluator struct {
	plan       query.MetricsPlan
	program    *formula.Program
	dims       []string
	withSeries bool
}

func (e evaluator) run(agg Aggregation, q query.Query) (Block, formula.Resolution, bool) {
	rows := agg.Rows
	hasMore := false
	if q.Paginated && len(rows) > q.Limit {
		hasMore = true
		rows = rows[:q.Limit]
	}

	ratios := e.plan.Ratios()
	totals := make(map[string]float64, len(agg.Totals)+len(ratios))
	for k, v := range agg.Totals {
		totals[k] = v
	}
	for _, spec := range ratios {
		totals[spec.Key] = ratioValue(spec, func(key string) float64 { return totals[key] })
	}
	res := e.program.ResolveTotals(totals)

	for _, row := range rows {
		for _, spec := range ratios {
			row[spec.Key] = ratioValue(spec, func(key string) float64 {
				v, _ := formula.ToFloat(row[key])
				return v
			})
		}
	}
	e.program.ApplyRows(rows, res)

	block := Block{
		Rows:   e.projectRows(rows),
		Totals: e.projectTotals(res),
	}
	if e.withSeries {
		block.Series = e.series(rows, res)
	}
	return block, res, hasMore
}

// ratioValue divides the first required field by the second. CPM is per mille.
func ratioValue(spec query.DerivedSpec, lookup func(string) float64) float64 {
	if len(spec.RequiredFields) != 2 {
		return 0
	}
	v := formula.SafeDivide(lookup(spec.RequiredFields[0]), lookup(spec.RequiredFields[1]))
	if spec.Kind == catalog.KindCPM {
		v *= 1000
	}
	return v
}

func (e evaluator) projectRows(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		projected := make(Row, len(e.dims)+len(e.plan.Requested))
		for _, dim := range e.dims {
			projected[dim] = row[dim]
		}
		for _, key := range e.plan.Requested {
			projected[key] = row[key]
		}
		out = append(out, projected)
	}
	return out
}

func (e evaluator) projectTotals(res formula.Resolution) Row {
	totals := make(Row, len(e.plan.Requested))
	for _, key := range e.plan.Requested {
		if v, ok := res.Values[key]; ok {
			totals[key] = v
			continue
		}
		totals[key] = nil
	}
	return totals
}

// series folds rows into one point per date for every requested metric. Base
// metrics are summed across the other dimensions and derived metrics are
// recomputed from those sums.
func (e evaluator) series(rows []Row, res formula.Resolution) []formula.Series {
	var dates []string
	sums := make(map[string]map[string]float64)
	for _, row := range rows {
		date, _ := row[query.DimensionDate].(string)
		if date == "" {
			continue
		}
		if sums[date] == nil {
			sums[date] = make(map[string]float64, len(e.plan.BaseMetrics))
			dates = append(dates, date)
		}
		for _, m := range e.plan.BaseMetrics {
			v, _ := formula.ToFloat(row[m])
			sums[date][m] += v
		}
	}
	if len(dates) == 0 {
		return nil
	}
	sort.Strings(dates)

	ratios := e.plan.Ratios()
	for _, date := range dates {
		point := sums[date]
		for _, spec := range ratios {
			point[spec.Key] = ratioValue(spec, func(key string) float64 { return point[key] })
		}
	}

	keys := append(append([]string(nil), e.plan.BaseMetrics...), lo.Map(ratios, func(s query.DerivedSpec, _ int) string { return s.Key })...)
	series := make([]formula.Series, 0, len(keys))
	for _, key := range keys {
		s := formula.Series{Key: key, Points: make([]formula.Point, 0, len(dates))}
		for _, date := range dates {
			v := sums[date][key]
			s.Points = append(s.Points, formula.Point{X: date, Y: &v})
		}
		series = append(series, s)
	}
	series = e.program.ApplySeries(series, res)

	byKey := lo.KeyBy(series, func(s formula.Series) string { return s.Key })
	out := make([]formula.Series, 0, len(e.plan.Requested))
	for _, key := range e.plan.Requested {
		if s, ok := byKey[key]; ok {
			out = append(out, s)
		}
	}
	return out
}
