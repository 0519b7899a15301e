// Package metrics orchestrates metric queries: catalog resolution, planning,
// aggregation over the fact store, derived metric evaluation and the optional
// comparison window.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/agencyhub/agencyhub/internal/catalog"
	"github.com/agencyhub/agencyhub/internal/compare"
	"github.com/agencyhub/agencyhub/internal/formula"
	"github.com/agencyhub/agencyhub/internal/query"
	"github.com/agencyhub/agencyhub/internal/shared"
)

// Query outcomes reported to the Observer.
const (
	OutcomeOK          = "ok"
	OutcomeClientError = "client_error"
	OutcomeStoreError  = "store_error"
)

// Observer receives engine measurements.
type Observer interface {
	ObserveQuery(outcome string, elapsed time.Duration)
	ObserveUnresolved(count int)
}

// MetricInfo describes one requested metric for renderers.
type MetricInfo struct {
	Key           string                `json:"key"`
	Label         string                `json:"label"`
	DisplayFormat catalog.DisplayFormat `json:"displayFormat"`
	Derived       bool                  `json:"derived"`
}

// Calculated reports formula problems without failing the query.
type Calculated struct {
	Errors     []formula.FormulaError `json:"errors"`
	Unresolved []string               `json:"unresolved"`
}

// Meta describes how a result was generated.
type Meta struct {
	GeneratedAt  time.Time      `json:"generatedAt"`
	GenerationID string         `json:"generationId"`
	Timezone     string         `json:"timezone"`
	Currency     string         `json:"currency"`
	DateRange    compare.Range  `json:"dateRange"`
	CompareRange *compare.Range `json:"compareRange"`
	Dimensions   []string       `json:"dimensions"`
	Metrics      []MetricInfo   `json:"metrics"`
	Calculated   Calculated     `json:"calculated"`
}

// PageInfo is present when pagination was requested.
type PageInfo struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// Block is one evaluated aggregation.
type Block struct {
	Rows   []Row            `json:"rows"`
	Totals Row              `json:"totals"`
	Series []formula.Series `json:"series,omitempty"`
}

// Result is the stable, format-agnostic query response.
type Result struct {
	Meta     Meta             `json:"meta"`
	Rows     []Row            `json:"rows"`
	Totals   Row              `json:"totals"`
	Series   []formula.Series `json:"series,omitempty"`
	Compare  *Block           `json:"compare"`
	PageInfo *PageInfo        `json:"pageInfo,omitempty"`
}

// Config wires a Service.
type Config struct {
	Catalogs *catalog.Resolver
	Planner  *query.Planner
	Store    Store
	Brands   BrandVerifier
	Logger   *slog.Logger
	Observer Observer
	Timezone string
	Currency string
}

// Service answers metric queries.
type Service struct {
	catalogs *catalog.Resolver
	planner  *query.Planner
	store    Store
	brands   BrandVerifier
	validate *validator.Validate
	logger   *slog.Logger
	observer Observer
	timezone string
	currency string
	clock    func() time.Time
	newID    func() string
}

// NewService constructs a Service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	planner := cfg.Planner
	if planner == nil {
		planner = query.NewPlanner(query.DefaultWhitelist())
	}
	return &Service{
		catalogs: cfg.Catalogs,
		planner:  planner,
		store:    cfg.Store,
		brands:   cfg.Brands,
		validate: validator.New(),
		logger:   logger,
		observer: cfg.Observer,
		timezone: lo.Ternary(cfg.Timezone == "", "UTC", cfg.Timezone),
		currency: lo.Ternary(cfg.Currency == "", "USD", cfg.Currency),
		clock:    func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.NewString() },
	}
}

// QueryMetrics validates the payload, aggregates the base window and, when
// requested, the comparison window, then evaluates derived metrics on both.
// Validation errors are *shared.Error values; store errors propagate as-is.
func (s *Service) QueryMetrics(ctx context.Context, tenantID int64, payload Payload) (Result, error) {
	start := time.Now()
	result, err := s.queryMetrics(ctx, tenantID, payload)
	s.observe(start, result, err)
	return result, err
}

func (s *Service) queryMetrics(ctx context.Context, tenantID int64, payload Payload) (Result, error) {
	if tenantID <= 0 {
		return Result{}, shared.TenantRequired()
	}
	win, err := validatePayload(s.validate, s.planner.Whitelist(), payload)
	if err != nil {
		return Result{}, err
	}
	if s.brands != nil {
		ok, err := s.brands.BrandBelongsTo(ctx, tenantID, payload.BrandID)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{}, shared.BrandNotFound(payload.BrandID)
		}
	}

	cat, err := s.catalogs.Load(ctx, catalog.Scope{TenantID: tenantID})
	if err != nil {
		return Result{}, err
	}
	defs, err := cat.Resolve(payload.Metrics)
	if err != nil {
		return Result{}, err
	}
	plan, err := s.planner.BuildPlan(defs, cat)
	if err != nil {
		return Result{}, err
	}
	program := formula.Compile(lo.Map(plan.Formulas(), func(spec query.DerivedSpec, _ int) formula.Definition {
		return formula.Definition{Key: spec.Key, Formula: spec.Formula}
	}))

	base := query.Input{
		TenantID:    tenantID,
		BrandID:     payload.BrandID,
		DateFrom:    win.from,
		DateTo:      win.to,
		Dimensions:  payload.Dimensions,
		BaseMetrics: plan.BaseMetrics,
		Requested:   plan.Requested,
		Filters:     payload.Filters,
		Sort:        payload.Sort,
		Pagination:  payload.Pagination,
	}
	baseQuery, err := s.buildQuery(base)
	if err != nil {
		return Result{}, err
	}

	var compareRange *compare.Range
	var compareQuery query.Query
	if payload.CompareTo != nil {
		compareRange = compare.Build(payload.DateRange.Start, payload.DateRange.End, payload.CompareTo.Mode)
	}
	if compareRange != nil {
		cmp := base
		cmp.DateFrom, _ = time.ParseInLocation(compare.DateLayout, compareRange.Start, time.UTC)
		cmp.DateTo, _ = time.ParseInLocation(compare.DateLayout, compareRange.End, time.UTC)
		if compareQuery, err = s.buildQuery(cmp); err != nil {
			return Result{}, err
		}
	}

	var baseAgg, compareAgg Aggregation
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		agg, err := s.aggregate(gctx, tenantID, baseQuery)
		baseAgg = agg
		return err
	})
	if compareRange != nil {
		g.Go(func() error {
			agg, err := s.aggregate(gctx, tenantID, compareQuery)
			compareAgg = agg
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	eval := evaluator{plan: plan, program: program, dims: baseQuery.Dimensions, withSeries: lo.Contains(baseQuery.Dimensions, query.DimensionDate)}
	baseBlock, res, hasMore := eval.run(baseAgg, baseQuery)

	result := Result{
		Meta: Meta{
			GeneratedAt:  s.clock(),
			GenerationID: s.newID(),
			Timezone:     s.timezone,
			Currency:     s.currency,
			DateRange:    compare.Range{Start: payload.DateRange.Start, End: payload.DateRange.End},
			CompareRange: compareRange,
			Dimensions:   baseQuery.Dimensions,
			Metrics:      metricInfos(defs),
			Calculated: Calculated{
				Errors:     program.Errors(),
				Unresolved: res.Unresolved,
			},
		},
		Rows:   baseBlock.Rows,
		Totals: baseBlock.Totals,
		Series: baseBlock.Series,
	}
	if result.Meta.Calculated.Errors == nil {
		result.Meta.Calculated.Errors = []formula.FormulaError{}
	}
	if result.Meta.Calculated.Unresolved == nil {
		result.Meta.Calculated.Unresolved = []string{}
	}
	if compareRange != nil {
		block, _, _ := eval.run(compareAgg, compareQuery)
		result.Compare = &block
	}
	if baseQuery.Paginated {
		result.PageInfo = &PageInfo{Limit: baseQuery.Limit, Offset: baseQuery.Offset, HasMore: hasMore}
	}
	return result, nil
}

// Catalog loads the catalog visible to tenantID.
func (s *Service) Catalog(ctx context.Context, tenantID int64) (catalog.Catalog, error) {
	return s.catalogs.Load(ctx, catalog.Scope{TenantID: tenantID})
}

// buildQuery plans the aggregation for in. A request made only of formulas
// that never reach a stored column has nothing to aggregate; it gets an
// empty query and its formulas resolve against no inputs.
func (s *Service) buildQuery(in query.Input) (query.Query, error) {
	if len(in.BaseMetrics) > 0 {
		return s.planner.BuildQuery(in)
	}
	q := query.Query{Dimensions: lo.Uniq(in.Dimensions)}
	if in.Pagination != nil && in.Pagination.Limit > 0 {
		q.Paginated = true
		q.Limit = in.Pagination.Limit
		q.Offset = in.Pagination.Offset
	}
	return q, nil
}

func (s *Service) aggregate(ctx context.Context, tenantID int64, q query.Query) (Aggregation, error) {
	if len(q.Metrics) == 0 {
		return Aggregation{Rows: []Row{}, Totals: map[string]float64{}}, nil
	}
	agg, err := s.store.Aggregate(ctx, q)
	if err != nil {
		s.logger.Error("aggregate metrics",
			slog.Int64("tenant_id", tenantID),
			slog.Bool("timeout", pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded)),
			slog.Any("error", err))
		return Aggregation{}, err
	}
	return agg, nil
}

func (s *Service) observe(start time.Time, result Result, err error) {
	if s.observer == nil {
		return
	}
	outcome := OutcomeOK
	switch {
	case err == nil:
		s.observer.ObserveUnresolved(len(result.Meta.Calculated.Unresolved))
	case shared.IsClientError(err):
		outcome = OutcomeClientError
	default:
		outcome = OutcomeStoreError
	}
	s.observer.ObserveQuery(outcome, time.Since(start))
}

func metricInfos(defs []catalog.MetricDefinition) []MetricInfo {
	return lo.Map(defs, func(d catalog.MetricDefinition, _ int) MetricInfo {
		return MetricInfo{Key: d.Key, Label: d.Label, DisplayFormat: d.DisplayFormat, Derived: d.IsDerived()}
	})
}
