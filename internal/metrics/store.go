package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/agencyhub/agencyhub/internal/compare"
	"github.com/agencyhub/agencyhub/internal/formula"
	"github.com/agencyhub/agencyhub/internal/platform/db"
	"github.com/agencyhub/agencyhub/internal/query"
)

// Row maps dimension and metric keys to values.
type Row = map[string]any

// Aggregation is the raw result of one planned query: grouped rows (at most
// Limit+1 when paginated) and totals over the full filtered set.
type Aggregation struct {
	Rows   []Row
	Totals map[string]float64
}

// Store runs planned aggregation queries against the fact table.
type Store interface {
	Aggregate(ctx context.Context, q query.Query) (Aggregation, error)
}

// BrandVerifier checks tenant ownership of a brand.
type BrandVerifier interface {
	BrandBelongsTo(ctx context.Context, tenantID, brandID int64) (bool, error)
}

// PGStore aggregates over the daily fact table in Postgres.
type PGStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPGStore constructs a PGStore. A non-positive timeout disables the
// per-aggregation deadline.
func NewPGStore(pool *pgxpool.Pool, timeout time.Duration) *PGStore {
	return &PGStore{pool: pool, timeout: timeout}
}

// Aggregate runs the grouped and totals queries inside one repeatable-read
// transaction so rows and totals observe the same snapshot.
func (s *PGStore) Aggregate(ctx context.Context, q query.Query) (Aggregation, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	var agg Aggregation
	err := db.WithReadOnlyTx(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, q.SQL, q.Args...)
		if err != nil {
			return fmt.Errorf("metrics: aggregate rows: %w", err)
		}
		agg.Rows, err = collectRows(rows, q.Metrics)
		if err != nil {
			return fmt.Errorf("metrics: scan rows: %w", err)
		}

		totals, err := tx.Query(ctx, q.TotalsSQL, q.Args...)
		if err != nil {
			return fmt.Errorf("metrics: aggregate totals: %w", err)
		}
		totalRows, err := collectRows(totals, q.Metrics)
		if err != nil {
			return fmt.Errorf("metrics: scan totals: %w", err)
		}
		agg.Totals = make(map[string]float64, len(q.Metrics))
		for _, m := range q.Metrics {
			agg.Totals[m] = 0
		}
		if len(totalRows) > 0 {
			for _, m := range q.Metrics {
				if v, ok := formula.ToFloat(totalRows[0][m]); ok {
					agg.Totals[m] = v
				}
			}
		}
		return nil
	})
	if err != nil {
		return Aggregation{}, err
	}
	return agg, nil
}

func collectRows(rows pgx.Rows, metricKeys []string) ([]Row, error) {
	defer rows.Close()
	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(Row, len(values))
		for i, fd := range fields {
			key := fd.Name
			if lo.Contains(metricKeys, key) {
				row[key] = metricValue(values[i])
				continue
			}
			row[key] = dimensionValue(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func metricValue(raw any) float64 {
	switch v := raw.(type) {
	case pgtype.Numeric:
		f, err := v.Float64Value()
		if err != nil || !f.Valid {
			return 0
		}
		return f.Float64
	case int16:
		return float64(v)
	default:
		f, _ := formula.ToFloat(v)
		return f
	}
}

func dimensionValue(raw any) any {
	switch v := raw.(type) {
	case time.Time:
		return v.Format(compare.DateLayout)
	case pgtype.Date:
		if !v.Valid {
			return nil
		}
		return v.Time.Format(compare.DateLayout)
	case pgtype.Numeric:
		f, err := v.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return v
	}
}

// PGBrandVerifier checks brand ownership with a single existence query.
type PGBrandVerifier struct {
	pool *pgxpool.Pool
}

// NewPGBrandVerifier constructs a PGBrandVerifier.
func NewPGBrandVerifier(pool *pgxpool.Pool) *PGBrandVerifier {
	return &PGBrandVerifier{pool: pool}
}

const brandExistsSQL = `SELECT EXISTS (
	SELECT 1 FROM brands WHERE id = $1 AND tenant_id = $2 AND archived_at IS NULL
)`

// BrandBelongsTo reports whether brandID is an active brand of tenantID.
func (v *PGBrandVerifier) BrandBelongsTo(ctx context.Context, tenantID, brandID int64) (bool, error) {
	var exists bool
	if err := v.pool.QueryRow(ctx, brandExistsSQL, brandID, tenantID).Scan(&exists); err != nil {
		return false, fmt.Errorf("metrics: verify brand: %w", err)
	}
	return exists, nil
}
