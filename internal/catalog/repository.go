package catalog

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads calculated metric definitions from Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs the repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Global rows come first so tenant rows override them when layered.
const listDefinitionsSQL = `
SELECT key, label, display_format, formula, required_fields, kind
FROM metric_definitions
WHERE (tenant_id IS NULL OR tenant_id = $1)
  AND ($2::text IS NULL OR source IS NULL OR source = $2)
  AND ($3::text IS NULL OR level IS NULL OR level = $3)
  AND archived_at IS NULL
ORDER BY tenant_id NULLS FIRST, key`

// ListDefinitions implements Repository.
func (r *PGRepository) ListDefinitions(ctx context.Context, scope Scope) ([]MetricDefinition, error) {
	rows, err := r.pool.Query(ctx, listDefinitionsSQL, scope.TenantID, nullableText(scope.Source), nullableText(scope.Level))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []MetricDefinition
	for rows.Next() {
		var (
			def      MetricDefinition
			format   string
			formula  pgtype.Text
			required []string
			kind     pgtype.Text
		)
		if err := rows.Scan(&def.Key, &def.Label, &format, &formula, &required, &kind); err != nil {
			return nil, err
		}
		def.DisplayFormat = DisplayFormat(format)
		if formula.Valid {
			def.Formula = strPtr(formula.String)
		}
		def.RequiredFields = required
		if kind.Valid {
			def.Kind = DerivedKind(kind.String)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return defs, nil
}

func nullableText(v string) pgtype.Text {
	if v == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: v, Valid: true}
}
