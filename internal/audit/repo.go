package audit

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs from postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// The upper bound is a date; records on that day are included.
const timelineSelect = `SELECT a.occurred_at, u.email, a.action, a.client_ip, a.meta
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_id
WHERE ($1::timestamptz IS NULL OR a.occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR a.occurred_at < $2 + interval '1 day')
  AND ($3::text IS NULL OR u.email = $3)
  AND ($4::text IS NULL OR a.action = $4)
ORDER BY a.occurred_at DESC, a.id DESC`

// TimelineWindow returns one page of records.
func (r *PGRepository) TimelineWindow(ctx context.Context, arg WindowParams) ([]Record, error) {
	rows, err := r.pool.Query(ctx, timelineSelect+` LIMIT $5 OFFSET $6`,
		arg.FromAt, arg.ToAt, arg.Actor, arg.Action, arg.LimitRows, arg.OffsetRows)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// TimelineAll returns every matching record.
func (r *PGRepository) TimelineAll(ctx context.Context, arg AllParams) ([]Record, error) {
	rows, err := r.pool.Query(ctx, timelineSelect, arg.FromAt, arg.ToAt, arg.Actor, arg.Action)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Record, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.At, &rec.Actor, &rec.Action, &rec.ClientIP, &rec.Meta)
		return rec, err
	})
}
