package snapshot

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parakaleomed/clinic/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// Save upserts; repeated pauses on the same visit overwrite, last write wins.
func (r *repoPG) Save(ctx context.Context, s *Snapshot) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consultation_snapshots (visit_id, payload, saved_by, saved_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (visit_id) DO UPDATE
			SET payload = EXCLUDED.payload,
			    saved_by = EXCLUDED.saved_by,
			    saved_at = NOW()
		RETURNING saved_at`,
		s.VisitID, s.Payload, s.SavedBy,
	).Scan(&s.SavedAt)
}

func (r *repoPG) Load(ctx context.Context, visitID uuid.UUID) (*Snapshot, error) {
	var s Snapshot
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT visit_id, payload, saved_at, saved_by
		FROM consultation_snapshots WHERE visit_id = $1`,
		visitID).Scan(&s.VisitID, &s.Payload, &s.SavedAt, &s.SavedBy)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) Clear(ctx context.Context, visitID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM consultation_snapshots WHERE visit_id = $1`, visitID)
	return err
}
