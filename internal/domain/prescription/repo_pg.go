package prescription

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
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const lineCols = `id, visit_id, drug, dosage, frequency, indication, requires_lab,
	status, filled_at, filled_by, created_at, updated_at`

func (r *repoPG) CreateLines(ctx context.Context, lines []*Line) error {
	q := r.conn(ctx)
	for _, l := range lines {
		l.ID = uuid.New()
		err := q.QueryRow(ctx, `
			INSERT INTO prescription_lines (
				id, visit_id, drug, dosage, frequency, indication, requires_lab, status
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING created_at, updated_at`,
			l.ID, l.VisitID, l.Drug, l.Dosage, l.Frequency, l.Indication,
			l.RequiresLab, l.Status,
		).Scan(&l.CreatedAt, &l.UpdatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) GetLine(ctx context.Context, id uuid.UUID) (*Line, error) {
	return scanLine(r.conn(ctx).QueryRow(ctx,
		`SELECT `+lineCols+` FROM prescription_lines WHERE id = $1`, id))
}

func (r *repoPG) ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*Line, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+lineCols+` FROM prescription_lines WHERE visit_id = $1 ORDER BY created_at ASC`,
		visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLines(rows)
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE prescription_lines SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// MarkFilled is the durable half of the at-most-once guarantee: the WHERE
// clause loses the race for any line already filled, whatever in-process
// locking did or did not happen first.
func (r *repoPG) MarkFilled(ctx context.Context, id uuid.UUID, station string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescription_lines
		SET status = 'filled', filled_at = NOW(), filled_by = $2, updated_at = NOW()
		WHERE id = $1 AND status <> 'filled'`,
		id, station)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) ListGated(ctx context.Context, visitID uuid.UUID) ([]*Line, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+lineCols+` FROM prescription_lines
		WHERE visit_id = $1 AND status = 'awaiting_lab_approval'
		ORDER BY created_at ASC`, visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLines(rows)
}

// AllReady reports whether every line is fillable: nothing still drafted and
// nothing gated behind a lab approval.
func (r *repoPG) AllReady(ctx context.Context, visitID uuid.UUID) (bool, error) {
	var blocked int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM prescription_lines
		WHERE visit_id = $1 AND status IN ('draft', 'awaiting_lab_approval')`,
		visitID).Scan(&blocked)
	return blocked == 0, err
}

func (r *repoPG) AllFilled(ctx context.Context, visitID uuid.UUID) (bool, error) {
	var unfilled int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM prescription_lines
		WHERE visit_id = $1 AND status <> 'filled'`,
		visitID).Scan(&unfilled)
	return unfilled == 0, err
}

func (r *repoPG) ListFormulary(ctx context.Context) ([]*PresetMedication, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, name, dosages, category, requires_lab
		FROM preset_medications WHERE active ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meds []*PresetMedication
	for rows.Next() {
		var m PresetMedication
		if err := rows.Scan(&m.ID, &m.Name, &m.Dosages, &m.Category, &m.RequiresLab); err != nil {
			return nil, err
		}
		meds = append(meds, &m)
	}
	return meds, rows.Err()
}

func scanLine(row pgx.Row) (*Line, error) {
	var l Line
	err := row.Scan(
		&l.ID, &l.VisitID, &l.Drug, &l.Dosage, &l.Frequency, &l.Indication,
		&l.RequiresLab, &l.Status, &l.FilledAt, &l.FilledBy, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func collectLines(rows pgx.Rows) ([]*Line, error) {
	var lines []*Line
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
