package family

import (
	"context"
	"fmt"

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

const famCols = `id, family_name, head_patient_id, address, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, f *Family) error {
	f.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO families (id, family_name, head_patient_id, address)
		VALUES ($1,$2,$3,$4)`,
		f.ID, f.FamilyName, f.HeadPatientID, f.Address,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Family, error) {
	var f Family
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+famCols+` FROM families WHERE id = $1`, id).
		Scan(&f.ID, &f.FamilyName, &f.HeadPatientID, &f.Address, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *repoPG) Update(ctx context.Context, f *Family) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE families SET family_name=$2, head_patient_id=$3, address=$4, updated_at=NOW()
		WHERE id = $1`,
		f.ID, f.FamilyName, f.HeadPatientID, f.Address,
	)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Family, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM families`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+famCols+` FROM families ORDER BY family_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var fams []*Family
	for rows.Next() {
		var f Family
		if err := rows.Scan(&f.ID, &f.FamilyName, &f.HeadPatientID, &f.Address, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, 0, err
		}
		fams = append(fams, &f)
	}
	return fams, total, rows.Err()
}

func (r *repoPG) AddMember(ctx context.Context, familyID, patientID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patients SET family_id = $1, updated_at=NOW() WHERE id = $2`, familyID, patientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("patient %s not found", patientID)
	}
	return nil
}

func (r *repoPG) RemoveMember(ctx context.Context, familyID, patientID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patients SET family_id = NULL, updated_at=NOW()
		 WHERE id = $1 AND family_id = $2`, patientID, familyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("patient %s is not a member of family %s", patientID, familyID)
	}
	return nil
}
