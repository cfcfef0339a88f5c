package patient

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

const patCols = `id, clinic_id, location, first_name, last_name, date_of_birth, gender,
	phone, allergies, family_id, is_independent, separation_date, created_at, updated_at`

// allocateClinicID takes the next sequence value for the location under a row
// lock, so two registration stations can never mint the same chart number.
func (r *repoPG) allocateClinicID(ctx context.Context, location string) (string, error) {
	q := r.conn(ctx)

	_, err := q.Exec(ctx, `
		INSERT INTO id_sequences (location, next_seq) VALUES ($1, 1)
		ON CONFLICT (location) DO NOTHING`, location)
	if err != nil {
		return "", err
	}

	var seq int
	err = q.QueryRow(ctx, `
		UPDATE id_sequences SET next_seq = next_seq + 1
		WHERE location = $1
		RETURNING next_seq - 1`, location).Scan(&seq)
	if err != nil {
		return "", err
	}

	if seq > MaxSequence {
		return "", fmt.Errorf("%w: %s", ErrSequenceExhausted, location)
	}

	return fmt.Sprintf("%s%05d", location, seq), nil
}

func (r *repoPG) Create(ctx context.Context, pat *Patient) error {
	pat.ID = uuid.New()

	clinicID, err := r.allocateClinicID(ctx, pat.Location)
	if err != nil {
		return err
	}
	pat.ClinicID = clinicID

	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (
			id, clinic_id, location, first_name, last_name, date_of_birth, gender,
			phone, allergies, family_id, is_independent, separation_date
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		pat.ID, pat.ClinicID, pat.Location, pat.FirstName, pat.LastName, pat.DateOfBirth, pat.Gender,
		pat.Phone, pat.Allergies, pat.FamilyID, pat.IsIndependent, pat.SeparationDate,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPat(r.conn(ctx).QueryRow(ctx, `SELECT `+patCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) GetByClinicID(ctx context.Context, clinicID string) (*Patient, error) {
	return scanPat(r.conn(ctx).QueryRow(ctx, `SELECT `+patCols+` FROM patients WHERE clinic_id = $1`, clinicID))
}

func (r *repoPG) Update(ctx context.Context, pat *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET
			first_name=$2, last_name=$3, date_of_birth=$4, gender=$5,
			phone=$6, allergies=$7, family_id=$8, is_independent=$9,
			separation_date=$10, updated_at=NOW()
		WHERE id = $1`,
		pat.ID, pat.FirstName, pat.LastName, pat.DateOfBirth, pat.Gender,
		pat.Phone, pat.Allergies, pat.FamilyID, pat.IsIndependent,
		pat.SeparationDate,
	)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patCols+` FROM patients ORDER BY clinic_id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectPats(rows, total)
}

func (r *repoPG) SearchByName(ctx context.Context, name string, limit, offset int) ([]*Patient, int, error) {
	pattern := "%" + name + "%"

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patients WHERE first_name ILIKE $1 OR last_name ILIKE $1`,
		pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patCols+` FROM patients
		 WHERE first_name ILIKE $1 OR last_name ILIKE $1
		 ORDER BY last_name, first_name LIMIT $2 OFFSET $3`,
		pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectPats(rows, total)
}

func (r *repoPG) ListByFamily(ctx context.Context, familyID uuid.UUID) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patCols+` FROM patients p
		WHERE p.family_id = $1
		ORDER BY (p.id = (SELECT head_patient_id FROM families WHERE id = $1)) DESC,
		         p.clinic_id ASC`, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pats []*Patient
	for rows.Next() {
		p, err := scanPatRows(rows)
		if err != nil {
			return nil, err
		}
		pats = append(pats, p)
	}
	return pats, rows.Err()
}

func scanPat(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.ClinicID, &p.Location, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
		&p.Phone, &p.Allergies, &p.FamilyID, &p.IsIndependent, &p.SeparationDate,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPatRows(rows pgx.Rows) (*Patient, error) {
	var p Patient
	err := rows.Scan(
		&p.ID, &p.ClinicID, &p.Location, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
		&p.Phone, &p.Allergies, &p.FamilyID, &p.IsIndependent, &p.SeparationDate,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPats(rows pgx.Rows, total int) ([]*Patient, int, error) {
	var pats []*Patient
	for rows.Next() {
		p, err := scanPatRows(rows)
		if err != nil {
			return nil, 0, err
		}
		pats = append(pats, p)
	}
	return pats, total, rows.Err()
}
