package visit

import (
	"context"
	"encoding/json"
	"strings"

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

const visitCols = `id, patient_id, stage, priority, return_reason, family_group_id,
	sequence, vitals, triaged_at, archive_reason, created_at, updated_at`

// Queue ordering: lab returns jump the line, then priority cases, then
// first-triaged first-seen.
const queueOrder = `ORDER BY (return_reason IS NOT NULL) DESC, priority DESC,
	COALESCE(triaged_at, created_at) ASC`

func (r *repoPG) Create(ctx context.Context, v *Visit) error {
	v.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO visits (id, patient_id, stage, priority, family_group_id, vitals)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING sequence, created_at, updated_at`,
		v.ID, v.PatientID, v.Stage, v.Priority, v.FamilyGroupID, vitalsParam(v.Vitals),
	).Scan(&v.Sequence, &v.CreatedAt, &v.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return scanVisit(r.conn(ctx).QueryRow(ctx,
		`SELECT `+visitCols+` FROM visits WHERE id = $1`, id))
}

func (r *repoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return scanVisit(r.conn(ctx).QueryRow(ctx,
		`SELECT `+visitCols+` FROM visits WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) Update(ctx context.Context, v *Visit) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE visits SET
			stage=$2, priority=$3, return_reason=$4, family_group_id=$5,
			vitals=$6, triaged_at=$7, archive_reason=$8,
			sequence = sequence + 1, updated_at=NOW()
		WHERE id = $1
		RETURNING sequence, updated_at`,
		v.ID, v.Stage, v.Priority, v.ReturnReason, v.FamilyGroupID,
		vitalsParam(v.Vitals), v.TriagedAt, v.ArchiveReason,
	).Scan(&v.Sequence, &v.UpdatedAt)
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Visit, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM visits`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+visitCols+` FROM visits ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	visits, err := collectVisits(rows)
	return visits, total, err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Visit, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+visitCols+` FROM visits WHERE patient_id = $1 ORDER BY created_at DESC`,
		patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVisits(rows)
}

func (r *repoPG) DoctorQueue(ctx context.Context) ([]*Visit, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+visitCols+` FROM visits
		WHERE stage = 'triaged'
		   OR (stage = 'in_consultation' AND return_reason IS NOT NULL)
		`+queueOrder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVisits(rows)
}

func (r *repoPG) PharmacyQueue(ctx context.Context) ([]*Visit, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+visitCols+` FROM visits
		WHERE stage IN ('pharmacy_pending', 'pharmacy_awaiting_lab_approval')
		`+queueOrder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVisits(rows)
}

func (r *repoPG) ListByFamilyGroup(ctx context.Context, groupID uuid.UUID) ([]*Visit, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+qualify(visitCols, "v")+` FROM visits v
		JOIN patients p ON p.id = v.patient_id
		WHERE v.family_group_id = $1
		ORDER BY (p.id = (SELECT head_patient_id FROM families WHERE id = p.family_id)) DESC,
		         p.clinic_id ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVisits(rows)
}

const labCols = `id, visit_id, kind, ordered_at, result, disposition, completed_at`

func (r *repoPG) AddLabOrder(ctx context.Context, o *LabOrder) error {
	o.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_orders (id, visit_id, kind) VALUES ($1,$2,$3)
		RETURNING ordered_at`,
		o.ID, o.VisitID, o.Kind,
	).Scan(&o.OrderedAt)
}

func (r *repoPG) GetLabOrder(ctx context.Context, id uuid.UUID) (*LabOrder, error) {
	return scanLab(r.conn(ctx).QueryRow(ctx,
		`SELECT `+labCols+` FROM lab_orders WHERE id = $1`, id))
}

func (r *repoPG) ListLabOrders(ctx context.Context, visitID uuid.UUID) ([]*LabOrder, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+labCols+` FROM lab_orders WHERE visit_id = $1 ORDER BY ordered_at ASC`,
		visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLabs(rows)
}

// CompleteLabOrder only writes if no result has landed yet, so a duplicate
// submission from the lab station cannot clobber the first recorded result.
func (r *repoPG) CompleteLabOrder(ctx context.Context, id uuid.UUID, result []byte) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE lab_orders SET result = $2, completed_at = NOW()
		WHERE id = $1 AND completed_at IS NULL`,
		id, json.RawMessage(result))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) SetLabDisposition(ctx context.Context, id uuid.UUID, disposition string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE lab_orders SET disposition = $2 WHERE id = $1`, id, disposition)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) CountIncomplete(ctx context.Context, visitID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM lab_orders WHERE visit_id = $1 AND completed_at IS NULL`,
		visitID).Scan(&n)
	return n, err
}

func (r *repoPG) PendingLabQueue(ctx context.Context) ([]*LabOrder, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+labCols+` FROM lab_orders WHERE completed_at IS NULL ORDER BY ordered_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLabs(rows)
}

func vitalsParam(v *Vitals) interface{} {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	var vitals []byte
	err := row.Scan(
		&v.ID, &v.PatientID, &v.Stage, &v.Priority, &v.ReturnReason, &v.FamilyGroupID,
		&v.Sequence, &vitals, &v.TriagedAt, &v.ArchiveReason, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(vitals) > 0 {
		v.Vitals = &Vitals{}
		if err := json.Unmarshal(vitals, v.Vitals); err != nil {
			return nil, err
		}
	}
	return &v, nil
}

func collectVisits(rows pgx.Rows) ([]*Visit, error) {
	var visits []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

func scanLab(row pgx.Row) (*LabOrder, error) {
	var o LabOrder
	err := row.Scan(&o.ID, &o.VisitID, &o.Kind, &o.OrderedAt, &o.Result, &o.Disposition, &o.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func collectLabs(rows pgx.Rows) ([]*LabOrder, error) {
	var orders []*LabOrder
	for rows.Next() {
		o, err := scanLab(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// qualify prefixes each column in cols with the given table alias.
func qualify(cols, alias string) string {
	fields := strings.Split(cols, ",")
	for i, f := range fields {
		fields[i] = alias + "." + strings.TrimSpace(f)
	}
	return strings.Join(fields, ", ")
}
