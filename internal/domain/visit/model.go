package visit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Visit maps to the visits table: one clinical encounter for one patient,
// tracked through the workflow stages. Sequence is a per-visit counter bumped
// on every accepted transition; change events carry it so stations can detect
// missed updates.
type Visit struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	Stage         string     `db:"stage" json:"stage"`
	Priority      bool       `db:"priority" json:"priority"`
	ReturnReason  *string    `db:"return_reason" json:"return_reason,omitempty"`
	FamilyGroupID *uuid.UUID `db:"family_group_id" json:"family_group_id,omitempty"`
	Sequence      int64      `db:"sequence" json:"sequence"`
	Vitals        *Vitals    `db:"vitals" json:"vitals,omitempty"`
	TriagedAt     *time.Time `db:"triaged_at" json:"triaged_at,omitempty"`
	ArchiveReason *string    `db:"archive_reason" json:"archive_reason,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Vitals is the triage measurement set, stored as jsonb on the visit.
type Vitals struct {
	TemperatureC  *float64 `json:"temperature_c,omitempty"`
	BloodPressure *string  `json:"blood_pressure,omitempty"`
	PulseBPM      *int     `json:"pulse_bpm,omitempty"`
	WeightKG      *float64 `json:"weight_kg,omitempty"`
	ChiefConcern  *string  `json:"chief_concern,omitempty"`
}

// Lab order kinds offered by the field lab.
const (
	LabUrinalysis = "urinalysis"
	LabGlucose    = "glucose"
	LabPregnancy  = "pregnancy"
)

// ValidLabKind reports whether kind names a test the lab can run.
func ValidLabKind(kind string) bool {
	switch kind {
	case LabUrinalysis, LabGlucose, LabPregnancy:
		return true
	}
	return false
}

// Dispositions a doctor can record on a completed lab order.
const (
	DispositionReturnToProvider = "return_to_provider"
	DispositionTreatPerProtocol = "treat_per_protocol"
)

// ValidDisposition reports whether d is a recognized lab disposition.
func ValidDisposition(d string) bool {
	return d == DispositionReturnToProvider || d == DispositionTreatPerProtocol
}

// LabOrder maps to the lab_orders table. Result holds the test-specific
// structured fields as recorded by the lab station.
type LabOrder struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	VisitID     uuid.UUID       `db:"visit_id" json:"visit_id"`
	Kind        string          `db:"kind" json:"kind"`
	OrderedAt   time.Time       `db:"ordered_at" json:"ordered_at"`
	Result      json.RawMessage `db:"result" json:"result,omitempty"`
	Disposition *string         `db:"disposition" json:"disposition,omitempty"`
	CompletedAt *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// Completed reports whether the order has a recorded result.
func (o *LabOrder) Completed() bool {
	return o.CompletedAt != nil
}
