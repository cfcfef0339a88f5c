package prescription

import (
	"time"

	"github.com/google/uuid"
)

// Line statuses. A line is born draft inside a consultation snapshot, becomes
// pending (or awaiting lab approval, when gated) on submission, and ends
// filled at the pharmacy window.
const (
	StatusDraft       = "draft"
	StatusPending     = "pending"
	StatusAwaitingLab = "awaiting_lab_approval"
	StatusReady       = "ready"
	StatusFilled      = "filled"
)

// Line is one medication decision within a visit. RequiresLab lines cannot
// reach ready until the visit's gating lab order carries a doctor disposition.
type Line struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	VisitID     uuid.UUID  `db:"visit_id" json:"visit_id"`
	Drug        string     `db:"drug" json:"drug"`
	Dosage      string     `db:"dosage" json:"dosage"`
	Frequency   string     `db:"frequency" json:"frequency"`
	Indication  string     `db:"indication" json:"indication,omitempty"`
	RequiresLab bool       `db:"requires_lab" json:"requires_lab"`
	Status      string     `db:"status" json:"status"`
	FilledAt    *time.Time `db:"filled_at" json:"filled_at,omitempty"`
	FilledBy    *string    `db:"filled_by" json:"filled_by,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// PresetMedication is a formulary entry doctor stations pick from. Dosages
// lists the stocked strengths; lines created from a preset inherit its
// RequiresLab flag.
type PresetMedication struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Dosages     string    `db:"dosages" json:"dosages"`
	Category    string    `db:"category" json:"category"`
	RequiresLab bool      `db:"requires_lab" json:"requires_lab"`
}
