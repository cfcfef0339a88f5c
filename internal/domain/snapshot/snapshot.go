// Package snapshot stores suspended consultation state. When a doctor pauses
// a consultation to send the patient to the lab, the station's working state
// (draft prescription lines, pending lab kinds, assessment text) is saved
// here verbatim and restored byte-for-byte on resume.
package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Snapshot is the suspended working state of one consultation. One row per
// visit at a time; Save overwrites.
type Snapshot struct {
	VisitID uuid.UUID       `db:"visit_id" json:"visit_id"`
	Payload json.RawMessage `db:"payload" json:"payload"`
	SavedAt time.Time       `db:"saved_at" json:"saved_at"`
	SavedBy string          `db:"saved_by" json:"saved_by"`
}

// Repository is the snapshot store contract. Load returns the payload exactly
// as saved; Clear is called once the resuming doctor has consumed it.
type Repository interface {
	Save(ctx context.Context, s *Snapshot) error
	Load(ctx context.Context, visitID uuid.UUID) (*Snapshot, error)
	Clear(ctx context.Context, visitID uuid.UUID) error
}
