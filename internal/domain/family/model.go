package family

import (
	"time"

	"github.com/google/uuid"
)

// Family maps to the families table. HeadPatientID marks the head of
// household, who is consulted first in a family session.
type Family struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	FamilyName    string     `db:"family_name" json:"family_name"`
	HeadPatientID *uuid.UUID `db:"head_patient_id" json:"head_patient_id,omitempty"`
	Address       *string    `db:"address" json:"address,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}
