package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patients table. ClinicID is the human-facing identifier
// written on the paper chart (location prefix + five-digit sequence, e.g.
// DR00001); ID is the row key everything else references.
type Patient struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ClinicID       string     `db:"clinic_id" json:"clinic_id"`
	Location       string     `db:"location" json:"location"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	DateOfBirth    *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender         *string    `db:"gender" json:"gender,omitempty"`
	Phone          *string    `db:"phone" json:"phone,omitempty"`
	Allergies      *string    `db:"allergies" json:"allergies,omitempty"`
	FamilyID       *uuid.UUID `db:"family_id" json:"family_id,omitempty"`
	IsIndependent  bool       `db:"is_independent" json:"is_independent"`
	SeparationDate *time.Time `db:"separation_date" json:"separation_date,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// MaxSequence is the largest per-location sequence a clinic ID can carry.
// Allocation past it fails loudly rather than wrapping back to 00001.
const MaxSequence = 99999
