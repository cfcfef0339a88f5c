package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrSequenceExhausted is returned when a location's clinic ID sequence has
// reached MaxSequence.
var ErrSequenceExhausted = errors.New("clinic id sequence exhausted for location")

type Repository interface {
	// Create allocates the next clinic ID for pat.Location and inserts the
	// row. Allocation and insert share the ambient transaction when one is
	// present.
	Create(ctx context.Context, pat *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByClinicID(ctx context.Context, clinicID string) (*Patient, error)
	Update(ctx context.Context, pat *Patient) error
	// Delete removes the patient and, by cascade, every visit, lab order,
	// prescription line, and snapshot that references them.
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	SearchByName(ctx context.Context, name string, limit, offset int) ([]*Patient, int, error)
	ListByFamily(ctx context.Context, familyID uuid.UUID) ([]*Patient, error)
}
