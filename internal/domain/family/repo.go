package family

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, f *Family) error
	GetByID(ctx context.Context, id uuid.UUID) (*Family, error)
	Update(ctx context.Context, f *Family) error
	List(ctx context.Context, limit, offset int) ([]*Family, int, error)

	// AddMember sets the patient's family link; a patient belongs to at most
	// one family, so any prior membership is replaced.
	AddMember(ctx context.Context, familyID, patientID uuid.UUID) error
	RemoveMember(ctx context.Context, familyID, patientID uuid.UUID) error
}
