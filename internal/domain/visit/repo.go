package visit

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence contract for visits and their lab orders.
// Implementations must honor the transaction already carried by ctx when
// one is present.
type Repository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	// GetByIDForUpdate locks the visit row for the duration of the ambient
	// transaction. Callers must be inside one.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Visit, error)
	// Update persists the mutable fields and bumps the visit's sequence
	// counter, writing the new value back into v.
	Update(ctx context.Context, v *Visit) error

	List(ctx context.Context, limit, offset int) ([]*Visit, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Visit, error)
	// DoctorQueue returns visits waiting for a provider, ordered: lab
	// returns first, then priority, then triage-time FIFO.
	DoctorQueue(ctx context.Context) ([]*Visit, error)
	// PharmacyQueue returns visits waiting at pharmacy, same ordering.
	PharmacyQueue(ctx context.Context) ([]*Visit, error)
	// ListByFamilyGroup returns the group's active visits, head of family
	// first, then by clinic ID.
	ListByFamilyGroup(ctx context.Context, groupID uuid.UUID) ([]*Visit, error)

	AddLabOrder(ctx context.Context, o *LabOrder) error
	GetLabOrder(ctx context.Context, id uuid.UUID) (*LabOrder, error)
	ListLabOrders(ctx context.Context, visitID uuid.UUID) ([]*LabOrder, error)
	// CompleteLabOrder records a result on an open order. Returns
	// (false, nil) if the order was already completed.
	CompleteLabOrder(ctx context.Context, id uuid.UUID, result []byte) (bool, error)
	SetLabDisposition(ctx context.Context, id uuid.UUID, disposition string) error
	// CountIncomplete counts the visit's lab orders with no result yet.
	CountIncomplete(ctx context.Context, visitID uuid.UUID) (int, error)
	// PendingLabQueue returns incomplete lab orders across all visits,
	// oldest first.
	PendingLabQueue(ctx context.Context) ([]*LabOrder, error)
}
