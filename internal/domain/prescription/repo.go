package prescription

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence contract for the prescription ledger and the
// preset formulary. Implementations must honor a transaction carried by ctx.
type Repository interface {
	CreateLines(ctx context.Context, lines []*Line) error
	GetLine(ctx context.Context, id uuid.UUID) (*Line, error)
	ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*Line, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	// MarkFilled flips a line to filled exactly once. Returns (false, nil)
	// when the line is already filled.
	MarkFilled(ctx context.Context, id uuid.UUID, station string) (bool, error)
	// ListGated returns the visit's lines still awaiting lab approval.
	ListGated(ctx context.Context, visitID uuid.UUID) ([]*Line, error)
	// AllReady reports whether every line on the visit is fillable (no
	// drafts, nothing awaiting lab approval).
	AllReady(ctx context.Context, visitID uuid.UUID) (bool, error)
	// AllFilled reports whether every line on the visit is filled.
	AllFilled(ctx context.Context, visitID uuid.UUID) (bool, error)

	ListFormulary(ctx context.Context) ([]*PresetMedication, error)
}
