package family

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/parakaleomed/clinic/internal/domain/patient"
)

type Service struct {
	repo     Repository
	patients patient.Repository
}

func NewService(repo Repository, patients patient.Repository) *Service {
	return &Service{repo: repo, patients: patients}
}

func (s *Service) CreateFamily(ctx context.Context, f *Family) error {
	if f.FamilyName == "" {
		return fmt.Errorf("family_name is required")
	}
	return s.repo.Create(ctx, f)
}

func (s *Service) GetFamily(ctx context.Context, id uuid.UUID) (*Family, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateFamily(ctx context.Context, f *Family) error {
	if f.FamilyName == "" {
		return fmt.Errorf("family_name is required")
	}
	return s.repo.Update(ctx, f)
}

func (s *Service) ListFamilies(ctx context.Context, limit, offset int) ([]*Family, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Members returns the family's patients in consultation order: head of
// household first, then the rest by registration order.
func (s *Service) Members(ctx context.Context, familyID uuid.UUID) ([]*patient.Patient, error) {
	if _, err := s.repo.GetByID(ctx, familyID); err != nil {
		return nil, fmt.Errorf("family not found: %w", err)
	}
	return s.patients.ListByFamily(ctx, familyID)
}

func (s *Service) AddMember(ctx context.Context, familyID, patientID uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, familyID); err != nil {
		return fmt.Errorf("family not found: %w", err)
	}
	return s.repo.AddMember(ctx, familyID, patientID)
}

func (s *Service) RemoveMember(ctx context.Context, familyID, patientID uuid.UUID) error {
	f, err := s.repo.GetByID(ctx, familyID)
	if err != nil {
		return fmt.Errorf("family not found: %w", err)
	}
	if err := s.repo.RemoveMember(ctx, familyID, patientID); err != nil {
		return err
	}
	// A departing head leaves the family headless until corrected.
	if f.HeadPatientID != nil && *f.HeadPatientID == patientID {
		f.HeadPatientID = nil
		return s.repo.Update(ctx, f)
	}
	return nil
}
