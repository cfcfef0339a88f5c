package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo            Repository
	defaultLocation string
}

func NewService(repo Repository, defaultLocation string) *Service {
	return &Service{repo: repo, defaultLocation: defaultLocation}
}

func (s *Service) CreatePatient(ctx context.Context, pat *Patient) error {
	if pat.FirstName == "" {
		return fmt.Errorf("first_name is required")
	}
	if pat.LastName == "" {
		return fmt.Errorf("last_name is required")
	}
	if pat.Location == "" {
		pat.Location = s.defaultLocation
	}
	return s.repo.Create(ctx, pat)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetPatientByClinicID(ctx context.Context, clinicID string) (*Patient, error) {
	return s.repo.GetByClinicID(ctx, clinicID)
}

func (s *Service) UpdatePatient(ctx context.Context, pat *Patient) error {
	if pat.FirstName == "" || pat.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	return s.repo.Update(ctx, pat)
}

// SeparatePatient detaches a now-adult patient from their family. The family
// link is cleared and the separation date recorded; visits already grouped
// under a family session keep their group.
func (s *Service) SeparatePatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	pat, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pat.FamilyID == nil {
		return nil, fmt.Errorf("patient %s is not in a family", pat.ClinicID)
	}

	now := time.Now().UTC()
	pat.FamilyID = nil
	pat.IsIndependent = true
	pat.SeparationDate = &now

	if err := s.repo.Update(ctx, pat); err != nil {
		return nil, err
	}
	return pat, nil
}

// DeletePatient cascade-deletes a patient and their dependent records. Admin
// correction path only; normal completion archives visits instead.
func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) SearchPatients(ctx context.Context, name string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.SearchByName(ctx, name, limit, offset)
}
