package patient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock Repository --

type mockRepo struct {
	patients map[uuid.UUID]*Patient
	seqs     map[string]int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		patients: make(map[uuid.UUID]*Patient),
		seqs:     make(map[string]int),
	}
}

func (m *mockRepo) Create(_ context.Context, pat *Patient) error {
	m.seqs[pat.Location]++
	seq := m.seqs[pat.Location]
	if seq > MaxSequence {
		return fmt.Errorf("%w: %s", ErrSequenceExhausted, pat.Location)
	}
	pat.ID = uuid.New()
	pat.ClinicID = fmt.Sprintf("%s%05d", pat.Location, seq)
	pat.CreatedAt = time.Now()
	pat.UpdatedAt = time.Now()
	m.patients[pat.ID] = pat
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	pat, ok := m.patients[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return pat, nil
}

func (m *mockRepo) GetByClinicID(_ context.Context, clinicID string) (*Patient, error) {
	for _, pat := range m.patients {
		if pat.ClinicID == clinicID {
			return pat, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockRepo) Update(_ context.Context, pat *Patient) error {
	m.patients[pat.ID] = pat
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.patients, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, pat := range m.patients {
		result = append(result, pat)
	}
	return result, len(result), nil
}

func (m *mockRepo) SearchByName(_ context.Context, name string, limit, offset int) ([]*Patient, int, error) {
	return m.List(context.Background(), limit, offset)
}

func (m *mockRepo) ListByFamily(_ context.Context, familyID uuid.UUID) ([]*Patient, error) {
	var result []*Patient
	for _, pat := range m.patients {
		if pat.FamilyID != nil && *pat.FamilyID == familyID {
			result = append(result, pat)
		}
	}
	return result, nil
}

// -- Tests --

func TestCreatePatient_AllocatesClinicID(t *testing.T) {
	svc := NewService(newMockRepo(), "DR")

	pat := &Patient{FirstName: "Ana", LastName: "Reyes"}
	if err := svc.CreatePatient(context.Background(), pat); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pat.ClinicID != "DR00001" {
		t.Errorf("expected clinic ID DR00001, got %s", pat.ClinicID)
	}
	if pat.ID == uuid.Nil {
		t.Error("expected row ID to be set")
	}

	second := &Patient{FirstName: "Luis", LastName: "Reyes"}
	if err := svc.CreatePatient(context.Background(), second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ClinicID != "DR00002" {
		t.Errorf("expected clinic ID DR00002, got %s", second.ClinicID)
	}
}

func TestCreatePatient_PerLocationSequences(t *testing.T) {
	svc := NewService(newMockRepo(), "DR")

	first := &Patient{FirstName: "Ana", LastName: "Reyes"}
	if err := svc.CreatePatient(context.Background(), first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	other := &Patient{FirstName: "Jean", LastName: "Baptiste", Location: "H"}
	if err := svc.CreatePatient(context.Background(), other); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if other.ClinicID != "H00001" {
		t.Errorf("expected H location to start its own sequence, got %s", other.ClinicID)
	}
}

func TestCreatePatient_RequiresName(t *testing.T) {
	svc := NewService(newMockRepo(), "DR")

	if err := svc.CreatePatient(context.Background(), &Patient{LastName: "Reyes"}); err == nil {
		t.Error("expected error for missing first_name")
	}
	if err := svc.CreatePatient(context.Background(), &Patient{FirstName: "Ana"}); err == nil {
		t.Error("expected error for missing last_name")
	}
}

func TestSeparatePatient(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, "DR")

	familyID := uuid.New()
	pat := &Patient{FirstName: "Rosa", LastName: "Reyes", FamilyID: &familyID}
	if err := svc.CreatePatient(context.Background(), pat); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	separated, err := svc.SeparatePatient(context.Background(), pat.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if separated.FamilyID != nil {
		t.Error("expected family link to be cleared")
	}
	if !separated.IsIndependent {
		t.Error("expected patient to be independent")
	}
	if separated.SeparationDate == nil {
		t.Error("expected separation date to be recorded")
	}

	// Separating again is an error: no family to leave.
	if _, err := svc.SeparatePatient(context.Background(), pat.ID); err == nil {
		t.Error("expected error separating a patient with no family")
	}
}
