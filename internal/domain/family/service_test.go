package family

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/parakaleomed/clinic/internal/domain/patient"
)

// -- Mocks --

type mockFamilyRepo struct {
	families map[uuid.UUID]*Family
	members  map[uuid.UUID]uuid.UUID // patient -> family
}

func newMockFamilyRepo() *mockFamilyRepo {
	return &mockFamilyRepo{
		families: make(map[uuid.UUID]*Family),
		members:  make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *mockFamilyRepo) Create(_ context.Context, f *Family) error {
	f.ID = uuid.New()
	m.families[f.ID] = f
	return nil
}

func (m *mockFamilyRepo) GetByID(_ context.Context, id uuid.UUID) (*Family, error) {
	f, ok := m.families[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return f, nil
}

func (m *mockFamilyRepo) Update(_ context.Context, f *Family) error {
	m.families[f.ID] = f
	return nil
}

func (m *mockFamilyRepo) List(_ context.Context, limit, offset int) ([]*Family, int, error) {
	var result []*Family
	for _, f := range m.families {
		result = append(result, f)
	}
	return result, len(result), nil
}

func (m *mockFamilyRepo) AddMember(_ context.Context, familyID, patientID uuid.UUID) error {
	m.members[patientID] = familyID
	return nil
}

func (m *mockFamilyRepo) RemoveMember(_ context.Context, familyID, patientID uuid.UUID) error {
	if m.members[patientID] != familyID {
		return fmt.Errorf("not a member")
	}
	delete(m.members, patientID)
	return nil
}

type mockPatientRepo struct {
	byFamily map[uuid.UUID][]*patient.Patient
}

func (m *mockPatientRepo) Create(_ context.Context, _ *patient.Patient) error { return nil }
func (m *mockPatientRepo) GetByID(_ context.Context, _ uuid.UUID) (*patient.Patient, error) {
	return nil, fmt.Errorf("not found")
}
func (m *mockPatientRepo) GetByClinicID(_ context.Context, _ string) (*patient.Patient, error) {
	return nil, fmt.Errorf("not found")
}
func (m *mockPatientRepo) Update(_ context.Context, _ *patient.Patient) error { return nil }
func (m *mockPatientRepo) Delete(_ context.Context, _ uuid.UUID) error        { return nil }
func (m *mockPatientRepo) List(_ context.Context, _, _ int) ([]*patient.Patient, int, error) {
	return nil, 0, nil
}
func (m *mockPatientRepo) SearchByName(_ context.Context, _ string, _, _ int) ([]*patient.Patient, int, error) {
	return nil, 0, nil
}
func (m *mockPatientRepo) ListByFamily(_ context.Context, familyID uuid.UUID) ([]*patient.Patient, error) {
	return m.byFamily[familyID], nil
}

// -- Tests --

func TestCreateFamily_RequiresName(t *testing.T) {
	svc := NewService(newMockFamilyRepo(), &mockPatientRepo{})
	if err := svc.CreateFamily(context.Background(), &Family{}); err == nil {
		t.Error("expected error for missing family_name")
	}
}

func TestMembers_UnknownFamily(t *testing.T) {
	svc := NewService(newMockFamilyRepo(), &mockPatientRepo{})
	if _, err := svc.Members(context.Background(), uuid.New()); err == nil {
		t.Error("expected error for unknown family")
	}
}

func TestRemoveMember_ClearsHead(t *testing.T) {
	repo := newMockFamilyRepo()
	head := uuid.New()
	f := &Family{FamilyName: "Reyes", HeadPatientID: &head}
	repo.Create(context.Background(), f)
	repo.members[head] = f.ID

	svc := NewService(repo, &mockPatientRepo{})
	if err := svc.RemoveMember(context.Background(), f.ID, head); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.families[f.ID].HeadPatientID != nil {
		t.Error("expected head_patient_id to be cleared when the head leaves")
	}
}
