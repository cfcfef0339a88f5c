package workflow

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := [][2]string{
		{StageRegistered, StageTriaged},
		{StageTriaged, StageInConsultation},
		{StageInConsultation, StageAwaitingLab},
		{StageAwaitingLab, StageInConsultation},
		{StageInConsultation, StagePharmacyPending},
		{StageInConsultation, StagePharmacyAwaitingLab},
		{StagePharmacyAwaitingLab, StagePharmacyPending},
		{StagePharmacyPending, StageFilled},
		{StageFilled, StageComplete},
	}
	for _, tc := range allowed {
		if !CanTransition(tc[0], tc[1]) {
			t.Errorf("expected %s -> %s to be legal", tc[0], tc[1])
		}
	}

	denied := [][2]string{
		{StageRegistered, StageInConsultation},
		{StageTriaged, StagePharmacyPending},
		{StageAwaitingLab, StagePharmacyPending},
		{StageComplete, StageArchived},
		{StageArchived, StageTriaged},
		{StageFilled, StagePharmacyPending},
	}
	for _, tc := range denied {
		if CanTransition(tc[0], tc[1]) {
			t.Errorf("expected %s -> %s to be illegal", tc[0], tc[1])
		}
	}
}

func TestArchiveFromAnyNonTerminal(t *testing.T) {
	for from := range transitions {
		want := !Terminal(from)
		if got := CanTransition(from, StageArchived); got != want {
			t.Errorf("%s -> archived: got %v want %v", from, got, want)
		}
	}
}

func TestTerminal(t *testing.T) {
	if !Terminal(StageComplete) || !Terminal(StageArchived) {
		t.Error("complete and archived must be terminal")
	}
	for _, s := range []string{StageRegistered, StageTriaged, StageInConsultation,
		StageAwaitingLab, StagePharmacyPending, StagePharmacyAwaitingLab, StageFilled} {
		if Terminal(s) {
			t.Errorf("%s must not be terminal", s)
		}
	}
}

func TestValidStage(t *testing.T) {
	if ValidStage("checked_in") {
		t.Error("unknown stage accepted")
	}
	if !ValidStage(StageAwaitingLab) {
		t.Error("known stage rejected")
	}
}
