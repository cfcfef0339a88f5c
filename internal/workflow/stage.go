package workflow

// Visit stages. Registered is initial; Complete is terminal. Archived is a
// side terminal reachable from any non-terminal stage.
const (
	StageRegistered          = "registered"
	StageTriaged             = "triaged"
	StageInConsultation      = "in_consultation"
	StageAwaitingLab         = "awaiting_lab"
	StagePharmacyPending     = "pharmacy_pending"
	StagePharmacyAwaitingLab = "pharmacy_awaiting_lab_approval"
	StageFilled              = "filled"
	StageComplete            = "complete"
	StageArchived            = "archived"
)

// transitions is the legality table for the visit state machine. Archived is
// handled separately (any non-terminal stage may archive).
var transitions = map[string][]string{
	StageRegistered:          {StageTriaged},
	StageTriaged:             {StageInConsultation},
	StageInConsultation:      {StageAwaitingLab, StagePharmacyPending, StagePharmacyAwaitingLab},
	StageAwaitingLab:         {StageInConsultation},
	StagePharmacyAwaitingLab: {StagePharmacyPending},
	StagePharmacyPending:     {StageFilled},
	StageFilled:              {StageComplete},
	StageComplete:            {},
	StageArchived:            {},
}

// ValidStage reports whether s names a known stage.
func ValidStage(s string) bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transition is possible from s.
func Terminal(s string) bool {
	return s == StageComplete || s == StageArchived
}

// CanTransition reports whether the state machine permits from → to.
func CanTransition(from, to string) bool {
	if to == StageArchived {
		return ValidStage(from) && !Terminal(from)
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
