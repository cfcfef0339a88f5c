package workflow

// Change event kinds published to the hub, one per accepted transition plus
// lab completions that do not change stage.
const (
	EventRegistered             = "registered"
	EventTriaged                = "triaged"
	EventConsultationStarted    = "consultation_started"
	EventLabOrdered             = "lab_ordered"
	EventLabComplete            = "lab_complete"
	EventPrescriptionsSubmitted = "prescriptions_submitted"
	EventLineApproved           = "line_approved"
	EventPrescriptionsFilled    = "prescriptions_filled"
	EventVisitComplete          = "visit_complete"
	EventVisitArchived          = "visit_archived"
)
