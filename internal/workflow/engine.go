// Package workflow implements the visit state machine. The engine is the only
// mutation path to the registry, snapshot store, and prescription ledger:
// every operation locks the visit, runs one transaction, and publishes change
// events to the hub only after that transaction commits.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/parakaleomed/clinic/internal/domain/patient"
	"github.com/parakaleomed/clinic/internal/domain/prescription"
	"github.com/parakaleomed/clinic/internal/domain/snapshot"
	"github.com/parakaleomed/clinic/internal/domain/visit"
	"github.com/parakaleomed/clinic/internal/platform/db"
	"github.com/parakaleomed/clinic/internal/platform/hub"
)

// Engine drives visit transitions. Commands targeting different visits run in
// parallel; commands targeting the same visit are linearized by the keyed
// mutex plus the row lock taken inside the transaction.
type Engine struct {
	runner   db.Runner
	patients patient.Repository
	visits   visit.Repository
	ledger   prescription.Repository
	snaps    snapshot.Repository
	pub      hub.Publisher
	locks    *keyedMutex
	location string
	logger   zerolog.Logger
}

func NewEngine(
	runner db.Runner,
	patients patient.Repository,
	visits visit.Repository,
	ledger prescription.Repository,
	snaps snapshot.Repository,
	pub hub.Publisher,
	location string,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		runner:   runner,
		patients: patients,
		visits:   visits,
		ledger:   ledger,
		snaps:    snaps,
		pub:      pub,
		locks:    newKeyedMutex(),
		location: location,
		logger:   logger,
	}
}

// ConsultationContext is what a doctor station receives when it picks up a
// visit: the visit itself, the restored snapshot when resuming a return, and
// the sibling visits when the patient was registered as part of a family
// session.
type ConsultationContext struct {
	Visit    *visit.Visit    `json:"visit"`
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
	Group    []*visit.Visit  `json:"group,omitempty"`
}

// VisitState is the registry reconciliation read for sessions that missed hub
// events.
type VisitState struct {
	Visit       *visit.Visit         `json:"visit"`
	LabOrders   []*visit.LabOrder    `json:"lab_orders"`
	Lines       []*prescription.Line `json:"prescription_lines"`
	HasSnapshot bool                 `json:"has_snapshot"`
}

// storeErr classifies a repository failure: a missing row is the caller's
// mistake, anything else means the durable store let us down and the
// transition was not applied.
func storeErr(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return fmt.Errorf("%w: %s: %v", ErrStorage, what, err)
}

// run serializes on the visit key, executes fn in one transaction, and
// publishes the events fn queued only after the commit. Hub delivery is
// fire-and-forget; the transition is durable before any event leaves.
func (e *Engine) run(ctx context.Context, visitID uuid.UUID, fn func(ctx context.Context, events *[]hub.Event) error) error {
	key := visitID.String()
	e.locks.Lock(key)
	defer e.locks.Unlock(key)

	var events []hub.Event
	if err := e.runner.RunTx(ctx, func(txCtx context.Context) error {
		return fn(txCtx, &events)
	}); err != nil {
		return err
	}

	e.publish(ctx, events)
	return nil
}

func event(v *visit.Visit, kind string, payload interface{}) hub.Event {
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	return hub.Event{
		VisitID:  v.ID,
		Stage:    v.Stage,
		Sequence: v.Sequence,
		Kind:     kind,
		Payload:  raw,
	}
}

// Register creates a patient record and their first visit atomically. The
// clinic chart ID is allocated inside the same transaction; an exhausted
// location sequence surfaces as a validation failure rather than wrapping.
func (e *Engine) Register(ctx context.Context, pat *patient.Patient, priority bool) (*visit.Visit, error) {
	if pat.FirstName == "" || pat.LastName == "" {
		return nil, validationf("name", "first and last name are required")
	}
	if pat.Location == "" {
		pat.Location = e.location
	}
	if pat.Location == "" {
		return nil, validationf("location", "clinic location prefix is required")
	}

	v := &visit.Visit{Stage: StageRegistered, Priority: priority}
	var events []hub.Event
	err := e.runner.RunTx(ctx, func(ctx context.Context) error {
		if err := e.patients.Create(ctx, pat); err != nil {
			if errors.Is(err, patient.ErrSequenceExhausted) {
				return validationf("location", "%v", err)
			}
			return storeErr(err, "create patient")
		}
		v.PatientID = pat.ID
		if err := e.visits.Create(ctx, v); err != nil {
			return storeErr(err, "create visit")
		}
		events = append(events, event(v, EventRegistered, map[string]string{
			"patient_id": pat.ID.String(),
			"clinic_id":  pat.ClinicID,
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events)
	e.logger.Info().Str("visit_id", v.ID.String()).Str("clinic_id", pat.ClinicID).
		Msg("visit registered")
	return v, nil
}

// RegisterReturning opens a new visit for an existing patient.
func (e *Engine) RegisterReturning(ctx context.Context, patientID uuid.UUID, priority bool) (*visit.Visit, error) {
	v := &visit.Visit{Stage: StageRegistered, Priority: priority}
	var events []hub.Event
	err := e.runner.RunTx(ctx, func(ctx context.Context) error {
		pat, err := e.patients.GetByID(ctx, patientID)
		if err != nil {
			return storeErr(err, "patient "+patientID.String())
		}
		v.PatientID = pat.ID
		if err := e.visits.Create(ctx, v); err != nil {
			return storeErr(err, "create visit")
		}
		events = append(events, event(v, EventRegistered, map[string]string{
			"patient_id": pat.ID.String(),
			"clinic_id":  pat.ClinicID,
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events)
	return v, nil
}

// RegisterGroup registers several family members in one session. Every
// created visit shares a fresh family_group_id, which fixes the group
// membership at registration time: later family changes do not touch it.
func (e *Engine) RegisterGroup(ctx context.Context, pats []*patient.Patient, priority bool) ([]*visit.Visit, error) {
	if len(pats) == 0 {
		return nil, validationf("patients", "at least one family member is required")
	}
	var familyID *uuid.UUID
	for _, pat := range pats {
		if pat.FirstName == "" || pat.LastName == "" {
			return nil, validationf("name", "first and last name are required")
		}
		if pat.Location == "" {
			pat.Location = e.location
		}
		if pat.Location == "" {
			return nil, validationf("location", "clinic location prefix is required")
		}
		if pat.FamilyID == nil {
			return nil, validationf("family_id", "group registration requires a family")
		}
		if familyID == nil {
			familyID = pat.FamilyID
		} else if *familyID != *pat.FamilyID {
			return nil, validationf("family_id", "all members must share one family")
		}
	}

	groupID := uuid.New()
	visits := make([]*visit.Visit, 0, len(pats))
	var events []hub.Event
	err := e.runner.RunTx(ctx, func(ctx context.Context) error {
		for _, pat := range pats {
			if err := e.patients.Create(ctx, pat); err != nil {
				if errors.Is(err, patient.ErrSequenceExhausted) {
					return validationf("location", "%v", err)
				}
				return storeErr(err, "create patient")
			}
			v := &visit.Visit{
				Stage:         StageRegistered,
				PatientID:     pat.ID,
				Priority:      priority,
				FamilyGroupID: &groupID,
			}
			if err := e.visits.Create(ctx, v); err != nil {
				return storeErr(err, "create visit")
			}
			visits = append(visits, v)
			events = append(events, event(v, EventRegistered, map[string]string{
				"patient_id":      pat.ID.String(),
				"clinic_id":       pat.ClinicID,
				"family_group_id": groupID.String(),
			}))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events)
	return visits, nil
}

// CompleteTriage records vitals and moves the visit into the doctor queue.
func (e *Engine) CompleteTriage(ctx context.Context, visitID uuid.UUID, vitals *visit.Vitals) (*visit.Visit, error) {
	var out *visit.Visit
	err := e.run(ctx, visitID, func(ctx context.Context, events *[]hub.Event) error {
		v, err := e.visits.GetByIDForUpdate(ctx, visitID)
		if err != nil {
			return storeErr(err, "visit "+visitID.String())
		}
		if !CanTransition(v.Stage, StageTriaged) {
			return invalidTransition(v.Stage, "complete triage")
		}

		now := time.Now().UTC()
		v.Stage = StageTriaged
		v.TriagedAt = &now
		v.Vitals = vitals
		if err := e.visits.Update(ctx, v); err != nil {
			return storeErr(err, "update visit")
		}
		*events = append(*events, event(v, EventTriaged, nil))
		out = v
		return nil
	})
	return out, err
}

// BeginConsultation hands the visit to a doctor station. A triaged visit
// starts fresh; a visit returning from the lab re-enters consultation with
// its snapshot restored inside the same transaction, so a caller observing
// the new stage always finds the restored state in place. Resuming a visit
// already in consultation with no pending return is refused — the visit
// belongs to the doctor who holds it.
func (e *Engine) BeginConsultation(ctx context.Context, visitID uuid.UUID) (*ConsultationContext, error) {
	var out *ConsultationContext
	err := e.run(ctx, visitID, func(ctx context.Context, events *[]hub.Event) error {
		v, err := e.visits.GetByIDForUpdate(ctx, visitID)
		if err != nil {
			return storeErr(err, "visit "+visitID.String())
		}

		resuming := v.Stage == StageInConsultation && v.ReturnReason != nil
		if !resuming && !CanTransition(v.Stage, StageInConsultation) {
			return invalidTransition(v.Stage, "begin consultation")
		}

		cc := &ConsultationContext{}
		if resuming {
			// Snapshot is consumed on resume: read, handed to the
			// station, cleared. Clearing return_reason here closes
			// the claim: a second resume fails the stage check above
			// and the visit drops out of the doctor queue.
			snap, err := e.snaps.Load(ctx, v.ID)
			switch {
			case err == nil:
				cc.Snapshot = snap.Payload
				if err := e.snaps.Clear(ctx, v.ID); err != nil {
					return storeErr(err, "clear snapshot")
				}
			case errors.Is(err, pgx.ErrNoRows):
				// No snapshot saved; nothing to restore.
			default:
				return storeErr(err, "load snapshot")
			}
			v.ReturnReason = nil
		}

		v.Stage = StageInConsultation
		if err := e.visits.Update(ctx, v); err != nil {
			return storeErr(err, "update visit")
		}

		if v.FamilyGroupID != nil {
			group, err := e.visits.ListByFamilyGroup(ctx, *v.FamilyGroupID)
			if err != nil {
				return storeErr(err, "list family group")
			}
			cc.Group = group
		}

		cc.Visit = v
		*events = append(*events, event(v, EventConsultationStarted, nil))
		out = cc
		return nil
	})
	return out, err
}

// OrderLabAndPause suspends the consultation: the station's working state is
// saved as the visit's snapshot, the requested lab orders are attached, and
// the visit parks in the lab queue. At least one order is required — pausing
// without one would strand the visit.
func (e *Engine) OrderLabAndPause(ctx context.Context, visitID uuid.UUID, workingState json.RawMessage, kinds []string, station string) (*visit.Visit, error) {
	if len(kinds) == 0 {
		return nil, validationf("lab_orders", "at least one lab order is required to pause")
	}
	for _, k := range kinds {
		if !visit.ValidLabKind(k) {
			return nil, validationf("lab_orders", "unknown test kind %q", k)
		}
	}

	var out *visit.Visit
	err := e.run(ctx, visitID, func(ctx context.Context, events *[]hub.Event) error {
		v, err := e.visits.GetByIDForUpdate(ctx, visitID)
		if err != nil {
			return storeErr(err, "visit "+visitID.String())
		}
		if !CanTransition(v.Stage, StageAwaitingLab) {
			return invalidTransition(v.Stage, "order lab")
		}

		if err := e.snaps.Save(ctx, &snapshot.Snapshot{
			VisitID: v.ID,
			Payload: workingState,
			SavedBy: station,
		}); err != nil {
			return storeErr(err, "save snapshot")
		}

		for _, k := range kinds {
			if err := e.visits.AddLabOrder(ctx, &visit.LabOrder{VisitID: v.ID, Kind: k}); err != nil {
				return storeErr(err, "add lab order")
			}
		}

		v.Stage = StageAwaitingLab
		if err := e.visits.Update(ctx, v); err != nil {
			return storeErr(err, "update visit")
		}
		*events = append(*events, event(v, EventLabOrdered, map[string]interface{}{"kinds": kinds}))
		out = v
		return nil
	})
	return out, err
}

// CompleteLabOrder records a result and disposition on an order. When the
// last outstanding order for the visit completes, the visit automatically
// returns to the doctor queue with return_reason set — no operator
// confirmation involved. Completing an already-completed order is a no-op.
func (e *Engine) CompleteLabOrder(ctx context.Context, visitID, orderID uuid.UUID, result json.RawMessage, disposition string) (*visit.Visit, error) {
	if !visit.ValidDisposition(disposition) {
		return nil, validationf("disposition", "unknown disposition %q", disposition)
	}

	var out *visit.Visit
	err := e.run(ctx, visitID, func(ctx context.Context, events *[]hub.Event) error {
		v, err := e.visits.GetByIDForUpdate(ctx, visitID)
		if err != nil {
			return storeErr(err, "visit "+visitID.String())
		}
		order, err := e.visits.GetLabOrder(ctx, orderID)
		if err != nil {
			return storeErr(err, "lab order "+orderID.String())
		}
		if order.VisitID != v.ID {
			return validationf("lab_order", "order %s does not belong to visit %s", orderID, visitID)
		}

		completed, err := e.visits.CompleteLabOrder(ctx, orderID, result)
		if err != nil {
			return storeErr(err, "complete lab order")
		}
		if !completed {
			// Already done; idempotent no-op, no event, no transition.
			out = v
			return nil
		}
		if err := e.visits.SetLabDisposition(ctx, orderID, disposition); err != nil {
			return storeErr(err, "set disposition")
		}

		remaining, err := e.visits.CountIncomplete(ctx, v.ID)
		if err != nil {
			return storeErr(err, "count lab orders")
		}
		if remaining == 0 && v.Stage == StageAwaitingLab {
			reason := "lab results ready"
			v.Stage = StageInConsultation
			v.ReturnReason = &reason
		}
		// Update even when the stage holds: every completion bumps the
		// visit sequence, so sessions can spot dropped events.
		if err := e.visits.Update(ctx, v); err != nil {
			return storeErr(err, "update visit")
		}
		*events = append(*events, event(v, EventLabComplete, map[string]interface{}{
			"order_id":    orderID.String(),
			"kind":        order.Kind,
			"disposition": disposition,
			"remaining":   remaining,
		}))
		out = v
		return nil
	})
	return out, err
}

// SubmitPrescriptions closes the consultation and sends the visit to
// pharmacy. Lines whose lab gate is unresolved land in awaiting_lab_approval
// and hold the visit at the approval stage; otherwise it goes straight to the
// pharmacy queue. Clears return_reason.
func (e *Engine) SubmitPrescriptions(ctx context.Context, visitID uuid.UUID, lines []*prescription.Line) (*visit.Visit, error) {
	if len(lines) == 0 {
		return nil, validationf("lines", "at least one prescription line is required")
	}
	for _, l := range lines {
		if l.Drug == "" || l.Dosage == "" || l.Frequency == "" {
			return nil, validationf("lines", "drug, dosage and frequency are required")
		}
	}

	var out *visit.Visit
	err := e.run(ctx, visitID, func(ctx context.Context, events *[]hub.Event) error {
		v, err := e.visits.GetByIDForUpdate(ctx, visitID)
		if err != nil {
			return storeErr(err, "visit "+visitID.String())
		}
		if v.Stage != StageInConsultation {
			return invalidTransition(v.Stage, "submit prescriptions")
		}

		cleared, err := e.labsCleared(ctx, v.ID)
		if err != nil {
			return err
		}

		gated := false
		for _, l := range lines {
			l.VisitID = v.ID
			if l.RequiresLab && !cleared {
				l.Status = prescription.StatusAwaitingLab
				gated = true
			} else {
				l.Status = prescription.StatusPending
			}
		}
		if err := e.ledger.CreateLines(ctx, lines); err != nil {
			return storeErr(err, "create prescription lines")
		}

		if gated {
			v.Stage = StagePharmacyAwaitingLab
		} else {
			v.Stage = StagePharmacyPending
		}
		v.ReturnReason = nil
		if err := e.visits.Update(ctx, v); err != nil {
			return storeErr(err, "update visit")
		}
		*events = append(*events, event(v, EventPrescriptionsSubmitted, map[string]interface{}{
			"lines": len(lines),
			"gated": gated,
		}))
		out = v
		return nil
	})
	return out, err
}

// labsCleared reports whether every lab order on the visit came back with a
// treat_per_protocol disposition. Only then may a requires_lab line skip the
// approval stage; a return_to_provider result keeps it gated for the doctor's
// explicit sign-off.
func (e *Engine) labsCleared(ctx context.Context, visitID uuid.UUID) (bool, error) {
	orders, err := e.visits.ListLabOrders(ctx, visitID)
	if err != nil {
		return false, storeErr(err, "list lab orders")
	}
	for _, o := range orders {
		if !o.Completed() || o.Disposition == nil || *o.Disposition != visit.DispositionTreatPerProtocol {
			return false, nil
		}
	}
	return true, nil
}

// labsDispositioned reports whether every lab order on the visit is completed
// with some disposition recorded. A gated line may not become ready before
// this holds.
func (e *Engine) labsDispositioned(ctx context.Context, visitID uuid.UUID) (bool, error) {
	orders, err := e.visits.ListLabOrders(ctx, visitID)
	if err != nil {
		return false, storeErr(err, "list lab orders")
	}
	for _, o := range orders {
		if !o.Completed() || o.Disposition == nil {
			return false, nil
		}
	}
	return true, nil
}

// ApproveLabDependentLine marks a gated line ready after the doctor has
// reviewed the lab result. Once no gated lines remain, the visit drops into
// the regular pharmacy queue.
func (e *Engine) ApproveLabDependentLine(ctx context.Context, visitID, lineID uuid.UUID) (*visit.Visit, error) {
	var out *visit.Visit
	err := e.run(ctx, visitID, func(ctx context.Context, events *[]hub.Event) error {
		v, err := e.visits.GetByIDForUpdate(ctx, visitID)
		if err != nil {
			return storeErr(err, "visit "+visitID.String())
		}
		if v.Stage != StagePharmacyAwaitingLab {
			return invalidTransition(v.Stage, "approve line")
		}

		line, err := e.ledger.GetLine(ctx, lineID)
		if err != nil {
			return storeErr(err, "line "+lineID.String())
		}
		if line.VisitID != v.ID {
			return validationf("line", "line %s does not belong to visit %s", lineID, visitID)
		}
		switch line.Status {
		case prescription.StatusAwaitingLab:
		case prescription.StatusReady, prescription.StatusFilled:
			return fmt.Errorf("%w: line %s", ErrAlreadyCompleted, lineID)
		default:
			return validationf("line", "line %s is not lab gated", lineID)
		}

		// A gated line only becomes ready once every lab order carries
		// a disposition.
		dispositioned, err := e.labsDispositioned(ctx, v.ID)
		if err != nil {
			return err
		}
		if !dispositioned {
			return validationf("lab_orders", "lab disposition not yet recorded")
		}

		if err := e.ledger.UpdateStatus(ctx, lineID, prescription.StatusReady); err != nil {
			return storeErr(err, "update line status")
		}

		gatedLeft, err := e.ledger.ListGated(ctx, v.ID)
		if err != nil {
			return storeErr(err, "list gated lines")
		}
		if len(gatedLeft) == 0 {
			v.Stage = StagePharmacyPending
		}
		if err := e.visits.Update(ctx, v); err != nil {
			return storeErr(err, "update visit")
		}
		*events = append(*events, event(v, EventLineApproved, map[string]interface{}{
			"line_id": lineID.String(),
			"gated":   len(gatedLeft),
		}))
		out = v
		return nil
	})
	return out, err
}

// FillPrescriptions dispenses the given lines at a pharmacy window. Each line
// fills at most once: a second attempt, concurrent or late, fails with
// ErrAlreadyFilled and the whole command rolls back. When the last line
// fills, the visit passes through filled and completes.
func (e *Engine) FillPrescriptions(ctx context.Context, visitID uuid.UUID, lineIDs []uuid.UUID, station string) (*visit.Visit, error) {
	if len(lineIDs) == 0 {
		return nil, validationf("line_ids", "at least one line is required")
	}

	var out *visit.Visit
	err := e.run(ctx, visitID, func(ctx context.Context, events *[]hub.Event) error {
		v, err := e.visits.GetByIDForUpdate(ctx, visitID)
		if err != nil {
			return storeErr(err, "visit "+visitID.String())
		}
		if v.Stage != StagePharmacyPending {
			// Distinguish a stale retry from a genuinely illegal
			// command: if every requested line was already filled,
			// another station handled this fill.
			if done, derr := e.linesFilled(ctx, v.ID, lineIDs); derr == nil && done {
				return fmt.Errorf("%w: visit %s", ErrAlreadyFilled, visitID)
			}
			return invalidTransition(v.Stage, "fill prescriptions")
		}

		// The stage implies a fillable ledger; verify it against the rows
		// rather than trusting the stage alone.
		ready, err := e.ledger.AllReady(ctx, v.ID)
		if err != nil {
			return storeErr(err, "check ledger")
		}
		if !ready {
			return validationf("lines", "lines awaiting lab approval remain")
		}

		for _, lineID := range lineIDs {
			line, err := e.ledger.GetLine(ctx, lineID)
			if err != nil {
				return storeErr(err, "line "+lineID.String())
			}
			if line.VisitID != v.ID {
				return validationf("line", "line %s does not belong to visit %s", lineID, visitID)
			}
			if line.Status == prescription.StatusAwaitingLab || line.Status == prescription.StatusDraft {
				return validationf("line", "line %s is not fillable", lineID)
			}
			filled, err := e.ledger.MarkFilled(ctx, lineID, station)
			if err != nil {
				return storeErr(err, "mark filled")
			}
			if !filled {
				return fmt.Errorf("%w: line %s", ErrAlreadyFilled, lineID)
			}
		}

		done, err := e.ledger.AllFilled(ctx, v.ID)
		if err != nil {
			return storeErr(err, "check ledger")
		}
		if done {
			v.Stage = StageFilled
			if err := e.visits.Update(ctx, v); err != nil {
				return storeErr(err, "update visit")
			}
			*events = append(*events, event(v, EventPrescriptionsFilled, map[string]interface{}{
				"lines": len(lineIDs),
			}))

			v.Stage = StageComplete
			if err := e.visits.Update(ctx, v); err != nil {
				return storeErr(err, "update visit")
			}
			*events = append(*events, event(v, EventVisitComplete, nil))
		} else {
			if err := e.visits.Update(ctx, v); err != nil {
				return storeErr(err, "update visit")
			}
			*events = append(*events, event(v, EventPrescriptionsFilled, map[string]interface{}{
				"lines":   len(lineIDs),
				"partial": true,
			}))
		}
		out = v
		return nil
	})
	return out, err
}

// linesFilled reports whether every one of the given lines exists on the
// visit and is already filled.
func (e *Engine) linesFilled(ctx context.Context, visitID uuid.UUID, lineIDs []uuid.UUID) (bool, error) {
	for _, lineID := range lineIDs {
		line, err := e.ledger.GetLine(ctx, lineID)
		if err != nil {
			return false, err
		}
		if line.VisitID != visitID || line.Status != prescription.StatusFilled {
			return false, nil
		}
	}
	return true, nil
}

// Archive administratively closes a visit from any non-terminal stage.
// Irreversible.
func (e *Engine) Archive(ctx context.Context, visitID uuid.UUID, reason string) (*visit.Visit, error) {
	if reason == "" {
		return nil, validationf("reason", "archive reason is required")
	}

	var out *visit.Visit
	err := e.run(ctx, visitID, func(ctx context.Context, events *[]hub.Event) error {
		v, err := e.visits.GetByIDForUpdate(ctx, visitID)
		if err != nil {
			return storeErr(err, "visit "+visitID.String())
		}
		if !CanTransition(v.Stage, StageArchived) {
			return invalidTransition(v.Stage, "archive")
		}

		v.Stage = StageArchived
		v.ArchiveReason = &reason
		if err := e.visits.Update(ctx, v); err != nil {
			return storeErr(err, "update visit")
		}
		*events = append(*events, event(v, EventVisitArchived, map[string]string{"reason": reason}))
		out = v
		return nil
	})
	return out, err
}

// DoctorQueue lists visits waiting for a provider: lab returns first, then
// priority cases, then triage-time FIFO.
func (e *Engine) DoctorQueue(ctx context.Context) ([]*visit.Visit, error) {
	visits, err := e.visits.DoctorQueue(ctx)
	if err != nil {
		return nil, storeErr(err, "doctor queue")
	}
	return visits, nil
}

// PharmacyQueue lists visits waiting at the pharmacy window.
func (e *Engine) PharmacyQueue(ctx context.Context) ([]*visit.Visit, error) {
	visits, err := e.visits.PharmacyQueue(ctx)
	if err != nil {
		return nil, storeErr(err, "pharmacy queue")
	}
	return visits, nil
}

// NextInGroup returns the first member of a family group not yet seen by a
// doctor, in group order (head of household first). The caller is expected,
// not forced, to consult members in this order.
func (e *Engine) NextInGroup(ctx context.Context, groupID uuid.UUID) (*visit.Visit, error) {
	group, err := e.visits.ListByFamilyGroup(ctx, groupID)
	if err != nil {
		return nil, storeErr(err, "family group "+groupID.String())
	}
	for _, v := range group {
		if v.Stage == StageRegistered || v.Stage == StageTriaged {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: no unconsulted member in group %s", ErrNotFound, groupID)
}

// State is the full registry view of one visit, used by stations to reconcile
// after missed events.
func (e *Engine) State(ctx context.Context, visitID uuid.UUID) (*VisitState, error) {
	v, err := e.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, storeErr(err, "visit "+visitID.String())
	}
	orders, err := e.visits.ListLabOrders(ctx, visitID)
	if err != nil {
		return nil, storeErr(err, "list lab orders")
	}
	lines, err := e.ledger.ListByVisit(ctx, visitID)
	if err != nil {
		return nil, storeErr(err, "list prescription lines")
	}
	state := &VisitState{Visit: v, LabOrders: orders, Lines: lines}
	if _, err := e.snaps.Load(ctx, visitID); err == nil {
		state.HasSnapshot = true
	}
	return state, nil
}

// PendingLabOrders lists incomplete lab orders across all visits, oldest
// first, for the lab station's worklist.
func (e *Engine) PendingLabOrders(ctx context.Context) ([]*visit.LabOrder, error) {
	orders, err := e.visits.PendingLabQueue(ctx)
	if err != nil {
		return nil, storeErr(err, "lab queue")
	}
	return orders, nil
}

func (e *Engine) publish(ctx context.Context, events []hub.Event) {
	for _, ev := range events {
		if err := e.pub.Publish(ctx, ev); err != nil {
			e.logger.Error().Err(err).Str("visit_id", ev.VisitID.String()).
				Str("event_kind", ev.Kind).Msg("event publish failed")
		}
	}
}
