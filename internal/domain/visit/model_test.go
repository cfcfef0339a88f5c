package visit

import (
	"testing"
	"time"
)

func TestValidLabKind(t *testing.T) {
	for _, kind := range []string{LabUrinalysis, LabGlucose, LabPregnancy} {
		if !ValidLabKind(kind) {
			t.Errorf("expected %q to be valid", kind)
		}
	}
	for _, kind := range []string{"", "cbc", "Urinalysis"} {
		if ValidLabKind(kind) {
			t.Errorf("expected %q to be invalid", kind)
		}
	}
}

func TestValidDisposition(t *testing.T) {
	if !ValidDisposition(DispositionReturnToProvider) || !ValidDisposition(DispositionTreatPerProtocol) {
		t.Error("known dispositions rejected")
	}
	if ValidDisposition("dismiss") {
		t.Error("unknown disposition accepted")
	}
}

func TestLabOrderCompleted(t *testing.T) {
	o := &LabOrder{Kind: LabGlucose}
	if o.Completed() {
		t.Error("order with no completed_at reported completed")
	}
	now := time.Now()
	o.CompletedAt = &now
	if !o.Completed() {
		t.Error("order with completed_at not reported completed")
	}
}

func TestQualify(t *testing.T) {
	got := qualify("id, patient_id,\n\tstage", "v")
	want := "v.id, v.patient_id, v.stage"
	if got != want {
		t.Errorf("qualify: got %q want %q", got, want)
	}
}
