package hub

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestHub() *Hub {
	return NewHub(zerolog.New(os.Stderr))
}

func TestHub_RegisterSession(t *testing.T) {
	h := newTestHub()
	s := NewSession("doctor")

	h.Register(s)

	if h.SessionCount() != 1 {
		t.Fatalf("expected 1 session, got %d", h.SessionCount())
	}
}

func TestHub_UnregisterSession(t *testing.T) {
	h := newTestHub()
	s := NewSession("lab")

	h.Register(s)
	h.Unregister(s)

	if h.SessionCount() != 0 {
		t.Fatalf("expected 0 sessions, got %d", h.SessionCount())
	}

	// Second unregister must not panic (double close).
	h.Unregister(s)
}

func TestHub_PublishReachesAllSessions(t *testing.T) {
	h := newTestHub()

	doctor := NewSession("doctor")
	pharmacy := NewSession("pharmacy")
	h.Register(doctor)
	h.Register(pharmacy)

	visitID := uuid.New()
	event := Event{
		VisitID:  visitID,
		Stage:    "TRIAGED",
		Sequence: 2,
		Kind:     "triaged",
	}

	if err := h.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, s := range []*Session{doctor, pharmacy} {
		select {
		case msg := <-s.Send:
			var received Event
			if err := json.Unmarshal(msg, &received); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if received.VisitID != visitID {
				t.Errorf("expected visit %s, got %s", visitID, received.VisitID)
			}
			if received.Sequence != 2 {
				t.Errorf("expected sequence 2, got %d", received.Sequence)
			}
			if received.Timestamp.IsZero() {
				t.Error("expected publish to stamp a timestamp")
			}
		case <-time.After(time.Second):
			t.Fatalf("session %s did not receive event", s.ID)
		}
	}
}

func TestHub_WatchFiltersFeed(t *testing.T) {
	h := newTestHub()

	watched := uuid.New()
	other := uuid.New()

	s := NewSession("doctor")
	h.Register(s)
	h.ProcessMessage(s, SessionMessage{Action: "watch", Visits: []string{watched.String()}})

	h.Publish(context.Background(), Event{VisitID: other, Stage: "REGISTERED", Kind: "registered"})

	select {
	case <-s.Send:
		t.Fatal("session with a watch filter should not receive other visits")
	default:
	}

	h.Publish(context.Background(), Event{VisitID: watched, Stage: "TRIAGED", Kind: "triaged"})

	select {
	case <-s.Send:
	case <-time.After(time.Second):
		t.Fatal("session did not receive watched visit event")
	}

	// Unwatching everything returns the session to the full feed.
	h.ProcessMessage(s, SessionMessage{Action: "unwatch", Visits: []string{watched.String()}})
	h.Publish(context.Background(), Event{VisitID: other, Stage: "TRIAGED", Kind: "triaged"})

	select {
	case <-s.Send:
	case <-time.After(time.Second):
		t.Fatal("unfiltered session did not receive event")
	}
}

func TestHub_PublishNeverBlocksOnSlowSession(t *testing.T) {
	h := newTestHub()

	slow := NewSession("doctor")
	slow.Send = make(chan []byte, 1)
	h.Register(slow)

	event := Event{VisitID: uuid.New(), Stage: "TRIAGED", Kind: "triaged"}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Publish(context.Background(), event)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full session buffer")
	}
}
