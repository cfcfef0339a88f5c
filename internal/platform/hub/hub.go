// Package hub fans change events out to every connected station session. It
// follows a hub-and-spoke pattern: a session receives all visit events by
// default and may narrow its feed to specific visits. Delivery is best-effort
// and carries no durable queue; a reconnecting session reconciles against the
// registry instead of expecting replay.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is one change notification. Sequence is the per-visit monotonic
// counter stamped by the workflow engine when the transition committed, so a
// session can detect gaps and fall back to a registry read.
type Event struct {
	VisitID   uuid.UUID       `json:"visit_id"`
	Stage     string          `json:"stage"`
	Sequence  int64           `json:"sequence"`
	Kind      string          `json:"event_kind"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SessionMessage is an inbound control message from a station session.
type SessionMessage struct {
	Action string   `json:"action"` // "watch" | "unwatch"
	Visits []string `json:"visits"`
}

// Publisher is the interface the workflow engine publishes through.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Session represents a single connected station.
type Session struct {
	ID      string
	Role    string
	Send    chan []byte
	watched map[string]struct{} // empty = receive everything
}

// Watching reports whether the session wants events for the given visit.
// A session with no watch filter receives all events.
func (s *Session) Watching(visitID uuid.UUID) bool {
	if len(s.watched) == 0 {
		return true
	}
	_, ok := s.watched[visitID.String()]
	return ok
}

// Hub is the connection manager. All operations are thread-safe via
// sync.RWMutex; the connection set has its own lock, decoupled from any
// visit-level locking in the engine.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
	logger   zerolog.Logger
}

// NewHub creates a Hub ready to manage station sessions.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		sessions: make(map[*Session]struct{}),
		logger:   logger,
	}
}

// NewSession constructs an unregistered session for the given role.
func NewSession(role string) *Session {
	return &Session{
		ID:      uuid.New().String(),
		Role:    role,
		Send:    make(chan []byte, 256),
		watched: make(map[string]struct{}),
	}
}

// Register adds a session to the hub.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = struct{}{}
	h.logger.Info().Str("session_id", s.ID).Str("role", s.Role).
		Int("sessions", len(h.sessions)).Msg("station connected")
}

// Unregister removes a session and closes its Send channel. Safe to call
// more than once.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[s]; !ok {
		return
	}
	delete(h.sessions, s)
	close(s.Send)
	h.logger.Info().Str("session_id", s.ID).
		Int("sessions", len(h.sessions)).Msg("station disconnected")
}

// Watch narrows a session's feed to the given visits (additive).
func (h *Hub) Watch(s *Session, visits []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, v := range visits {
		s.watched[v] = struct{}{}
	}
}

// Unwatch removes visits from a session's filter. When the filter empties the
// session goes back to receiving everything.
func (h *Hub) Unwatch(s *Session, visits []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, v := range visits {
		delete(s.watched, v)
	}
}

// ProcessMessage handles an inbound SessionMessage.
func (h *Hub) ProcessMessage(s *Session, msg SessionMessage) {
	switch msg.Action {
	case "watch":
		h.Watch(s, msg.Visits)
	case "unwatch":
		h.Unwatch(s, msg.Visits)
	}
}

// Publish delivers the event to every connected session whose filter matches,
// including the originating station (its acknowledgment). Sends never block:
// a session whose buffer is full is skipped — the registry remains the
// authoritative record and the session reconciles on its next read.
func (h *Hub) Publish(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("hub: marshal event")
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.sessions {
		if !s.Watching(event.VisitID) {
			continue
		}
		select {
		case s.Send <- data:
		default:
			h.logger.Warn().Str("session_id", s.ID).
				Str("visit_id", event.VisitID.String()).
				Msg("hub: session buffer full, event dropped")
		}
	}
	return nil
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
