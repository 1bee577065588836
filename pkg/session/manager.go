package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/governor/pkg/apperr"
	"github.com/codeready-toolchain/governor/pkg/bus"
)

// MinTTLSeconds and MaxTTLSeconds bound session TTLs per spec §4.4.
const (
	MinTTLSeconds = 60
	MaxTTLSeconds = 86400
)

// Store durably mirrors session lifecycle transitions. pkg/storage's
// in-memory and pgstore backends both satisfy this interface structurally.
type Store interface {
	PutSession(s *Session) error
}

// Manager is the Session & Trace Manager (C4). One lock protects the whole
// table; critical sections are O(1) (spec §5 Shared Resources table).
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	bus      *bus.Bus
	store    Store
}

// NewManager constructs a Manager that emits lifecycle events onto b.
func NewManager(b *bus.Bus) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		bus:      b,
	}
}

// SetStore installs a durable mirror for session create/end transitions.
// Passing nil disables mirroring.
func (m *Manager) SetStore(store Store) {
	m.store = store
}

func (m *Manager) mirror(s *Session) {
	if m.store == nil {
		return
	}
	if err := m.store.PutSession(s.clone()); err != nil {
		slog.Default().Error("session: durable mirror write failed", "session_id", s.SessionID, "error", err)
	}
}

// ValidateTTL checks ttlSeconds against the allowed range (spec §4.4, §8
// boundary behavior: 59 and 86401 both rejected).
func ValidateTTL(ttlSeconds int) error {
	if ttlSeconds < MinTTLSeconds || ttlSeconds > MaxTTLSeconds {
		return apperr.Validation("ttl_seconds must be between 60 and 86400")
	}
	return nil
}

// Create creates a new session for principal with the given scopes and TTL.
func (m *Manager) Create(principal Principal, scopes []string, ttlSeconds int) (*Session, error) {
	if err := ValidateTTL(ttlSeconds); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	s := &Session{
		SessionID: uuid.New().String(),
		TraceID:   uuid.New().String(),
		Principal: principal,
		Scopes:    append([]string(nil), scopes...),
		State:     StateActive,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(ttlSeconds) * time.Second),
	}

	m.mu.Lock()
	m.sessions[s.SessionID] = s
	m.mu.Unlock()
	m.mirror(s)

	if m.bus != nil {
		_, _ = m.bus.Emit("trace.session.started", s.TraceID, s.SessionID, map[string]any{
			"principal": principal,
			"scopes":    scopes,
			"ttl_seconds": ttlSeconds,
		}, bus.EmitOptions{})
	}

	return s.clone(), nil
}

// Get retrieves a session by id, lazily expiring it on first read after
// expires_at (spec §4.4 state machine). Fails with NotFound or Expired.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, apperr.NotFound("session", sessionID)
	}

	if s.State == StateActive && time.Now().UTC().After(s.ExpiresAt) {
		s.State = StateExpired
		ended := time.Now().UTC()
		s.EndedAt = &ended
		snapshot := s.clone()
		m.mu.Unlock()
		m.mirror(snapshot)

		if m.bus != nil {
			_, _ = m.bus.Emit("trace.session.ended", snapshot.TraceID, snapshot.SessionID, map[string]any{
				"reason":   "expired",
				"duration": ended.Sub(snapshot.CreatedAt).Seconds(),
				"counters": snapshot.Counters,
			}, bus.EmitOptions{Severity: bus.SeverityWarn})
		}
		return nil, apperr.Expired("session", sessionID)
	}

	result := s.clone()
	m.mu.Unlock()

	if result.State != StateActive {
		return nil, apperr.Expired("session", sessionID)
	}
	return result, nil
}

// End explicitly ends a session. Idempotent: a second End on an already-ended
// session returns the cached summary rather than erroring; a second End on a
// since-expired session returns Expired (spec §4.4 failure semantics).
func (m *Manager) End(sessionID string) (*Summary, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, apperr.NotFound("session", sessionID)
	}

	if s.State == StateEnded {
		summary := &Summary{
			SessionID: s.SessionID,
			EndedAt:   *s.EndedAt,
			Duration:  s.EndedAt.Sub(s.CreatedAt).Seconds(),
			Counters:  s.Counters,
			Reason:    "ended",
		}
		m.mu.Unlock()
		return summary, nil
	}
	if s.State == StateExpired {
		m.mu.Unlock()
		return nil, apperr.Expired("session", sessionID)
	}

	now := time.Now().UTC()
	s.State = StateEnded
	s.EndedAt = &now
	summary := &Summary{
		SessionID: s.SessionID,
		EndedAt:   now,
		Duration:  now.Sub(s.CreatedAt).Seconds(),
		Counters:  s.Counters,
		Reason:    "ended",
	}
	traceID := s.TraceID
	snapshot := s.clone()
	m.mu.Unlock()
	m.mirror(snapshot)

	if m.bus != nil {
		_, _ = m.bus.Emit("trace.session.ended", traceID, sessionID, map[string]any{
			"reason":   "ended",
			"duration": summary.Duration,
			"counters": summary.Counters,
		}, bus.EmitOptions{})
	}

	return summary, nil
}

// IncrementResolutionCount bumps a session's resolution counter. Two
// resolutions on the same session serialize on this call but may otherwise
// interleave (spec §5 Ordering guarantees).
func (m *Manager) IncrementResolutionCount(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return apperr.NotFound("session", sessionID)
	}
	s.Counters.Resolutions++
	return nil
}

// IncrementEventCount bumps a session's total_events counter (spec §3).
// Wired as the bus's session observer so every event emitted on a session's
// trace is reflected here, regardless of which component emitted it.
// Unknown session ids (e.g. events emitted before a session exists, if any)
// are silently ignored rather than erroring, since the bus must never fail
// or block on account of this bookkeeping.
func (m *Manager) IncrementEventCount(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	s.Counters.TotalEvents++
}

// IncrementActionCount bumps a session's action counter, and its failure
// counter too when failed is true.
func (m *Manager) IncrementActionCount(sessionID string, failed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return apperr.NotFound("session", sessionID)
	}
	s.Counters.ActionsExecuted++
	if failed {
		s.Counters.ActionsFailed++
	}
	return nil
}

// ListActive returns every session currently in the Active state. Expired
// sessions are not lazily transitioned by this call — only Get does that.
func (m *Manager) ListActive() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.State == StateActive && time.Now().UTC().Before(s.ExpiresAt) {
			out = append(out, s.clone())
		}
	}
	return out
}

// PurgeEnded drops every Ended or Expired session whose EndedAt predates
// the retention cutoff from the in-memory table, returning how many were
// removed. Active sessions are never purged regardless of age. This is the
// cleanup half of the retention config the runtime's background loop
// drives; it only trims the hot-path map, not a durable store, since a
// durable backend's own retention is a storage-layer concern.
func (m *Manager) PurgeEnded(retention time.Duration) int {
	cutoff := time.Now().UTC().Add(-retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.State == StateActive {
			continue
		}
		if s.EndedAt != nil && s.EndedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}
