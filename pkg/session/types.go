// Package session implements the Session & Trace Manager (C4): session
// lifecycle (create/get/end/lazy-expire), scopes, TTL validation, and the
// counter bundle each session owns. Grounded on the same shape as a
// sync.RWMutex-guarded map keyed by uuid.New().String() ids, generalized
// from a chat-message session to a governance session rooted in a trace
// id.
package session

import "time"

// State is the session lifecycle state (spec §3): Active → Expired (lazy, on
// first read after expires_at) or Active → Ended (explicit). No other
// transitions are permitted.
type State string

const (
	StateActive  State = "active"
	StateExpired State = "expired"
	StateEnded   State = "ended"
)

// PrincipalType is who a session was created for.
type PrincipalType string

const (
	PrincipalUser    PrincipalType = "user"
	PrincipalService PrincipalType = "service"
	PrincipalAgent   PrincipalType = "agent"
)

// Principal identifies the caller a session was created for.
type Principal struct {
	Type PrincipalType `json:"type"`
	ID   string        `json:"id"`
	Org  string        `json:"org,omitempty"`
}

// Counters is the monotone counter bundle a session owns (spec §3).
type Counters struct {
	Resolutions     int64 `json:"resolutions"`
	ActionsExecuted int64 `json:"actions_executed"`
	ActionsFailed   int64 `json:"actions_failed"`
	TotalEvents     int64 `json:"total_events"`
}

// Session is one authenticated interaction context rooted in a trace id.
type Session struct {
	SessionID string        `json:"session_id"`
	TraceID   string        `json:"trace_id"`
	Principal Principal     `json:"principal"`
	Scopes    []string      `json:"scopes"`
	State     State         `json:"state"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Counters  Counters      `json:"counters"`
}

// HasScope reports whether the session was granted scope.
func (s *Session) HasScope(scope string) bool {
	for _, have := range s.Scopes {
		if have == scope {
			return true
		}
	}
	return false
}

// Summary is the typed counter-bundle snapshot returned by End — mirrors
// a reference session manager's explicit
// summary object rather than a bare map, so a second End() call on an
// already-ended session has a stable shape to return (spec §8 idempotence
// law: "end(s); end(s) is equivalent to end(s) observationally").
type Summary struct {
	SessionID string    `json:"session_id"`
	EndedAt   time.Time `json:"ended_at"`
	Duration  float64   `json:"duration_seconds"`
	Counters  Counters  `json:"counters"`
	Reason    string    `json:"reason"`
}

// clone returns a deep-enough copy of s safe to hand to a caller without
// holding the manager lock.
func (s *Session) clone() *Session {
	cp := *s
	cp.Scopes = append([]string(nil), s.Scopes...)
	if s.EndedAt != nil {
		t := *s.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}
