package storage

import (
	"sync"

	"github.com/codeready-toolchain/governor/pkg/bus"
	"github.com/codeready-toolchain/governor/pkg/model"
	"github.com/codeready-toolchain/governor/pkg/session"
)

// MemoryStore is a process-local Store: a durability mirror in name only,
// since it is lost on restart just like the hot-path maps it shadows. It
// exists for tests that want to assert on what was mirrored, and as the
// Runtime default when the storage driver is not postgres.
type MemoryStore struct {
	mu         sync.Mutex
	events     []bus.Event
	sessions   map[string]*session.Session
	grants     map[string]model.Grant
	executions map[string]model.Execution
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]*session.Session),
		grants:     make(map[string]model.Grant),
		executions: make(map[string]model.Execution),
	}
}

func (m *MemoryStore) PutEvent(ev bus.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *MemoryStore) PutSession(s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.SessionID] = &cp
	return nil
}

func (m *MemoryStore) PutGrant(g model.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[g.GrantID] = g
	return nil
}

func (m *MemoryStore) PutExecution(e model.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[e.ExecutionID] = e
	return nil
}

// Events returns a copy of every event mirrored so far, in append order.
func (m *MemoryStore) Events() []bus.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]bus.Event, len(m.events))
	copy(out, m.events)
	return out
}

// Session returns the last mirrored snapshot for sessionID, if any.
func (m *MemoryStore) Session(sessionID string) (*session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Grant returns the last mirrored snapshot for grantID, if any.
func (m *MemoryStore) Grant(grantID string) (model.Grant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[grantID]
	return g, ok
}

// Execution returns the last mirrored snapshot for executionID, if any.
func (m *MemoryStore) Execution(executionID string) (model.Execution, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[executionID]
	return e, ok
}
