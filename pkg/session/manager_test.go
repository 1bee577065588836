package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/governor/pkg/apperr"
	"github.com/codeready-toolchain/governor/pkg/bus"
)

func TestCreateRejectsOutOfRangeTTL(t *testing.T) {
	m := NewManager(bus.New(nil))
	_, err := m.Create(Principal{Type: PrincipalUser, ID: "u1"}, nil, 59)
	require.Error(t, err)

	_, err = m.Create(Principal{Type: PrincipalUser, ID: "u1"}, nil, 86401)
	require.Error(t, err)

	_, err = m.Create(Principal{Type: PrincipalUser, ID: "u1"}, nil, 60)
	require.NoError(t, err)

	_, err = m.Create(Principal{Type: PrincipalUser, ID: "u1"}, nil, 86400)
	require.NoError(t, err)
}

func TestCreateEmitsSessionStarted(t *testing.T) {
	b := bus.New(nil)
	m := NewManager(b)
	s, err := m.Create(Principal{Type: PrincipalUser, ID: "u1"}, []string{"carp.resolve"}, 3600)
	require.NoError(t, err)

	events, total, err := b.GetEvents(s.TraceID, bus.Filters{}, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "trace.session.started", events[0].EventType)
}

func TestGetUnknownSessionIsNotFound(t *testing.T) {
	m := NewManager(bus.New(nil))
	_, err := m.Get("nope")
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindNotFound, appErr.Kind)
}

func TestLazyExpiryTransitionsAndEmitsWarnEvent(t *testing.T) {
	b := bus.New(nil)
	m := NewManager(b)
	s, err := m.Create(Principal{Type: PrincipalUser, ID: "u1"}, nil, MinTTLSeconds)
	require.NoError(t, err)

	m.mu.Lock()
	m.sessions[s.SessionID].ExpiresAt = time.Now().UTC().Add(-time.Second)
	m.mu.Unlock()

	_, err = m.Get(s.SessionID)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindExpired, appErr.Kind)

	events, _, err := b.GetEvents(s.TraceID, bus.Filters{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "trace.session.ended", events[1].EventType)
	assert.Equal(t, bus.SeverityWarn, events[1].Severity)
	assert.Equal(t, "expired", events[1].Payload["reason"])
}

func TestEndIsIdempotent(t *testing.T) {
	m := NewManager(bus.New(nil))
	s, err := m.Create(Principal{Type: PrincipalUser, ID: "u1"}, nil, 3600)
	require.NoError(t, err)

	summary1, err := m.End(s.SessionID)
	require.NoError(t, err)

	summary2, err := m.End(s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, summary1.SessionID, summary2.SessionID)
	assert.Equal(t, summary1.EndedAt, summary2.EndedAt)
}

func TestEndOnExpiredSessionReturnsExpired(t *testing.T) {
	m := NewManager(bus.New(nil))
	s, err := m.Create(Principal{Type: PrincipalUser, ID: "u1"}, nil, MinTTLSeconds)
	require.NoError(t, err)

	m.mu.Lock()
	m.sessions[s.SessionID].State = StateExpired
	ended := time.Now().UTC()
	m.sessions[s.SessionID].EndedAt = &ended
	m.mu.Unlock()

	_, err = m.End(s.SessionID)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindExpired, appErr.Kind)
}

func TestCountersIncrementIndependently(t *testing.T) {
	m := NewManager(bus.New(nil))
	s, err := m.Create(Principal{Type: PrincipalUser, ID: "u1"}, nil, 3600)
	require.NoError(t, err)

	require.NoError(t, m.IncrementResolutionCount(s.SessionID))
	require.NoError(t, m.IncrementActionCount(s.SessionID, false))
	require.NoError(t, m.IncrementActionCount(s.SessionID, true))

	got, err := m.Get(s.SessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Counters.Resolutions)
	assert.EqualValues(t, 2, got.Counters.ActionsExecuted)
	assert.EqualValues(t, 1, got.Counters.ActionsFailed)
}

func TestPurgeEndedDropsOldEndedSessionsOnly(t *testing.T) {
	m := NewManager(bus.New(nil))
	active, err := m.Create(Principal{Type: PrincipalUser, ID: "u1"}, nil, 3600)
	require.NoError(t, err)
	recent, err := m.Create(Principal{Type: PrincipalUser, ID: "u2"}, nil, 3600)
	require.NoError(t, err)
	stale, err := m.Create(Principal{Type: PrincipalUser, ID: "u3"}, nil, 3600)
	require.NoError(t, err)

	_, err = m.End(recent.SessionID)
	require.NoError(t, err)
	_, err = m.End(stale.SessionID)
	require.NoError(t, err)

	m.mu.Lock()
	old := time.Now().UTC().Add(-48 * time.Hour)
	m.sessions[stale.SessionID].EndedAt = &old
	m.mu.Unlock()

	removed := m.PurgeEnded(24 * time.Hour)
	assert.Equal(t, 1, removed)

	_, err = m.Get(active.SessionID)
	require.NoError(t, err)
	_, err = m.Get(recent.SessionID)
	require.Error(t, err, "ended but within retention should still be retrievable as Expired, not purged")

	m.mu.Lock()
	_, stillThere := m.sessions[stale.SessionID]
	m.mu.Unlock()
	assert.False(t, stillThere, "stale ended session should have been purged")
}

func TestListActiveExcludesExpiredAndEnded(t *testing.T) {
	m := NewManager(bus.New(nil))
	active, err := m.Create(Principal{Type: PrincipalUser, ID: "u1"}, nil, 3600)
	require.NoError(t, err)
	ended, err := m.Create(Principal{Type: PrincipalUser, ID: "u2"}, nil, 3600)
	require.NoError(t, err)
	_, err = m.End(ended.SessionID)
	require.NoError(t, err)

	list := m.ListActive()
	require.Len(t, list, 1)
	assert.Equal(t, active.SessionID, list[0].SessionID)
}
