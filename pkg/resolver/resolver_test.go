package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/governor/pkg/apperr"
	"github.com/codeready-toolchain/governor/pkg/atlas"
	"github.com/codeready-toolchain/governor/pkg/bus"
	"github.com/codeready-toolchain/governor/pkg/carp"
	"github.com/codeready-toolchain/governor/pkg/policy"
	"github.com/codeready-toolchain/governor/pkg/session"
)

func newResolver() (*Resolver, *session.Manager) {
	b := bus.New(nil)
	sessions := session.NewManager(b)
	policies := policy.NewEngine()
	atlases := atlas.NewRegistry()
	return New(sessions, policies, atlases, b), sessions
}

func TestResolveHappyPathConfidenceExactly085(t *testing.T) {
	r, sessions := newResolver()
	s, err := sessions.Create(session.Principal{Type: session.PrincipalUser, ID: "u1"}, []string{"carp.resolve"}, 3600)
	require.NoError(t, err)

	resp, err := r.Resolve(Request{
		Session: carp.SessionRef{SessionID: s.SessionID},
		Task:    carp.Task{Goal: "summarize the quarterly report", RiskTier: carp.RiskLow},
		Trace:   carp.TraceRef{TraceID: s.TraceID, SpanID: "root"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.85, resp.Resolution.Confidence)
	assert.Equal(t, []string{"execute"}, resp.Resolution.NextSteps)
	assert.Len(t, resp.Resolution.ContextBlocks, 2)
}

func TestResolveDeniesDestructiveFreeTextGoal(t *testing.T) {
	r, sessions := newResolver()
	s, err := sessions.Create(session.Principal{Type: session.PrincipalUser, ID: "u1"}, nil, 3600)
	require.NoError(t, err)

	_, err = r.Resolve(Request{
		Session: carp.SessionRef{SessionID: s.SessionID},
		Task:    carp.Task{Goal: "Deploy to production environment", RiskTier: carp.RiskLow},
		Trace:   carp.TraceRef{TraceID: s.TraceID, SpanID: "root"},
	})
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindPolicyDenied, appErr.Kind)
}

func TestResolveOnEndedSessionReturnsExpired(t *testing.T) {
	r, sessions := newResolver()
	s, err := sessions.Create(session.Principal{Type: session.PrincipalUser, ID: "u1"}, nil, session.MinTTLSeconds)
	require.NoError(t, err)
	_, err = sessions.End(s.SessionID)
	require.NoError(t, err)

	_, err = r.Resolve(Request{
		Session: carp.SessionRef{SessionID: s.SessionID},
		Task:    carp.Task{Goal: "anything", RiskTier: carp.RiskLow},
		Trace:   carp.TraceRef{TraceID: s.TraceID, SpanID: "root"},
	})
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindExpired, appErr.Kind)
}

func TestResolveHighRiskRequiresApprovalAndCapsConfidence(t *testing.T) {
	r, sessions := newResolver()
	s, err := sessions.Create(session.Principal{Type: session.PrincipalUser, ID: "u1"}, nil, 3600)
	require.NoError(t, err)

	resp, err := r.Resolve(Request{
		Session: carp.SessionRef{SessionID: s.SessionID},
		Task:    carp.Task{Goal: "deploy the new build", RiskTier: carp.RiskHigh},
		Trace:   carp.TraceRef{TraceID: s.TraceID, SpanID: "root"},
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, resp.Resolution.Confidence, 0.65)
	assert.Equal(t, []string{"request_approval", "poll_pending_approvals"}, resp.Resolution.NextSteps)
}

func TestResolveIncrementsSessionResolutionCounter(t *testing.T) {
	r, sessions := newResolver()
	s, err := sessions.Create(session.Principal{Type: session.PrincipalUser, ID: "u1"}, nil, 3600)
	require.NoError(t, err)

	_, err = r.Resolve(Request{
		Session: carp.SessionRef{SessionID: s.SessionID},
		Task:    carp.Task{Goal: "list open tickets", RiskTier: carp.RiskLow},
		Trace:   carp.TraceRef{TraceID: s.TraceID, SpanID: "root"},
	})
	require.NoError(t, err)

	got, err := sessions.Get(s.SessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Counters.Resolutions)
}
