package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/governor/pkg/apperr"
)

func TestEmitAppendsAndReturnsEvent(t *testing.T) {
	b := New(nil)

	ev, err := b.Emit("trace.session.started", "trace-1", "session-1", map[string]any{"x": 1}, EmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, "trace.session.started", ev.EventType)
	assert.NotEmpty(t, ev.Trace.SpanID)
	assert.Equal(t, SeverityInfo, ev.Severity)

	events, total, err := b.GetEvents("trace-1", Filters{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, events, 1)
	assert.Equal(t, ev.EventType, events[0].EventType)
}

func TestGetEventsUnknownTraceIsNotFound(t *testing.T) {
	b := New(nil)
	_, _, err := b.GetEvents("nope", Filters{}, 10, 0)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindNotFound, appErr.Kind)
}

func TestGetEventsEmptyLogIsNotNotFound(t *testing.T) {
	b := New(nil)
	b.traceFor("trace-1") // touch the trace without emitting
	events, total, err := b.GetEvents("trace-1", Filters{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, events)
}

func TestGetEventsFiltersAndPaginates(t *testing.T) {
	b := New(nil)
	for i := 0; i < 5; i++ {
		sev := SeverityInfo
		if i%2 == 0 {
			sev = SeverityWarn
		}
		_, err := b.Emit("trace.x", "trace-1", "s", nil, EmitOptions{Severity: sev})
		require.NoError(t, err)
	}

	events, total, err := b.GetEvents("trace-1", Filters{Severity: SeverityWarn}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, events, 3)

	page, total, err := b.GetEvents("trace-1", Filters{}, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 2)
}

func TestSubscribeReceivesFutureEventsOnly(t *testing.T) {
	b := New(nil)
	_, err := b.Emit("trace.before", "trace-1", "s", nil, EmitOptions{})
	require.NoError(t, err)

	ch, unsubscribe := b.Subscribe("trace-1")
	defer unsubscribe()

	_, err = b.Emit("trace.after", "trace-1", "s", nil, EmitOptions{})
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, "trace.after", ev.EventType)
	default:
		t.Fatal("expected a buffered event")
	}
}

func TestSubscribeDropsOnSaturationWithoutBlockingEmitter(t *testing.T) {
	b := New(nil)
	ch, unsubscribe := b.Subscribe("trace-1")
	defer unsubscribe()

	for i := 0; i < subscriberBufferSize+10; i++ {
		_, err := b.Emit("trace.flood", "trace-1", "s", nil, EmitOptions{})
		require.NoError(t, err)
	}

	_, total, err := b.GetEvents("trace-1", Filters{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, subscriberBufferSize+10, total, "log retains every event even when subscriber buffer saturates")
	assert.LessOrEqual(t, len(ch), subscriberBufferSize)
}

func TestEmitRejectsInvalidArtifactHash(t *testing.T) {
	b := New(nil)
	_, err := b.Emit("trace.x", "trace-1", "s", nil, EmitOptions{
		Artifacts: []Artifact{{Name: "a", URI: "file://a", SHA256: "not-a-hash", ContentType: "plain"}},
	})
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
}

func TestEventsForSessionAggregatesAcrossTraces(t *testing.T) {
	b := New(nil)
	_, err := b.Emit("trace.a", "trace-1", "session-x", nil, EmitOptions{})
	require.NoError(t, err)
	_, err = b.Emit("trace.b", "trace-2", "session-x", nil, EmitOptions{})
	require.NoError(t, err)
	_, err = b.Emit("trace.c", "trace-2", "session-y", nil, EmitOptions{})
	require.NoError(t, err)

	events := b.EventsForSession("session-x")
	assert.Len(t, events, 2)
}
