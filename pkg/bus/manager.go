package bus

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/governor/pkg/apperr"
)

const (
	// subscriberBufferSize bounds each live subscriber's channel; on
	// saturation further events for that subscriber are dropped rather than
	// blocking the emitter (spec §5 Backpressure).
	subscriberBufferSize = 256
)

var sha256Pattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// traceLog holds one trace's append-only event slice plus its live
// subscriber sinks, guarded by a single per-trace lock. Mirrors the
// per-channel state in pkg/events/manager.go (mu-guarded subscriber slice
// alongside the data it fans out).
type traceLog struct {
	mu          sync.Mutex
	events      []Event
	subscribers map[string]chan Event
}

// Sink durably mirrors events appended to the bus. A mirror write failure
// is logged, never returned: Emit's own contract never fails on account of
// durability, only on the artifact-hash validation spec §4.1 requires up
// front. pkg/storage's in-memory and pgstore backends both satisfy this
// interface structurally.
type Sink interface {
	PutEvent(ev Event) error
}

// Bus is the Telemetry Bus (C1). The zero value is not usable; construct
// with New.
type Bus struct {
	mu       sync.Mutex // protects the traces map itself, not its contents
	traces   map[string]*traceLog
	logger   *slog.Logger
	sink     Sink
	observer func(sessionID string)
}

// New constructs an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		traces: make(map[string]*traceLog),
		logger: logger,
	}
}

// SetSink installs a durable mirror for every event appended from this
// point on. Passing nil disables mirroring. Not safe to call concurrently
// with Emit; call it once during Runtime construction.
func (b *Bus) SetSink(sink Sink) {
	b.sink = sink
}

// SetSessionObserver installs a callback invoked with the session id of
// every emitted event carrying one. Used to keep a session's total_events
// counter (spec §3) current without the bus importing the session package
// (which itself imports bus to emit lifecycle events). Passing nil disables
// the callback.
func (b *Bus) SetSessionObserver(observer func(sessionID string)) {
	b.observer = observer
}

func (b *Bus) traceFor(traceID string) *traceLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.traces[traceID]
	if !ok {
		t = &traceLog{subscribers: make(map[string]chan Event)}
		b.traces[traceID] = t
	}
	return t
}

func (b *Bus) peekTrace(traceID string) (*traceLog, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.traces[traceID]
	return t, ok
}

// Emit appends eventType to traceID's log and fans it out to live
// subscribers. Its only error is a Validation error for an artifact whose
// sha256 is not 64 lowercase hex characters, in which case nothing is
// appended. Durable-mirror write errors are logged, not returned, per spec
// §4.1 failure semantics.
func (b *Bus) Emit(eventType, traceID, sessionID string, payload map[string]any, opts EmitOptions) (Event, error) {
	for _, a := range opts.Artifacts {
		if !sha256Pattern.MatchString(a.SHA256) {
			return Event{}, apperr.Validation("artifact sha256 must be 64 lowercase hex characters: " + a.Name)
		}
	}

	spanID := opts.SpanID
	if spanID == "" {
		spanID = uuid.New().String()
	}
	actor := Actor{Type: ActorRuntime, ID: "governor"}
	if opts.Actor != nil {
		actor = *opts.Actor
	}
	severity := opts.Severity
	if severity == "" {
		severity = SeverityInfo
	}

	ev := Event{
		TraceVersion: TraceVersion,
		EventType:    eventType,
		Time:         time.Now().UTC(),
		Trace: Trace{
			TraceID: traceID,
			SpanID:  spanID,
		},
		SessionID: sessionID,
		Atlas:     opts.Atlas,
		Actor:     actor,
		Severity:  severity,
		Payload:   payload,
		Artifacts: opts.Artifacts,
	}
	if opts.ParentSpanID != "" {
		p := opts.ParentSpanID
		ev.Trace.ParentSpanID = &p
	}

	tl := b.traceFor(traceID)
	tl.mu.Lock()
	tl.events = append(tl.events, ev)
	subs := make([]chan Event, 0, len(tl.subscribers))
	for _, ch := range tl.subscribers {
		subs = append(subs, ch)
	}
	tl.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("bus: dropping event for saturated subscriber", "trace_id", traceID, "event_type", eventType)
		}
	}

	if b.sink != nil {
		if err := b.sink.PutEvent(ev); err != nil {
			b.logger.Error("bus: durable mirror write failed", "trace_id", traceID, "event_type", eventType, "error", err)
		}
	}

	if b.observer != nil && sessionID != "" {
		b.observer(sessionID)
	}

	return ev, nil
}

// GetEvents returns a filtered, paginated view of traceID's log (spec §4.1).
// An unknown trace id is NotFound; an empty log for a known trace is not.
func (b *Bus) GetEvents(traceID string, filters Filters, limit, offset int) ([]Event, int, error) {
	tl, ok := b.peekTrace(traceID)
	if !ok {
		return nil, 0, apperr.NotFound("trace", traceID)
	}

	tl.mu.Lock()
	all := make([]Event, len(tl.events))
	copy(all, tl.events)
	tl.mu.Unlock()

	filtered := make([]Event, 0, len(all))
	for _, ev := range all {
		if filters.Severity != "" && ev.Severity != filters.Severity {
			continue
		}
		if filters.EventTypePrefix != "" && !strings.HasPrefix(ev.EventType, filters.EventTypePrefix) {
			continue
		}
		filtered = append(filtered, ev)
	}
	total := len(filtered)

	if offset < 0 {
		offset = 0
	}
	if offset >= len(filtered) {
		return []Event{}, total, nil
	}
	end := len(filtered)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return filtered[offset:end], total, nil
}

// EventsForSession returns every event across every trace that carries the
// given session id, in per-trace insertion order; the order in which traces
// are visited is not defined. Cross-trace ordering is explicitly undefined by spec §4.1,
// so callers must not rely on interleaving between traces.
func (b *Bus) EventsForSession(sessionID string) []Event {
	b.mu.Lock()
	traces := make([]*traceLog, 0, len(b.traces))
	for _, tl := range b.traces {
		traces = append(traces, tl)
	}
	b.mu.Unlock()

	var out []Event
	for _, tl := range traces {
		tl.mu.Lock()
		for _, ev := range tl.events {
			if ev.SessionID == sessionID {
				out = append(out, ev)
			}
		}
		tl.mu.Unlock()
	}
	return out
}

// Subscribe returns a channel of future events for traceID (future-only by
// default per spec §9 open question resolution) and an unsubscribe func that
// must be called to reclaim the sink, e.g. on client disconnect.
func (b *Bus) Subscribe(traceID string) (<-chan Event, func()) {
	tl := b.traceFor(traceID)
	id := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	tl.mu.Lock()
	tl.subscribers[id] = ch
	tl.mu.Unlock()

	unsubscribe := func() {
		tl.mu.Lock()
		if c, ok := tl.subscribers[id]; ok {
			delete(tl.subscribers, id)
			close(c)
		}
		tl.mu.Unlock()
	}
	return ch, unsubscribe
}
