package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/governor/pkg/bus"
)

// maxEventsLimit bounds GET /v1/traces/{trace_id}/events, matching spec
// §6's "limit≤1000" contract.
const maxEventsLimit = 1000

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) traceEventsHandler(c *gin.Context) {
	traceID := c.Param("trace_id")
	filters := bus.Filters{
		Severity:        bus.Severity(c.Query("severity")),
		EventTypePrefix: c.Query("event_type"),
	}
	limit := parseIntDefault(c.Query("limit"), 0)
	if limit <= 0 || limit > maxEventsLimit {
		limit = maxEventsLimit
	}
	offset := parseIntDefault(c.Query("offset"), 0)

	events, total, err := s.rt.Bus.GetEvents(traceID, filters, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]any, 0, len(events))
	for _, ev := range events {
		out = append(out, ev)
	}
	c.JSON(http.StatusOK, traceEventsResponse{
		TraceID:    traceID,
		Events:     out,
		TotalCount: total,
		HasMore:    offset+len(events) < total,
	})
}

// traceStreamHandler serves live (future-only, per bus.Subscribe) trace
// events as Server-Sent Events, encoded with the same gin-contrib/sse
// codec gin's own c.SSEvent helper wraps internally — used directly here
// so the stream carries the full canonical event, not just a name/payload
// pair.
func (s *Server) traceStreamHandler(c *gin.Context) {
	traceID := c.Param("trace_id")
	ch, unsubscribe := s.rt.Bus.Subscribe(traceID)
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			if err := sse.Encode(w, sse.Event{Event: ev.EventType, Data: ev}); err != nil {
				s.rt.Logger.Error("api: trace stream encode failed", "trace_id", traceID, "error", err)
				return false
			}
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
