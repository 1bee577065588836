// Package api exposes the governance runtime over HTTP: the CARP resolve
// and execute surface, session lifecycle, approval workflow, and trace
// query/stream endpoints from spec §6. Routing is gin, matching the
// module's own engine construction and middleware style.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/governor/pkg/carp"
	"github.com/codeready-toolchain/governor/pkg/runtime"
	"github.com/codeready-toolchain/governor/pkg/version"
)

// Server is the HTTP API server: a thin gin.Engine wrapper around a
// *runtime.Runtime, following spec §9's instruction that handlers hold
// only a non-owning reference to the single top-level Runtime.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	rt         *runtime.Runtime
	startedAt  time.Time
}

// NewServer builds a Server wired to rt and registers every spec §6 route.
func NewServer(rt *runtime.Runtime) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(rt.Logger))

	s := &Server{engine: engine, rt: rt, startedAt: time.Now().UTC()}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	auth := authMiddleware(&s.rt.Config.Auth)

	s.engine.GET("/v1/health", s.healthHandler)

	v1 := s.engine.Group("/v1")
	v1.Use(auth)
	{
		v1.POST("/sessions", s.createSessionHandler)
		v1.POST("/sessions/:id/end", s.endSessionHandler)

		v1.POST("/carp/resolve", s.resolveHandler)
		v1.POST("/carp/execute", s.executeHandler)
		v1.POST("/carp/actions/:grant_id/approve", s.approveHandler)
		v1.POST("/carp/actions/:grant_id/reject", s.rejectHandler)
		v1.GET("/carp/actions/pending", s.pendingApprovalsHandler)
		v1.GET("/carp/executions/:id", s.getExecutionHandler)

		v1.GET("/traces/:trace_id/events", s.traceEventsHandler)
		v1.GET("/traces/:trace_id/stream", s.traceStreamHandler)
	}
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener. Used
// by tests to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.engine}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the underlying http.Handler for use in tests with
// httptest.NewServer or httptest.NewRecorder.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:        "healthy",
		Version:       version.Full(),
		CARPVersion:   carp.Version,
		TraceVersion:  carp.TraceVersion,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		Timestamp:     time.Now().UTC(),
	})
}
