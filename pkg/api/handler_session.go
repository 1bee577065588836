package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/governor/pkg/apperr"
	"github.com/codeready-toolchain/governor/pkg/session"
)

func (s *Server) createSessionHandler(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("malformed request body: "+err.Error()))
		return
	}

	principal := session.Principal{
		Type: session.PrincipalType(req.Principal.Type),
		ID:   req.Principal.ID,
		Org:  req.Principal.Org,
	}
	scopes := req.Scopes
	if principal.ID == "" {
		// No explicit principal in the body: fall back to whatever the
		// request's credential (bearer token, API key, or anonymous)
		// resolved to, and its configured scopes.
		resolved := principalFromContext(c)
		principal = resolved.Principal
		if len(scopes) == 0 {
			scopes = resolved.Scopes
		}
	}
	if principal.Type == "" {
		principal.Type = session.PrincipalUser
	}

	sess, err := s.rt.Sessions.Create(principal, scopes, req.TTLSeconds)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, createSessionResponse{
		SessionID: sess.SessionID,
		TraceID:   sess.TraceID,
		ExpiresAt: sess.ExpiresAt,
	})
}

func (s *Server) endSessionHandler(c *gin.Context) {
	summary, err := s.rt.Sessions.End(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, endSessionResponse{
		SessionID:    summary.SessionID,
		EndedAt:      summary.EndedAt,
		TraceSummary: summary,
	})
}
