package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/governor/pkg/apperr"
)

// errorBody is the stable shape from spec §7: {kind, message, rule_id?, details?}.
type errorBody struct {
	Kind    apperr.Kind    `json:"kind"`
	Message string         `json:"message"`
	RuleID  string         `json:"rule_id,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// statusFor maps an error taxonomy kind to its HTTP status, matching the
// status codes spec §6's endpoint table documents per operation.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindExpired:
		return http.StatusGone
	case apperr.KindForbidden, apperr.KindPolicyDenied, apperr.KindApproval:
		return http.StatusForbidden
	case apperr.KindHandlerFailure:
		return http.StatusOK // handler failures are a field on the response, not a transport error
	default:
		return http.StatusInternalServerError
	}
}

// writeError translates err into the spec §7 error shape and the matching
// HTTP status. Errors that aren't *apperr.Error (a storage/bus failure that
// escaped its no-fail contract, or a genuine bug) are logged and surfaced
// as a generic 500 rather than leaking internals to the caller.
func writeError(c *gin.Context, err error) {
	if appErr, ok := apperr.As(err); ok {
		c.JSON(statusFor(appErr.Kind), errorBody{
			Kind:    appErr.Kind,
			Message: appErr.Message,
			RuleID:  appErr.RuleID,
			Details: appErr.Details,
		})
		return
	}
	slog.Error("api: unclassified error", "error", err)
	c.JSON(http.StatusInternalServerError, errorBody{Kind: "internal", Message: "internal server error"})
}
