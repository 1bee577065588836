// Package apperr implements the error taxonomy from spec §7: a small set of
// error kinds shared by every component, wrapped in a stable shape so the
// API layer can translate any of them into {kind, message, rule_id?, details?}
// the way pkg/config/errors.go wraps configuration errors with context.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the error taxonomy categories. Kinds are not Go types —
// they're a closed set of strings carried on a single wrapper so handler
// code can switch on Kind() without a type-switch per component.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindExpired        Kind = "expired"
	KindForbidden      Kind = "forbidden"
	KindPolicyDenied   Kind = "policy_denied"
	KindApproval       Kind = "approval_required"
	KindHandlerFailure Kind = "handler_failure"
)

// Error is the stable error shape surfaced to callers: {kind, message,
// rule_id?, details?}. Storage/bus failures never become an Error value that
// reaches a client — they are logged and not returned (spec §7). A failed
// durable-mirror write is not retried.
type Error struct {
	Kind    Kind
	Message string
	RuleID  string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("%s: %s (rule=%s)", e.Kind, e.Message, e.RuleID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind with a plain message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithRule attaches the rule id that triggered a policy-flavored error.
func (e *Error) WithRule(ruleID string) *Error {
	e.RuleID = ruleID
	return e
}

// WithDetails attaches structured details (e.g. validation field errors).
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// NotFound is a convenience constructor for the NotFound kind.
func NotFound(what, id string) *Error {
	return New(KindNotFound, fmt.Sprintf("%s not found: %s", what, id))
}

// Expired is a convenience constructor for the Expired/Gone kind.
func Expired(what, id string) *Error {
	return New(KindExpired, fmt.Sprintf("%s expired: %s", what, id))
}

// Validation is a convenience constructor for the Validation kind.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// As reports whether err (or something it wraps) is an *Error, returning it.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
