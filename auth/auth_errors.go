package auth

import "errors"

// External error taxonomy. The orchestrator collapses internal distinctions
// (token expired vs revoked, no such user vs wrong password) into these
// before they reach a caller, logging the specific reason for operators.
// "Wrong password" and "no such user" produce identical responses so the
// API cannot be used as an account oracle.
var (
	ErrInvalidInput    = errors.New("invalid request")
	ErrConflict        = errors.New("email or username already registered")
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
	ErrUpstream        = errors.New("identity provider unavailable")
	ErrInternal        = errors.New("internal error")
)
