// Package gateway is the typed boundary to the Aivora backend API. It
// issues the HTTP exchanges, attaches the session credential, normalizes
// the backend's loose response shapes into canonical domain entities,
// and surfaces failures as the typed errors below. It performs no
// retries; callers decide whether to retry.
package gateway

import (
	"errors"
	"fmt"
)

// Error kinds, checkable with errors.As. Every non-2xx response or
// transport failure maps to exactly one of these.

// ValidationError reports input that violates a stated constraint. It
// is recoverable locally and never worth retrying unchanged.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// AuthError reports invalid credentials or an expired session. The
// gateway propagates it to session state before returning.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// ConflictError reports a uniqueness conflict, e.g. duplicate
// registration email.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// NotFoundError reports that a referenced entity no longer exists
// server-side. The store evicts the entity from cache on receipt.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// UpstreamError reports that external AI generation failed. No partial
// entity exists; the caller may retry.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string { return e.Message }

// NetworkError wraps a transport-level failure.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// IsAuthRejection reports whether err is a credential rejection that
// must invalidate the session.
func IsAuthRejection(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
