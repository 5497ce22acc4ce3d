// Package remote defines the contract with the diary backend and its HTTP
// implementation. This file centralizes the error taxonomy shared by every
// component that talks to the backend, so callers can branch with errors.Is
// and errors.As instead of string matching.
//
// No retry is performed at this layer: retry policy belongs to the calling
// component (per-month refresh recovery, detail polling, image fetch).
package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated indicates the backend rejected the caller's
	// credentials. The sync layer treats this as a sign-out trigger rather
	// than a generic failure.
	ErrNotAuthenticated = errors.New("remote: not authenticated")

	// ErrNotFound indicates the requested entity does not exist remotely.
	ErrNotFound = errors.New("remote: not found")
)

// NetworkError wraps a transport or server-side failure. Scope names the
// operation that failed (e.g. "list posts").
type NetworkError struct {
	Scope string
	Err   error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("remote: %s: %v", e.Scope, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *NetworkError) Unwrap() error { return e.Err }

// ConflictError indicates the backend rejected a mutation for validation or
// conflict reasons. These are surfaced to the caller verbatim; the mutation
// did not take effect.
type ConflictError struct {
	Detail string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("remote: conflict: %s", e.Detail)
}
