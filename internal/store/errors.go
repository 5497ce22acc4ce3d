// Package store implements the sync engine's business layer: the windowed
// post store, the detail cache, the character store, and the stats view.
// This file centralizes store-level error values so they can be consistently
// returned by store methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPostNotFound indicates the requested post is not resident in the
	// current window.
	ErrPostNotFound = errors.New("post not found")

	// ErrCharacterNotFound indicates the requested character does not exist
	// in the loaded reference set.
	ErrCharacterNotFound = errors.New("character not found")

	// ErrEmptyContent is returned when a create request carries no content.
	ErrEmptyContent = errors.New("post content is empty")

	// ErrBadDate is returned when an entry date is not a YYYY-MM-DD key.
	ErrBadDate = errors.New("entry date must be YYYY-MM-DD")
)

// RefreshError aggregates the per-month failures of a window refresh.
// Months that refreshed successfully keep their results; the caller surfaces
// this as a warning, not a rollback.
type RefreshError struct {
	// Months lists the YYYY-MM keys whose reconciliation failed.
	Months []string
	// Err joins the underlying per-month causes.
	Err error
}

// Error implements the error interface.
func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh failed for months %s: %v", strings.Join(e.Months, ", "), e.Err)
}

// Unwrap exposes the joined causes to errors.Is/As.
func (e *RefreshError) Unwrap() error { return e.Err }
