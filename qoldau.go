// Package qoldau provides a minimal public API for embedding the help-desk
// core in other Go programs.
//
// Most integrations should talk to the HTTP API of the qd daemon. This
// package exports only the types and constructors needed to drive the
// ticket store and ingestion pipeline programmatically.
package qoldau

import (
	"context"

	"github.com/qoldau/qoldau/internal/storage"
	"github.com/qoldau/qoldau/internal/storage/sqlite"
	"github.com/qoldau/qoldau/internal/types"
)

// Core types for working with tickets
type (
	Ticket       = types.Ticket
	TicketFilter = types.TicketFilter
	TicketPatch  = types.TicketPatch
	User         = types.User
	Actor        = types.Actor
	Feedback     = types.Feedback
)

// Status constants
const (
	StatusNew          = types.StatusNew
	StatusInWork       = types.StatusInWork
	StatusWaiting      = types.StatusWaiting
	StatusAutoResolved = types.StatusAutoResolved
	StatusClosed       = types.StatusClosed
)

// Priority constants
const (
	PriorityLow      = types.PriorityLow
	PriorityMedium   = types.PriorityMedium
	PriorityHigh     = types.PriorityHigh
	PriorityCritical = types.PriorityCritical
)

// Store is the durable ticket store contract.
type Store = storage.Store

// Sentinel errors returned by Store operations.
var (
	ErrNotFound     = storage.ErrNotFound
	ErrConflict     = storage.ErrConflict
	ErrForbidden    = storage.ErrForbidden
	ErrInvalidInput = storage.ErrInvalidInput
	ErrUnavailable  = storage.ErrUnavailable
)

// OpenStore opens (and migrates) a SQLite-backed ticket store at path.
// Use ":memory:" for an ephemeral store.
func OpenStore(ctx context.Context, path string) (Store, error) {
	return sqlite.Open(ctx, path)
}
