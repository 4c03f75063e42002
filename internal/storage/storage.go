// Package storage defines the durable store contract for the help-desk core.
//
// The concrete implementation lives in the sqlite sub-package. This package
// holds the interface, the sentinel errors shared across the API surface, and
// the small row types returned by the statistics queries.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/qoldau/qoldau/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned on unique-constraint violations, such as a second
// feedback row for the same ticket or a duplicate email.
var ErrConflict = errors.New("conflict")

// ErrForbidden is returned when the actor may not perform the mutation.
var ErrForbidden = errors.New("forbidden")

// ErrInvalidInput is returned when a mutation carries unusable data.
var ErrInvalidInput = errors.New("invalid input")

// ErrUnavailable is returned when the database cannot be reached; the
// enclosing transaction is fully rolled back.
var ErrUnavailable = errors.New("storage unavailable")

// TicketBundle is everything CreateTicket persists in one transaction.
// All rows must carry ids and timestamps; the store writes them verbatim.
type TicketBundle struct {
	Ticket        *types.Ticket
	Prediction    *types.AIPrediction
	AutoResponse  *types.AutoResponse // nil unless the auto-reply path fired
	History       []*types.TicketHistory
	Notifications []*types.Notification
}

// UserRef identifies a ticket author at ingestion. ID wins when set; missing
// fields are synthesized so unauthenticated submissions still get a user row.
type UserRef struct {
	ID    string
	Email string
	Name  string
	Phone string
}

// TicketStats is the one-shot aggregate snapshot behind the metrics endpoint.
type TicketStats struct {
	Total              int
	Closed             int // terminal statuses, auto-resolved included
	AutoClosed         int
	Open               int
	NeedsClarification int
	LowConfidence      int // ai_confidence below the supplied threshold
	MeanConfidence     float64
}

// KeyCount is a (label, count) pair for group-by queries.
type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// DayCount is one day of the opened/closed trend.
type DayCount struct {
	Date   string `json:"date"` // YYYY-MM-DD, UTC
	Opened int    `json:"opened"`
	Closed int    `json:"closed"`
}

// CategoryHours is the mean resolution time for one category.
type CategoryHours struct {
	Category string  `json:"category"`
	Hours    float64 `json:"hours"`
}

// Store is the interface satisfied by *sqlite.Store. Every mutator is a
// single atomic unit; reads see consistent snapshots.
type Store interface {
	// Ticket lifecycle
	CreateTicket(ctx context.Context, bundle *TicketBundle) error
	GetTicket(ctx context.Context, id string) (*types.Ticket, error)
	GetTicketView(ctx context.Context, id string) (*types.TicketView, error)
	ListTickets(ctx context.Context, filter types.TicketFilter) ([]*types.Ticket, error)
	SearchTickets(ctx context.Context, query string, limit int) ([]*types.Ticket, error)
	ListOverdueTickets(ctx context.Context, now time.Time) ([]*types.Ticket, error)
	UpdateTicket(ctx context.Context, id string, patch types.TicketPatch, actor types.Actor) (*types.Ticket, error)

	// Escalation: ListEscalationCandidates returns ids of open, never
	// escalated tickets whose deadline falls inside (now, now+window].
	// EscalateTicket re-verifies eligibility inside its own transaction and
	// reports whether it acted.
	ListEscalationCandidates(ctx context.Context, now time.Time, window time.Duration) ([]string, error)
	EscalateTicket(ctx context.Context, id string, now time.Time, window time.Duration) (bool, error)

	// Comments and history
	AddComment(ctx context.Context, ticketID string, sender types.Actor, text string) (*types.TicketMessage, error)
	ListComments(ctx context.Context, ticketID string) ([]*types.CommentView, error)
	ListHistory(ctx context.Context, ticketID string) ([]*types.TicketHistory, error)

	// Feedback (one row per ticket; duplicates yield ErrConflict)
	CreateFeedback(ctx context.Context, fb *types.Feedback) error
	GetFeedback(ctx context.Context, ticketID string) (*types.Feedback, error)

	// Notifications
	ListNotifications(ctx context.Context, filter types.NotificationFilter) ([]*types.Notification, error)
	CountUnreadNotifications(ctx context.Context, recipientID string) (int, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context, recipientID string) (int, error)

	// Users
	EnsureUser(ctx context.Context, ref UserRef) (*types.User, error)
	UpsertUserByEmail(ctx context.Context, user *types.User) (*types.User, error)
	GetUser(ctx context.Context, id string) (*types.User, error)
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
	ListAdmins(ctx context.Context) ([]*types.User, error)

	// Reference data
	GetOrCreateCategory(ctx context.Context, name string) (*types.Category, error)
	ListCategories(ctx context.Context) ([]*types.Category, error)
	GetOrCreateDepartment(ctx context.Context, name string) (*types.Department, error)
	ListDepartments(ctx context.Context) ([]*types.Department, error)
	GetOrCreateDefaultModel(ctx context.Context) (*types.MLModel, error)

	// Statistics (read-only, consumed by the metrics aggregator)
	TicketStats(ctx context.Context, lowConfidenceBelow float64) (*TicketStats, error)
	CountTicketsByCategory(ctx context.Context) ([]KeyCount, error)
	CountTicketsByDepartment(ctx context.Context) ([]KeyCount, error)
	CountTicketsByIssueType(ctx context.Context) ([]KeyCount, error)
	CountTicketsInDepartment(ctx context.Context, department string) (int, error)
	MeanResolutionHoursByCategory(ctx context.Context) ([]CategoryHours, error)
	DailyTrend(ctx context.Context, days int, now time.Time) ([]DayCount, error)

	// Transactions
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// Transaction exposes the row-level operations available inside
// RunInTransaction. All operations share one database transaction: changes
// are invisible to other connections until commit, any error or panic rolls
// everything back, and a clean return commits.
//
// The store's own mutators (CreateTicket, UpdateTicket, AddComment,
// EscalateTicket) run on this same interface internally, so composed flows
// built on RunInTransaction get identical semantics.
type Transaction interface {
	InsertTicket(ctx context.Context, t *types.Ticket) error
	GetTicket(ctx context.Context, id string) (*types.Ticket, error) // read-your-writes
	UpdateTicketRow(ctx context.Context, t *types.Ticket) error
	InsertPrediction(ctx context.Context, p *types.AIPrediction) error
	InsertAutoResponse(ctx context.Context, r *types.AutoResponse) error
	InsertMessage(ctx context.Context, m *types.TicketMessage) error
	InsertHistory(ctx context.Context, h *types.TicketHistory) error // assigns per-tx seq
	InsertNotification(ctx context.Context, n *types.Notification) error
	InsertFeedback(ctx context.Context, fb *types.Feedback) error
	GetUser(ctx context.Context, id string) (*types.User, error)
	ListAdmins(ctx context.Context) ([]*types.User, error)
}
