package types

import "time"

// TicketFilter narrows ticket listings. Nil fields are ignored.
type TicketFilter struct {
	Status       *Status
	CategoryID   *string
	CategoryName *string
	AuthorID     *string
	DateFrom     *time.Time
	DateTo       *time.Time
	Skip         int
	Limit        int
}

// TicketPatch is a partial update for UpdateTicket. Nil fields are
// left untouched; every non-nil field that differs from the current
// row produces one history entry.
type TicketPatch struct {
	Status               *Status
	Priority             *Priority
	CategoryID           *string
	AssignedDepartmentID *string
	AssignedOperatorID   *string
}

// IsZero reports whether the patch carries no changes at all.
func (p TicketPatch) IsZero() bool {
	return p.Status == nil && p.Priority == nil && p.CategoryID == nil &&
		p.AssignedDepartmentID == nil && p.AssignedOperatorID == nil
}

// NotificationFilter narrows notification listings.
type NotificationFilter struct {
	RecipientID string
	UnreadOnly  bool
	Limit       int
}

// TicketView is the enriched read model returned by ingestion and the
// single-ticket endpoint.
type TicketView struct {
	Ticket         *Ticket `json:"ticket"`
	CategoryName   string  `json:"category_name,omitempty"`
	DepartmentName string  `json:"department_name,omitempty"`
	Queue          string  `json:"queue,omitempty"`
	RoutingNote    string  `json:"routing_note,omitempty"`
	SLABucket      string  `json:"sla_bucket,omitempty"`
	AutoReplyText  string  `json:"auto_reply_text,omitempty"`
}

// CommentView is a ticket message joined with sender identity for the API.
type CommentView struct {
	TicketMessage
	SenderName  string `json:"sender_name,omitempty"`
	SenderEmail string `json:"sender_email,omitempty"`
	SenderRole  Role   `json:"sender_role,omitempty"`
}
