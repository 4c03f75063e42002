// Package types defines core data structures for the qoldau help-desk.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Ticket is a single help-desk request moving through the
// classify → route → auto-resolve → escalate pipeline.
type Ticket struct {
	ID                   string     `json:"id"`
	Source               Source     `json:"source"`
	AuthorID             string     `json:"author_id"`
	Subject              string     `json:"subject,omitempty"`
	Body                 string     `json:"body"`
	Language             Language   `json:"language,omitempty"`
	CategoryID           *string    `json:"category_id,omitempty"`
	Priority             Priority   `json:"priority,omitempty"`
	IssueType            IssueType  `json:"issue_type,omitempty"`
	AIConfidence         float64    `json:"ai_confidence"` // problem-type confidence at ingestion
	AssignedDepartmentID *string    `json:"assigned_department_id,omitempty"`
	AssignedOperatorID   *string    `json:"assigned_operator_id,omitempty"`
	Status               Status     `json:"status"`
	AutoResolved         bool       `json:"auto_resolved,omitempty"`
	NeedsClarification   bool       `json:"needs_clarification,omitempty"`
	ConfidenceWarning    string     `json:"confidence_warning,omitempty"`
	SLADeadline          *time.Time `json:"sla_deadline,omitempty"`
	IsEscalated          bool       `json:"is_escalated,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	ClosedAt             *time.Time `json:"closed_at,omitempty"`
}

// Validate checks field values and the closed_at invariant.
func (t *Ticket) Validate() error {
	if strings.TrimSpace(t.Body) == "" {
		return fmt.Errorf("body is required")
	}
	if t.AuthorID == "" {
		return fmt.Errorf("author_id is required")
	}
	if !t.Source.IsValid() {
		return fmt.Errorf("invalid source: %s", t.Source)
	}
	if t.Language != "" && !t.Language.IsValid() {
		return fmt.Errorf("invalid language: %s", t.Language)
	}
	if t.Priority != "" && !t.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %s", t.Priority)
	}
	if t.IssueType != "" && !t.IssueType.IsValid() {
		return fmt.Errorf("invalid issue type: %s", t.IssueType)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", t.Status)
	}
	if t.AIConfidence < 0 || t.AIConfidence > 1 {
		return fmt.Errorf("ai_confidence must be within [0,1] (got %g)", t.AIConfidence)
	}
	// closed_at is set exactly when the ticket is in a terminal status.
	if t.Status.IsTerminal() && t.ClosedAt == nil {
		return fmt.Errorf("%s tickets must have closed_at timestamp", t.Status)
	}
	if !t.Status.IsTerminal() && t.ClosedAt != nil {
		return fmt.Errorf("%s tickets cannot have closed_at timestamp", t.Status)
	}
	if t.SLADeadline != nil && !t.SLADeadline.After(t.CreatedAt) {
		return fmt.Errorf("sla_deadline must be after created_at")
	}
	return nil
}

// ShortID returns the first 8 characters of an id for titles and logs.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// Status represents the lifecycle state of a ticket.
type Status string

// Ticket status constants
const (
	StatusNew          Status = "new"
	StatusInWork       Status = "in_work"
	StatusWaiting      Status = "waiting"
	StatusAutoResolved Status = "auto_resolved"
	StatusClosed       Status = "closed"
)

// IsValid checks if the status value is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusInWork, StatusWaiting, StatusAutoResolved, StatusClosed:
		return true
	}
	return false
}

// IsTerminal reports whether the status closes the ticket.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusAutoResolved
}

// Priority is the urgency axis driving SLA deadlines.
type Priority string

// Ticket priority constants, ordered low → critical.
const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// IsValid checks if the priority value is valid.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank orders priorities: low=0 … critical=3. Unknown values rank as medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	}
	return 1
}

// Bump returns the next priority up. Critical stays critical.
func (p Priority) Bump() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	case PriorityHigh:
		return PriorityCritical
	}
	return p
}

// IssueType is the "how routable" axis: typical problems have a canned
// answer, simple ones are human-trivial, complex ones need an expert.
type IssueType string

// Issue type constants
const (
	IssueTypical IssueType = "typical"
	IssueSimple  IssueType = "simple"
	IssueComplex IssueType = "complex"
)

// IsValid checks if the issue type value is valid.
func (t IssueType) IsValid() bool {
	switch t {
	case IssueTypical, IssueSimple, IssueComplex:
		return true
	}
	return false
}

// Source tells which channel a ticket arrived through.
type Source string

// Ticket source constants
const (
	SourceEmail  Source = "email"
	SourceChat   Source = "chat"
	SourcePortal Source = "portal"
	SourcePhone  Source = "phone"
)

// IsValid checks if the source value is valid.
func (s Source) IsValid() bool {
	switch s {
	case SourceEmail, SourceChat, SourcePortal, SourcePhone:
		return true
	}
	return false
}

// Language is a ticket/content language code.
type Language string

// Language constants. KK is Kazakh; the response bank file historically
// labels Kazakh texts with the "kz" key, normalized to kk on load.
const (
	LangRU Language = "ru"
	LangKK Language = "kk"
	LangEN Language = "en"
)

// IsValid checks if the language value is valid.
func (l Language) IsValid() bool {
	switch l {
	case LangRU, LangKK, LangEN:
		return true
	}
	return false
}

// Role is a user's authorization level.
type Role string

// User role constants
const (
	RoleClient   Role = "client"
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
)

// IsValid checks if the role value is valid.
func (r Role) IsValid() bool {
	switch r {
	case RoleClient, RoleEmployee, RoleAdmin:
		return true
	}
	return false
}

// User is an account that authors tickets or operates on them.
// PasswordHash is opaque to the core and empty for synthesized users.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	Phone        string    `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Actor identifies who performs a mutation, for authorization and history.
type Actor struct {
	ID   string
	Role Role
}

// System is the actor recorded for automated mutations (SLA loop, ingestion).
var System = Actor{ID: "", Role: RoleAdmin}

// Category groups tickets by topic.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	SLAMinutes  *int      `json:"sla_minutes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Department is a destination queue for routed tickets.
type Department struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Operator is a support employee attached to a department.
type Operator struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	DepartmentID *string   `json:"department_id,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// TicketMessage is an append-only comment on a ticket.
type TicketMessage struct {
	ID          string    `json:"id"`
	TicketID    string    `json:"ticket_id"`
	SenderID    string    `json:"sender_id"`
	Text        string    `json:"text"`
	Attachments string    `json:"attachments,omitempty"` // opaque JSON
	CreatedAt   time.Time `json:"created_at"`
}

// HistoryAction tags a ticket history row.
type HistoryAction string

// History action constants
const (
	ActionCreated         HistoryAction = "created"
	ActionStatusChanged   HistoryAction = "status_changed"
	ActionPriorityChanged HistoryAction = "priority_changed"
	ActionAssigned        HistoryAction = "assigned"
	ActionCommentAdded    HistoryAction = "comment_added"
	ActionClosed          HistoryAction = "closed"
	ActionReopened        HistoryAction = "reopened"
	ActionEscalated       HistoryAction = "escalated"
)

// IsValid checks if the history action value is valid.
func (a HistoryAction) IsValid() bool {
	switch a {
	case ActionCreated, ActionStatusChanged, ActionPriorityChanged, ActionAssigned,
		ActionCommentAdded, ActionClosed, ActionReopened, ActionEscalated:
		return true
	}
	return false
}

// TicketHistory is an append-only audit row. Seq orders rows written in the
// same transaction; (created_at, seq) is a total order per ticket.
type TicketHistory struct {
	ID          string        `json:"id"`
	TicketID    string        `json:"ticket_id"`
	ActorID     *string       `json:"actor_id,omitempty"`
	Action      HistoryAction `json:"action"`
	OldValue    string        `json:"old_value,omitempty"`
	NewValue    string        `json:"new_value,omitempty"`
	Description string        `json:"description,omitempty"`
	Seq         int           `json:"seq"`
	CreatedAt   time.Time     `json:"created_at"`
}

// NotificationType tags a notification row.
type NotificationType string

// Notification type constants
const (
	NotifyComment       NotificationType = "comment"
	NotifyAdminReply    NotificationType = "admin_reply"
	NotifyTicketCreated NotificationType = "ticket_created"
	NotifyTicketUpdated NotificationType = "ticket_updated"
	NotifyTicketClosed  NotificationType = "ticket_closed"
	NotifyAssigned      NotificationType = "assigned"
)

// IsValid checks if the notification type value is valid.
func (n NotificationType) IsValid() bool {
	switch n {
	case NotifyComment, NotifyAdminReply, NotifyTicketCreated,
		NotifyTicketUpdated, NotifyTicketClosed, NotifyAssigned:
		return true
	}
	return false
}

// Notification is a per-recipient message about a domain event.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	TicketID    *string          `json:"ticket_id,omitempty"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	IsRead      bool             `json:"is_read"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Feedback is a one-shot CSAT rating for a ticket.
type Feedback struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	UserID    *string   `json:"user_id,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the rating range.
func (f *Feedback) Validate() error {
	if f.TicketID == "" {
		return fmt.Errorf("ticket_id is required")
	}
	if f.Rating < 1 || f.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5 (got %d)", f.Rating)
	}
	return nil
}

// AIPrediction records what the classifier said at ingestion, once per ticket.
type AIPrediction struct {
	ID                  string    `json:"id"`
	TicketID            string    `json:"ticket_id"`
	ModelID             string    `json:"model_id"`
	PredictedCategoryID *string   `json:"predicted_category_id,omitempty"`
	PredictedPriority   Priority  `json:"predicted_priority,omitempty"`
	PredictedIssueType  IssueType `json:"predicted_issue_type,omitempty"`
	Confidence          float64   `json:"confidence"`
	CreatedAt           time.Time `json:"created_at"`
}

// AutoResponse is the canned reply stored when the auto-reply path fires.
type AutoResponse struct {
	ID           string    `json:"id"`
	TicketID     string    `json:"ticket_id"`
	ResponseText string    `json:"response_text"`
	IsSuccessful bool      `json:"is_successful"`
	CreatedAt    time.Time `json:"created_at"`
}

// MLModel identifies the classifier version behind a prediction.
type MLModel struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ResponseTemplate is one canned answer in one language, as indexed by the
// response bank. Not a database entity; the bank file is the source of truth.
type ResponseTemplate struct {
	ID       string   `json:"id"`
	Category string   `json:"category"`
	Language Language `json:"language"`
	Text     string   `json:"text"`
	Keywords []string `json:"keywords,omitempty"`
}
