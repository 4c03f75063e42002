// Package ingest composes the ticket pipeline: classify, route, attempt
// auto-reply, persist.
//
// The pipeline degrades, never aborts: classifier failure falls back to a
// conservative prediction, auto-reply failure demotes the ticket to a human
// queue. The only error Submit returns for a well-formed store is
// InvalidInput on an unusable request.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qoldau/qoldau/internal/autoreply"
	"github.com/qoldau/qoldau/internal/classify"
	"github.com/qoldau/qoldau/internal/notify"
	"github.com/qoldau/qoldau/internal/routing"
	"github.com/qoldau/qoldau/internal/sla"
	"github.com/qoldau/qoldau/internal/storage"
	"github.com/qoldau/qoldau/internal/types"
)

// Classifier is the slice of the classifier gateway the orchestrator needs.
type Classifier interface {
	Classify(ctx context.Context, subject, body string) (*classify.Prediction, error)
}

// Drafter generates auto-reply drafts. Nil means the response bank never
// came up and auto-reply is disabled for the process lifetime.
type Drafter interface {
	GenerateDraft(ctx context.Context, query string, category string, issueType types.IssueType, language types.Language) autoreply.Draft
}

// Request is one ticket submission.
type Request struct {
	Source   types.Source    `json:"source,omitempty"`
	Author   storage.UserRef `json:"author"`
	Subject  string          `json:"subject,omitempty"`
	Body     string          `json:"body"`
	Language types.Language  `json:"language,omitempty"`
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	store      storage.Store
	classifier Classifier
	drafter    Drafter
	thresholds routing.Thresholds
	log        *slog.Logger
	now        func() time.Time
}

// New builds an orchestrator. drafter may be nil when the response bank is
// unavailable; that is logged once here, not per ticket.
func New(store storage.Store, classifier Classifier, drafter Drafter, th routing.Thresholds, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "ingest")
	if drafter == nil {
		log.Warn("response bank unavailable, auto-reply disabled")
	}
	if th.ClarifyConfidence == 0 && th.AutoConfidence == 0 {
		th = routing.DefaultThresholds
	}
	return &Orchestrator{
		store:      store,
		classifier: classifier,
		drafter:    drafter,
		thresholds: th,
		log:        log,
		now:        time.Now,
	}
}

// Submit runs the full pipeline for one request and returns the created
// ticket view.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*types.TicketView, error) {
	if strings.TrimSpace(req.Body) == "" {
		return nil, fmt.Errorf("ticket body is required: %w", storage.ErrInvalidInput)
	}
	if req.Source == "" {
		req.Source = types.SourcePortal
	}
	if !req.Source.IsValid() {
		return nil, fmt.Errorf("unknown source %q: %w", req.Source, storage.ErrInvalidInput)
	}
	if req.Language != "" && !req.Language.IsValid() {
		return nil, fmt.Errorf("unknown language %q: %w", req.Language, storage.ErrInvalidInput)
	}

	pred, err := o.classifier.Classify(ctx, req.Subject, req.Body)
	if err != nil {
		return nil, err
	}

	decision := routing.Route(routing.Input{
		Category:      pred.Category,
		Priority:      pred.Priority,
		IssueType:     pred.IssueType,
		ConfCategory:  pred.Confidence.Category,
		ConfPriority:  pred.Confidence.Priority,
		ConfIssueType: pred.Confidence.IssueType,
	}, o.thresholds)

	now := o.now().UTC()
	language := req.Language
	if language == "" {
		language = autoreply.DetectLanguage(req.Subject + " " + req.Body)
	}

	ticket := &types.Ticket{
		ID:                 uuid.NewString(),
		Source:             req.Source,
		Subject:            strings.TrimSpace(req.Subject),
		Body:               strings.TrimSpace(req.Body),
		Language:           language,
		Priority:           pred.Priority,
		IssueType:          pred.IssueType,
		AIConfidence:       pred.Confidence.IssueType,
		Status:             types.StatusNew,
		NeedsClarification: decision.NeedsClarification,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if len(decision.LowConfidenceAxes) > 0 {
		ticket.ConfidenceWarning = strings.Join(decision.LowConfidenceAxes, ", ")
	}

	queue := decision.Queue
	var draft *autoreply.Draft
	if queue == routing.QueueAutomated {
		d := o.draft(ctx, req.Body, pred, language)
		draft = &d
		if d.CanAutoReply {
			ticket.Status = types.StatusAutoResolved
			ticket.AutoResolved = true
			closed := now
			ticket.ClosedAt = &closed
		} else {
			queue = routing.QueueGeneralSupport
		}
	}

	deadline := sla.Deadline(ticket.Priority, now)
	ticket.SLADeadline = &deadline

	author, err := o.store.EnsureUser(ctx, req.Author)
	if err != nil {
		return nil, err
	}
	ticket.AuthorID = author.ID

	category, err := o.store.GetOrCreateCategory(ctx, pred.Category)
	if err != nil {
		return nil, err
	}
	ticket.CategoryID = &category.ID

	department, err := o.store.GetOrCreateDepartment(ctx, string(queue))
	if err != nil {
		return nil, err
	}
	ticket.AssignedDepartmentID = &department.ID

	model, err := o.store.GetOrCreateDefaultModel(ctx)
	if err != nil {
		return nil, err
	}

	admins, err := o.store.ListAdmins(ctx)
	if err != nil {
		return nil, err
	}

	bundle := &storage.TicketBundle{
		Ticket: ticket,
		Prediction: &types.AIPrediction{
			ID:                  uuid.NewString(),
			TicketID:            ticket.ID,
			ModelID:             model.ID,
			PredictedCategoryID: &category.ID,
			PredictedPriority:   pred.Priority,
			PredictedIssueType:  pred.IssueType,
			Confidence:          pred.Confidence.Min(),
			CreatedAt:           now,
		},
		History:       []*types.TicketHistory{createdHistory(ticket, author.ID, pred, decision, now)},
		Notifications: notify.TicketCreated(ticket, admins, now),
	}
	if draft != nil {
		bundle.AutoResponse = &types.AutoResponse{
			ID:           uuid.NewString(),
			TicketID:     ticket.ID,
			ResponseText: draft.Text,
			IsSuccessful: draft.CanAutoReply,
			CreatedAt:    now,
		}
	}

	if err := o.store.CreateTicket(ctx, bundle); err != nil {
		return nil, err
	}

	o.log.Info("ticket created",
		"ticket", types.ShortID(ticket.ID),
		"queue", queue,
		"priority", ticket.Priority,
		"auto_resolved", ticket.AutoResolved,
		"degraded", pred.Degraded)

	view := &types.TicketView{
		Ticket:         ticket,
		CategoryName:   category.Name,
		DepartmentName: department.Name,
		Queue:          string(queue),
		RoutingNote:    decision.Message,
		SLABucket:      sla.Bucket(ticket, now),
	}
	if draft != nil {
		view.AutoReplyText = draft.Text
	}
	return view, nil
}

// draft calls the auto-reply engine, treating an absent bank as a decline.
func (o *Orchestrator) draft(ctx context.Context, body string, pred *classify.Prediction, language types.Language) autoreply.Draft {
	if o.drafter == nil {
		return autoreply.Draft{Reason: "bank-unavailable", Language: language}
	}
	return o.drafter.GenerateDraft(ctx, body, pred.Category, pred.IssueType, language)
}

func createdHistory(t *types.Ticket, authorID string, pred *classify.Prediction, decision routing.Decision, now time.Time) *types.TicketHistory {
	desc := decision.Message
	if pred.Degraded {
		desc += "; classifier degraded: " + pred.DegradedCause
	}
	actor := authorID
	return &types.TicketHistory{
		ID:          uuid.NewString(),
		TicketID:    t.ID,
		ActorID:     &actor,
		Action:      types.ActionCreated,
		NewValue:    string(t.Status),
		Description: desc,
		CreatedAt:   now,
	}
}
