package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qoldau/qoldau/internal/autoreply"
	"github.com/qoldau/qoldau/internal/classify"
	"github.com/qoldau/qoldau/internal/routing"
	"github.com/qoldau/qoldau/internal/storage"
	"github.com/qoldau/qoldau/internal/storage/sqlite"
	"github.com/qoldau/qoldau/internal/types"
)

// fixedClassifier returns the same prediction for every request.
type fixedClassifier struct {
	pred *classify.Prediction
}

func (f fixedClassifier) Classify(context.Context, string, string) (*classify.Prediction, error) {
	return f.pred, nil
}

// fixedDrafter returns a pre-built draft.
type fixedDrafter struct {
	draft autoreply.Draft
}

func (f fixedDrafter) GenerateDraft(context.Context, string, string, types.IssueType, types.Language) autoreply.Draft {
	return f.draft
}

func prediction(category string, p types.Priority, it types.IssueType, conf float64) *classify.Prediction {
	return &classify.Prediction{
		Category:  category,
		Priority:  p,
		IssueType: it,
		Confidence: classify.Confidence{
			Category:  conf,
			Priority:  conf,
			IssueType: conf,
		},
	}
}

func testStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func submit(t *testing.T, o *Orchestrator) *types.TicketView {
	t.Helper()
	view, err := o.Submit(context.Background(), Request{
		Author:  storage.UserRef{Email: "client@example.kz", Name: "Client"},
		Subject: "не приходит счет",
		Body:    "счет за август не пришел на почту",
	})
	require.NoError(t, err)
	return view
}

func TestSubmitAutoResolvesTypicalTicket(t *testing.T) {
	s := testStore(t)
	drafter := fixedDrafter{draft: autoreply.Draft{
		CanAutoReply: true,
		Text:         "Проверьте раздел Платежи в личном кабинете.",
		Similarity:   0.9,
		Language:     types.LangRU,
	}}
	o := New(s, fixedClassifier{prediction("Billing", types.PriorityMedium, types.IssueTypical, 0.9)},
		drafter, routing.DefaultThresholds, nil)

	view := submit(t, o)
	tk := view.Ticket
	assert.Equal(t, types.StatusAutoResolved, tk.Status)
	assert.True(t, tk.AutoResolved)
	require.NotNil(t, tk.ClosedAt)
	assert.Equal(t, string(routing.QueueAutomated), view.Queue)
	assert.Equal(t, drafter.draft.Text, view.AutoReplyText)
	assert.Equal(t, types.LangRU, tk.Language, "language detected from cyrillic body")

	got, err := s.GetTicket(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAutoResolved, got.Status)

	history, err := s.ListHistory(context.Background(), tk.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, types.ActionCreated, history[0].Action)
	assert.Equal(t, "auto_resolved", history[0].NewValue)
}

func TestSubmitDeclinedDraftDemotesToGeneralSupport(t *testing.T) {
	s := testStore(t)
	drafter := fixedDrafter{draft: autoreply.Draft{
		CanAutoReply: false,
		Reason:       "low-similarity",
		Text:         "Спасибо за обращение! Оператор ответит вам в ближайшее время.",
	}}
	o := New(s, fixedClassifier{prediction("Billing", types.PriorityMedium, types.IssueTypical, 0.9)},
		drafter, routing.DefaultThresholds, nil)

	view := submit(t, o)
	assert.Equal(t, string(routing.QueueGeneralSupport), view.Queue)
	assert.Equal(t, types.StatusNew, view.Ticket.Status)
	assert.False(t, view.Ticket.AutoResolved)
	assert.Nil(t, view.Ticket.ClosedAt)
	// The declined draft is still recorded for the operator.
	assert.Equal(t, drafter.draft.Text, view.AutoReplyText)
}

func TestSubmitNilDrafterDisablesAutoReply(t *testing.T) {
	s := testStore(t)
	o := New(s, fixedClassifier{prediction("Billing", types.PriorityMedium, types.IssueTypical, 0.9)},
		nil, routing.DefaultThresholds, nil)

	view := submit(t, o)
	assert.Equal(t, string(routing.QueueGeneralSupport), view.Queue)
	assert.Equal(t, types.StatusNew, view.Ticket.Status)
}

func TestSubmitLowConfidenceGoesToManualReview(t *testing.T) {
	s := testStore(t)
	o := New(s, fixedClassifier{prediction("Billing", types.PriorityMedium, types.IssueComplex, 0.5)},
		nil, routing.DefaultThresholds, nil)

	view := submit(t, o)
	tk := view.Ticket
	assert.Equal(t, string(routing.QueueManualReview), view.Queue)
	assert.True(t, tk.NeedsClarification)
	assert.Contains(t, tk.ConfidenceWarning, "category (50%)")
	assert.Contains(t, tk.ConfidenceWarning, "issue-type (50%)")
}

func TestSubmitHighPriorityQueue(t *testing.T) {
	s := testStore(t)
	o := New(s, fixedClassifier{prediction("Billing", types.PriorityCritical, types.IssueComplex, 0.9)},
		nil, routing.DefaultThresholds, nil)

	view := submit(t, o)
	assert.Equal(t, string(routing.QueueHighPriority), view.Queue)
	require.NotNil(t, view.Ticket.SLADeadline)
	assert.True(t, view.Ticket.SLADeadline.Equal(view.Ticket.CreatedAt.Add(time.Hour)))
}

func TestSubmitDegradedClassifierStillCreates(t *testing.T) {
	s := testStore(t)
	pred := prediction("General", types.PriorityMedium, types.IssueComplex, 0.3)
	pred.Degraded = true
	pred.DegradedCause = "classifier unreachable"
	o := New(s, fixedClassifier{pred}, nil, routing.DefaultThresholds, nil)

	view := submit(t, o)
	tk := view.Ticket
	assert.Equal(t, string(routing.QueueManualReview), view.Queue)
	assert.True(t, tk.NeedsClarification)

	history, err := s.ListHistory(context.Background(), tk.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Contains(t, history[0].Description, "classifier degraded: classifier unreachable")
}

func TestSubmitNotifiesAdmins(t *testing.T) {
	s := testStore(t)
	admin, err := s.UpsertUserByEmail(context.Background(), &types.User{
		Email: "admin@example.kz", Name: "Admin", Role: types.RoleAdmin,
	})
	require.NoError(t, err)

	o := New(s, fixedClassifier{prediction("Billing", types.PriorityMedium, types.IssueComplex, 0.9)},
		nil, routing.DefaultThresholds, nil)
	view := submit(t, o)

	notifs, err := s.ListNotifications(context.Background(), types.NotificationFilter{RecipientID: admin.ID})
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, types.NotifyTicketCreated, notifs[0].Type)
	require.NotNil(t, notifs[0].TicketID)
	assert.Equal(t, view.Ticket.ID, *notifs[0].TicketID)
}

func TestSubmitCreatesReferenceRows(t *testing.T) {
	s := testStore(t)
	o := New(s, fixedClassifier{prediction("Billing", types.PriorityMedium, types.IssueComplex, 0.9)},
		nil, routing.DefaultThresholds, nil)

	view := submit(t, o)
	assert.Equal(t, "Billing", view.CategoryName)
	assert.Equal(t, "Billing", view.DepartmentName)

	author, err := s.GetUserByEmail(context.Background(), "client@example.kz")
	require.NoError(t, err)
	assert.Equal(t, view.Ticket.AuthorID, author.ID)
	assert.Equal(t, types.RoleClient, author.Role)

	// Resubmitting reuses the reference rows but always makes a new ticket.
	again := submit(t, o)
	assert.Equal(t, view.Ticket.AuthorID, again.Ticket.AuthorID)
	assert.NotEqual(t, view.Ticket.ID, again.Ticket.ID)
	cats, err := s.ListCategories(context.Background())
	require.NoError(t, err)
	assert.Len(t, cats, 1)

	all, err := s.ListTickets(context.Background(), types.TicketFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2, "duplicate submissions are two tickets")
}

func TestSubmitValidation(t *testing.T) {
	o := New(testStore(t), fixedClassifier{prediction("x", types.PriorityLow, types.IssueSimple, 0.9)},
		nil, routing.DefaultThresholds, nil)

	_, err := o.Submit(context.Background(), Request{Body: "   "})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = o.Submit(context.Background(), Request{Body: "ok", Source: "carrier-pigeon"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = o.Submit(context.Background(), Request{Body: "ok", Language: "la"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
