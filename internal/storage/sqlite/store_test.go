package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qoldau/qoldau/internal/sla"
	"github.com/qoldau/qoldau/internal/storage"
	"github.com/qoldau/qoldau/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUser(t *testing.T, s *Store, email string, role types.Role) *types.User {
	t.Helper()
	u, err := s.UpsertUserByEmail(context.Background(), &types.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      email,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return u
}

// seedTicket persists a minimal open ticket and returns it.
func seedTicket(t *testing.T, s *Store, author *types.User, mutate func(*types.Ticket)) *types.Ticket {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	deadline := sla.Deadline(types.PriorityMedium, now)

	tk := &types.Ticket{
		ID:           uuid.NewString(),
		Source:       types.SourcePortal,
		AuthorID:     author.ID,
		Subject:      "printer broken",
		Body:         "the office printer is on fire",
		Language:     types.LangRU,
		Priority:     types.PriorityMedium,
		IssueType:    types.IssueComplex,
		AIConfidence: 0.8,
		Status:       types.StatusNew,
		SLADeadline:  &deadline,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if mutate != nil {
		mutate(tk)
	}

	model, err := s.GetOrCreateDefaultModel(ctx)
	require.NoError(t, err)

	actorID := author.ID
	bundle := &storage.TicketBundle{
		Ticket: tk,
		Prediction: &types.AIPrediction{
			ID:                 uuid.NewString(),
			TicketID:           tk.ID,
			ModelID:            model.ID,
			PredictedPriority:  tk.Priority,
			PredictedIssueType: tk.IssueType,
			Confidence:         tk.AIConfidence,
			CreatedAt:          now,
		},
		History: []*types.TicketHistory{{
			ID:        uuid.NewString(),
			TicketID:  tk.ID,
			ActorID:   &actorID,
			Action:    types.ActionCreated,
			NewValue:  string(tk.Status),
			CreatedAt: now,
		}},
	}
	require.NoError(t, s.CreateTicket(ctx, bundle))
	return tk
}

func TestCreateAndGetTicketRoundTrip(t *testing.T) {
	s := openTestStore(t)
	author := seedUser(t, s, "client@example.kz", types.RoleClient)
	tk := seedTicket(t, s, author, nil)

	got, err := s.GetTicket(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, got.ID)
	assert.Equal(t, tk.AuthorID, got.AuthorID)
	assert.Equal(t, types.StatusNew, got.Status)
	assert.Equal(t, types.PriorityMedium, got.Priority)
	require.NotNil(t, got.SLADeadline)
	assert.True(t, got.SLADeadline.Equal(*tk.SLADeadline))
	assert.Nil(t, got.ClosedAt)

	history, err := s.ListHistory(context.Background(), tk.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, types.ActionCreated, history[0].Action)
}

func TestGetTicketNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetTicket(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateTicketNoOpLeavesRowUntouched(t *testing.T) {
	s := openTestStore(t)
	author := seedUser(t, s, "client@example.kz", types.RoleClient)
	tk := seedTicket(t, s, author, nil)

	got, err := s.UpdateTicket(context.Background(), tk.ID, types.TicketPatch{}, types.Actor{ID: author.ID, Role: types.RoleClient})
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(tk.UpdatedAt))

	history, err := s.ListHistory(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1, "no-op patch must not append history")
}

func TestCloseForbiddenForOtherClients(t *testing.T) {
	s := openTestStore(t)
	author := seedUser(t, s, "author@example.kz", types.RoleClient)
	stranger := seedUser(t, s, "stranger@example.kz", types.RoleClient)
	tk := seedTicket(t, s, author, nil)

	closed := types.StatusClosed
	_, err := s.UpdateTicket(context.Background(), tk.ID, types.TicketPatch{Status: &closed},
		types.Actor{ID: stranger.ID, Role: types.RoleClient})
	assert.ErrorIs(t, err, storage.ErrForbidden)

	got, err := s.GetTicket(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusNew, got.Status, "nothing written on forbidden close")
}

func TestCloseByAdminNotifiesAuthor(t *testing.T) {
	s := openTestStore(t)
	author := seedUser(t, s, "author@example.kz", types.RoleClient)
	admin := seedUser(t, s, "admin@example.kz", types.RoleAdmin)
	tk := seedTicket(t, s, author, nil)

	closed := types.StatusClosed
	got, err := s.UpdateTicket(context.Background(), tk.ID, types.TicketPatch{Status: &closed},
		types.Actor{ID: admin.ID, Role: types.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, types.StatusClosed, got.Status)
	require.NotNil(t, got.ClosedAt)
	assert.False(t, got.ClosedAt.Before(got.CreatedAt))

	history, err := s.ListHistory(context.Background(), tk.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, types.ActionClosed, last.Action)
	assert.NotEqual(t, last.OldValue, last.NewValue)

	notifs, err := s.ListNotifications(context.Background(), types.NotificationFilter{RecipientID: author.ID})
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, types.NotifyTicketClosed, notifs[0].Type)
}

func TestReopenClearsClosedAtAndAutoResolved(t *testing.T) {
	s := openTestStore(t)
	author := seedUser(t, s, "author@example.kz", types.RoleClient)
	tk := seedTicket(t, s, author, func(tk *types.Ticket) {
		now := tk.CreatedAt
		tk.Status = types.StatusAutoResolved
		tk.AutoResolved = true
		tk.ClosedAt = &now
	})

	inWork := types.StatusInWork
	got, err := s.UpdateTicket(context.Background(), tk.ID, types.TicketPatch{Status: &inWork},
		types.Actor{ID: author.ID, Role: types.RoleClient})
	require.NoError(t, err)
	assert.Equal(t, types.StatusInWork, got.Status)
	assert.Nil(t, got.ClosedAt)
	assert.False(t, got.AutoResolved)

	history, err := s.ListHistory(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ActionReopened, history[len(history)-1].Action)
}

func TestPriorityChangeRecomputesDeadlineFromCreation(t *testing.T) {
	s := openTestStore(t)
	author := seedUser(t, s, "author@example.kz", types.RoleClient)
	tk := seedTicket(t, s, author, nil)

	critical := types.PriorityCritical
	got, err := s.UpdateTicket(context.Background(), tk.ID, types.TicketPatch{Priority: &critical},
		types.Actor{ID: author.ID, Role: types.RoleClient})
	require.NoError(t, err)
	require.NotNil(t, got.SLADeadline)
	assert.True(t, got.SLADeadline.Equal(tk.CreatedAt.Add(time.Hour)),
		"deadline anchors at the original created_at")

	history, err := s.ListHistory(context.Background(), tk.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, types.ActionPriorityChanged, last.Action)
	assert.Equal(t, "medium", last.OldValue)
	assert.Equal(t, "critical", last.NewValue)
}

func TestDuplicateFeedbackConflicts(t *testing.T) {
	s := openTestStore(t)
	author := seedUser(t, s, "author@example.kz", types.RoleClient)
	tk := seedTicket(t, s, author, nil)

	fb := &types.Feedback{ID: uuid.NewString(), TicketID: tk.ID, Rating: 5, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateFeedback(context.Background(), fb))

	dup := &types.Feedback{ID: uuid.NewString(), TicketID: tk.ID, Rating: 1, CreatedAt: time.Now().UTC()}
	assert.ErrorIs(t, s.CreateFeedback(context.Background(), dup), storage.ErrConflict)

	got, err := s.GetFeedback(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Rating, "first feedback survives")
}

func TestEscalationLatchIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	author := seedUser(t, s, "author@example.kz", types.RoleClient)
	now := time.Now().UTC()
	tk := seedTicket(t, s, author, func(tk *types.Ticket) {
		deadline := now.Add(30 * time.Minute)
		tk.SLADeadline = &deadline
	})

	ids, err := s.ListEscalationCandidates(context.Background(), now, 12*time.Hour)
	require.NoError(t, err)
	require.Contains(t, ids, tk.ID)

	acted, err := s.EscalateTicket(context.Background(), tk.ID, now, 12*time.Hour)
	require.NoError(t, err)
	assert.True(t, acted)

	got, err := s.GetTicket(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.True(t, got.IsEscalated)
	assert.Equal(t, types.PriorityHigh, got.Priority)
	require.NotNil(t, got.SLADeadline)
	assert.True(t, got.SLADeadline.Equal(got.CreatedAt.Add(4*time.Hour)))

	// Second sweep re-verifies and does nothing.
	acted, err = s.EscalateTicket(context.Background(), tk.ID, now, 12*time.Hour)
	require.NoError(t, err)
	assert.False(t, acted)

	history, err := s.ListHistory(context.Background(), tk.ID)
	require.NoError(t, err)
	escalations := 0
	for _, h := range history {
		if h.Action == types.ActionEscalated {
			escalations++
			assert.Equal(t, "medium", h.OldValue)
			assert.Equal(t, "high", h.NewValue)
		}
	}
	assert.Equal(t, 1, escalations)

	notifs, err := s.ListNotifications(context.Background(), types.NotificationFilter{RecipientID: author.ID})
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, types.NotifyTicketUpdated, notifs[0].Type)
}

func TestEscalationWindowBoundaries(t *testing.T) {
	s := openTestStore(t)
	author := seedUser(t, s, "author@example.kz", types.RoleClient)
	now := time.Now().UTC()
	window := 12 * time.Hour

	overdue := seedTicket(t, s, author, func(tk *types.Ticket) {
		d := now.Add(-time.Minute)
		tk.SLADeadline = &d
	})
	farOut := seedTicket(t, s, author, func(tk *types.Ticket) {
		d := now.Add(window + time.Hour)
		tk.SLADeadline = &d
	})
	inside := seedTicket(t, s, author, func(tk *types.Ticket) {
		d := now.Add(window)
		tk.SLADeadline = &d
	})

	ids, err := s.ListEscalationCandidates(context.Background(), now, window)
	require.NoError(t, err)
	assert.NotContains(t, ids, overdue.ID, "already overdue tickets are not pre-deadline candidates")
	assert.NotContains(t, ids, farOut.ID)
	assert.Contains(t, ids, inside.ID, "window is inclusive at the far edge")
}

func TestEscalateCriticalStaysCriticalButLatches(t *testing.T) {
	s := openTestStore(t)
	author := seedUser(t, s, "author@example.kz", types.RoleClient)
	now := time.Now().UTC()
	tk := seedTicket(t, s, author, func(tk *types.Ticket) {
		tk.Priority = types.PriorityCritical
		d := now.Add(10 * time.Minute)
		tk.SLADeadline = &d
	})

	acted, err := s.EscalateTicket(context.Background(), tk.ID, now, 12*time.Hour)
	require.NoError(t, err)
	assert.True(t, acted)

	got, err := s.GetTicket(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PriorityCritical, got.Priority)
	assert.True(t, got.IsEscalated)
}

func TestFoldedEmailUniqueness(t *testing.T) {
	s := openTestStore(t)
	first := seedUser(t, s, "User@Example.KZ", types.RoleClient)

	found, err := s.GetUserByEmail(context.Background(), "user@example.kz")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	// Upsert with a differently cased email patches the same row.
	again, err := s.UpsertUserByEmail(context.Background(), &types.User{
		ID:        uuid.NewString(),
		Email:     "USER@example.kz",
		Name:      "Renamed",
		Role:      types.RoleAdmin,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Renamed", again.Name)
	assert.Equal(t, types.RoleAdmin, again.Role)
}

func TestEnsureUserSynthesizesPlaceholder(t *testing.T) {
	s := openTestStore(t)
	u, err := s.EnsureUser(context.Background(), storage.UserRef{ID: "11112222-3333"})
	require.NoError(t, err)
	assert.Equal(t, "11112222-3333", u.ID)
	assert.Equal(t, types.RoleClient, u.Role)
	assert.NotEmpty(t, u.Email)

	// Same id resolves to the same row.
	again, err := s.EnsureUser(context.Background(), storage.UserRef{ID: "11112222-3333"})
	require.NoError(t, err)
	assert.Equal(t, u.Email, again.Email)
}

func TestAddCommentFansOutToAdmins(t *testing.T) {
	s := openTestStore(t)
	author := seedUser(t, s, "author@example.kz", types.RoleClient)
	admin := seedUser(t, s, "admin@example.kz", types.RoleAdmin)
	tk := seedTicket(t, s, author, nil)

	msg, err := s.AddComment(context.Background(), tk.ID, types.Actor{ID: author.ID, Role: types.RoleClient}, "still broken")
	require.NoError(t, err)
	assert.Equal(t, tk.ID, msg.TicketID)

	comments, err := s.ListComments(context.Background(), tk.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "still broken", comments[0].Text)
	assert.Equal(t, author.Email, comments[0].SenderEmail)

	notifs, err := s.ListNotifications(context.Background(), types.NotificationFilter{RecipientID: admin.ID})
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, types.NotifyComment, notifs[0].Type)

	history, err := s.ListHistory(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ActionCommentAdded, history[len(history)-1].Action)
}

func TestSearchTicketsSubstring(t *testing.T) {
	s := openTestStore(t)
	author := seedUser(t, s, "author@example.kz", types.RoleClient)
	seedTicket(t, s, author, func(tk *types.Ticket) { tk.Subject = "vpn is down"; tk.Body = "cannot connect" })
	seedTicket(t, s, author, func(tk *types.Ticket) { tk.Subject = "invoice"; tk.Body = "need a copy of the vpn invoice" })
	seedTicket(t, s, author, func(tk *types.Ticket) { tk.Subject = "parking"; tk.Body = "lost my pass" })

	got, err := s.SearchTickets(context.Background(), "vpn", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestNotificationReadLifecycle(t *testing.T) {
	s := openTestStore(t)
	author := seedUser(t, s, "author@example.kz", types.RoleClient)
	admin := seedUser(t, s, "admin@example.kz", types.RoleAdmin)
	tk := seedTicket(t, s, author, nil)

	_, err := s.AddComment(context.Background(), tk.ID, types.Actor{ID: author.ID, Role: types.RoleClient}, "one")
	require.NoError(t, err)
	_, err = s.AddComment(context.Background(), tk.ID, types.Actor{ID: author.ID, Role: types.RoleClient}, "two")
	require.NoError(t, err)

	count, err := s.CountUnreadNotifications(context.Background(), admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	notifs, err := s.ListNotifications(context.Background(), types.NotificationFilter{RecipientID: admin.ID, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, notifs, 2)

	require.NoError(t, s.MarkNotificationRead(context.Background(), notifs[0].ID))
	count, err = s.CountUnreadNotifications(context.Background(), admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	marked, err := s.MarkAllNotificationsRead(context.Background(), admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	assert.ErrorIs(t, s.MarkNotificationRead(context.Background(), "missing"), storage.ErrNotFound)
}

func TestTicketStatsAndTrend(t *testing.T) {
	s := openTestStore(t)
	author := seedUser(t, s, "author@example.kz", types.RoleClient)
	now := time.Now().UTC()

	seedTicket(t, s, author, nil)
	seedTicket(t, s, author, func(tk *types.Ticket) {
		tk.Status = types.StatusAutoResolved
		tk.AutoResolved = true
		tk.ClosedAt = &tk.CreatedAt
		tk.AIConfidence = 0.9
	})
	seedTicket(t, s, author, func(tk *types.Ticket) { tk.AIConfidence = 0.4 })

	stats, err := s.TicketStats(context.Background(), 0.70)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Closed)
	assert.Equal(t, 1, stats.AutoClosed)
	assert.Equal(t, 2, stats.Open)
	assert.Equal(t, 1, stats.LowConfidence)

	trend, err := s.DailyTrend(context.Background(), 7, now)
	require.NoError(t, err)
	require.Len(t, trend, 7)
	today := trend[len(trend)-1]
	assert.Equal(t, now.Format("2006-01-02"), today.Date)
	assert.Equal(t, 3, today.Opened)
	assert.Equal(t, 1, today.Closed)
}

func TestListTicketsFilters(t *testing.T) {
	s := openTestStore(t)
	author := seedUser(t, s, "author@example.kz", types.RoleClient)
	other := seedUser(t, s, "other@example.kz", types.RoleClient)

	seedTicket(t, s, author, nil)
	seedTicket(t, s, other, func(tk *types.Ticket) {
		tk.Status = types.StatusClosed
		tk.ClosedAt = &tk.CreatedAt
	})

	st := types.StatusClosed
	got, err := s.ListTickets(context.Background(), types.TicketFilter{Status: &st})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, other.ID, got[0].AuthorID)

	got, err = s.ListTickets(context.Background(), types.TicketFilter{AuthorID: &author.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, author.ID, got[0].AuthorID)
}
