package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qoldau/qoldau/internal/classify"
	"github.com/qoldau/qoldau/internal/ingest"
	"github.com/qoldau/qoldau/internal/metrics"
	"github.com/qoldau/qoldau/internal/routing"
	"github.com/qoldau/qoldau/internal/storage/sqlite"
	"github.com/qoldau/qoldau/internal/types"
)

// staticClassifier keeps handler tests independent of the ML service.
type staticClassifier struct {
	pred *classify.Prediction
}

func (c staticClassifier) Classify(context.Context, string, string) (*classify.Prediction, error) {
	return c.pred, nil
}

type fixture struct {
	store  *sqlite.Store
	server *httptest.Server
	admin  *types.User
	client *types.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	admin, err := store.UpsertUserByEmail(ctx, &types.User{
		Email: "admin@example.kz", Name: "Admin", Role: types.RoleAdmin,
	})
	require.NoError(t, err)
	client, err := store.UpsertUserByEmail(ctx, &types.User{
		Email: "client@example.kz", Name: "Client", Role: types.RoleClient,
	})
	require.NoError(t, err)

	cls := staticClassifier{pred: &classify.Prediction{
		Category:   "Billing",
		Priority:   types.PriorityMedium,
		IssueType:  types.IssueComplex,
		Confidence: classify.Confidence{Category: 0.9, Priority: 0.9, IssueType: 0.9},
	}}
	orch := ingest.New(store, cls, nil, routing.DefaultThresholds, nil)
	srv := New(store, orch, nil, metrics.New(store, 0), "test", nil)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{store: store, server: ts, admin: admin, client: client}
}

// do issues a JSON request and decodes the response into out when non-nil.
func (f *fixture) do(t *testing.T, method, path, userID string, body, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (f *fixture) createTicket(t *testing.T, body string) *types.TicketView {
	t.Helper()
	var view types.TicketView
	resp := f.do(t, http.MethodPost, "/tickets/create", f.client.ID,
		map[string]any{"subject": "billing", "body": body}, &view)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return &view
}

func TestCreateTicketPinsAuthorFromHeader(t *testing.T) {
	f := newFixture(t)
	view := f.createTicket(t, "счет не пришел")

	assert.Equal(t, f.client.ID, view.Ticket.AuthorID)
	assert.Equal(t, types.StatusNew, view.Ticket.Status)
	assert.Equal(t, "Billing", view.CategoryName)
}

func TestCreateTicketRejectsEmptyBody(t *testing.T) {
	f := newFixture(t)
	var body errorBody
	resp := f.do(t, http.MethodPost, "/tickets/create", "",
		map[string]any{"body": "  "}, &body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_input", body.Error.Kind)
	assert.NotEmpty(t, body.Error.Message)
}

func TestGetTicketAndNotFound(t *testing.T) {
	f := newFixture(t)
	view := f.createTicket(t, "счет не пришел")

	var got types.TicketView
	resp := f.do(t, http.MethodGet, "/tickets/"+view.Ticket.ID, "", nil, &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, view.Ticket.ID, got.Ticket.ID)
	assert.NotEmpty(t, got.SLABucket)

	var body errorBody
	resp = f.do(t, http.MethodGet, "/tickets/does-not-exist", "", nil, &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body.Error.Kind)
}

func TestListTicketsFilterValidation(t *testing.T) {
	f := newFixture(t)
	f.createTicket(t, "счет не пришел")

	var out struct {
		Tickets []*types.Ticket `json:"tickets"`
		Count   int             `json:"count"`
	}
	resp := f.do(t, http.MethodGet, "/tickets?status=new", "", nil, &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, out.Count)

	resp = f.do(t, http.MethodGet, "/tickets?status=bogus", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/tickets?date-from=not-a-date", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchRequiresQuery(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/tickets/search", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.createTicket(t, "пароль не подходит")
	var out struct {
		Count int `json:"count"`
	}
	resp = f.do(t, http.MethodGet, "/tickets/search?q=%D0%BF%D0%B0%D1%80%D0%BE%D0%BB%D1%8C", "", nil, &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, out.Count)
}

func TestUpdateTicketRequiresKnownActor(t *testing.T) {
	f := newFixture(t)
	view := f.createTicket(t, "счет не пришел")
	patch := map[string]any{"priority": "high"}

	var body errorBody
	resp := f.do(t, http.MethodPut, "/tickets/"+view.Ticket.ID, "", patch, &body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", body.Error.Kind)

	resp = f.do(t, http.MethodPut, "/tickets/"+view.Ticket.ID, "ghost", patch, &body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var ticket types.Ticket
	resp = f.do(t, http.MethodPut, "/tickets/"+view.Ticket.ID, f.admin.ID, patch, &ticket)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.PriorityHigh, ticket.Priority)
}

func TestCloseTicketForbiddenForStrangers(t *testing.T) {
	f := newFixture(t)
	view := f.createTicket(t, "счет не пришел")

	other, err := f.store.UpsertUserByEmail(context.Background(), &types.User{
		Email: "other@example.kz", Role: types.RoleClient,
	})
	require.NoError(t, err)

	var body errorBody
	resp := f.do(t, http.MethodDelete, "/tickets/"+view.Ticket.ID, other.ID, nil, &body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var ticket types.Ticket
	resp = f.do(t, http.MethodDelete, "/tickets/"+view.Ticket.ID, f.client.ID, nil, &ticket)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.StatusClosed, ticket.Status)
	assert.NotNil(t, ticket.ClosedAt)
}

func TestCommentsRoundTrip(t *testing.T) {
	f := newFixture(t)
	view := f.createTicket(t, "счет не пришел")

	var msg types.TicketMessage
	resp := f.do(t, http.MethodPost, "/tickets/"+view.Ticket.ID+"/comments", f.client.ID,
		map[string]any{"text": "всё ещё не пришел"}, &msg)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, f.client.ID, msg.SenderID)

	resp = f.do(t, http.MethodPost, "/tickets/"+view.Ticket.ID+"/comments", f.client.ID,
		map[string]any{"text": "   "}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out struct {
		Comments []*types.CommentView `json:"comments"`
		Count    int                  `json:"count"`
	}
	resp = f.do(t, http.MethodGet, "/tickets/"+view.Ticket.ID+"/comments", "", nil, &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, f.client.Email, out.Comments[0].SenderEmail)
}

func TestFeedbackConflictOnSecondSubmission(t *testing.T) {
	f := newFixture(t)
	view := f.createTicket(t, "счет не пришел")
	path := "/tickets/" + view.Ticket.ID + "/feedback"

	var fb types.Feedback
	resp := f.do(t, http.MethodPost, path, f.client.ID, map[string]any{"rating": 5}, &fb)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 5, fb.Rating)

	var body errorBody
	resp = f.do(t, http.MethodPost, path, f.client.ID, map[string]any{"rating": 1}, &body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "conflict", body.Error.Kind)

	resp = f.do(t, http.MethodGet, path, "", nil, &fb)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, fb.Rating)
}

func TestNotificationEndpoints(t *testing.T) {
	f := newFixture(t)
	f.createTicket(t, "счет не пришел") // fans out to the admin

	var list struct {
		Notifications []*types.Notification `json:"notifications"`
		Count         int                   `json:"count"`
	}
	resp := f.do(t, http.MethodGet, "/notifications", f.admin.ID, nil, &list)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, list.Count)

	var count struct {
		Count int `json:"count"`
	}
	resp = f.do(t, http.MethodGet, "/notifications/unread/count", f.admin.ID, nil, &count)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, count.Count)

	resp = f.do(t, http.MethodPut, "/notifications/"+list.Notifications[0].ID+"/read", "", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/notifications/unread/count", f.admin.ID, nil, &count)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, count.Count)

	// Missing recipient in every form is a validation error.
	resp = f.do(t, http.MethodGet, "/notifications", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.createTicket(t, "счет не пришел")

	var snap metrics.Snapshot
	resp := f.do(t, http.MethodGet, "/metrics", "", nil, &snap)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, snap.Total)
	assert.Len(t, snap.DailyTrend, 7)
}

func TestTemplatesWithoutBank(t *testing.T) {
	f := newFixture(t)
	var out struct {
		Count int `json:"count"`
	}
	resp := f.do(t, http.MethodGet, "/templates", "", nil, &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, out.Count)
}

func TestUpsertUserHidesPasswordHash(t *testing.T) {
	f := newFixture(t)

	var raw map[string]any
	resp := f.do(t, http.MethodPost, "/users", "", map[string]any{
		"email": "new@example.kz", "name": "New", "password": "secret", "role": "employee",
	}, &raw)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "new@example.kz", raw["email"])
	assert.Equal(t, "employee", raw["role"])
	assert.NotContains(t, raw, "password_hash")

	u, err := f.store.GetUserByEmail(context.Background(), "new@example.kz")
	require.NoError(t, err)
	assert.NotEmpty(t, u.PasswordHash, "hash stored, never served")

	resp = f.do(t, http.MethodPost, "/users", "", map[string]any{"name": "no email"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	var out map[string]any
	resp := f.do(t, http.MethodGet, "/health", "", nil, &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, true, out["db"])
	assert.Equal(t, "test", out["version"])
}
