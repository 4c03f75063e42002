package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qoldau/qoldau/internal/ingest"
	"github.com/qoldau/qoldau/internal/sla"
	"github.com/qoldau/qoldau/internal/storage"
	"github.com/qoldau/qoldau/internal/types"
)

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req ingest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, s.log, "malformed JSON body")
		return
	}
	// Ticket creation upserts its author, so an X-User-ID header simply
	// pins the author id when the body left it out.
	if req.Author.ID == "" {
		req.Author.ID = r.Header.Get("X-User-ID")
	}

	view, err := s.orchestrator.Submit(r.Context(), req)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTicketFilter(r)
	if err != nil {
		badRequest(w, s.log, err.Error())
		return
	}
	tickets, err := s.store.ListTickets(r.Context(), filter)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets, "count": len(tickets)})
}

func parseTicketFilter(r *http.Request) (types.TicketFilter, error) {
	q := r.URL.Query()
	var f types.TicketFilter

	if v := q.Get("status"); v != "" {
		st := types.Status(v)
		if !st.IsValid() {
			return f, fmt.Errorf("unknown status %q", v)
		}
		f.Status = &st
	}
	if v := q.Get("category-id"); v != "" {
		f.CategoryID = &v
	}
	if v := q.Get("category-name"); v != "" {
		f.CategoryName = &v
	}
	if v := q.Get("author-id"); v != "" {
		f.AuthorID = &v
	}
	if v := q.Get("date-from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, fmt.Errorf("bad date-from: %v", err)
		}
		f.DateFrom = &t
	}
	if v := q.Get("date-to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, fmt.Errorf("bad date-to: %v", err)
		}
		f.DateTo = &t
	}
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("bad skip %q", v)
		}
		f.Skip = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("bad limit %q", v)
		}
		f.Limit = n
	}
	return f, nil
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func (s *Server) handleSearchTickets(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		badRequest(w, s.log, "query parameter q is required")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	tickets, err := s.store.SearchTickets(r.Context(), query, limit)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets, "count": len(tickets)})
}

func (s *Server) handleOverdueTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := s.store.ListOverdueTickets(r.Context(), s.now().UTC())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets, "count": len(tickets)})
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	view, err := s.store.GetTicketView(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	view.SLABucket = sla.Bucket(view.Ticket, s.now().UTC())
	writeJSON(w, http.StatusOK, view)
}

type updateRequest struct {
	Status               *types.Status   `json:"status,omitempty"`
	Priority             *types.Priority `json:"priority,omitempty"`
	CategoryID           *string         `json:"category_id,omitempty"`
	AssignedDepartmentID *string         `json:"assigned_department_id,omitempty"`
	AssignedOperatorID   *string         `json:"assigned_operator_id,omitempty"`
}

func (s *Server) handleUpdateTicket(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, s.log, "malformed JSON body")
		return
	}
	if req.Status != nil && !req.Status.IsValid() {
		badRequest(w, s.log, fmt.Sprintf("unknown status %q", *req.Status))
		return
	}
	if req.Priority != nil && !req.Priority.IsValid() {
		badRequest(w, s.log, fmt.Sprintf("unknown priority %q", *req.Priority))
		return
	}

	ticket, err := s.store.UpdateTicket(r.Context(), r.PathValue("id"), types.TicketPatch{
		Status:               req.Status,
		Priority:             req.Priority,
		CategoryID:           req.CategoryID,
		AssignedDepartmentID: req.AssignedDepartmentID,
		AssignedOperatorID:   req.AssignedOperatorID,
	}, actor)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// handleCloseTicket is the DELETE verb: tickets are never deleted, closing
// is the terminal state.
func (s *Server) handleCloseTicket(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	closed := types.StatusClosed
	ticket, err := s.store.UpdateTicket(r.Context(), r.PathValue("id"), types.TicketPatch{Status: &closed}, actor)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetTicket(r.Context(), id); err != nil {
		writeError(w, s.log, err)
		return
	}
	history, err := s.store.ListHistory(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history, "count": len(history)})
}

type commentRequest struct {
	SenderID string `json:"sender_id,omitempty"`
	Text     string `json:"text"`
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, s.log, "malformed JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		badRequest(w, s.log, "comment text is required")
		return
	}

	senderID := r.Header.Get("X-User-ID")
	if senderID == "" {
		senderID = req.SenderID
	}
	if senderID == "" {
		writeError(w, s.log, fmt.Errorf("sender is required: %w", storage.ErrForbidden))
		return
	}
	sender, err := s.store.GetUser(r.Context(), senderID)
	if err != nil {
		writeError(w, s.log, fmt.Errorf("unknown sender %q: %w", senderID, storage.ErrForbidden))
		return
	}

	msg, err := s.store.AddComment(r.Context(), r.PathValue("id"),
		types.Actor{ID: sender.ID, Role: sender.Role}, req.Text)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetTicket(r.Context(), id); err != nil {
		writeError(w, s.log, err)
		return
	}
	comments, err := s.store.ListComments(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments, "count": len(comments)})
}

type feedbackRequest struct {
	UserID  string `json:"user_id,omitempty"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

func (s *Server) handleCreateFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, s.log, "malformed JSON body")
		return
	}
	fb := &types.Feedback{
		ID:        uuid.NewString(),
		TicketID:  r.PathValue("id"),
		Rating:    req.Rating,
		Comment:   req.Comment,
		CreatedAt: s.now().UTC(),
	}
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = req.UserID
	}
	if userID != "" {
		fb.UserID = &userID
	}

	if err := s.store.CreateFeedback(r.Context(), fb); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, fb)
}

func (s *Server) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	fb, err := s.store.GetFeedback(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, fb)
}
