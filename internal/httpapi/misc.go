package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/qoldau/qoldau/internal/types"
)

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	recipient := q.Get("user-id")
	if recipient == "" {
		recipient = r.Header.Get("X-User-ID")
	}
	if recipient == "" {
		badRequest(w, s.log, "user-id is required")
		return
	}
	filter := types.NotificationFilter{
		RecipientID: recipient,
		UnreadOnly:  q.Get("unread-only") == "true",
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	list, err := s.store.ListNotifications(r.Context(), filter)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list, "count": len(list)})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	recipient := r.URL.Query().Get("user-id")
	if recipient == "" {
		recipient = r.Header.Get("X-User-ID")
	}
	if recipient == "" {
		badRequest(w, s.log, "user-id is required")
		return
	}
	count, err := s.store.CountUnreadNotifications(r.Context(), recipient)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.store.MarkNotificationRead(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	recipient := r.URL.Query().Get("user-id")
	if recipient == "" {
		recipient = r.Header.Get("X-User-ID")
	}
	if recipient == "" {
		badRequest(w, s.log, "user-id is required")
		return
	}
	count, err := s.store.MarkAllNotificationsRead(r.Context(), recipient)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": count})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap, err := s.aggregator.Snapshot(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if s.bank == nil {
		writeJSON(w, http.StatusOK, map[string]any{"templates": []any{}, "count": 0})
		return
	}
	q := r.URL.Query()
	language := types.Language(q.Get("language"))
	if language != "" && !language.IsValid() {
		badRequest(w, s.log, fmt.Sprintf("unknown language %q", language))
		return
	}
	list := s.bank.Templates(language, q.Get("category"))
	writeJSON(w, http.StatusOK, map[string]any{"templates": list, "count": len(list)})
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListCategories(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": list, "count": len(list)})
}

func (s *Server) handleListDepartments(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListDepartments(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"departments": list, "count": len(list)})
}

type userRequest struct {
	Email    string     `json:"email"`
	Name     string     `json:"name"`
	Phone    string     `json:"phone,omitempty"`
	Role     types.Role `json:"role,omitempty"`
	Password string     `json:"password,omitempty"`
}

// userView is the outward shape of a user; the password hash never leaves
// the store.
type userView struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      types.Role `json:"role"`
	Phone     string     `json:"phone,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, s.log, "malformed JSON body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		badRequest(w, s.log, "email is required")
		return
	}
	if req.Role == "" {
		req.Role = types.RoleClient
	}
	if !req.Role.IsValid() {
		badRequest(w, s.log, fmt.Sprintf("unknown role %q", req.Role))
		return
	}

	u := &types.User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Name:      strings.TrimSpace(req.Name),
		Phone:     strings.TrimSpace(req.Phone),
		Role:      req.Role,
		CreatedAt: s.now().UTC(),
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		u.PasswordHash = string(hash)
	}

	saved, err := s.store.UpsertUserByEmail(r.Context(), u)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(saved))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(u))
}

func toUserView(u *types.User) userView {
	return userView{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		Phone:     u.Phone,
		CreatedAt: u.CreatedAt,
	}
}
