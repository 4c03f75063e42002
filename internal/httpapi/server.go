// Package httpapi exposes the help-desk core over HTTP/JSON.
//
// Routing uses net/http method patterns; every response body is JSON,
// errors included. Actors are identified by the X-User-ID header and
// resolved against the user table, so the client never supplies its own
// role.
package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/qoldau/qoldau/internal/ingest"
	"github.com/qoldau/qoldau/internal/metrics"
	"github.com/qoldau/qoldau/internal/respbank"
	"github.com/qoldau/qoldau/internal/storage"
	"github.com/qoldau/qoldau/internal/types"
)

// Server holds the handler dependencies.
type Server struct {
	store        storage.Store
	orchestrator *ingest.Orchestrator
	bank         *respbank.Bank // nil when the response bank is unavailable
	aggregator   *metrics.Aggregator
	log          *slog.Logger
	version      string
	startedAt    time.Time
	now          func() time.Time
}

// New wires a server. bank may be nil.
func New(store storage.Store, orchestrator *ingest.Orchestrator, bank *respbank.Bank, aggregator *metrics.Aggregator, version string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:        store,
		orchestrator: orchestrator,
		bank:         bank,
		aggregator:   aggregator,
		log:          log.With("component", "http"),
		version:      version,
		startedAt:    time.Now(),
		now:          time.Now,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /tickets/create", s.handleCreateTicket)
	mux.HandleFunc("GET /tickets", s.handleListTickets)
	mux.HandleFunc("GET /tickets/search", s.handleSearchTickets)
	mux.HandleFunc("GET /tickets/overdue", s.handleOverdueTickets)
	mux.HandleFunc("GET /tickets/{id}", s.handleGetTicket)
	mux.HandleFunc("PUT /tickets/{id}", s.handleUpdateTicket)
	mux.HandleFunc("DELETE /tickets/{id}", s.handleCloseTicket)
	mux.HandleFunc("GET /tickets/{id}/history", s.handleListHistory)
	mux.HandleFunc("POST /tickets/{id}/comments", s.handleAddComment)
	mux.HandleFunc("GET /tickets/{id}/comments", s.handleListComments)
	mux.HandleFunc("POST /tickets/{id}/feedback", s.handleCreateFeedback)
	mux.HandleFunc("GET /tickets/{id}/feedback", s.handleGetFeedback)

	mux.HandleFunc("GET /notifications", s.handleListNotifications)
	mux.HandleFunc("GET /notifications/unread/count", s.handleUnreadCount)
	mux.HandleFunc("PUT /notifications/{id}/read", s.handleMarkRead)
	mux.HandleFunc("PUT /notifications/read-all", s.handleMarkAllRead)

	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /templates", s.handleTemplates)
	mux.HandleFunc("GET /categories", s.handleListCategories)
	mux.HandleFunc("GET /departments", s.handleListDepartments)
	mux.HandleFunc("POST /users", s.handleUpsertUser)
	mux.HandleFunc("GET /users/{id}", s.handleGetUser)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.logRequests(mux)
}

// logRequests is the access-log middleware.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// actor resolves the X-User-ID header to a stored user. The role always
// comes from the database.
func (s *Server) actor(r *http.Request) (types.Actor, error) {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		return types.Actor{}, fmt.Errorf("X-User-ID header is required: %w", storage.ErrForbidden)
	}
	u, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		return types.Actor{}, fmt.Errorf("unknown actor %q: %w", id, storage.ErrForbidden)
	}
	return types.Actor{ID: u.ID, Role: u.Role}, nil
}

// handleHealth reports liveness and component readiness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.store.Ping(r.Context()); err != nil {
		dbOK = false
	}
	bankSize := 0
	if s.bank != nil {
		bankSize = s.bank.Len()
	}
	status := "ok"
	code := http.StatusOK
	if !dbOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":         status,
		"db":             dbOK,
		"bank_size":      bankSize,
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"version":        s.version,
	})
}

// HTTPServer returns an *http.Server for addr wired to this handler.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
