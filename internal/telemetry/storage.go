package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/qoldau/qoldau/internal/storage"
	"github.com/qoldau/qoldau/internal/types"
)

const storageScopeName = "github.com/qoldau/qoldau/storage"

// InstrumentedStore wraps storage.Store with OTel tracing and metrics.
// Every method gets a span and is counted in qd.storage.* metrics.
// Use WrapStore to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStore struct {
	inner  storage.Store
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStore returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStore(s storage.Store) storage.Store {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("qd.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("qd.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("qd.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedStore{
		inner:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func ticketAttr(id string) attribute.KeyValue {
	return attribute.String("qd.ticket.id", types.ShortID(id))
}

// ── Ticket lifecycle ────────────────────────────────────────────────────────

func (s *InstrumentedStore) CreateTicket(ctx context.Context, bundle *storage.TicketBundle) error {
	attrs := []attribute.KeyValue{
		attribute.String("qd.ticket.priority", string(bundle.Ticket.Priority)),
		attribute.Bool("qd.ticket.auto_resolved", bundle.Ticket.AutoResolved),
	}
	ctx, span, t := s.op(ctx, "CreateTicket", attrs...)
	err := s.inner.CreateTicket(ctx, bundle)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetTicket(ctx context.Context, id string) (*types.Ticket, error) {
	attrs := []attribute.KeyValue{ticketAttr(id)}
	ctx, span, t := s.op(ctx, "GetTicket", attrs...)
	v, err := s.inner.GetTicket(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) GetTicketView(ctx context.Context, id string) (*types.TicketView, error) {
	attrs := []attribute.KeyValue{ticketAttr(id)}
	ctx, span, t := s.op(ctx, "GetTicketView", attrs...)
	v, err := s.inner.GetTicketView(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListTickets(ctx context.Context, filter types.TicketFilter) ([]*types.Ticket, error) {
	ctx, span, t := s.op(ctx, "ListTickets")
	v, err := s.inner.ListTickets(ctx, filter)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) SearchTickets(ctx context.Context, query string, limit int) ([]*types.Ticket, error) {
	ctx, span, t := s.op(ctx, "SearchTickets")
	v, err := s.inner.SearchTickets(ctx, query, limit)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ListOverdueTickets(ctx context.Context, now time.Time) ([]*types.Ticket, error) {
	ctx, span, t := s.op(ctx, "ListOverdueTickets")
	v, err := s.inner.ListOverdueTickets(ctx, now)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) UpdateTicket(ctx context.Context, id string, patch types.TicketPatch, actor types.Actor) (*types.Ticket, error) {
	attrs := []attribute.KeyValue{ticketAttr(id), attribute.String("qd.actor.role", string(actor.Role))}
	ctx, span, t := s.op(ctx, "UpdateTicket", attrs...)
	v, err := s.inner.UpdateTicket(ctx, id, patch, actor)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Escalation ──────────────────────────────────────────────────────────────

func (s *InstrumentedStore) ListEscalationCandidates(ctx context.Context, now time.Time, window time.Duration) ([]string, error) {
	ctx, span, t := s.op(ctx, "ListEscalationCandidates")
	v, err := s.inner.ListEscalationCandidates(ctx, now, window)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) EscalateTicket(ctx context.Context, id string, now time.Time, window time.Duration) (bool, error) {
	attrs := []attribute.KeyValue{ticketAttr(id)}
	ctx, span, t := s.op(ctx, "EscalateTicket", attrs...)
	v, err := s.inner.EscalateTicket(ctx, id, now, window)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Comments and history ────────────────────────────────────────────────────

func (s *InstrumentedStore) AddComment(ctx context.Context, ticketID string, sender types.Actor, text string) (*types.TicketMessage, error) {
	attrs := []attribute.KeyValue{ticketAttr(ticketID)}
	ctx, span, t := s.op(ctx, "AddComment", attrs...)
	v, err := s.inner.AddComment(ctx, ticketID, sender, text)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListComments(ctx context.Context, ticketID string) ([]*types.CommentView, error) {
	ctx, span, t := s.op(ctx, "ListComments", ticketAttr(ticketID))
	v, err := s.inner.ListComments(ctx, ticketID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ListHistory(ctx context.Context, ticketID string) ([]*types.TicketHistory, error) {
	ctx, span, t := s.op(ctx, "ListHistory", ticketAttr(ticketID))
	v, err := s.inner.ListHistory(ctx, ticketID)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Feedback ────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) CreateFeedback(ctx context.Context, fb *types.Feedback) error {
	attrs := []attribute.KeyValue{ticketAttr(fb.TicketID), attribute.Int("qd.feedback.rating", fb.Rating)}
	ctx, span, t := s.op(ctx, "CreateFeedback", attrs...)
	err := s.inner.CreateFeedback(ctx, fb)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetFeedback(ctx context.Context, ticketID string) (*types.Feedback, error) {
	ctx, span, t := s.op(ctx, "GetFeedback", ticketAttr(ticketID))
	v, err := s.inner.GetFeedback(ctx, ticketID)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Notifications ───────────────────────────────────────────────────────────

func (s *InstrumentedStore) ListNotifications(ctx context.Context, filter types.NotificationFilter) ([]*types.Notification, error) {
	ctx, span, t := s.op(ctx, "ListNotifications")
	v, err := s.inner.ListNotifications(ctx, filter)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) CountUnreadNotifications(ctx context.Context, recipientID string) (int, error) {
	ctx, span, t := s.op(ctx, "CountUnreadNotifications")
	v, err := s.inner.CountUnreadNotifications(ctx, recipientID)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) MarkNotificationRead(ctx context.Context, id string) error {
	ctx, span, t := s.op(ctx, "MarkNotificationRead")
	err := s.inner.MarkNotificationRead(ctx, id)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int, error) {
	ctx, span, t := s.op(ctx, "MarkAllNotificationsRead")
	v, err := s.inner.MarkAllNotificationsRead(ctx, recipientID)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Users ───────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) EnsureUser(ctx context.Context, ref storage.UserRef) (*types.User, error) {
	ctx, span, t := s.op(ctx, "EnsureUser")
	v, err := s.inner.EnsureUser(ctx, ref)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) UpsertUserByEmail(ctx context.Context, user *types.User) (*types.User, error) {
	ctx, span, t := s.op(ctx, "UpsertUserByEmail")
	v, err := s.inner.UpsertUserByEmail(ctx, user)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) GetUser(ctx context.Context, id string) (*types.User, error) {
	ctx, span, t := s.op(ctx, "GetUser")
	v, err := s.inner.GetUser(ctx, id)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	ctx, span, t := s.op(ctx, "GetUserByEmail")
	v, err := s.inner.GetUserByEmail(ctx, email)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ListAdmins(ctx context.Context) ([]*types.User, error) {
	ctx, span, t := s.op(ctx, "ListAdmins")
	v, err := s.inner.ListAdmins(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Reference data ──────────────────────────────────────────────────────────

func (s *InstrumentedStore) GetOrCreateCategory(ctx context.Context, name string) (*types.Category, error) {
	ctx, span, t := s.op(ctx, "GetOrCreateCategory")
	v, err := s.inner.GetOrCreateCategory(ctx, name)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ListCategories(ctx context.Context) ([]*types.Category, error) {
	ctx, span, t := s.op(ctx, "ListCategories")
	v, err := s.inner.ListCategories(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) GetOrCreateDepartment(ctx context.Context, name string) (*types.Department, error) {
	ctx, span, t := s.op(ctx, "GetOrCreateDepartment")
	v, err := s.inner.GetOrCreateDepartment(ctx, name)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) ListDepartments(ctx context.Context) ([]*types.Department, error) {
	ctx, span, t := s.op(ctx, "ListDepartments")
	v, err := s.inner.ListDepartments(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) GetOrCreateDefaultModel(ctx context.Context) (*types.MLModel, error) {
	ctx, span, t := s.op(ctx, "GetOrCreateDefaultModel")
	v, err := s.inner.GetOrCreateDefaultModel(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Statistics ──────────────────────────────────────────────────────────────

func (s *InstrumentedStore) TicketStats(ctx context.Context, lowConfidenceBelow float64) (*storage.TicketStats, error) {
	ctx, span, t := s.op(ctx, "TicketStats")
	v, err := s.inner.TicketStats(ctx, lowConfidenceBelow)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) CountTicketsByCategory(ctx context.Context) ([]storage.KeyCount, error) {
	ctx, span, t := s.op(ctx, "CountTicketsByCategory")
	v, err := s.inner.CountTicketsByCategory(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) CountTicketsByDepartment(ctx context.Context) ([]storage.KeyCount, error) {
	ctx, span, t := s.op(ctx, "CountTicketsByDepartment")
	v, err := s.inner.CountTicketsByDepartment(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) CountTicketsByIssueType(ctx context.Context) ([]storage.KeyCount, error) {
	ctx, span, t := s.op(ctx, "CountTicketsByIssueType")
	v, err := s.inner.CountTicketsByIssueType(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) CountTicketsInDepartment(ctx context.Context, department string) (int, error) {
	ctx, span, t := s.op(ctx, "CountTicketsInDepartment")
	v, err := s.inner.CountTicketsInDepartment(ctx, department)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) MeanResolutionHoursByCategory(ctx context.Context) ([]storage.CategoryHours, error) {
	ctx, span, t := s.op(ctx, "MeanResolutionHoursByCategory")
	v, err := s.inner.MeanResolutionHoursByCategory(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) DailyTrend(ctx context.Context, days int, now time.Time) ([]storage.DayCount, error) {
	ctx, span, t := s.op(ctx, "DailyTrend")
	v, err := s.inner.DailyTrend(ctx, days, now)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Transactions and lifecycle ──────────────────────────────────────────────

func (s *InstrumentedStore) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	ctx, span, t := s.op(ctx, "RunInTransaction")
	err := s.inner.RunInTransaction(ctx, fn)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	ctx, span, t := s.op(ctx, "Ping")
	err := s.inner.Ping(ctx)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
