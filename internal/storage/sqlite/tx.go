package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/qoldau/qoldau/internal/storage"
	"github.com/qoldau/qoldau/internal/types"
)

// querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx so row helpers can
// run both inside and outside transactions.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// beginImmediateWithRetry starts an IMMEDIATE transaction with exponential
// backoff on SQLITE_BUSY. IMMEDIATE acquires the write lock up front so
// concurrent mutators serialize instead of deadlocking at commit.
//
// Raw Exec is used because database/sql has no transaction modes and the
// driver's BeginTx always runs DEFERRED.
func beginImmediateWithRetry(ctx context.Context, conn *sql.Conn, attempts int, initialDelay time.Duration) error {
	delay := initialDelay
	var lastErr error
	for i := 0; i < attempts; i++ {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		lastErr = err
		if !strings.Contains(err.Error(), "locked") && !strings.Contains(err.Error(), "busy") {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}

// tx implements storage.Transaction over one dedicated connection holding an
// open IMMEDIATE transaction. seq numbers history rows written in this
// transaction so per-ticket ordering stays total at equal timestamps.
type tx struct {
	conn *sql.Conn
	seq  int
}

// RunInTransaction executes fn atomically. Any error or panic rolls the
// whole transaction back; a clean return commits.
func (s *Store) RunInTransaction(ctx context.Context, fn func(t storage.Transaction) error) error {
	return s.withTx(ctx, func(t *tx) error { return fn(t) })
}

// withTx is the connection-level core of RunInTransaction. The store's own
// mutators use it directly so they share the commit/rollback discipline.
func (s *Store) withTx(ctx context.Context, fn func(t *tx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", storage.ErrUnavailable)
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediateWithRetry(ctx, conn, 5, 10*time.Millisecond); err != nil {
		return fmt.Errorf("begin transaction: %v: %w", err, storage.ErrUnavailable)
	}

	// ROLLBACK runs on context.Background so cleanup happens even when ctx
	// is already canceled.
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(&tx{conn: conn}); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit transaction: %v: %w", err, storage.ErrUnavailable)
	}
	committed = true
	return nil
}

func (t *tx) InsertTicket(ctx context.Context, tk *types.Ticket) error {
	return insertTicket(ctx, t.conn, tk)
}

func (t *tx) GetTicket(ctx context.Context, id string) (*types.Ticket, error) {
	return getTicket(ctx, t.conn, id)
}

func (t *tx) UpdateTicketRow(ctx context.Context, tk *types.Ticket) error {
	return updateTicketRow(ctx, t.conn, tk)
}

func (t *tx) InsertPrediction(ctx context.Context, p *types.AIPrediction) error {
	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO ai_predictions (id, ticket_id, model_id, predicted_category_id,
			predicted_priority, predicted_issue_type, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TicketID, p.ModelID, ptrArg(p.PredictedCategoryID),
		string(p.PredictedPriority), string(p.PredictedIssueType),
		p.Confidence, fmtTime(p.CreatedAt))
	return wrapDBError("insert prediction", err)
}

func (t *tx) InsertAutoResponse(ctx context.Context, r *types.AutoResponse) error {
	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO auto_responses (id, ticket_id, response_text, is_successful, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.TicketID, r.ResponseText, boolArg(r.IsSuccessful), fmtTime(r.CreatedAt))
	return wrapDBError("insert auto response", err)
}

func (t *tx) InsertMessage(ctx context.Context, m *types.TicketMessage) error {
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("comment text is empty: %w", storage.ErrInvalidInput)
	}
	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO ticket_messages (id, ticket_id, sender_id, text, attachments, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.TicketID, m.SenderID, m.Text, m.Attachments, fmtTime(m.CreatedAt))
	return wrapDBError("insert message", err)
}

func (t *tx) InsertHistory(ctx context.Context, h *types.TicketHistory) error {
	t.seq++
	h.Seq = t.seq
	var actor any
	if h.ActorID != nil {
		actor = *h.ActorID
	}
	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO ticket_history (id, ticket_id, actor_id, action, old_value,
			new_value, description, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.TicketID, actor, string(h.Action), h.OldValue, h.NewValue,
		h.Description, h.Seq, fmtTime(h.CreatedAt))
	return wrapDBError("insert history", err)
}

func (t *tx) InsertNotification(ctx context.Context, n *types.Notification) error {
	var ticketID any
	if n.TicketID != nil {
		ticketID = *n.TicketID
	}
	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, ticket_id, type, title, message, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RecipientID, ticketID, string(n.Type), n.Title, n.Message,
		boolArg(n.IsRead), fmtTime(n.CreatedAt))
	return wrapDBError("insert notification", err)
}

func (t *tx) InsertFeedback(ctx context.Context, fb *types.Feedback) error {
	if err := fb.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, storage.ErrInvalidInput)
	}
	var userID any
	if fb.UserID != nil {
		userID = *fb.UserID
	}
	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO feedback (id, ticket_id, user_id, rating, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.TicketID, userID, fb.Rating, fb.Comment, fmtTime(fb.CreatedAt))
	return wrapDBError("insert feedback", err)
}

func (t *tx) GetUser(ctx context.Context, id string) (*types.User, error) {
	return getUser(ctx, t.conn, id)
}

func (t *tx) ListAdmins(ctx context.Context) ([]*types.User, error) {
	return listAdmins(ctx, t.conn)
}

func boolArg(b bool) int {
	if b {
		return 1
	}
	return 0
}
