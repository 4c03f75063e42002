package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qoldau/qoldau/internal/notify"
	"github.com/qoldau/qoldau/internal/sla"
	"github.com/qoldau/qoldau/internal/storage"
	"github.com/qoldau/qoldau/internal/types"
)

const ticketColumns = `id, source, author_id, subject, body, language, category_id,
	priority, issue_type, ai_confidence, assigned_department_id, assigned_operator_id,
	status, auto_resolved, needs_clarification, confidence_warning, sla_deadline,
	is_escalated, created_at, updated_at, closed_at`

// CreateTicket persists an ingestion bundle in one transaction: the ticket,
// its prediction, the optional auto-response, history and notifications.
func (s *Store) CreateTicket(ctx context.Context, bundle *storage.TicketBundle) error {
	if bundle == nil || bundle.Ticket == nil {
		return fmt.Errorf("empty ticket bundle: %w", storage.ErrInvalidInput)
	}
	if err := bundle.Ticket.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, storage.ErrInvalidInput)
	}
	return s.withTx(ctx, func(t *tx) error {
		if err := t.InsertTicket(ctx, bundle.Ticket); err != nil {
			return err
		}
		if bundle.Prediction != nil {
			if err := t.InsertPrediction(ctx, bundle.Prediction); err != nil {
				return err
			}
		}
		if bundle.AutoResponse != nil {
			if err := t.InsertAutoResponse(ctx, bundle.AutoResponse); err != nil {
				return err
			}
		}
		for _, h := range bundle.History {
			if err := t.InsertHistory(ctx, h); err != nil {
				return err
			}
		}
		for _, n := range bundle.Notifications {
			if err := t.InsertNotification(ctx, n); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetTicket returns a single ticket by id.
func (s *Store) GetTicket(ctx context.Context, id string) (*types.Ticket, error) {
	return getTicket(ctx, s.db, id)
}

// GetTicketView returns the ticket enriched with category/department names
// and the auto-reply text when one was stored.
func (s *Store) GetTicketView(ctx context.Context, id string) (*types.TicketView, error) {
	t, err := getTicket(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	view := &types.TicketView{Ticket: t}
	if t.CategoryID != nil {
		_ = s.db.QueryRowContext(ctx, `SELECT name FROM categories WHERE id = ?`, *t.CategoryID).
			Scan(&view.CategoryName)
	}
	if t.AssignedDepartmentID != nil {
		_ = s.db.QueryRowContext(ctx, `SELECT name FROM departments WHERE id = ?`, *t.AssignedDepartmentID).
			Scan(&view.DepartmentName)
		view.Queue = view.DepartmentName
	}
	_ = s.db.QueryRowContext(ctx, `
		SELECT response_text FROM auto_responses
		WHERE ticket_id = ? ORDER BY created_at DESC LIMIT 1`, id).
		Scan(&view.AutoReplyText)
	return view, nil
}

// ListTickets returns tickets matching the filter, newest first.
func (s *Store) ListTickets(ctx context.Context, filter types.TicketFilter) ([]*types.Ticket, error) {
	var where []string
	var args []any
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.CategoryID != nil {
		where = append(where, "category_id = ?")
		args = append(args, *filter.CategoryID)
	}
	if filter.CategoryName != nil {
		where = append(where, "category_id IN (SELECT id FROM categories WHERE name_folded = ?)")
		args = append(args, fold(*filter.CategoryName))
	}
	if filter.AuthorID != nil {
		where = append(where, "author_id = ?")
		args = append(args, *filter.AuthorID)
	}
	if filter.DateFrom != nil {
		where = append(where, "created_at >= ?")
		args = append(args, fmtTime(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		where = append(where, "created_at <= ?")
		args = append(args, fmtTime(*filter.DateTo))
	}

	query := "SELECT " + ticketColumns + " FROM tickets"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Skip)

	return queryTickets(ctx, s.db, query, args...)
}

// SearchTickets does a case-insensitive substring match over subject and body.
func (s *Store) SearchTickets(ctx context.Context, query string, limit int) ([]*types.Ticket, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + strings.TrimSpace(query) + "%"
	return queryTickets(ctx, s.db, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE subject LIKE ? OR body LIKE ?
		ORDER BY created_at DESC LIMIT ?`, pattern, pattern, limit)
}

// ListOverdueTickets returns open tickets whose SLA deadline has passed.
func (s *Store) ListOverdueTickets(ctx context.Context, now time.Time) ([]*types.Ticket, error) {
	return queryTickets(ctx, s.db, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE status NOT IN ('closed', 'auto_resolved')
		  AND sla_deadline IS NOT NULL AND sla_deadline < ?
		ORDER BY sla_deadline ASC`, fmtTime(now))
}

// UpdateTicket applies a patch, writing one history row per changed field and
// the matching notifications in the same transaction. A no-op patch leaves
// the row untouched, including updated_at.
func (s *Store) UpdateTicket(ctx context.Context, id string, patch types.TicketPatch, actor types.Actor) (*types.Ticket, error) {
	if patch.IsZero() {
		return getTicket(ctx, s.db, id)
	}
	var result *types.Ticket
	err := s.withTx(ctx, func(t *tx) error {
		cur, err := t.GetTicket(ctx, id)
		if err != nil {
			return err
		}

		if patch.Status != nil && *patch.Status == types.StatusClosed &&
			actor.Role != types.RoleAdmin && actor.ID != cur.AuthorID {
			return fmt.Errorf("only admins or the ticket author may close a ticket: %w", storage.ErrForbidden)
		}

		now := time.Now().UTC()
		next := *cur
		changed := false
		var notifications []*types.Notification
		appendHistory := func(action types.HistoryAction, oldVal, newVal, desc string) error {
			actorID := actor.ID
			h := &types.TicketHistory{
				ID:          uuid.NewString(),
				TicketID:    id,
				Action:      action,
				OldValue:    oldVal,
				NewValue:    newVal,
				Description: desc,
				CreatedAt:   now,
			}
			if actorID != "" {
				h.ActorID = &actorID
			}
			return t.InsertHistory(ctx, h)
		}

		if patch.Status != nil && *patch.Status != cur.Status {
			if !patch.Status.IsValid() {
				return fmt.Errorf("invalid status %q: %w", *patch.Status, storage.ErrInvalidInput)
			}
			next.Status = *patch.Status
			action := types.ActionStatusChanged
			switch {
			case next.Status == types.StatusClosed:
				action = types.ActionClosed
				next.ClosedAt = &now
			case cur.Status.IsTerminal() && !next.Status.IsTerminal():
				action = types.ActionReopened
				next.ClosedAt = nil
				next.AutoResolved = false
			case next.Status.IsTerminal():
				next.ClosedAt = &now
			default:
				next.ClosedAt = nil
			}
			if err := appendHistory(action, string(cur.Status), string(next.Status), ""); err != nil {
				return err
			}
			if next.Status == types.StatusClosed {
				notifications = append(notifications, notify.TicketClosed(cur, actor.ID, now)...)
			}
			changed = true
		}

		if patch.Priority != nil && *patch.Priority != cur.Priority {
			if !patch.Priority.IsValid() {
				return fmt.Errorf("invalid priority %q: %w", *patch.Priority, storage.ErrInvalidInput)
			}
			next.Priority = *patch.Priority
			deadline := sla.Deadline(next.Priority, cur.CreatedAt)
			next.SLADeadline = &deadline
			if err := appendHistory(types.ActionPriorityChanged, string(cur.Priority), string(next.Priority), ""); err != nil {
				return err
			}
			changed = true
		}

		if patch.CategoryID != nil && !strPtrEq(patch.CategoryID, cur.CategoryID) {
			next.CategoryID = patch.CategoryID
			changed = true
		}

		if patch.AssignedDepartmentID != nil && !strPtrEq(patch.AssignedDepartmentID, cur.AssignedDepartmentID) {
			next.AssignedDepartmentID = patch.AssignedDepartmentID
			if err := appendHistory(types.ActionAssigned,
				strOrEmpty(cur.AssignedDepartmentID), strOrEmpty(patch.AssignedDepartmentID),
				"department assignment"); err != nil {
				return err
			}
			changed = true
		}

		if patch.AssignedOperatorID != nil && !strPtrEq(patch.AssignedOperatorID, cur.AssignedOperatorID) {
			next.AssignedOperatorID = patch.AssignedOperatorID
			if err := appendHistory(types.ActionAssigned,
				strOrEmpty(cur.AssignedOperatorID), strOrEmpty(patch.AssignedOperatorID),
				"operator assignment"); err != nil {
				return err
			}
			if *patch.AssignedOperatorID != "" {
				var assigneeUser string
				err := t.conn.QueryRowContext(ctx, `SELECT user_id FROM operators WHERE id = ?`,
					*patch.AssignedOperatorID).Scan(&assigneeUser)
				if err != nil {
					return wrapDBError("resolve operator", err)
				}
				notifications = append(notifications, notify.TicketAssigned(cur, assigneeUser, actor.ID, now)...)
			}
			changed = true
		}

		if !changed {
			result = cur
			return nil
		}

		next.UpdatedAt = now
		if err := t.UpdateTicketRow(ctx, &next); err != nil {
			return err
		}
		for _, n := range notifications {
			if err := t.InsertNotification(ctx, n); err != nil {
				return err
			}
		}
		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListEscalationCandidates returns ids of open, never escalated tickets whose
// deadline falls inside (now, now+window]. The coarse filter runs in SQL; the
// precise window check happens against parsed timestamps.
func (s *Store) ListEscalationCandidates(ctx context.Context, now time.Time, window time.Duration) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sla_deadline FROM tickets
		WHERE status NOT IN ('closed', 'auto_resolved')
		  AND is_escalated = 0 AND sla_deadline IS NOT NULL
		ORDER BY sla_deadline ASC`)
	if err != nil {
		return nil, wrapDBError("list escalation candidates", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id, deadlineStr string
		if err := rows.Scan(&id, &deadlineStr); err != nil {
			return nil, wrapDBError("scan escalation candidate", err)
		}
		deadline, err := parseTime(deadlineStr)
		if err != nil {
			return nil, err
		}
		remaining := deadline.Sub(now)
		if remaining > 0 && remaining <= window {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

// EscalateTicket performs the re-verify-then-act escalation step for one
// ticket. It re-reads the row inside its own transaction, and only acts when
// the ticket is still open, never escalated, and inside the window. Critical
// tickets cannot be promoted further but still latch the flag, get a history
// row and notify the author. Returns whether it acted.
func (s *Store) EscalateTicket(ctx context.Context, id string, now time.Time, window time.Duration) (bool, error) {
	acted := false
	err := s.withTx(ctx, func(t *tx) error {
		cur, err := t.GetTicket(ctx, id)
		if err != nil {
			return err
		}
		if cur.IsEscalated || cur.Status.IsTerminal() || cur.SLADeadline == nil {
			return nil
		}
		remaining := cur.SLADeadline.Sub(now)
		if remaining <= 0 || remaining > window {
			return nil
		}

		next := *cur
		next.Priority = cur.Priority.Bump()
		deadline := sla.Deadline(next.Priority, cur.CreatedAt)
		next.SLADeadline = &deadline
		next.IsEscalated = true
		next.UpdatedAt = now.UTC()
		if err := t.UpdateTicketRow(ctx, &next); err != nil {
			return err
		}

		h := &types.TicketHistory{
			ID:          uuid.NewString(),
			TicketID:    id,
			Action:      types.ActionEscalated,
			OldValue:    string(cur.Priority),
			NewValue:    string(next.Priority),
			Description: "SLA deadline approaching",
			CreatedAt:   now.UTC(),
		}
		if err := t.InsertHistory(ctx, h); err != nil {
			return err
		}
		for _, n := range notify.TicketEscalated(cur, cur.Priority, next.Priority, now.UTC()) {
			if err := t.InsertNotification(ctx, n); err != nil {
				return err
			}
		}
		acted = true
		return nil
	})
	return acted, err
}

func insertTicket(ctx context.Context, q querier, t *types.Ticket) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO tickets (`+ticketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Source), t.AuthorID, t.Subject, t.Body, string(t.Language),
		ptrArg(t.CategoryID), string(t.Priority), string(t.IssueType), t.AIConfidence,
		ptrArg(t.AssignedDepartmentID), ptrArg(t.AssignedOperatorID), string(t.Status),
		boolArg(t.AutoResolved), boolArg(t.NeedsClarification), t.ConfidenceWarning,
		fmtTimePtr(t.SLADeadline), boolArg(t.IsEscalated),
		fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt), fmtTimePtr(t.ClosedAt))
	return wrapDBError("insert ticket", err)
}

func updateTicketRow(ctx context.Context, q querier, t *types.Ticket) error {
	res, err := q.ExecContext(ctx, `
		UPDATE tickets SET source = ?, author_id = ?, subject = ?, body = ?, language = ?,
			category_id = ?, priority = ?, issue_type = ?, ai_confidence = ?,
			assigned_department_id = ?, assigned_operator_id = ?, status = ?,
			auto_resolved = ?, needs_clarification = ?, confidence_warning = ?,
			sla_deadline = ?, is_escalated = ?, updated_at = ?, closed_at = ?
		WHERE id = ?`,
		string(t.Source), t.AuthorID, t.Subject, t.Body, string(t.Language),
		ptrArg(t.CategoryID), string(t.Priority), string(t.IssueType), t.AIConfidence,
		ptrArg(t.AssignedDepartmentID), ptrArg(t.AssignedOperatorID), string(t.Status),
		boolArg(t.AutoResolved), boolArg(t.NeedsClarification), t.ConfidenceWarning,
		fmtTimePtr(t.SLADeadline), boolArg(t.IsEscalated),
		fmtTime(t.UpdatedAt), fmtTimePtr(t.ClosedAt), t.ID)
	if err != nil {
		return wrapDBError("update ticket", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("ticket %s: %w", t.ID, storage.ErrNotFound)
	}
	return nil
}

func getTicket(ctx context.Context, q querier, id string) (*types.Ticket, error) {
	row := q.QueryRowContext(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE id = ?", id)
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ticket %s: %w", id, storage.ErrNotFound)
		}
		return nil, wrapDBError("get ticket", err)
	}
	return t, nil
}

func queryTickets(ctx context.Context, q querier, query string, args ...any) ([]*types.Ticket, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("query tickets", err)
	}
	defer rows.Close()

	var out []*types.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, wrapDBError("scan ticket", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*types.Ticket, error) {
	var t types.Ticket
	var source, language, priority, issueType, status string
	var categoryID, deptID, operatorID, deadline, closedAt sql.NullString
	var autoResolved, needsClarification, isEscalated int
	var createdAt, updatedAt string

	err := row.Scan(&t.ID, &source, &t.AuthorID, &t.Subject, &t.Body, &language,
		&categoryID, &priority, &issueType, &t.AIConfidence, &deptID, &operatorID,
		&status, &autoResolved, &needsClarification, &t.ConfidenceWarning,
		&deadline, &isEscalated, &createdAt, &updatedAt, &closedAt)
	if err != nil {
		return nil, err
	}

	t.Source = types.Source(source)
	t.Language = types.Language(language)
	t.Priority = types.Priority(priority)
	t.IssueType = types.IssueType(issueType)
	t.Status = types.Status(status)
	t.CategoryID = strPtr(categoryID)
	t.AssignedDepartmentID = strPtr(deptID)
	t.AssignedOperatorID = strPtr(operatorID)
	t.AutoResolved = autoResolved != 0
	t.NeedsClarification = needsClarification != 0
	t.IsEscalated = isEscalated != 0

	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if t.SLADeadline, err = parseTimePtr(deadline); err != nil {
		return nil, err
	}
	if t.ClosedAt, err = parseTimePtr(closedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func strPtrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
