package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qoldau/qoldau/internal/notify"
	"github.com/qoldau/qoldau/internal/storage"
	"github.com/qoldau/qoldau/internal/types"
)

// AddComment appends a message, the comment_added history row and the
// notifications it causes, all in one transaction.
func (s *Store) AddComment(ctx context.Context, ticketID string, sender types.Actor, text string) (*types.TicketMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("comment text is empty: %w", storage.ErrInvalidInput)
	}
	var msg *types.TicketMessage
	err := s.withTx(ctx, func(t *tx) error {
		ticket, err := t.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		senderUser, err := t.GetUser(ctx, sender.ID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		msg = &types.TicketMessage{
			ID:        uuid.NewString(),
			TicketID:  ticketID,
			SenderID:  sender.ID,
			Text:      text,
			CreatedAt: now,
		}
		if err := t.InsertMessage(ctx, msg); err != nil {
			return err
		}

		actorID := sender.ID
		if err := t.InsertHistory(ctx, &types.TicketHistory{
			ID:          uuid.NewString(),
			TicketID:    ticketID,
			ActorID:     &actorID,
			Action:      types.ActionCommentAdded,
			Description: notify.Preview(text),
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		admins, err := t.ListAdmins(ctx)
		if err != nil {
			return err
		}
		for _, n := range notify.CommentAdded(ticket, senderUser, text, admins, now) {
			if err := t.InsertNotification(ctx, n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListComments returns a ticket's messages in ascending order, joined with
// sender identity for the API.
func (s *Store) ListComments(ctx context.Context, ticketID string) ([]*types.CommentView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.ticket_id, m.sender_id, m.text, m.attachments, m.created_at,
		       u.name, u.email, u.role
		FROM ticket_messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.ticket_id = ?
		ORDER BY m.created_at ASC`, ticketID)
	if err != nil {
		return nil, wrapDBError("list comments", err)
	}
	defer rows.Close()

	var out []*types.CommentView
	for rows.Next() {
		var v types.CommentView
		var role, createdAt string
		if err := rows.Scan(&v.ID, &v.TicketID, &v.SenderID, &v.Text, &v.Attachments,
			&createdAt, &v.SenderName, &v.SenderEmail, &role); err != nil {
			return nil, wrapDBError("scan comment", err)
		}
		v.SenderRole = types.Role(role)
		if v.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

// ListHistory returns a ticket's audit trail, totally ordered by
// (created_at, seq).
func (s *Store) ListHistory(ctx context.Context, ticketID string) ([]*types.TicketHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, actor_id, action, old_value, new_value, description, seq, created_at
		FROM ticket_history
		WHERE ticket_id = ?
		ORDER BY created_at ASC, seq ASC`, ticketID)
	if err != nil {
		return nil, wrapDBError("list history", err)
	}
	defer rows.Close()

	var out []*types.TicketHistory
	for rows.Next() {
		var h types.TicketHistory
		var actorID sql.NullString
		var action, createdAt string
		if err := rows.Scan(&h.ID, &h.TicketID, &actorID, &action, &h.OldValue,
			&h.NewValue, &h.Description, &h.Seq, &createdAt); err != nil {
			return nil, wrapDBError("scan history", err)
		}
		h.Action = types.HistoryAction(action)
		h.ActorID = strPtr(actorID)
		if h.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}
