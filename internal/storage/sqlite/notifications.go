package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/qoldau/qoldau/internal/storage"
	"github.com/qoldau/qoldau/internal/types"
)

// ListNotifications returns a recipient's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, filter types.NotificationFilter) ([]*types.Notification, error) {
	query := `
		SELECT id, recipient_id, ticket_id, type, title, message, is_read, created_at
		FROM notifications WHERE recipient_id = ?`
	args := []any{filter.RecipientID}
	if filter.UnreadOnly {
		query += " AND is_read = 0"
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list notifications", err)
	}
	defer rows.Close()

	var out []*types.Notification
	for rows.Next() {
		var n types.Notification
		var ticketID sql.NullString
		var typ, createdAt string
		var isRead int
		if err := rows.Scan(&n.ID, &n.RecipientID, &ticketID, &typ, &n.Title,
			&n.Message, &isRead, &createdAt); err != nil {
			return nil, wrapDBError("scan notification", err)
		}
		n.TicketID = strPtr(ticketID)
		n.Type = types.NotificationType(typ)
		n.IsRead = isRead != 0
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// CountUnreadNotifications returns the recipient's unread count.
func (s *Store) CountUnreadNotifications(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0`,
		recipientID).Scan(&count)
	if err != nil {
		return 0, wrapDBError("count unread notifications", err)
	}
	return count, nil
}

// MarkNotificationRead flips one notification to read.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("mark notification read", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("notification %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// MarkAllNotificationsRead flips every unread notification for the recipient
// and reports how many rows changed.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND is_read = 0`,
		recipientID)
	if err != nil {
		return 0, wrapDBError("mark all notifications read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDBError("mark all notifications read", err)
	}
	return int(n), nil
}
