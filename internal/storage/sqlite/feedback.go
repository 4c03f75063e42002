package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/qoldau/qoldau/internal/storage"
	"github.com/qoldau/qoldau/internal/types"
)

// CreateFeedback stores the one-shot CSAT rating for a ticket. A second
// submission for the same ticket returns ErrConflict.
func (s *Store) CreateFeedback(ctx context.Context, fb *types.Feedback) error {
	if err := fb.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, storage.ErrInvalidInput)
	}
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	return s.withTx(ctx, func(t *tx) error {
		if _, err := t.GetTicket(ctx, fb.TicketID); err != nil {
			return err
		}
		return t.InsertFeedback(ctx, fb)
	})
}

// GetFeedback returns the ticket's feedback row if present.
func (s *Store) GetFeedback(ctx context.Context, ticketID string) (*types.Feedback, error) {
	var fb types.Feedback
	var userID sql.NullString
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, ticket_id, user_id, rating, comment, created_at
		FROM feedback WHERE ticket_id = ?`, ticketID).
		Scan(&fb.ID, &fb.TicketID, &userID, &fb.Rating, &fb.Comment, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("feedback for ticket %s: %w", ticketID, storage.ErrNotFound)
		}
		return nil, wrapDBError("get feedback", err)
	}
	fb.UserID = strPtr(userID)
	if fb.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &fb, nil
}
