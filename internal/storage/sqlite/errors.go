package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/qoldau/qoldau/internal/storage"
)

// wrapDBError maps driver errors onto the storage sentinels so callers can
// branch with errors.Is. The driver exposes constraint violations only
// through the message text.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%s: %w", op, storage.ErrConflict)
	case strings.Contains(msg, "constraint failed"):
		return fmt.Errorf("%s: %s: %w", op, msg, storage.ErrInvalidInput)
	default:
		return fmt.Errorf("%s: %v: %w", op, err, storage.ErrUnavailable)
	}
}
