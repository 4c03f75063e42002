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

const userColumns = `id, email, name, role, password_hash, phone, created_at`

// EnsureUser resolves a ticket author to a user row, creating a placeholder
// when the submission is unauthenticated. Lookup order: id, folded email,
// then insert.
func (s *Store) EnsureUser(ctx context.Context, ref storage.UserRef) (*types.User, error) {
	if ref.ID != "" {
		u, err := getUser(ctx, s.db, ref.ID)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}
	if ref.Email != "" {
		u, err := s.GetUserByEmail(ctx, ref.Email)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	u := &types.User{
		ID:        ref.ID,
		Email:     ref.Email,
		Name:      ref.Name,
		Phone:     ref.Phone,
		Role:      types.RoleClient,
		CreatedAt: time.Now().UTC(),
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Email == "" {
		u.Email = fmt.Sprintf("user_%s@example.invalid", types.ShortID(u.ID))
	}
	if u.Name == "" {
		u.Name = "Client " + types.ShortID(u.ID)
	}
	if err := insertUser(ctx, s.db, u); err != nil {
		// A concurrent submission may have created the same email first.
		if errors.Is(err, storage.ErrConflict) {
			return s.GetUserByEmail(ctx, u.Email)
		}
		return nil, err
	}
	return u, nil
}

// UpsertUserByEmail inserts or updates a user keyed by folded email.
// Empty patch fields keep the stored values.
func (s *Store) UpsertUserByEmail(ctx context.Context, user *types.User) (*types.User, error) {
	if fold(user.Email) == "" {
		return nil, fmt.Errorf("email is required: %w", storage.ErrInvalidInput)
	}
	if user.Role != "" && !user.Role.IsValid() {
		return nil, fmt.Errorf("invalid role %q: %w", user.Role, storage.ErrInvalidInput)
	}

	existing, err := s.GetUserByEmail(ctx, user.Email)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		u := *user
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		if u.Role == "" {
			u.Role = types.RoleClient
		}
		u.CreatedAt = time.Now().UTC()
		if err := insertUser(ctx, s.db, &u); err != nil {
			return nil, err
		}
		return &u, nil
	case err != nil:
		return nil, err
	}

	next := *existing
	if user.Name != "" {
		next.Name = user.Name
	}
	if user.Phone != "" {
		next.Phone = user.Phone
	}
	if user.Role != "" {
		next.Role = user.Role
	}
	if user.PasswordHash != "" {
		next.PasswordHash = user.PasswordHash
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE users SET name = ?, phone = ?, role = ?, password_hash = ? WHERE id = ?`,
		next.Name, next.Phone, string(next.Role), next.PasswordHash, next.ID)
	if err != nil {
		return nil, wrapDBError("update user", err)
	}
	return &next, nil
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*types.User, error) {
	return getUser(ctx, s.db, id)
}

// GetUserByEmail returns a user by email, matched case-insensitively with
// surrounding whitespace ignored.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email_folded = ?", fold(email))
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", email, storage.ErrNotFound)
		}
		return nil, wrapDBError("get user by email", err)
	}
	return u, nil
}

// ListAdmins returns every admin user.
func (s *Store) ListAdmins(ctx context.Context) ([]*types.User, error) {
	return listAdmins(ctx, s.db)
}

func insertUser(ctx context.Context, q querier, u *types.User) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, email, email_folded, name, role, password_hash, phone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, fold(u.Email), u.Name, string(u.Role), u.PasswordHash,
		u.Phone, fmtTime(u.CreatedAt))
	return wrapDBError("insert user", err)
}

func getUser(ctx context.Context, q querier, id string) (*types.User, error) {
	row := q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
		}
		return nil, wrapDBError("get user", err)
	}
	return u, nil
}

func listAdmins(ctx context.Context, q querier) ([]*types.User, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE role = ? ORDER BY created_at", string(types.RoleAdmin))
	if err != nil {
		return nil, wrapDBError("list admins", err)
	}
	defer rows.Close()

	var out []*types.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, wrapDBError("scan admin", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUser(row rowScanner) (*types.User, error) {
	var u types.User
	var role, createdAt string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.PasswordHash, &u.Phone, &createdAt); err != nil {
		return nil, err
	}
	u.Role = types.Role(role)
	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}
