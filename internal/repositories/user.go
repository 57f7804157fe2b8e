package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/shared"
)

// UserRepository persists [models.User] rows.
type UserRepository struct {
	q shared.DBTX
}

// NewUserRepository creates a new [UserRepository] over the given query surface
func NewUserRepository(q shared.DBTX) *UserRepository {
	return &UserRepository{q: q}
}

// Create inserts a new user and sets its generated ID
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	result, err := r.q.ExecContext(ctx,
		`INSERT INTO users (username, credential_hash, created_at) VALUES (?, ?, ?)`,
		user.Username, user.CredentialHash, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read user id: %w", err)
	}
	user.ID = id
	return nil
}

// Get retrieves a user by ID, excluding soft-deleted users
func (r *UserRepository) Get(ctx context.Context, id int64) (*models.User, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, username, credential_hash, created_at, deleted_at
		FROM users
		WHERE id = ? AND deleted_at IS NULL
	`, id)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", id)
	}
	return user, err
}

// GetByUsername retrieves a live user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, username, credential_hash, created_at, deleted_at
		FROM users
		WHERE username = ? AND deleted_at IS NULL
	`, username)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", username)
	}
	return user, err
}

// Delete soft-deletes a user by ID
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireAffected(result, "user", id)
}

// List retrieves every live user ordered by ID
func (r *UserRepository) List(ctx context.Context) ([]*models.User, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, username, credential_hash, created_at, deleted_at
		FROM users
		WHERE deleted_at IS NULL
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return users, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*models.User, error) {
	var (
		user      models.User
		deletedAt sql.NullTime
	)

	err := s.Scan(&user.ID, &user.Username, &user.CredentialHash, &user.CreatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if deletedAt.Valid {
		user.DeletedAt = &deletedAt.Time
	}
	return &user, nil
}

// requireAffected turns a zero-row update into a not-found error.
func requireAffected(result sql.Result, entity string, id any) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return notFound(entity, id)
	}
	return nil
}
