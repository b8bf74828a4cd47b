package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, u *User) error {
	query := `INSERT INTO users (id, username, password_hash, created_at, updated_at, is_online)
              VALUES ($1, $2, $3, $4, $5, FALSE)`

	_, err := r.db.ExecContext(ctx, query, u.ID, u.Username, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	query := `SELECT id, username, password_hash, created_at, updated_at, deleted_at, is_online, last_seen_at
              FROM users WHERE username = $1`

	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
		&u.DeletedAt, &u.IsOnline, &u.LastSeenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user by username: %w", err)
	}
	return u, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (*User, error) {
	u := &User{}
	query := `SELECT id, username, password_hash, created_at, updated_at, deleted_at, is_online, last_seen_at
              FROM users WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
		&u.DeletedAt, &u.IsOnline, &u.LastSeenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

// SearchUsers matches usernames by case-insensitive prefix, excluding
// soft-deleted accounts and the searcher themselves.
func (r *Repository) SearchUsers(ctx context.Context, prefix, excludeID string, limit int) ([]*Profile, error) {
	query := `SELECT id, username, is_online, last_seen_at
              FROM users
              WHERE username ILIKE $1 || '%' AND id <> $2 AND deleted_at IS NULL
              ORDER BY username ASC LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, prefix, excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p := &Profile{}
		if err := rows.Scan(&p.ID, &p.Username, &p.IsOnline, &p.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}
