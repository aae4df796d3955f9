package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/HowDiggy/signconnect/internal/store"
)

// GetOrCreateUser implements store.Store. The upsert keeps first contact
// atomic: two concurrent handshakes for the same firebase_uid both land on
// the same row. The no-op DO UPDATE makes RETURNING yield the existing row
// instead of nothing on conflict.
func (s *Store) GetOrCreateUser(ctx context.Context, firebaseUID, email, username string) (*store.User, error) {
	if firebaseUID == "" {
		return nil, errors.New("postgres store: firebaseUID must not be empty")
	}

	const q = `
		INSERT INTO users (firebase_uid, email, username)
		VALUES ($1, $2, $3)
		ON CONFLICT (firebase_uid) DO UPDATE SET firebase_uid = EXCLUDED.firebase_uid
		RETURNING id, firebase_uid, email, username, created_at`

	var u store.User
	err := s.pool.QueryRow(ctx, q, firebaseUID, email, username).
		Scan(&u.ID, &u.FirebaseUID, &u.Email, &u.Username, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get or create user: %w", err)
	}
	return &u, nil
}

// FindUserByEmail implements store.Store.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*store.User, error) {
	const q = `
		SELECT id, firebase_uid, email, username, created_at
		FROM users
		WHERE email = $1`

	var u store.User
	err := s.pool.QueryRow(ctx, q, email).
		Scan(&u.ID, &u.FirebaseUID, &u.Email, &u.Username, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: find user by email: %w", err)
	}
	return &u, nil
}
