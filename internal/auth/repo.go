package auth

import (
	"context"
	"database/sql"
	"time"
)

// TokenStore persists refresh tokens for rotation checks.
type TokenStore struct {
	db *sql.DB
}

// NewTokenStore creates a store.
func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

// SaveRefreshToken stores a refresh token.
func (s *TokenStore) SaveRefreshToken(ctx context.Context, subject, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, subject, expires_at)
		VALUES ($1, $2, $3)
	`, token, subject, expiresAt)
	return err
}

// RevokeRefreshToken marks a token revoked.
func (s *TokenStore) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return err
}

// RefreshTokenValid reports whether a token is known, unexpired and unrevoked.
func (s *TokenStore) RefreshTokenValid(ctx context.Context, token string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		SELECT NOT revoked AND expires_at > NOW()
		FROM refresh_tokens WHERE token = $1
	`, token).Scan(&ok)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return ok, err
}
