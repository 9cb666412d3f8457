package notify

import (
	"context"
	"database/sql"
)

// PostgresStore persists notifications in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert writes one notification row.
func (s *PostgresStore) Insert(ctx context.Context, n Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, kind, payload, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, n.ID, n.UserID, n.Kind, []byte(n.Payload), n.CreatedAt)
	return err
}

// MarkRead flips a notification to read.
func (s *PostgresStore) MarkRead(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE id = $1
	`, id)
	return err
}

// ListForUser returns a user's notifications, newest first.
func (s *PostgresStore) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, kind, payload, is_read, created_at
		FROM notifications
		WHERE user_id = $1`
	if unreadOnly {
		query += ` AND NOT is_read`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var payload []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &payload, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Payload = payload
		out = append(out, n)
	}
	return out, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
