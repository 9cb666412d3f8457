package audit

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
)

// PostgresStore persists attempts in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert appends one attempt row.
func (s *PostgresStore) Insert(ctx context.Context, a Attempt) error {
	var studentID, imageRef, reason *string
	if a.StudentID != "" {
		studentID = &a.StudentID
	}
	if a.ImageRef != "" {
		imageRef = &a.ImageRef
	}
	if a.RejectReason != "" {
		reason = &a.RejectReason
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_attempts
			(id, session_id, student_id, image_ref, outcome, reject_reason,
			 confidence, liveness_score, quality_score, processing_ms, attempted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, a.ID, a.SessionID, studentID, imageRef, a.Outcome, reason,
		a.Confidence, a.Liveness, a.Quality, a.ProcessingMs, a.AttemptedAt)
	return err
}

// List returns attempts for a session, newest first, optionally filtered by
// student.
func (s *PostgresStore) List(ctx context.Context, sessionID, studentID string, limit, offset int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, session_id, COALESCE(student_id, ''), COALESCE(image_ref, ''),
		       outcome, COALESCE(reject_reason, ''), confidence, liveness_score,
		       quality_score, processing_ms, attempted_at
		FROM verification_attempts
		WHERE session_id = $1`
	args := []any{sessionID}
	if studentID != "" {
		query += ` AND student_id = $2`
		args = append(args, studentID)
	}
	query += ` ORDER BY attempted_at DESC LIMIT $` + itoa(len(args)+1) + ` OFFSET $` + itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.SessionID, &a.StudentID, &a.ImageRef, &a.Outcome,
			&a.RejectReason, &a.Confidence, &a.Liveness, &a.Quality,
			&a.ProcessingMs, &a.AttemptedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func itoa(i int) string { return strconv.Itoa(i) }

// MemoryStore keeps attempts in memory for dev setups and tests.
type MemoryStore struct {
	mu       sync.Mutex
	attempts []Attempt
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert appends one attempt.
func (m *MemoryStore) Insert(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
	return nil
}

// List returns attempts for a session, newest first.
func (m *MemoryStore) List(_ context.Context, sessionID, studentID string, limit, offset int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var filtered []Attempt
	for i := len(m.attempts) - 1; i >= 0; i-- {
		a := m.attempts[i]
		if a.SessionID != sessionID {
			continue
		}
		if studentID != "" && a.StudentID != studentID {
			continue
		}
		filtered = append(filtered, a)
	}
	if offset >= len(filtered) {
		return nil, nil
	}
	filtered = filtered[offset:]
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}
