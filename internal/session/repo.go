package session

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepository persists sessions in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, subject_id, teacher_id, session_date, start_time, end_time, mode, is_active,
	confidence_threshold, liveness_threshold, max_attempts`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var s Session
	var mode string
	if err := row.Scan(&s.ID, &s.SubjectID, &s.TeacherID, &s.Date, &s.StartTime, &s.EndTime, &mode,
		&s.IsActive, &s.Thresholds.Confidence, &s.Thresholds.Liveness, &s.Thresholds.MaxAttempts); err != nil {
		return Session{}, err
	}
	s.Mode = Mode(mode)
	return s, nil
}

// Insert writes a new session row.
func (r *PostgresRepository) Insert(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_sessions
			(id, subject_id, teacher_id, session_date, start_time, mode, is_active,
			 confidence_threshold, liveness_threshold, max_attempts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, s.ID, s.SubjectID, s.TeacherID, s.Date, s.StartTime, string(s.Mode), s.IsActive,
		s.Thresholds.Confidence, s.Thresholds.Liveness, s.Thresholds.MaxAttempts)
	return err
}

// Get returns a session by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions WHERE id = $1
	`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return s, err
}

// FindActive returns the active session for a subject, teacher and date, or nil.
func (r *PostgresRepository) FindActive(ctx context.Context, subjectID, teacherID string, date time.Time) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE subject_id = $1 AND teacher_id = $2 AND session_date = $3 AND is_active
		ORDER BY start_time DESC
		LIMIT 1
	`, subjectID, teacherID, date)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Close deactivates a session if it is still active.
func (r *PostgresRepository) Close(ctx context.Context, id string, endTime time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions
		SET is_active = FALSE, end_time = $2
		WHERE id = $1 AND is_active
	`, id, endTime)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateThresholds changes the policy of a still-active session.
func (r *PostgresRepository) UpdateThresholds(ctx context.Context, id string, t Thresholds) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions
		SET confidence_threshold = $2, liveness_threshold = $3, max_attempts = $4
		WHERE id = $1 AND is_active
	`, id, t.Confidence, t.Liveness, t.MaxAttempts)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
