package record

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"rollcall/internal/session"
)

// PostgresRepository persists attendance records in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Insert writes a record inside one transaction with the session-active
// check, so an attempt racing a session close loses deterministically.
func (r *PostgresRepository) Insert(ctx context.Context, rec Record) (Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var active bool
	err = tx.QueryRowContext(ctx, `
		SELECT is_active FROM attendance_sessions WHERE id = $1 FOR SHARE
	`, rec.SessionID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, session.ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	if !active {
		return Record{}, session.ErrInactive
	}

	var conf, live *float64
	var procMs *int64
	if rec.Verification != nil {
		conf = &rec.Verification.Confidence
		live = &rec.Verification.Liveness
		procMs = &rec.Verification.ProcessingMs
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO attendance_records
			(id, student_id, teacher_id, subject_id, session_id, record_date, status,
			 check_in_time, mode, confidence, liveness_score, processing_ms)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at
	`, rec.ID, rec.StudentID, rec.TeacherID, rec.SubjectID, rec.SessionID, rec.Date,
		string(rec.Status), rec.CheckInTime, string(rec.Mode), conf, live, procMs).Scan(&rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Record{}, ErrDuplicateAttendance
		}
		return Record{}, err
	}

	if err := tx.Commit(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

const recordColumns = `id, student_id, teacher_id, subject_id, session_id, record_date, status,
	check_in_time, mode, confidence, liveness_score, processing_ms, parent_notified, created_at`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var rec Record
	var status, mode string
	var conf, live sql.NullFloat64
	var procMs sql.NullInt64
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.TeacherID, &rec.SubjectID, &rec.SessionID,
		&rec.Date, &status, &rec.CheckInTime, &mode, &conf, &live, &procMs,
		&rec.ParentNotified, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	rec.Mode = session.Mode(mode)
	if conf.Valid || live.Valid || procMs.Valid {
		rec.Verification = &VerificationMeta{
			Confidence:   conf.Float64,
			Liveness:     live.Float64,
			ProcessingMs: procMs.Int64,
		}
	}
	return rec, nil
}

// Get returns a record by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records WHERE id = $1
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// FindBySessionStudent returns the record for a pair, or nil when none exists.
func (r *PostgresRepository) FindBySessionStudent(ctx context.Context, sessionID, studentID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE session_id = $1 AND student_id = $2
	`, sessionID, studentID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Amend updates a record's status and appends the amendment trail row in one
// transaction.
func (r *PostgresRepository) Amend(ctx context.Context, recordID, actorID string, newStatus Status, reason string) (Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records WHERE id = $1 FOR UPDATE
	`, recordID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE attendance_records SET status = $2, updated_at = NOW() WHERE id = $1
	`, recordID, string(newStatus)); err != nil {
		return Record{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO record_amendments (id, record_id, actor_id, old_status, new_status, reason)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, uuid.NewString(), recordID, actorID, string(rec.Status), string(newStatus), reason); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(); err != nil {
		return Record{}, err
	}
	rec.Status = newStatus
	return rec, nil
}

// MarkParentNotified flags a record after successful parent dispatch.
func (r *PostgresRepository) MarkParentNotified(ctx context.Context, recordID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records SET parent_notified = TRUE, updated_at = NOW() WHERE id = $1
	`, recordID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
