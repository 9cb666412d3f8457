package record

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rollcall/internal/session"
)

// Repository persists attendance records. Insert must enforce the
// one-record-per-(student,session) invariant and the session-active check in
// a single atomic step.
type Repository interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	FindBySessionStudent(ctx context.Context, sessionID, studentID string) (*Record, error)
	Amend(ctx context.Context, recordID, actorID string, newStatus Status, reason string) (Record, error)
	MarkParentNotified(ctx context.Context, recordID string) error
}

// Publisher hands commit events to the notification side. Failures are the
// publisher's problem; the recorder only logs them.
type Publisher interface {
	PublishCommit(ctx context.Context, evt CommitEvent) error
}

// Recorder owns attendance record creation and mutation.
type Recorder struct {
	repo   Repository
	events Publisher
	log    *zap.Logger
}

// NewRecorder creates a recorder. events may be nil when no dispatcher is
// wired (tests, manual tooling).
func NewRecorder(repo Repository, events Publisher, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{repo: repo, events: events, log: log}
}

// Commit writes one attendance record for a student in a session. A second
// commit for the same pair fails with ErrDuplicateAttendance. A commit
// against an inactive session fails with session.ErrInactive; the active
// check happens inside the same transaction as the insert.
func (r *Recorder) Commit(ctx context.Context, s session.Session, studentID string, status Status, mode session.Mode, meta *VerificationMeta) (Record, error) {
	if !status.Valid() {
		return Record{}, ErrInvalidStatus
	}
	now := time.Now().UTC()
	rec := Record{
		ID:           uuid.NewString(),
		StudentID:    studentID,
		TeacherID:    s.TeacherID,
		SubjectID:    s.SubjectID,
		SessionID:    s.ID,
		Date:         s.Date,
		Status:       status,
		Mode:         mode,
		Verification: meta,
	}
	if status == StatusPresent || status == StatusLate {
		rec.CheckInTime = &now
	}

	rec, err := r.repo.Insert(ctx, rec)
	if err != nil {
		return Record{}, err
	}
	r.log.Info("attendance committed",
		zap.String("record_id", rec.ID),
		zap.String("student_id", studentID),
		zap.String("session_id", s.ID),
		zap.String("status", string(status)),
	)

	if r.events != nil {
		evt := CommitEvent{
			RecordID:  rec.ID,
			StudentID: rec.StudentID,
			TeacherID: rec.TeacherID,
			SubjectID: rec.SubjectID,
			SessionID: rec.SessionID,
			Status:    rec.Status,
			Timestamp: now,
		}
		if err := r.events.PublishCommit(ctx, evt); err != nil {
			// Best effort. The record stays committed either way.
			r.log.Warn("commit event publish failed",
				zap.String("record_id", rec.ID), zap.Error(err))
		}
	}
	return rec, nil
}

// WasRecorded reports whether a record already exists for the pair. Used by
// the pipeline to short-circuit before spending extractor work.
func (r *Recorder) WasRecorded(ctx context.Context, sessionID, studentID string) (bool, error) {
	rec, err := r.repo.FindBySessionStudent(ctx, sessionID, studentID)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// Get returns a record by id.
func (r *Recorder) Get(ctx context.Context, id string) (Record, error) {
	return r.repo.Get(ctx, id)
}

// Amend corrects a record's status with a reason, keeping the old status in
// the amendment trail. Records are superseded, never deleted.
func (r *Recorder) Amend(ctx context.Context, recordID, actorID string, newStatus Status, reason string) (Record, error) {
	if !newStatus.Valid() {
		return Record{}, ErrInvalidStatus
	}
	if reason == "" {
		return Record{}, ErrReasonRequired
	}
	rec, err := r.repo.Amend(ctx, recordID, actorID, newStatus, reason)
	if err != nil {
		return Record{}, err
	}
	r.log.Info("attendance amended",
		zap.String("record_id", recordID),
		zap.String("actor_id", actorID),
		zap.String("new_status", string(newStatus)),
		zap.String("reason", reason),
	)
	return rec, nil
}

// MarkParentNotified flags a record once the parent notification went out.
func (r *Recorder) MarkParentNotified(ctx context.Context, recordID string) error {
	return r.repo.MarkParentNotified(ctx, recordID)
}
