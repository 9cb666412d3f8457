package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Repository persists sessions.
type Repository interface {
	Insert(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	FindActive(ctx context.Context, subjectID, teacherID string, date time.Time) (*Session, error)
	// Close flips is_active off for an active session; returns false when the
	// session was not active at the time of the update.
	Close(ctx context.Context, id string, endTime time.Time) (bool, error)
	UpdateThresholds(ctx context.Context, id string, t Thresholds) (bool, error)
}

// Manager owns the attendance-session lifecycle. All session mutation goes
// through it.
type Manager struct {
	repo Repository
	log  *zap.Logger
}

// NewManager creates a session manager.
func NewManager(repo Repository, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{repo: repo, log: log}
}

// Open creates a new active session. It rejects bad thresholds and an already
// open session for the same subject, teacher and date.
func (m *Manager) Open(ctx context.Context, subjectID, teacherID string, date time.Time, mode Mode, t Thresholds) (Session, error) {
	if subjectID == "" || teacherID == "" {
		return Session{}, ErrInvalidConfig
	}
	if mode != ModeManual && mode != ModeFaceScan {
		return Session{}, ErrInvalidConfig
	}
	if err := t.Validate(); err != nil {
		return Session{}, err
	}

	day := date.UTC().Truncate(24 * time.Hour)
	if existing, err := m.repo.FindActive(ctx, subjectID, teacherID, day); err != nil {
		return Session{}, err
	} else if existing != nil {
		return Session{}, ErrActiveExists
	}

	s := Session{
		ID:         uuid.NewString(),
		SubjectID:  subjectID,
		TeacherID:  teacherID,
		Date:       day,
		StartTime:  time.Now().UTC(),
		Mode:       mode,
		IsActive:   true,
		Thresholds: t,
	}
	if err := m.repo.Insert(ctx, s); err != nil {
		return Session{}, err
	}
	m.log.Info("session opened",
		zap.String("session_id", s.ID),
		zap.String("subject_id", subjectID),
		zap.String("teacher_id", teacherID),
		zap.Float64("confidence_threshold", t.Confidence),
		zap.Float64("liveness_threshold", t.Liveness),
		zap.Int("max_attempts", t.MaxAttempts),
	)
	return s, nil
}

// Close ends an active session. Closing twice fails with ErrAlreadyClosed.
func (m *Manager) Close(ctx context.Context, id string) error {
	closed, err := m.repo.Close(ctx, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if !closed {
		if _, err := m.repo.Get(ctx, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		return ErrAlreadyClosed
	}
	m.log.Info("session closed", zap.String("session_id", id))
	return nil
}

// Get returns a session by id.
func (m *Manager) Get(ctx context.Context, id string) (Session, error) {
	return m.repo.Get(ctx, id)
}

// GetActive returns the active session for a subject, teacher and date, or nil.
func (m *Manager) GetActive(ctx context.Context, subjectID, teacherID string, date time.Time) (*Session, error) {
	return m.repo.FindActive(ctx, subjectID, teacherID, date.UTC().Truncate(24*time.Hour))
}

// SetThresholds adjusts policy on a still-active session.
func (m *Manager) SetThresholds(ctx context.Context, id string, t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	updated, err := m.repo.UpdateThresholds(ctx, id, t)
	if err != nil {
		return err
	}
	if !updated {
		if _, err := m.repo.Get(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyClosed
	}
	m.log.Info("session thresholds updated", zap.String("session_id", id))
	return nil
}
