package session

import (
	"errors"
	"time"
)

// Mode says how attendance is taken in a session.
type Mode string

const (
	ModeManual   Mode = "manual"
	ModeFaceScan Mode = "face_scan"
)

// Thresholds hold the per-session verification policy.
type Thresholds struct {
	Confidence  float64 `json:"confidence"`
	Liveness    float64 `json:"liveness"`
	MaxAttempts int     `json:"max_attempts"`
}

// Validate checks thresholds are usable before a session opens.
func (t Thresholds) Validate() error {
	if t.Confidence < 0 || t.Confidence > 1 {
		return ErrInvalidConfig
	}
	if t.Liveness < 0 || t.Liveness > 1 {
		return ErrInvalidConfig
	}
	if t.MaxAttempts < 1 {
		return ErrInvalidConfig
	}
	return nil
}

// Session is one attendance-taking window for a subject, teacher and date.
// It is mutated only to close or to adjust thresholds while active.
type Session struct {
	ID         string     `json:"id"`
	SubjectID  string     `json:"subject_id"`
	TeacherID  string     `json:"teacher_id"`
	Date       time.Time  `json:"date"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Mode       Mode       `json:"mode"`
	IsActive   bool       `json:"is_active"`
	Thresholds Thresholds `json:"thresholds"`
}

var (
	// ErrInvalidConfig means thresholds are outside [0,1] or max attempts < 1.
	ErrInvalidConfig = errors.New("invalid session config")
	// ErrNotFound means no session exists with the given id.
	ErrNotFound = errors.New("session not found")
	// ErrAlreadyClosed means the session was closed before; close is not idempotent
	// so double-close bugs surface at the caller.
	ErrAlreadyClosed = errors.New("session already closed")
	// ErrActiveExists means an active session already covers the subject, teacher and date.
	ErrActiveExists = errors.New("active session already exists")
	// ErrInactive means an operation arrived for a session that is no longer
	// (or not yet) accepting attempts.
	ErrInactive = errors.New("session inactive")
)
