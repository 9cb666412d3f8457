package record

import (
	"errors"
	"time"

	"rollcall/internal/session"
)

// Status is the closed set of attendance states.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusOnLeave Status = "on_leave"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusOnLeave:
		return true
	}
	return false
}

// VerificationMeta carries the scores of the attempt that produced a record.
type VerificationMeta struct {
	Confidence   float64 `json:"confidence"`
	Liveness     float64 `json:"liveness"`
	ProcessingMs int64   `json:"processing_ms"`
}

// Record is one durable attendance entry. At most one exists per
// (student, session); corrections go through Amend, never through a second
// commit.
type Record struct {
	ID             string            `json:"id"`
	StudentID      string            `json:"student_id"`
	TeacherID      string            `json:"teacher_id"`
	SubjectID      string            `json:"subject_id"`
	SessionID      string            `json:"session_id"`
	Date           time.Time         `json:"date"`
	Status         Status            `json:"status"`
	CheckInTime    *time.Time        `json:"check_in_time,omitempty"`
	Mode           session.Mode      `json:"mode"`
	Verification   *VerificationMeta `json:"verification,omitempty"`
	ParentNotified bool              `json:"parent_notified"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Amendment is one authorized status correction on a record.
type Amendment struct {
	ID        string    `json:"id"`
	RecordID  string    `json:"record_id"`
	ActorID   string    `json:"actor_id"`
	OldStatus Status    `json:"old_status"`
	NewStatus Status    `json:"new_status"`
	Reason    string    `json:"reason"`
	AmendedAt time.Time `json:"amended_at"`
}

var (
	// ErrDuplicateAttendance means a record already exists for the
	// (student, session) pair. Never silently resolved.
	ErrDuplicateAttendance = errors.New("attendance already recorded for student in session")
	// ErrNotFound means no record exists with the given id.
	ErrNotFound = errors.New("attendance record not found")
	// ErrInvalidStatus means the status is outside the closed set.
	ErrInvalidStatus = errors.New("invalid attendance status")
	// ErrReasonRequired means an amendment arrived without a reason.
	ErrReasonRequired = errors.New("amendment reason required")
)

// CommitEvent is published after a record commit for the notification
// dispatcher. Dispatch is best-effort and never rolls back the commit.
type CommitEvent struct {
	RecordID  string    `json:"record_id"`
	StudentID string    `json:"student_id"`
	TeacherID string    `json:"teacher_id"`
	SubjectID string    `json:"subject_id"`
	SessionID string    `json:"session_id"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
