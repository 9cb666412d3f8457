package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Attempt is one verification try, logged whatever its outcome. The trail is
// the single source of truth for why attendance was or was not marked.
type Attempt struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	StudentID    string    `json:"student_id,omitempty"`
	ImageRef     string    `json:"image_ref,omitempty"`
	Outcome      string    `json:"outcome"`
	RejectReason string    `json:"reject_reason,omitempty"`
	Confidence   *float64  `json:"confidence,omitempty"`
	Liveness     *float64  `json:"liveness,omitempty"`
	Quality      *float64  `json:"quality,omitempty"`
	ProcessingMs int64     `json:"processing_ms"`
	AttemptedAt  time.Time `json:"attempted_at"`
}

// Store persists attempts.
type Store interface {
	Insert(ctx context.Context, a Attempt) error
	List(ctx context.Context, sessionID, studentID string, limit, offset int) ([]Attempt, error)
}

// Trail appends attempts to the store and the structured log. Append is
// best-effort: a store failure is logged and swallowed so it can never fail
// the verification call it describes.
type Trail struct {
	store Store
	log   *zap.Logger
}

// NewTrail creates an audit trail.
func NewTrail(store Store, log *zap.Logger) *Trail {
	if log == nil {
		log = zap.NewNop()
	}
	return &Trail{store: store, log: log}
}

// Append records one attempt.
func (t *Trail) Append(ctx context.Context, a Attempt) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now().UTC()
	}

	fields := []zap.Field{
		zap.String("attempt_id", a.ID),
		zap.String("session_id", a.SessionID),
		zap.String("student_id", a.StudentID),
		zap.String("outcome", a.Outcome),
		zap.Int64("processing_ms", a.ProcessingMs),
	}
	if a.RejectReason != "" {
		fields = append(fields, zap.String("reject_reason", a.RejectReason))
	}
	if a.Confidence != nil {
		fields = append(fields, zap.Float64("confidence", *a.Confidence))
	}
	if a.Liveness != nil {
		fields = append(fields, zap.Float64("liveness", *a.Liveness))
	}
	t.log.Info("verification attempt", fields...)

	if err := t.store.Insert(ctx, a); err != nil {
		t.log.Error("audit insert failed",
			zap.String("attempt_id", a.ID), zap.Error(err))
	}
}

// List returns attempts for a session, newest first.
func (t *Trail) List(ctx context.Context, sessionID, studentID string, limit, offset int) ([]Attempt, error) {
	return t.store.List(ctx, sessionID, studentID, limit, offset)
}
