package enrollment

import (
	"context"
	"errors"
	"time"
)

// Template is a student's stored reference descriptor. One per student;
// re-running setup replaces it, never merges.
type Template struct {
	StudentID    string    `json:"student_id"`
	Descriptor   []float64 `json:"-"`
	QualityScore float64   `json:"quality_score"`
	Verified     bool      `json:"verified"`
	SetupAt      time.Time `json:"setup_at"`
}

// ErrQualityTooLow means the enrollment capture is below the setup quality
// minimum and no template was stored.
var ErrQualityTooLow = errors.New("enrollment capture quality too low")

// Store persists enrollment templates.
type Store interface {
	// Put creates or replaces a student's template.
	Put(ctx context.Context, t Template) error
	// Lookup returns the template for a student, or nil when none exists.
	Lookup(ctx context.Context, studentID string) (*Template, error)
}
