package verify

import (
	"errors"

	"rollcall/internal/record"
)

// Code is the closed set of decided attempt outcomes.
type Code string

const (
	// OutcomeMatched means both thresholds held and a record was committed.
	OutcomeMatched Code = "matched"
	// OutcomeRejected is a policy decision, not an error; Reason says which
	// threshold failed so the UI can give actionable feedback.
	OutcomeRejected Code = "rejected"
	// OutcomeExtractionFailed means the extractor produced no usable descriptor.
	OutcomeExtractionFailed Code = "extraction_failed"
	// OutcomeTimedOut means extraction or matching exceeded the bounded timeout.
	OutcomeTimedOut Code = "timed_out"
	// OutcomeAlreadyRecorded short-circuits before the extractor once the
	// student has a committed record in the session.
	OutcomeAlreadyRecorded Code = "already_recorded"
	// OutcomeAttemptsExhausted is terminal for the student in this session;
	// only a manual override by a teacher gets past it.
	OutcomeAttemptsExhausted Code = "attempts_exhausted"
)

// Reject reasons surfaced with OutcomeRejected and OutcomeExtractionFailed.
const (
	ReasonLowConfidence  = "low_confidence"
	ReasonLowLiveness    = "low_liveness"
	ReasonNoFace         = "no_face"
	ReasonMultipleFaces  = "multiple_faces"
	ReasonLowQuality     = "low_quality"
	ReasonExtractorError = "extractor_error"
)

// Outcome is the decision for one verification attempt.
type Outcome struct {
	Code         Code           `json:"code"`
	Reason       string         `json:"reason,omitempty"`
	Confidence   float64        `json:"confidence,omitempty"`
	Liveness     float64        `json:"liveness,omitempty"`
	Quality      float64        `json:"quality,omitempty"`
	ProcessingMs int64          `json:"processing_ms"`
	AttemptsLeft int            `json:"attempts_left"`
	Record       *record.Record `json:"record,omitempty"`
}

// ErrNotEnrolled means the claimed student has no stored template; the
// attempt cannot be scored until the setup flow runs.
var ErrNotEnrolled = errors.New("student has no enrollment template")
