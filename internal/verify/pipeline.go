package verify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"rollcall/internal/audit"
	"rollcall/internal/enrollment"
	"rollcall/internal/extractor"
	"rollcall/internal/match"
	"rollcall/internal/metrics"
	"rollcall/internal/record"
	"rollcall/internal/session"
)

// Request is one verification attempt: a claimed student identity plus the
// captured frame. Identity is always claimed, never inferred from a roster
// search, so a decision is deterministic for a given capture.
type Request struct {
	SessionID   string
	StudentID   string
	Image       []byte
	ContentType string
	ImageRef    string
}

// ErrInvalidRequest means the request is missing session, student or image.
var ErrInvalidRequest = errors.New("session id, student id and image required")

// SessionSource yields sessions for the active check.
type SessionSource interface {
	Get(ctx context.Context, id string) (session.Session, error)
}

// TemplateSource yields stored enrollment templates. The pipeline only reads.
type TemplateSource interface {
	Lookup(ctx context.Context, studentID string) (*enrollment.Template, error)
}

// Extractor converts image bytes into a descriptor with quality and liveness.
type Extractor interface {
	Extract(ctx context.Context, imageBytes []byte, contentType string) (*extractor.Result, error)
}

// Matcher scores a live descriptor against a template.
type Matcher interface {
	Score(live, template []float64, liveness float64) (match.Score, error)
}

// Committer applies a matched decision as a durable attendance record.
type Committer interface {
	WasRecorded(ctx context.Context, sessionID, studentID string) (bool, error)
	Commit(ctx context.Context, s session.Session, studentID string, status record.Status, mode session.Mode, meta *record.VerificationMeta) (record.Record, error)
}

// Auditor appends attempt entries. Append never fails the caller.
type Auditor interface {
	Append(ctx context.Context, a audit.Attempt)
}

// Pipeline drives one attempt through Received, Extracting, Matching and
// Decided. No attempt skips a state; every attempt lands in the audit trail
// whatever happens.
type Pipeline struct {
	sessions       SessionSource
	templates      TemplateSource
	extract        Extractor
	matcher        Matcher
	recorder       Committer
	attempts       AttemptCounter
	trail          Auditor
	extractTimeout time.Duration
	log            *zap.Logger
	now            func() time.Time
}

// NewPipeline wires the verification pipeline.
func NewPipeline(sessions SessionSource, templates TemplateSource, ext Extractor, matcher Matcher,
	recorder Committer, attempts AttemptCounter, trail Auditor, extractTimeout time.Duration, log *zap.Logger) *Pipeline {
	if extractTimeout <= 0 {
		extractTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		sessions:       sessions,
		templates:      templates,
		extract:        ext,
		matcher:        matcher,
		recorder:       recorder,
		attempts:       attempts,
		trail:          trail,
		extractTimeout: extractTimeout,
		log:            log,
		now:            time.Now,
	}
}

// Verify runs one attempt to a decision. Session-state violations come back
// as errors (session.ErrInactive, session.ErrNotFound, ErrNotEnrolled,
// record.ErrDuplicateAttendance); everything else is a decided Outcome.
func (p *Pipeline) Verify(ctx context.Context, req Request) (Outcome, error) {
	if req.SessionID == "" || req.StudentID == "" || len(req.Image) == 0 {
		return Outcome{}, ErrInvalidRequest
	}
	start := p.now()
	p.transition(req, "received", start)

	sess, err := p.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return Outcome{}, err
	}
	if !sess.IsActive {
		p.audit(ctx, req, "session_inactive", "", nil, nil, start)
		return Outcome{}, session.ErrInactive
	}

	// Short-circuit before spending extractor work.
	recorded, err := p.recorder.WasRecorded(ctx, sess.ID, req.StudentID)
	if err != nil {
		return Outcome{}, err
	}
	if recorded {
		return p.decide(ctx, req, Outcome{Code: OutcomeAlreadyRecorded}, nil, start), nil
	}

	used, err := p.attempts.Count(ctx, sess.ID, req.StudentID)
	if err != nil {
		return Outcome{}, err
	}
	if used >= sess.Thresholds.MaxAttempts {
		return p.decide(ctx, req, Outcome{Code: OutcomeAttemptsExhausted}, nil, start), nil
	}

	p.transition(req, "extracting", start)
	ectx, cancel := context.WithTimeout(ctx, p.extractTimeout)
	extracted, err := p.extract.Extract(ectx, req.Image, req.ContentType)
	cancel()
	metrics.PipelineStageSeconds.WithLabelValues("extract").Observe(p.now().Sub(start).Seconds())
	if err != nil {
		out := Outcome{Code: OutcomeExtractionFailed, Reason: extractionReason(err)}
		if errors.Is(err, context.DeadlineExceeded) {
			out.Code = OutcomeTimedOut
			out.Reason = ""
		}
		p.bump(ctx, sess, req.StudentID, &out)
		return p.decide(ctx, req, out, nil, start), nil
	}

	tpl, err := p.templates.Lookup(ctx, req.StudentID)
	if err != nil {
		return Outcome{}, err
	}
	if tpl == nil {
		p.audit(ctx, req, "not_enrolled", "", nil, extracted, start)
		return Outcome{}, ErrNotEnrolled
	}

	p.transition(req, "matching", start)
	matchStart := p.now()
	score, err := p.matcher.Score(extracted.Descriptor, tpl.Descriptor, extracted.Liveness)
	metrics.PipelineStageSeconds.WithLabelValues("match").Observe(p.now().Sub(matchStart).Seconds())
	if err != nil {
		out := Outcome{Code: OutcomeExtractionFailed, Reason: ReasonExtractorError}
		p.bump(ctx, sess, req.StudentID, &out)
		return p.decide(ctx, req, out, extracted, start), nil
	}

	out := Outcome{
		Confidence: score.Confidence,
		Liveness:   score.Liveness,
		Quality:    extracted.Quality,
	}

	// Thresholds are inclusive: exactly at the threshold passes.
	switch {
	case score.Confidence < sess.Thresholds.Confidence:
		out.Code = OutcomeRejected
		out.Reason = ReasonLowConfidence
	case score.Liveness < sess.Thresholds.Liveness:
		out.Code = OutcomeRejected
		out.Reason = ReasonLowLiveness
	default:
		out.Code = OutcomeMatched
	}

	if out.Code == OutcomeRejected {
		p.bump(ctx, sess, req.StudentID, &out)
		return p.decide(ctx, req, out, extracted, start), nil
	}

	meta := &record.VerificationMeta{
		Confidence:   score.Confidence,
		Liveness:     score.Liveness,
		ProcessingMs: p.elapsedMs(start),
	}
	committed, err := p.recorder.Commit(ctx, sess, req.StudentID, record.StatusPresent, session.ModeFaceScan, meta)
	if err != nil {
		// The active check and uniqueness are re-verified inside the commit
		// transaction, so a racing close or duplicate surfaces here.
		reason := "commit_failed"
		if errors.Is(err, record.ErrDuplicateAttendance) {
			reason = "duplicate"
		} else if errors.Is(err, session.ErrInactive) {
			reason = "session_inactive"
		}
		p.audit(ctx, req, reason, "", &out, extracted, start)
		return Outcome{}, err
	}
	out.Record = &committed
	return p.decide(ctx, req, out, extracted, start), nil
}

func (p *Pipeline) bump(ctx context.Context, sess session.Session, studentID string, out *Outcome) {
	n, err := p.attempts.Increment(ctx, sess.ID, studentID)
	if err != nil {
		p.log.Warn("attempt counter increment failed",
			zap.String("session_id", sess.ID), zap.Error(err))
		return
	}
	if left := sess.Thresholds.MaxAttempts - n; left > 0 {
		out.AttemptsLeft = left
	}
}

// decide finalizes the outcome: total elapsed time, audit entry, metrics.
func (p *Pipeline) decide(ctx context.Context, req Request, out Outcome, extracted *extractor.Result, start time.Time) Outcome {
	out.ProcessingMs = p.elapsedMs(start)
	p.transition(req, "decided", start)
	metrics.VerificationAttempts.WithLabelValues(string(out.Code)).Inc()
	metrics.PipelineStageSeconds.WithLabelValues("total").Observe(p.now().Sub(start).Seconds())
	p.audit(ctx, req, string(out.Code), out.Reason, &out, extracted, start)
	return out
}

// audit appends the attempt on a detached context so an aborted capture is
// still logged once extraction has started.
func (p *Pipeline) audit(ctx context.Context, req Request, outcome, reason string, out *Outcome, extracted *extractor.Result, start time.Time) {
	a := audit.Attempt{
		SessionID:    req.SessionID,
		StudentID:    req.StudentID,
		ImageRef:     req.ImageRef,
		Outcome:      outcome,
		RejectReason: reason,
		ProcessingMs: p.elapsedMs(start),
		AttemptedAt:  start.UTC(),
	}
	if out != nil && (out.Code == OutcomeMatched || out.Code == OutcomeRejected) {
		a.Confidence = &out.Confidence
		a.Liveness = &out.Liveness
	}
	if extracted != nil {
		q := extracted.Quality
		a.Quality = &q
	}
	p.trail.Append(context.WithoutCancel(ctx), a)
}

func (p *Pipeline) transition(req Request, state string, start time.Time) {
	p.log.Debug("attempt state",
		zap.String("session_id", req.SessionID),
		zap.String("student_id", req.StudentID),
		zap.String("state", state),
		zap.Int64("elapsed_ms", p.elapsedMs(start)),
	)
}

func (p *Pipeline) elapsedMs(start time.Time) int64 {
	return p.now().Sub(start).Milliseconds()
}

func extractionReason(err error) string {
	switch {
	case errors.Is(err, extractor.ErrNoFace):
		return ReasonNoFace
	case errors.Is(err, extractor.ErrMultipleFaces):
		return ReasonMultipleFaces
	case errors.Is(err, extractor.ErrLowQuality):
		return ReasonLowQuality
	}
	return ReasonExtractorError
}
