package record

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/session"
)

type fakeRepo struct {
	active  map[string]bool // session id -> is_active
	records map[string]Record
	amends  []Amendment
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{active: make(map[string]bool), records: make(map[string]Record)}
}

func pairKey(sessionID, studentID string) string { return sessionID + "/" + studentID }

func (f *fakeRepo) Insert(_ context.Context, rec Record) (Record, error) {
	active, ok := f.active[rec.SessionID]
	if !ok {
		return Record{}, session.ErrNotFound
	}
	if !active {
		return Record{}, session.ErrInactive
	}
	key := pairKey(rec.SessionID, rec.StudentID)
	if _, exists := f.records[key]; exists {
		return Record{}, ErrDuplicateAttendance
	}
	rec.CreatedAt = time.Now().UTC()
	f.records[key] = rec
	return rec, nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (Record, error) {
	for _, rec := range f.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (f *fakeRepo) FindBySessionStudent(_ context.Context, sessionID, studentID string) (*Record, error) {
	rec, ok := f.records[pairKey(sessionID, studentID)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeRepo) Amend(_ context.Context, recordID, actorID string, newStatus Status, reason string) (Record, error) {
	for key, rec := range f.records {
		if rec.ID == recordID {
			f.amends = append(f.amends, Amendment{
				RecordID: recordID, ActorID: actorID,
				OldStatus: rec.Status, NewStatus: newStatus, Reason: reason,
			})
			rec.Status = newStatus
			f.records[key] = rec
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (f *fakeRepo) MarkParentNotified(_ context.Context, recordID string) error {
	for key, rec := range f.records {
		if rec.ID == recordID {
			rec.ParentNotified = true
			f.records[key] = rec
			return nil
		}
	}
	return ErrNotFound
}

type capturePublisher struct {
	events []CommitEvent
	err    error
}

func (p *capturePublisher) PublishCommit(_ context.Context, evt CommitEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func activeSession(repo *fakeRepo) session.Session {
	s := session.Session{
		ID:        uuid.NewString(),
		SubjectID: "math",
		TeacherID: "t1",
		Date:      time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		Mode:      session.ModeFaceScan,
		IsActive:  true,
	}
	repo.active[s.ID] = true
	return s
}

func TestCommit_OneRecordPerStudentSession(t *testing.T) {
	repo := newFakeRepo()
	pub := &capturePublisher{}
	rec := NewRecorder(repo, pub, nil)
	s := activeSession(repo)
	ctx := context.Background()
	meta := &VerificationMeta{Confidence: 0.9, Liveness: 0.7, ProcessingMs: 120}

	first, err := rec.Commit(ctx, s, "stu1", StatusPresent, session.ModeFaceScan, meta)
	if err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	if first.CheckInTime == nil {
		t.Error("present record should have check-in time")
	}

	if _, err := rec.Commit(ctx, s, "stu1", StatusPresent, session.ModeFaceScan, meta); !errors.Is(err, ErrDuplicateAttendance) {
		t.Errorf("expected ErrDuplicateAttendance on second commit, got %v", err)
	}
	if len(pub.events) != 1 {
		t.Errorf("expected exactly one commit event, got %d", len(pub.events))
	}
}

func TestCommit_InactiveSession(t *testing.T) {
	repo := newFakeRepo()
	rec := NewRecorder(repo, nil, nil)
	s := activeSession(repo)
	repo.active[s.ID] = false

	if _, err := rec.Commit(context.Background(), s, "stu1", StatusPresent, session.ModeFaceScan, nil); !errors.Is(err, session.ErrInactive) {
		t.Errorf("expected session.ErrInactive, got %v", err)
	}
}

func TestCommit_PublisherFailureDoesNotRollBack(t *testing.T) {
	repo := newFakeRepo()
	pub := &capturePublisher{err: errors.New("queue down")}
	rec := NewRecorder(repo, pub, nil)
	s := activeSession(repo)

	committed, err := rec.Commit(context.Background(), s, "stu1", StatusPresent, session.ModeFaceScan, nil)
	if err != nil {
		t.Fatalf("commit should survive publish failure, got %v", err)
	}
	if got, _ := rec.WasRecorded(context.Background(), s.ID, "stu1"); !got {
		t.Error("record should be durable despite publish failure")
	}
	if committed.ID == "" {
		t.Error("expected committed record id")
	}
}

func TestCommit_InvalidStatus(t *testing.T) {
	repo := newFakeRepo()
	rec := NewRecorder(repo, nil, nil)
	s := activeSession(repo)

	if _, err := rec.Commit(context.Background(), s, "stu1", Status("vanished"), session.ModeManual, nil); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestCommit_ManualStatuses(t *testing.T) {
	repo := newFakeRepo()
	rec := NewRecorder(repo, nil, nil)
	s := activeSession(repo)
	ctx := context.Background()

	onLeave, err := rec.Commit(ctx, s, "stu2", StatusOnLeave, session.ModeManual, nil)
	if err != nil {
		t.Fatalf("manual commit failed: %v", err)
	}
	if onLeave.CheckInTime != nil {
		t.Error("on_leave record should not carry a check-in time")
	}

	late, err := rec.Commit(ctx, s, "stu3", StatusLate, session.ModeManual, nil)
	if err != nil {
		t.Fatalf("late commit failed: %v", err)
	}
	if late.CheckInTime == nil {
		t.Error("late record should carry a check-in time")
	}
}

func TestAmend(t *testing.T) {
	repo := newFakeRepo()
	rec := NewRecorder(repo, nil, nil)
	s := activeSession(repo)
	ctx := context.Background()

	committed, err := rec.Commit(ctx, s, "stu1", StatusPresent, session.ModeFaceScan, nil)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if _, err := rec.Amend(ctx, committed.ID, "t1", StatusLate, ""); !errors.Is(err, ErrReasonRequired) {
		t.Errorf("expected ErrReasonRequired, got %v", err)
	}
	if _, err := rec.Amend(ctx, committed.ID, "t1", Status("gone"), "typo"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}

	amended, err := rec.Amend(ctx, committed.ID, "t1", StatusLate, "arrived after scan window")
	if err != nil {
		t.Fatalf("amend failed: %v", err)
	}
	if amended.Status != StatusLate {
		t.Errorf("expected amended status late, got %s", amended.Status)
	}
	if len(repo.amends) != 1 || repo.amends[0].OldStatus != StatusPresent {
		t.Errorf("amendment trail wrong: %+v", repo.amends)
	}

	if _, err := rec.Amend(ctx, "missing", "t1", StatusLate, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWasRecorded(t *testing.T) {
	repo := newFakeRepo()
	rec := NewRecorder(repo, nil, nil)
	s := activeSession(repo)
	ctx := context.Background()

	if got, err := rec.WasRecorded(ctx, s.ID, "stu1"); err != nil || got {
		t.Errorf("expected not recorded, got %v, err %v", got, err)
	}
	if _, err := rec.Commit(ctx, s, "stu1", StatusPresent, session.ModeFaceScan, nil); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if got, err := rec.WasRecorded(ctx, s.ID, "stu1"); err != nil || !got {
		t.Errorf("expected recorded, got %v, err %v", got, err)
	}
}
