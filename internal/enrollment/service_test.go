package enrollment

import (
	"context"
	"errors"
	"testing"

	"rollcall/internal/extractor"
)

type memStore struct {
	templates map[string]Template
}

func newMemStore() *memStore {
	return &memStore{templates: make(map[string]Template)}
}

func (m *memStore) Put(_ context.Context, t Template) error {
	m.templates[t.StudentID] = t
	return nil
}

func (m *memStore) Lookup(_ context.Context, studentID string) (*Template, error) {
	t, ok := m.templates[studentID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

type stubExtractor struct {
	res *extractor.Result
	err error
}

func (s *stubExtractor) Extract(context.Context, []byte, string) (*extractor.Result, error) {
	return s.res, s.err
}

func TestSetup_StoresTemplate(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &stubExtractor{
		res: &extractor.Result{Descriptor: []float64{0.1, 0.2}, Quality: 0.8, Liveness: 0.9},
	}, 0.5, nil)

	tpl, err := svc.Setup(context.Background(), "s1", []byte("img"), "image/jpeg")
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if tpl.StudentID != "s1" || !tpl.Verified {
		t.Errorf("unexpected template: %+v", tpl)
	}

	got, err := svc.Lookup(context.Background(), "s1")
	if err != nil || got == nil {
		t.Fatalf("lookup failed: %v, %v", got, err)
	}
	if got.QualityScore != 0.8 {
		t.Errorf("expected quality 0.8, got %g", got.QualityScore)
	}
}

func TestSetup_ReplacesExisting(t *testing.T) {
	store := newMemStore()
	ex := &stubExtractor{res: &extractor.Result{Descriptor: []float64{1, 0}, Quality: 0.6}}
	svc := NewService(store, ex, 0.5, nil)
	ctx := context.Background()

	if _, err := svc.Setup(ctx, "s1", []byte("a"), "image/jpeg"); err != nil {
		t.Fatalf("first setup failed: %v", err)
	}
	ex.res = &extractor.Result{Descriptor: []float64{0, 1}, Quality: 0.9}
	if _, err := svc.Setup(ctx, "s1", []byte("b"), "image/jpeg"); err != nil {
		t.Fatalf("second setup failed: %v", err)
	}

	got, _ := svc.Lookup(ctx, "s1")
	if got == nil || got.Descriptor[0] != 0 || got.Descriptor[1] != 1 {
		t.Errorf("template not replaced: %+v", got)
	}
}

func TestSetup_QualityGate(t *testing.T) {
	svc := NewService(newMemStore(), &stubExtractor{
		res: &extractor.Result{Descriptor: []float64{1}, Quality: 0.3},
	}, 0.5, nil)

	if _, err := svc.Setup(context.Background(), "s1", []byte("img"), "image/jpeg"); !errors.Is(err, ErrQualityTooLow) {
		t.Errorf("expected ErrQualityTooLow, got %v", err)
	}
}

func TestSetup_ExtractorFailure(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &stubExtractor{err: extractor.ErrNoFace}, 0.5, nil)

	if _, err := svc.Setup(context.Background(), "s1", []byte("img"), "image/jpeg"); !errors.Is(err, extractor.ErrNoFace) {
		t.Errorf("expected ErrNoFace, got %v", err)
	}
	if len(store.templates) != 0 {
		t.Error("no template should be stored on extractor failure")
	}
}

func TestLookup_Missing(t *testing.T) {
	svc := NewService(newMemStore(), &stubExtractor{}, 0.5, nil)
	got, err := svc.Lookup(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil template, got %+v", got)
	}
}
