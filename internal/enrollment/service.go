package enrollment

import (
	"context"
	"time"

	"go.uber.org/zap"

	"rollcall/internal/extractor"
)

// Extractor is the slice of the extraction boundary the setup flow needs.
type Extractor interface {
	Extract(ctx context.Context, imageBytes []byte, contentType string) (*extractor.Result, error)
}

// Service runs the template setup flow: capture, extract, quality gate,
// store. Verification only ever reads templates; this flow owns them.
type Service struct {
	store      Store
	extract    Extractor
	qualityMin float64
	log        *zap.Logger
}

// NewService creates the enrollment service. qualityMin gates setup captures;
// it is stricter than the verification-time quality floor.
func NewService(store Store, extract Extractor, qualityMin float64, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, extract: extract, qualityMin: qualityMin, log: log}
}

// Setup creates or replaces the student's template from a capture.
func (s *Service) Setup(ctx context.Context, studentID string, imageBytes []byte, contentType string) (Template, error) {
	res, err := s.extract.Extract(ctx, imageBytes, contentType)
	if err != nil {
		return Template{}, err
	}
	if res.Quality < s.qualityMin {
		return Template{}, ErrQualityTooLow
	}

	t := Template{
		StudentID:    studentID,
		Descriptor:   res.Descriptor,
		QualityScore: res.Quality,
		Verified:     true,
		SetupAt:      time.Now().UTC(),
	}
	if err := s.store.Put(ctx, t); err != nil {
		return Template{}, err
	}
	s.log.Info("enrollment template stored",
		zap.String("student_id", studentID),
		zap.Float64("quality", res.Quality),
	)
	return t, nil
}

// Lookup returns the stored template for a student, or nil.
func (s *Service) Lookup(ctx context.Context, studentID string) (*Template, error) {
	return s.store.Lookup(ctx, studentID)
}
