package enrollment

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// PostgresStore persists templates in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Put creates or replaces a student's template.
func (r *PostgresStore) Put(ctx context.Context, t Template) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollment_templates (student_id, descriptor, quality_score, verified, setup_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id) DO UPDATE SET
			descriptor = EXCLUDED.descriptor,
			quality_score = EXCLUDED.quality_score,
			verified = EXCLUDED.verified,
			setup_at = EXCLUDED.setup_at,
			updated_at = NOW()
	`, t.StudentID, pq.Array(t.Descriptor), t.QualityScore, t.Verified, t.SetupAt)
	return err
}

// Lookup returns the template for a student, or nil when none exists.
func (r *PostgresStore) Lookup(ctx context.Context, studentID string) (*Template, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT student_id, descriptor, quality_score, verified, setup_at
		FROM enrollment_templates WHERE student_id = $1
	`, studentID)
	var t Template
	var descriptor pq.Float64Array
	if err := row.Scan(&t.StudentID, &descriptor, &t.QualityScore, &t.Verified, &t.SetupAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.Descriptor = []float64(descriptor)
	return &t, nil
}
