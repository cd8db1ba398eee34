package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"boxscout/internal/domain/scan"
)

// Compile-time check
var _ scan.GradeRepository = (*GradeRepository)(nil)

// GradeRepository implements scan.GradeRepository using sqlx
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// CreateGrade inserts a grade for an alert
func (r *GradeRepository) CreateGrade(ctx context.Context, grade *scan.Grade) error {
	query := `
		INSERT INTO grades (
			id, alert_id, graded_at, hit_t1, hit_t2,
			mfe_stock_pct, mae_stock_pct, time_to_t1_min, time_to_t2_min
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		grade.ID, grade.AlertID, grade.GradedAt, grade.HitT1, grade.HitT2,
		grade.MFEStockPct, grade.MAEStockPct, grade.TimeToT1Min, grade.TimeToT2Min,
	)
	trackQuery("create_grade", err)
	return err
}

// GetGradeByAlert retrieves the grade for an alert, if any
func (r *GradeRepository) GetGradeByAlert(ctx context.Context, alertID uuid.UUID) (*scan.Grade, error) {
	var grade scan.Grade

	query := `SELECT * FROM grades WHERE alert_id = $1`

	err := r.db.GetContext(ctx, &grade, query, alertID)
	trackQuery("get_grade", err)
	if err != nil {
		return nil, err
	}

	return &grade, nil
}
