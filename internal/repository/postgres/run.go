package postgres

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"boxscout/internal/domain/scan"
)

// Compile-time check
var _ scan.RunRepository = (*RunRepository)(nil)

// RunRepository implements scan.RunRepository using sqlx
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a new scan run repository
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun inserts a new scan run at start time
func (r *RunRepository) CreateRun(ctx context.Context, run *scan.Run) error {
	query := `
		INSERT INTO scan_runs (id, started_at, universe, notes, errors_count)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.StartedAt, run.Universe, run.Notes, run.ErrorsCount,
	)
	trackQuery("create_run", err)
	return err
}

// FinishRun records the completion of a scan run
func (r *RunRepository) FinishRun(ctx context.Context, run *scan.Run) error {
	query := `
		UPDATE scan_runs
		SET finished_at = $2, symbols_scanned = $3, notes = $4, errors_count = $5
		WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.FinishedAt, strings.Join(run.SymbolsScanned, ","), run.Notes, run.ErrorsCount,
	)
	trackQuery("finish_run", err)
	return err
}
