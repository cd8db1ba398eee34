package scan

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AlertRepository persists alerts and their option candidates
type AlertRepository interface {
	CreateAlert(ctx context.Context, alert *Alert) error
	CreateOptionCandidates(ctx context.Context, candidates []OptionCandidate) error
	ListAlertsSince(ctx context.Context, since time.Time) ([]Alert, error)
	ListUngradedSince(ctx context.Context, since time.Time) ([]Alert, error)
}

// RunRepository persists scan runs
type RunRepository interface {
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
}

// GradeRepository persists alert grades
type GradeRepository interface {
	CreateGrade(ctx context.Context, grade *Grade) error
	GetGradeByAlert(ctx context.Context, alertID uuid.UUID) (*Grade, error)
}
