package workers

import (
	"context"
	"time"

	"boxscout/internal/adapters/config"
	"boxscout/internal/services/grading"
)

// GradeWorker measures alert outcomes after the fact
type GradeWorker struct {
	*BaseWorker

	lookback time.Duration
	grading  *grading.Service
}

// NewGradeWorker creates the grading worker
func NewGradeWorker(cfg config.GradingConfig, svc *grading.Service) *GradeWorker {
	return &GradeWorker{
		BaseWorker: NewBaseWorker("grader", cfg.Interval, cfg.Enabled),
		lookback:   time.Duration(cfg.LookbackDays) * 24 * time.Hour,
		grading:    svc,
	}
}

// Run grades every ungraded alert in the lookback window
func (w *GradeWorker) Run(ctx context.Context) error {
	graded, err := w.grading.GradePending(ctx, w.lookback)
	if err != nil {
		w.RecordError(err)
		return err
	}

	if graded > 0 {
		w.Log().Infow("Graded alerts", "count", graded, "lookback", w.lookback)
	}
	w.RecordRun()
	return nil
}
