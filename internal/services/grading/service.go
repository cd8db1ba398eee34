package grading

import (
	"context"
	"time"

	"github.com/google/uuid"

	"boxscout/internal/adapters/kafka"
	"boxscout/internal/domain/scan"
	"boxscout/internal/metrics"
	"boxscout/pkg/errors"
	"boxscout/pkg/logger"
)

// barsPerGrade covers roughly two trading days of 5-minute bars
const barsPerGrade = 150

// BarSource fetches the bars used to measure an alert's outcome
type BarSource interface {
	GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]scan.Bar, error)
}

// Events publishes grade results to the event bus; may be nil
type Events interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// Service grades emitted alerts after the fact: did the move reach T1
// and T2, how far did it run in favor (MFE) and against (MAE), and how
// many minutes each target took.
type Service struct {
	alerts scan.AlertRepository
	grades scan.GradeRepository
	bars   BarSource
	events Events
	log    *logger.Logger
}

// NewService creates a grading service. events may be nil.
func NewService(alerts scan.AlertRepository, grades scan.GradeRepository, bars BarSource, events Events) *Service {
	return &Service{
		alerts: alerts,
		grades: grades,
		bars:   bars,
		events: events,
		log:    logger.Get().With("component", "grading_service"),
	}
}

// GradeAlert measures one alert against the bar history after it fired
func (s *Service) GradeAlert(ctx context.Context, alert *scan.Alert) (*scan.Grade, error) {
	bars, err := s.bars.GetBars(ctx, alert.Symbol, "5m", barsPerGrade)
	if err != nil {
		return nil, errors.Wrapf(err, "load bars for grading %s", alert.Symbol)
	}
	return ComputeGrade(alert, bars), nil
}

// ComputeGrade walks the bars in order, tracking target hits and
// excursions relative to the entry price. Bar index times the 5-minute
// timeframe gives minutes-to-target.
func ComputeGrade(alert *scan.Alert, bars []scan.Bar) *scan.Grade {
	grade := &scan.Grade{
		ID:       uuid.New(),
		AlertID:  alert.ID,
		GradedAt: time.Now().UTC(),
	}

	entry := alert.Entry
	mfe, mae := 0.0, 0.0
	for idx, bar := range bars {
		if alert.Direction == scan.Long {
			mfe = maxFloat(mfe, (bar.High-entry)/entry)
			mae = minFloat(mae, (bar.Low-entry)/entry)
			if !grade.HitT1 && bar.High >= alert.T1 {
				grade.HitT1 = true
				grade.TimeToT1Min = minutes(idx)
			}
			if !grade.HitT2 && bar.High >= alert.T2 {
				grade.HitT2 = true
				grade.TimeToT2Min = minutes(idx)
			}
		} else {
			mfe = maxFloat(mfe, (entry-bar.Low)/entry)
			mae = minFloat(mae, (entry-bar.High)/entry)
			if !grade.HitT1 && bar.Low <= alert.T1 {
				grade.HitT1 = true
				grade.TimeToT1Min = minutes(idx)
			}
			if !grade.HitT2 && bar.Low <= alert.T2 {
				grade.HitT2 = true
				grade.TimeToT2Min = minutes(idx)
			}
		}
	}

	if mfe != 0 {
		grade.MFEStockPct = &mfe
	}
	if mae != 0 {
		grade.MAEStockPct = &mae
	}
	return grade
}

// GradePending grades every ungraded alert in the lookback window
func (s *Service) GradePending(ctx context.Context, lookback time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-lookback)
	alerts, err := s.alerts.ListUngradedSince(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "list ungraded alerts")
	}

	graded := 0
	for i := range alerts {
		alert := &alerts[i]
		grade, err := s.GradeAlert(ctx, alert)
		if err != nil {
			s.log.Errorw("grading failed", "symbol", alert.Symbol, "alert_id", alert.ID, "error", err)
			continue
		}
		if err := s.grades.CreateGrade(ctx, grade); err != nil {
			s.log.Errorw("grade persist failed", "symbol", alert.Symbol, "alert_id", alert.ID, "error", err)
			continue
		}
		s.log.Infow("graded alert", "symbol", alert.Symbol, "alert_id", alert.ID,
			"hit_t1", grade.HitT1, "hit_t2", grade.HitT2)
		s.publishGrade(ctx, alert, grade)
		graded++
	}
	return graded, nil
}

type gradeEvent struct {
	AlertID     string   `json:"alert_id"`
	Symbol      string   `json:"symbol"`
	Direction   string   `json:"direction"`
	HitT1       bool     `json:"hit_t1"`
	HitT2       bool     `json:"hit_t2"`
	MFEStockPct *float64 `json:"mfe_stock_pct,omitempty"`
	MAEStockPct *float64 `json:"mae_stock_pct,omitempty"`
	TimeToT1Min *int     `json:"time_to_t1_min,omitempty"`
	TimeToT2Min *int     `json:"time_to_t2_min,omitempty"`
}

func (s *Service) publishGrade(ctx context.Context, alert *scan.Alert, grade *scan.Grade) {
	if s.events == nil {
		return
	}
	event := gradeEvent{
		AlertID:     alert.ID.String(),
		Symbol:      alert.Symbol,
		Direction:   string(alert.Direction),
		HitT1:       grade.HitT1,
		HitT2:       grade.HitT2,
		MFEStockPct: grade.MFEStockPct,
		MAEStockPct: grade.MAEStockPct,
		TimeToT1Min: grade.TimeToT1Min,
		TimeToT2Min: grade.TimeToT2Min,
	}
	if err := s.events.Publish(ctx, kafka.TopicAlertGraded, alert.Symbol, event); err != nil {
		metrics.KafkaMessages.WithLabelValues(kafka.TopicAlertGraded, "error").Inc()
		s.log.Warnw("grade event publish failed", "alert_id", alert.ID, "error", err)
		return
	}
	metrics.KafkaMessages.WithLabelValues(kafka.TopicAlertGraded, "success").Inc()
}

func minutes(idx int) *int {
	m := idx * 5
	return &m
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
