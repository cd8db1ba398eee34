package alerts

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"boxscout/internal/adapters/kafka"
	"boxscout/internal/domain/options"
	"boxscout/internal/domain/scan"
	"boxscout/internal/domain/trace"
	"boxscout/internal/metrics"
	"boxscout/pkg/errors"
	"boxscout/pkg/logger"
)

// Notifier delivers one alert text to the outbound channel
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Events publishes scanner events to the stream
type Events interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// Cooldowns gates repeat alerts per symbol and direction
type Cooldowns interface {
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
}

// Config holds alert emission thresholds
type Config struct {
	Timezone      string
	MinConfidence float64
	Cooldown      time.Duration
}

// Service turns a confirmed trade idea plus its option picks into a
// persisted, delivered alert. Notifier, events and cooldowns are
// optional; a nil dependency disables that side effect.
type Service struct {
	cfg       Config
	repo      scan.AlertRepository
	notifier  Notifier
	events    Events
	cooldowns Cooldowns
	tz        *time.Location
	log       *logger.Logger
}

// NewService creates an alert service
func NewService(cfg Config, repo scan.AlertRepository, notifier Notifier, events Events, cooldowns Cooldowns) (*Service, error) {
	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "bad timezone %q", cfg.Timezone)
	}
	return &Service{
		cfg:       cfg,
		repo:      repo,
		notifier:  notifier,
		events:    events,
		cooldowns: cooldowns,
		tz:        tz,
		log:       logger.Get().With("component", "alert_service"),
	}, nil
}

// alertEvent is the payload published to the event stream
type alertEvent struct {
	AlertID    string  `json:"alert_id"`
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
	Entry      float64 `json:"entry"`
	Stop       float64 `json:"stop"`
	T1         float64 `json:"t1"`
	T2         float64 `json:"t2"`
	StockOnly  bool    `json:"stock_only"`
	TraceID    string  `json:"trace_id"`
}

// Process evaluates whether the idea clears the confidence floor and
// cooldown, then persists and delivers the alert. Returns the stored
// alert, or nil when the idea was filtered out.
func (s *Service) Process(ctx context.Context, idea *scan.TradeIdea, tr *trace.DecisionTrace, opt options.Result) (*scan.Alert, error) {
	confidence := idea.Confidence
	stockOnly := opt.StockOnly
	if stockOnly {
		// A setup without a tradable contract is worth less
		confidence = math.Max(0, confidence-1.0)
	}
	if confidence < s.cfg.MinConfidence {
		s.log.Debugw("idea below confidence floor",
			"symbol", idea.Symbol, "confidence", confidence, "floor", s.cfg.MinConfidence)
		return nil, nil
	}

	if s.cooldowns != nil {
		key := fmt.Sprintf("alert:cooldown:%s:%s", idea.Symbol, idea.Direction)
		ok, err := s.cooldowns.SetNX(ctx, key, idea.TraceID.String(), s.cfg.Cooldown)
		if err != nil {
			return nil, errors.Wrap(err, "alert cooldown check")
		}
		if !ok {
			s.log.Infow("alert suppressed by cooldown", "symbol", idea.Symbol, "direction", idea.Direction)
			return nil, nil
		}
	}

	alert := buildAlert(idea, tr, confidence, stockOnly)
	candidates := buildCandidates(alert.ID, opt.Picks)

	texts := BuildTexts(alert, candidates, s.tz)
	alert.TextShort = texts.Short
	alert.TextMedium = texts.Medium
	alert.TextDeep = texts.Deep

	if err := s.repo.CreateAlert(ctx, alert); err != nil {
		return nil, errors.Wrap(err, "persist alert")
	}
	if err := s.repo.CreateOptionCandidates(ctx, candidates); err != nil {
		return nil, errors.Wrap(err, "persist option candidates")
	}

	// Delivery failures are logged, not fatal: the alert row is the
	// source of truth once persisted
	if s.notifier != nil {
		if err := s.notifier.Send(ctx, texts.Short); err != nil {
			s.log.Errorw("alert delivery failed", "symbol", alert.Symbol, "error", err)
		}
	}
	if s.events != nil {
		event := alertEvent{
			AlertID:    alert.ID.String(),
			Symbol:     alert.Symbol,
			Direction:  string(alert.Direction),
			Confidence: alert.Confidence,
			Entry:      alert.Entry,
			Stop:       alert.Stop,
			T1:         alert.T1,
			T2:         alert.T2,
			StockOnly:  alert.StockOnly,
			TraceID:    alert.TraceID.String(),
		}
		if err := s.events.Publish(ctx, kafka.TopicAlertEmitted, alert.Symbol, event); err != nil {
			s.log.Errorw("alert event publish failed", "symbol", alert.Symbol, "error", err)
			metrics.KafkaMessages.WithLabelValues(kafka.TopicAlertEmitted, "error").Inc()
		} else {
			metrics.KafkaMessages.WithLabelValues(kafka.TopicAlertEmitted, "success").Inc()
		}
	}

	metrics.AlertsEmitted.WithLabelValues(string(alert.Direction), fmt.Sprint(alert.StockOnly)).Inc()
	metrics.AlertConfidence.Observe(alert.Confidence)
	return alert, nil
}

func buildAlert(idea *scan.TradeIdea, tr *trace.DecisionTrace, confidence float64, stockOnly bool) *scan.Alert {
	alert := &scan.Alert{
		ID:             uuid.New(),
		CreatedAt:      time.Now().UTC(),
		Symbol:         idea.Symbol,
		Direction:      idea.Direction,
		Confidence:     confidence,
		ExpectedWindow: idea.ExpectedWindow,
		Entry:          idea.Entry,
		Stop:           idea.Stop,
		T1:             idea.T1,
		T2:             idea.T2,
		BoxHigh:        computedFloat(tr, "box_high"),
		BoxLow:         computedFloat(tr, "box_low"),
		RangePct:       computedFloat(tr, "range_pct"),
		ATRRatio:       computedFloat(tr, "atr_ratio"),
		VolRatio:       computedFloat(tr, "vol_ratio"),
		BreakVolMult:   computedFloat(tr, "break_vol_mult"),
		ExtensionPct:   computedFloat(tr, "extension_pct"),
		VWAPOk:         computedBool(tr, "vwap_ok"),
		StockOnly:      stockOnly,
		TraceID:        tr.ID,
	}
	if bias, ok := tr.Computed["market_bias"].(string); ok && bias != "" {
		d := scan.Direction(bias)
		alert.MarketBias = &d
	}
	return alert
}

func buildCandidates(alertID uuid.UUID, picks []options.Pick) []scan.OptionCandidate {
	candidates := make([]scan.OptionCandidate, 0, len(picks))
	for _, p := range picks {
		candidates = append(candidates, scan.OptionCandidate{
			ID:             uuid.New(),
			AlertID:        alertID,
			Tier:           string(p.Tier),
			ContractSymbol: p.Contract.ContractSymbol,
			Expiry:         p.Contract.Expiry,
			Strike:         p.Contract.Strike,
			CallPut:        p.Contract.CallPut,
			Bid:            p.Contract.Bid,
			Ask:            p.Contract.Ask,
			Mid:            p.Contract.Mid(),
			SpreadPct:      p.Contract.SpreadPct(),
			Volume:         p.Contract.Volume,
			OpenInterest:   p.Contract.OpenInterest,
			Delta:          p.Contract.Delta,
			Gamma:          p.Contract.Gamma,
			Theta:          p.Contract.Theta,
			IV:             p.Contract.IV,
			IVPercentile:   p.Contract.IVPercentile,
			Rationale:      p.Rationale,
			ExitPlan:       p.ExitPlan,
		})
	}
	return candidates
}

func computedFloat(tr *trace.DecisionTrace, key string) float64 {
	if v, ok := tr.Computed[key].(float64); ok {
		return v
	}
	return 0
}

func computedBool(tr *trace.DecisionTrace, key string) bool {
	v, ok := tr.Computed[key].(bool)
	return ok && v
}
