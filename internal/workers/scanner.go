package workers

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"boxscout/internal/adapters/config"
	"boxscout/internal/adapters/kafka"
	"boxscout/internal/domain/options"
	"boxscout/internal/domain/scan"
	"boxscout/internal/domain/trace"
	"boxscout/internal/metrics"
	"boxscout/internal/services/alerts"
	"boxscout/internal/services/markettime"
	optselect "boxscout/internal/services/options"
	"boxscout/internal/services/strategy"
	"boxscout/pkg/errors"
)

// barsPerScan is how much 5m history each evaluation gets. The box
// window needs 3x BoxBars; the rest feeds ATR history and session VWAP.
const barsPerScan = 120

// MarketData is the provider surface the scan loop depends on
type MarketData interface {
	GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]scan.Bar, error)
	GetDailySnapshot(ctx context.Context, symbol string) (*scan.DailySnapshot, error)
	GetOptionExpirations(ctx context.Context, symbol string) ([]string, error)
	GetOptionChain(ctx context.Context, symbol, expiration string) ([]options.Contract, error)
}

// Events publishes scan lifecycle messages to the event bus
type Events interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// ScanWorker sweeps the symbol universe on an interval: bars in,
// breakout evaluation, option selection, alert out.
type ScanWorker struct {
	*BaseWorker

	cfg      config.ScannerConfig
	tz       *time.Location
	provider MarketData
	strategy *strategy.Breakout
	selector *optselect.Selector
	alerts   *alerts.Service
	runs     scan.RunRepository
	archive  trace.Archive
	events   Events
}

// NewScanWorker creates the scan worker. runs, archive and events may
// be nil; the corresponding side effects are skipped.
func NewScanWorker(
	cfg config.ScannerConfig,
	tz *time.Location,
	provider MarketData,
	strat *strategy.Breakout,
	selector *optselect.Selector,
	alertSvc *alerts.Service,
	runs scan.RunRepository,
	archive trace.Archive,
	events Events,
) *ScanWorker {
	return &ScanWorker{
		BaseWorker: NewBaseWorker("scanner", cfg.Interval, true),
		cfg:        cfg,
		tz:         tz,
		provider:   provider,
		strategy:   strat,
		selector:   selector,
		alerts:     alertSvc,
		runs:       runs,
		archive:    archive,
		events:     events,
	}
}

type scanRunEvent struct {
	RunID       string    `json:"run_id"`
	Universe    []string  `json:"universe"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
	ErrorsCount int       `json:"errors_count,omitempty"`
}

type symbolSkippedEvent struct {
	RunID      string `json:"run_id"`
	Symbol     string `json:"symbol"`
	SkipReason string `json:"skip_reason"`
	TraceID    string `json:"trace_id"`
}

// Run executes one sweep over the universe
func (w *ScanWorker) Run(ctx context.Context) error {
	now := time.Now().In(w.tz)
	if w.cfg.RTHOnly && !markettime.IsRTH(now) {
		w.Log().Debugw("Outside regular trading hours, skipping sweep", "now", now.Format("15:04"))
		w.RecordRun()
		return nil
	}

	run := &scan.Run{
		ID:        uuid.New(),
		StartedAt: time.Now().UTC(),
		Universe:  strings.Join(w.cfg.Universe, ","),
	}
	if w.runs != nil {
		if err := w.runs.CreateRun(ctx, run); err != nil {
			w.Log().Warnw("Failed to persist scan run", "error", err)
		}
	}
	w.publish(ctx, kafka.TopicScanStarted, run.ID.String(), scanRunEvent{
		RunID:     run.ID.String(),
		Universe:  w.cfg.Universe,
		StartedAt: run.StartedAt,
	})

	indexBars, err := w.provider.GetBars(ctx, w.cfg.MarketSymbol, "5m", barsPerScan)
	if err != nil {
		// The panic and bias gates degrade to neutral without index bars
		w.Log().Warnw("Failed to load index bars", "symbol", w.cfg.MarketSymbol, "error", err)
		indexBars = nil
	}

	var (
		wg        sync.WaitGroup
		errCount  int64
		ideaCount int64
		scannedMu sync.Mutex
		scanned   []string
	)
	sem := make(chan struct{}, w.cfg.MaxConcurrency)

	for _, symbol := range w.cfg.Universe {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			gotIdea, err := w.evaluateSymbol(ctx, run, symbol, indexBars)
			if err != nil {
				atomic.AddInt64(&errCount, 1)
				w.Log().Errorw("Symbol evaluation failed", "symbol", symbol, "error", err)
				return
			}
			if gotIdea {
				atomic.AddInt64(&ideaCount, 1)
			}
			scannedMu.Lock()
			scanned = append(scanned, symbol)
			scannedMu.Unlock()
		}(symbol)
	}
	wg.Wait()

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.SymbolsScanned = scanned
	run.ErrorsCount = int(errCount)
	if w.runs != nil {
		if err := w.runs.FinishRun(ctx, run); err != nil {
			w.Log().Warnw("Failed to finish scan run", "error", err)
		}
	}
	w.publish(ctx, kafka.TopicScanFinished, run.ID.String(), scanRunEvent{
		RunID:       run.ID.String(),
		Universe:    w.cfg.Universe,
		StartedAt:   run.StartedAt,
		FinishedAt:  finished,
		ErrorsCount: int(errCount),
	})

	w.Log().Infow("Sweep finished",
		"symbols", len(scanned),
		"ideas", ideaCount,
		"errors", errCount,
		"duration", finished.Sub(run.StartedAt),
	)

	if errCount > 0 {
		w.RecordError(errors.Wrapf(errors.ErrInternal, "%d of %d symbols failed", errCount, len(w.cfg.Universe)))
	} else {
		w.RecordRun()
	}
	return nil
}

// evaluateSymbol runs the full pipeline for one symbol. The returned
// bool reports whether an idea survived the gates.
func (w *ScanWorker) evaluateSymbol(ctx context.Context, run *scan.Run, symbol string, indexBars []scan.Bar) (bool, error) {
	bars, err := w.provider.GetBars(ctx, symbol, "5m", barsPerScan)
	if err != nil {
		metrics.SymbolsEvaluated.WithLabelValues("error").Inc()
		return false, err
	}

	snapshot, err := w.provider.GetDailySnapshot(ctx, symbol)
	if err != nil {
		// Strategy falls back to an intraday volume estimate
		w.Log().Debugw("No daily snapshot", "symbol", symbol, "error", err)
		snapshot = nil
	}

	idea, tr := w.strategy.Evaluate(symbol, bars, snapshot, indexBars)
	w.archiveTrace(ctx, tr)

	if idea == nil {
		metrics.SymbolsEvaluated.WithLabelValues("skip").Inc()
		metrics.GateFailures.WithLabelValues(tr.SkipReason).Inc()
		w.publish(ctx, kafka.TopicSymbolSkipped, symbol, symbolSkippedEvent{
			RunID:      run.ID.String(),
			Symbol:     symbol,
			SkipReason: tr.SkipReason,
			TraceID:    tr.ID.String(),
		})
		return false, nil
	}
	metrics.SymbolsEvaluated.WithLabelValues("idea").Inc()

	opt := w.selectOptions(ctx, idea, snapshot, bars)

	if _, err := w.alerts.Process(ctx, idea, tr, opt); err != nil {
		return true, err
	}
	return true, nil
}

// selectOptions picks tiered contracts for an idea. Provider trouble
// degrades to a stock-only result instead of dropping the alert.
func (w *ScanWorker) selectOptions(ctx context.Context, idea *scan.TradeIdea, snapshot *scan.DailySnapshot, bars []scan.Bar) options.Result {
	triggerTime := time.Now().In(w.tz)
	if len(bars) > 0 {
		triggerTime = bars[len(bars)-1].Timestamp.In(w.tz)
	}

	expirations, err := w.provider.GetOptionExpirations(ctx, idea.Symbol)
	if err != nil {
		w.Log().Warnw("Failed to load expirations", "symbol", idea.Symbol, "error", err)
		return options.Result{StockOnly: true, Reason: "Option chain unavailable"}
	}

	loadChain := func(ctx context.Context, expiration string) ([]options.Contract, error) {
		return w.provider.GetOptionChain(ctx, idea.Symbol, expiration)
	}

	var ivPctl *float64
	if snapshot != nil {
		ivPctl = snapshot.IVPercentile
	}

	opt, err := w.selector.Select(ctx, idea.Symbol, idea.Direction, idea.ExpectedWindow, triggerTime, expirations, loadChain, ivPctl)
	if err != nil {
		w.Log().Warnw("Option selection failed", "symbol", idea.Symbol, "error", err)
		return options.Result{StockOnly: true, Reason: "Option chain unavailable"}
	}
	return opt
}

func (w *ScanWorker) archiveTrace(ctx context.Context, tr *trace.DecisionTrace) {
	if w.archive == nil {
		return
	}
	if err := w.archive.Insert(ctx, tr); err != nil {
		w.Log().Warnw("Failed to archive trace", "symbol", tr.Symbol, "trace_id", tr.ID, "error", err)
	}
}

func (w *ScanWorker) publish(ctx context.Context, topic, key string, event interface{}) {
	if w.events == nil {
		return
	}
	if err := w.events.Publish(ctx, topic, key, event); err != nil {
		metrics.KafkaMessages.WithLabelValues(topic, "error").Inc()
		w.Log().Warnw("Failed to publish event", "topic", topic, "error", err)
		return
	}
	metrics.KafkaMessages.WithLabelValues(topic, "success").Inc()
}
