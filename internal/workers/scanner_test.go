package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxscout/internal/adapters/config"
	"boxscout/internal/adapters/kafka"
	"boxscout/internal/domain/options"
	"boxscout/internal/domain/scan"
	"boxscout/internal/services/alerts"
	optselect "boxscout/internal/services/options"
	"boxscout/internal/services/strategy"
	"boxscout/pkg/errors"
)

type fakeMarket struct {
	bars        map[string][]scan.Bar
	snapshots   map[string]*scan.DailySnapshot
	expirations []string
	chain       []options.Contract
}

func (f *fakeMarket) GetBars(_ context.Context, symbol, _ string, _ int) ([]scan.Bar, error) {
	bars, ok := f.bars[symbol]
	if !ok {
		return nil, errors.Wrapf(errors.ErrSymbolNotFound, "no bars for %s", symbol)
	}
	return bars, nil
}

func (f *fakeMarket) GetDailySnapshot(_ context.Context, symbol string) (*scan.DailySnapshot, error) {
	snap, ok := f.snapshots[symbol]
	if !ok {
		return nil, errors.Wrapf(errors.ErrSymbolNotFound, "no snapshot for %s", symbol)
	}
	return snap, nil
}

func (f *fakeMarket) GetOptionExpirations(_ context.Context, _ string) ([]string, error) {
	return f.expirations, nil
}

func (f *fakeMarket) GetOptionChain(_ context.Context, _, expiration string) ([]options.Contract, error) {
	out := make([]options.Contract, 0, len(f.chain))
	for _, c := range f.chain {
		if c.Expiry == expiration {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeRuns struct {
	mu       sync.Mutex
	created  []*scan.Run
	finished []*scan.Run
}

func (f *fakeRuns) CreateRun(_ context.Context, run *scan.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, run)
	return nil
}

func (f *fakeRuns) FinishRun(_ context.Context, run *scan.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, run)
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	topics []string
}

func (f *fakeEvents) Publish(_ context.Context, topic string, _ string, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	return nil
}

func (f *fakeEvents) published(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.topics {
		if t == topic {
			n++
		}
	}
	return n
}

type fakeAlertRepo struct {
	mu         sync.Mutex
	alerts     []*scan.Alert
	candidates []scan.OptionCandidate
}

func (f *fakeAlertRepo) CreateAlert(_ context.Context, alert *scan.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeAlertRepo) CreateOptionCandidates(_ context.Context, candidates []scan.OptionCandidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, candidates...)
	return nil
}

func (f *fakeAlertRepo) ListAlertsSince(_ context.Context, _ time.Time) ([]scan.Alert, error) {
	return nil, nil
}

func (f *fakeAlertRepo) ListUngradedSince(_ context.Context, _ time.Time) ([]scan.Alert, error) {
	return nil, nil
}

func easternTime(t *testing.T, hour, minute int) time.Time {
	tz, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// a Tuesday
	return time.Date(2026, 9, 1, hour, minute, 0, 0, tz)
}

func testBar(ts time.Time, high, low, close, volume float64) scan.Bar {
	return scan.Bar{Timestamp: ts, Open: close, High: high, Low: low, Close: close, Volume: volume}
}

// breakoutBars: wide phase, prior box, tight box on half volume, then
// a high-volume close above the box high
func breakoutBars(end time.Time) []scan.Bar {
	start := end.Add(-35 * time.Minute)
	bars := make([]scan.Bar, 0, 36)
	for i := 0; i < 11; i++ {
		bars = append(bars, testBar(start.Add(time.Duration(i)*time.Minute), 101.0, 99.0, 100.0, 2000))
	}
	for i := 11; i < 23; i++ {
		bars = append(bars, testBar(start.Add(time.Duration(i)*time.Minute), 100.4, 99.8, 100.1, 2000))
	}
	for i := 23; i < 35; i++ {
		bars = append(bars, testBar(start.Add(time.Duration(i)*time.Minute), 100.4, 99.8, 100.1, 1000))
	}
	bars = append(bars, testBar(end, 100.65, 100.35, 100.62, 2500))
	return bars
}

func liquidCall(expiry string, strike, delta float64) options.Contract {
	d := delta
	g := 0.05
	return options.Contract{
		ContractSymbol: "AAPL" + expiry,
		Expiry:         expiry,
		Strike:         strike,
		CallPut:        options.Call,
		Bid:            1.20,
		Ask:            1.25,
		Volume:         500,
		OpenInterest:   1200,
		Delta:          &d,
		Gamma:          &g,
	}
}

func avg(v float64) *scan.DailySnapshot {
	return &scan.DailySnapshot{AvgDailyVolume: &v}
}

func newScanWorker(t *testing.T, cfg config.ScannerConfig, market *fakeMarket, runs *fakeRuns, repo *fakeAlertRepo, events *fakeEvents) *ScanWorker {
	tz, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	strat, err := strategy.New(strategy.DefaultConfig())
	require.NoError(t, err)
	selector, err := optselect.NewSelector(optselect.DefaultConfig())
	require.NoError(t, err)
	alertSvc, err := alerts.NewService(alerts.Config{
		Timezone:      "America/New_York",
		MinConfidence: 7.5,
	}, repo, nil, events, nil)
	require.NoError(t, err)

	return NewScanWorker(cfg, tz, market, strat, selector, alertSvc, runs, nil, events)
}

func TestScanWorker_BreakoutProducesAlert(t *testing.T) {
	end := easternTime(t, 10, 11)
	market := &fakeMarket{
		bars:        map[string][]scan.Bar{"AAPL": breakoutBars(end)},
		snapshots:   map[string]*scan.DailySnapshot{"AAPL": avg(10_000_000)},
		expirations: []string{"2026-09-04"},
		chain: []options.Contract{
			liquidCall("2026-09-04", 100, 0.55),
			liquidCall("2026-09-04", 102, 0.40),
			liquidCall("2026-09-04", 104, 0.30),
		},
	}
	runs := &fakeRuns{}
	repo := &fakeAlertRepo{}
	events := &fakeEvents{}

	w := newScanWorker(t, config.ScannerConfig{
		Universe:       []string{"AAPL"},
		MarketSymbol:   "QQQ", // no bars on purpose: bias degrades to neutral
		Interval:       time.Minute,
		RTHOnly:        false,
		MaxConcurrency: 2,
	}, market, runs, repo, events)

	require.NoError(t, w.Run(context.Background()))

	require.Len(t, repo.alerts, 1)
	alert := repo.alerts[0]
	assert.Equal(t, "AAPL", alert.Symbol)
	assert.Equal(t, scan.Long, alert.Direction)
	assert.False(t, alert.StockOnly)
	assert.Len(t, repo.candidates, 3)

	require.Len(t, runs.created, 1)
	require.Len(t, runs.finished, 1)
	assert.NotNil(t, runs.finished[0].FinishedAt)
	assert.Equal(t, 0, runs.finished[0].ErrorsCount)
	assert.Equal(t, []string{"AAPL"}, runs.finished[0].SymbolsScanned)

	assert.Equal(t, 1, events.published(kafka.TopicScanStarted))
	assert.Equal(t, 1, events.published(kafka.TopicScanFinished))
	assert.Equal(t, 1, events.published(kafka.TopicAlertEmitted))
}

func TestScanWorker_GatedSymbolPublishesSkip(t *testing.T) {
	end := easternTime(t, 10, 11)
	market := &fakeMarket{
		bars: map[string][]scan.Bar{
			"MSFT": breakoutBars(end)[:10], // not enough history
		},
		snapshots: map[string]*scan.DailySnapshot{"MSFT": avg(10_000_000)},
	}
	runs := &fakeRuns{}
	repo := &fakeAlertRepo{}
	events := &fakeEvents{}

	w := newScanWorker(t, config.ScannerConfig{
		Universe:       []string{"MSFT"},
		MarketSymbol:   "QQQ",
		Interval:       time.Minute,
		RTHOnly:        false,
		MaxConcurrency: 1,
	}, market, runs, repo, events)

	require.NoError(t, w.Run(context.Background()))

	assert.Empty(t, repo.alerts)
	assert.Equal(t, 1, events.published(kafka.TopicSymbolSkipped))
}

func TestScanWorker_ProviderErrorCountsAgainstRun(t *testing.T) {
	market := &fakeMarket{bars: map[string][]scan.Bar{}}
	runs := &fakeRuns{}
	repo := &fakeAlertRepo{}
	events := &fakeEvents{}

	w := newScanWorker(t, config.ScannerConfig{
		Universe:       []string{"NVDA"},
		MarketSymbol:   "QQQ",
		Interval:       time.Minute,
		RTHOnly:        false,
		MaxConcurrency: 1,
	}, market, runs, repo, events)

	require.NoError(t, w.Run(context.Background()))

	require.Len(t, runs.finished, 1)
	assert.Equal(t, 1, runs.finished[0].ErrorsCount)
	assert.Empty(t, runs.finished[0].SymbolsScanned)
}

type stubWorker struct {
	runs int64
}

func (s *stubWorker) Name() string            { return "stub" }
func (s *stubWorker) Interval() time.Duration { return 10 * time.Millisecond }
func (s *stubWorker) Enabled() bool           { return true }
func (s *stubWorker) Run(context.Context) error {
	atomic.AddInt64(&s.runs, 1)
	return nil
}

func TestScheduler_RunsRegisteredWorkers(t *testing.T) {
	sched := NewScheduler()
	stub := &stubWorker{}
	require.NoError(t, sched.RegisterWorker(stub))
	require.NoError(t, sched.Start())

	assert.Error(t, sched.RegisterWorker(&stubWorker{}), "registration after start is rejected")
	assert.Error(t, sched.Start(), "double start is rejected")

	time.Sleep(50 * time.Millisecond)
	sched.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt64(&stub.runs), int64(2))
}
