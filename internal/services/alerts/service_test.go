package alerts

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxscout/internal/domain/options"
	"boxscout/internal/domain/scan"
	"boxscout/internal/domain/trace"
)

type fakeRepo struct {
	alerts     []*scan.Alert
	candidates []scan.OptionCandidate
}

func (f *fakeRepo) CreateAlert(_ context.Context, alert *scan.Alert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeRepo) CreateOptionCandidates(_ context.Context, candidates []scan.OptionCandidate) error {
	f.candidates = append(f.candidates, candidates...)
	return nil
}

func (f *fakeRepo) ListAlertsSince(_ context.Context, _ time.Time) ([]scan.Alert, error) {
	return nil, nil
}

func (f *fakeRepo) ListUngradedSince(_ context.Context, _ time.Time) ([]scan.Alert, error) {
	return nil, nil
}

type fakeNotifier struct {
	sent []string
}

func (f *fakeNotifier) Send(_ context.Context, text string) error {
	f.sent = append(f.sent, text)
	return nil
}

type fakeCooldowns struct {
	keys map[string]bool
}

func (f *fakeCooldowns) SetNX(_ context.Context, key, _ string, _ time.Duration) (bool, error) {
	if f.keys == nil {
		f.keys = make(map[string]bool)
	}
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

type fakeEvents struct {
	topics []string
}

func (f *fakeEvents) Publish(_ context.Context, topic, _ string, _ interface{}) error {
	f.topics = append(f.topics, topic)
	return nil
}

func newTestService(t *testing.T, repo *fakeRepo, notifier *fakeNotifier, cooldowns *fakeCooldowns, events *fakeEvents) *Service {
	cfg := Config{
		Timezone:      "America/New_York",
		MinConfidence: 7.5,
		Cooldown:      30 * time.Minute,
	}
	var n Notifier
	if notifier != nil {
		n = notifier
	}
	var e Events
	if events != nil {
		e = events
	}
	var c Cooldowns
	if cooldowns != nil {
		c = cooldowns
	}
	svc, err := NewService(cfg, repo, n, e, c)
	require.NoError(t, err)
	return svc
}

func fptr(v float64) *float64 { return &v }

func testIdea() *scan.TradeIdea {
	return &scan.TradeIdea{
		Symbol:         "AAPL",
		Direction:      scan.Long,
		Entry:          100.45,
		Stop:           100.10,
		T1:             100.80,
		T2:             101.15,
		ExpectedWindow: scan.WindowSameDay,
		Confidence:     8.0,
	}
}

func testTrace(idea *scan.TradeIdea) *trace.DecisionTrace {
	tr := trace.New(idea.Symbol, "BreakoutStrategy")
	idea.TraceID = tr.ID
	tr.AddComputeds(map[string]interface{}{
		"box_high":       100.40,
		"box_low":        99.80,
		"range_pct":      0.006,
		"atr_ratio":      0.49,
		"vol_ratio":      0.5,
		"break_vol_mult": 2.5,
		"extension_pct":  0.0022,
		"vwap_ok":        true,
		"market_bias":    "LONG",
	})
	return tr
}

func testPicks() options.Result {
	contract := options.Contract{
		ContractSymbol: "AAPL260904C00150000",
		Expiry:         "2026-09-04",
		Strike:         150,
		CallPut:        options.Call,
		Bid:            1.20,
		Ask:            1.25,
		Volume:         500,
		OpenInterest:   1200,
		Delta:          fptr(0.55),
	}
	pick := options.Pick{Tier: options.TierConservative, Contract: contract, Rationale: "r", ExitPlan: "e"}
	return options.Result{Picks: []options.Pick{pick, pick, pick}}
}

func TestProcess_PersistsAndDelivers(t *testing.T) {
	repo := &fakeRepo{}
	notifier := &fakeNotifier{}
	cooldowns := &fakeCooldowns{}
	events := &fakeEvents{}
	svc := newTestService(t, repo, notifier, cooldowns, events)

	idea := testIdea()
	alert, err := svc.Process(context.Background(), idea, testTrace(idea), testPicks())
	require.NoError(t, err)
	require.NotNil(t, alert)

	require.Len(t, repo.alerts, 1)
	assert.Len(t, repo.candidates, 3)
	assert.Equal(t, 100.40, repo.alerts[0].BoxHigh)
	assert.False(t, alert.StockOnly)
	require.NotNil(t, alert.MarketBias)
	assert.Equal(t, scan.Long, *alert.MarketBias)

	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0], "AAPL LONG")
	assert.Contains(t, notifier.sent[0], "conf 8.0")
	require.Len(t, events.topics, 1)

	assert.NotEmpty(t, alert.TextShort)
	assert.Contains(t, alert.TextMedium, "STOCK PLAN")
	assert.Contains(t, alert.TextDeep, "compression breakout")
	assert.NotEqual(t, uuid.Nil, alert.ID)
}

func TestProcess_StockOnlyPenaltyCanDropBelowFloor(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(t, repo, nil, nil, nil)

	idea := testIdea() // 8.0 - 1.0 = 7.0 < 7.5
	alert, err := svc.Process(context.Background(), idea, testTrace(idea), options.Result{StockOnly: true, Reason: "No liquid contracts"})
	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.Empty(t, repo.alerts)
}

func TestProcess_StockOnlyAboveFloorStillEmits(t *testing.T) {
	repo := &fakeRepo{}
	notifier := &fakeNotifier{}
	svc := newTestService(t, repo, notifier, nil, nil)

	idea := testIdea()
	idea.Confidence = 9.0 // 9.0 - 1.0 = 8.0 >= 7.5
	alert, err := svc.Process(context.Background(), idea, testTrace(idea), options.Result{StockOnly: true, Reason: "IV too high"})
	require.NoError(t, err)
	require.NotNil(t, alert)

	assert.True(t, alert.StockOnly)
	assert.InDelta(t, 8.0, alert.Confidence, 1e-9)
	assert.Empty(t, repo.candidates)
	assert.Contains(t, alert.TextMedium, "stock-only")
}

func TestProcess_CooldownSuppressesRepeat(t *testing.T) {
	repo := &fakeRepo{}
	cooldowns := &fakeCooldowns{}
	svc := newTestService(t, repo, nil, cooldowns, nil)

	idea := testIdea()
	first, err := svc.Process(context.Background(), idea, testTrace(idea), testPicks())
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.Process(context.Background(), idea, testTrace(idea), testPicks())
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Len(t, repo.alerts, 1)
}

func TestBuildTexts_StockOnlyLine(t *testing.T) {
	tz, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	alert := &scan.Alert{
		Symbol:         "TSLA",
		Direction:      scan.Short,
		Confidence:     7.8,
		ExpectedWindow: scan.Window1To3Days,
		CreatedAt:      time.Date(2026, 9, 1, 18, 45, 0, 0, time.UTC), // 14:45 ET
		Entry:          240.10,
		Stop:           241.00,
		T1:             239.20,
		T2:             238.30,
	}

	texts := BuildTexts(alert, nil, tz)
	assert.True(t, strings.HasPrefix(texts.Short, "TSLA SHORT"))
	assert.Contains(t, texts.Medium, "hold below")
	assert.Contains(t, texts.Medium, "stock-only")
	assert.Contains(t, texts.Medium, "RTH")
	assert.Contains(t, texts.Medium, "1-3 days")
}

func TestFormatDTE_EveningAlertUsesEasternDay(t *testing.T) {
	tz, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 21:30 ET on Sep 1 is already Sep 2 in UTC; DTE still counts
	// from the Eastern calendar day
	evening := time.Date(2026, 9, 2, 1, 30, 0, 0, time.UTC).In(tz)
	assert.Equal(t, "3 DTE", formatDTE("2026-09-04", evening))

	morning := time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC).In(tz)
	assert.Equal(t, "3 DTE", formatDTE("2026-09-04", morning))

	assert.Equal(t, "DTE N/A", formatDTE("bogus", evening))
	assert.Equal(t, "DTE N/A", formatDTE("2026-08-30", evening))
}
