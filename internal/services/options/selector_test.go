package options

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxscout/internal/domain/options"
	"boxscout/internal/domain/scan"
	"boxscout/pkg/errors"
)

func newTestSelector(t *testing.T, mutate func(*Config)) *Selector {
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	sel, err := NewSelector(cfg)
	require.NoError(t, err)
	return sel
}

func fptr(v float64) *float64 { return &v }

func liquidCall(symbol string, strike, delta float64) options.Contract {
	return options.Contract{
		ContractSymbol: symbol,
		Expiry:         "2026-09-04",
		Strike:         strike,
		CallPut:        options.Call,
		Bid:            1.20,
		Ask:            1.25,
		Volume:         500,
		OpenInterest:   1200,
		Delta:          fptr(delta),
		Gamma:          fptr(0.05),
	}
}

func staticLoader(chain []options.Contract) ChainLoader {
	return func(_ context.Context, _ string) ([]options.Contract, error) {
		return chain, nil
	}
}

// Eastern-time trigger at 10:00, so the [3,7] DTE window applies
func morningTrigger(t *testing.T) time.Time {
	tz, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return time.Date(2026, 9, 1, 10, 0, 0, 0, tz)
}

func TestSelect_OnePickPerTier(t *testing.T) {
	sel := newTestSelector(t, nil)
	chain := []options.Contract{
		liquidCall("AAPL260904C00150000", 150, 0.55),
		liquidCall("AAPL260904C00155000", 155, 0.40),
		liquidCall("AAPL260904C00160000", 160, 0.30),
	}

	res, err := sel.Select(context.Background(), "AAPL", scan.Long, scan.WindowSameDay,
		morningTrigger(t), []string{"2026-09-04"}, staticLoader(chain), fptr(0.2))
	require.NoError(t, err)

	require.False(t, res.StockOnly)
	require.Len(t, res.Picks, 3)
	assert.Equal(t, options.TierConservative, res.Picks[0].Tier)
	assert.Equal(t, options.TierStandard, res.Picks[1].Tier)
	assert.Equal(t, options.TierAggressive, res.Picks[2].Tier)
	assert.Equal(t, 150.0, res.Picks[0].Contract.Strike)
	assert.Equal(t, 155.0, res.Picks[1].Contract.Strike)
	assert.Equal(t, 160.0, res.Picks[2].Contract.Strike)
	for _, p := range res.Picks {
		assert.NotEmpty(t, p.Rationale)
		assert.NotEmpty(t, p.ExitPlan)
	}
}

func TestSelect_IVTooHighIsStockOnly(t *testing.T) {
	sel := newTestSelector(t, nil)
	chain := []options.Contract{liquidCall("AAPL260904C00150000", 150, 0.55)}

	res, err := sel.Select(context.Background(), "AAPL", scan.Long, scan.WindowSameDay,
		morningTrigger(t), []string{"2026-09-04"}, staticLoader(chain), fptr(0.90))
	require.NoError(t, err)

	assert.True(t, res.StockOnly)
	assert.NotEmpty(t, res.Reason)
	assert.Empty(t, res.Picks)
}

func TestSelect_AggressiveSuppressionBackfills(t *testing.T) {
	sel := newTestSelector(t, nil)
	chain := []options.Contract{
		liquidCall("AAPL260904C00150000", 150, 0.55),
		liquidCall("AAPL260904C00155000", 155, 0.40),
		liquidCall("AAPL260904C00160000", 160, 0.30),
	}

	// above the aggressive cap (0.70) but below the hard cap (0.85)
	res, err := sel.Select(context.Background(), "AAPL", scan.Long, scan.WindowSameDay,
		morningTrigger(t), []string{"2026-09-04"}, staticLoader(chain), fptr(0.75))
	require.NoError(t, err)

	require.False(t, res.StockOnly)
	require.Len(t, res.Picks, 3)
	// third slot is a duplicate of the last selected tier, not the
	// aggressive 0.30-delta contract
	assert.Equal(t, options.TierStandard, res.Picks[2].Tier)
	assert.Equal(t, 155.0, res.Picks[2].Contract.Strike)
}

func TestSelect_ShortKeepsPutsOnly(t *testing.T) {
	sel := newTestSelector(t, nil)
	put := liquidCall("AAPL260904P00150000", 150, -0.45)
	put.CallPut = options.Put
	chain := []options.Contract{
		liquidCall("AAPL260904C00150000", 150, 0.55),
		put,
	}

	res, err := sel.Select(context.Background(), "AAPL", scan.Short, scan.WindowSameDay,
		morningTrigger(t), []string{"2026-09-04"}, staticLoader(chain), nil)
	require.NoError(t, err)

	require.False(t, res.StockOnly)
	require.Len(t, res.Picks, 3)
	for _, p := range res.Picks {
		assert.Equal(t, options.Put, p.Contract.CallPut)
	}
}

func TestSelect_IlliquidChainIsStockOnly(t *testing.T) {
	sel := newTestSelector(t, nil)

	wide := liquidCall("AAPL260904C00150000", 150, 0.55)
	wide.Bid, wide.Ask = 1.00, 2.00 // ~66% spread
	thin := liquidCall("AAPL260904C00155000", 155, 0.40)
	thin.Volume, thin.OpenInterest = 10, 20
	noBid := liquidCall("AAPL260904C00160000", 160, 0.30)
	noBid.Bid = 0
	cheap := liquidCall("AAPL260904C00165000", 165, 0.28)
	cheap.Bid, cheap.Ask = 0.05, 0.06

	res, err := sel.Select(context.Background(), "AAPL", scan.Long, scan.WindowSameDay,
		morningTrigger(t), []string{"2026-09-04"}, staticLoader([]options.Contract{wide, thin, noBid, cheap}), nil)
	require.NoError(t, err)

	assert.True(t, res.StockOnly)
	assert.Equal(t, "No liquid contracts", res.Reason)
}

func TestSelect_LenientModeHalvesFloors(t *testing.T) {
	thin := liquidCall("AAPL260904C00155000", 155, 0.40)
	thin.Volume, thin.OpenInterest = 150, 300 // below strict floors, above halved ones

	strict := newTestSelector(t, nil)
	res, err := strict.Select(context.Background(), "AAPL", scan.Long, scan.WindowSameDay,
		morningTrigger(t), []string{"2026-09-04"}, staticLoader([]options.Contract{thin}), nil)
	require.NoError(t, err)
	assert.True(t, res.StockOnly)

	lenient := newTestSelector(t, func(c *Config) { c.LenientMode = true })
	res, err = lenient.Select(context.Background(), "AAPL", scan.Long, scan.WindowSameDay,
		morningTrigger(t), []string{"2026-09-04"}, staticLoader([]options.Contract{thin}), nil)
	require.NoError(t, err)
	assert.False(t, res.StockOnly)
	require.Len(t, res.Picks, 3)
}

func TestSelect_MoneynessFallbackWhenNoDelta(t *testing.T) {
	sel := newTestSelector(t, nil)
	far := liquidCall("AAPL260904C00200000", 200, 0)
	far.Delta = nil
	near := liquidCall("AAPL260904C00150000", 150, 0)
	near.Delta = nil

	res, err := sel.Select(context.Background(), "AAPL", scan.Long, scan.WindowSameDay,
		morningTrigger(t), []string{"2026-09-04"}, staticLoader([]options.Contract{far, near}), nil)
	require.NoError(t, err)

	require.False(t, res.StockOnly)
	require.Len(t, res.Picks, 3)
	for _, p := range res.Picks {
		assert.Equal(t, 150.0, p.Contract.Strike)
	}
}

func TestSelect_ChainLoadErrorPropagates(t *testing.T) {
	sel := newTestSelector(t, nil)
	failing := func(_ context.Context, _ string) ([]options.Contract, error) {
		return nil, errors.ErrProviderUnavailable
	}

	_, err := sel.Select(context.Background(), "AAPL", scan.Long, scan.WindowSameDay,
		morningTrigger(t), []string{"2026-09-04"}, failing, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrProviderUnavailable))
}

func TestSelectExpirations_MorningPrefersThreeToSevenDays(t *testing.T) {
	sel := newTestSelector(t, nil)
	trigger := morningTrigger(t) // 2026-09-01 10:00 ET

	exps := []string{
		"2026-09-02", // DTE 1
		"2026-09-04", // DTE 3
		"2026-09-08", // DTE 7
		"2026-09-15", // DTE 14
	}
	got := sel.SelectExpirations(exps, trigger, scan.WindowSameDay)
	assert.Equal(t, []string{"2026-09-04", "2026-09-08"}, got)
}

func TestSelectExpirations_AfternoonPrefersOneToThreeDays(t *testing.T) {
	sel := newTestSelector(t, nil)
	tz, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	trigger := time.Date(2026, 9, 1, 14, 30, 0, 0, tz)

	exps := []string{
		"2026-09-02", // DTE 1
		"2026-09-04", // DTE 3
		"2026-09-08", // DTE 7
	}
	got := sel.SelectExpirations(exps, trigger, scan.WindowSameDay)
	assert.Equal(t, []string{"2026-09-02", "2026-09-04"}, got)
}

func TestSelectExpirations_MultiDayWindowWidens(t *testing.T) {
	sel := newTestSelector(t, nil)
	tz, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	trigger := time.Date(2026, 9, 1, 14, 30, 0, 0, tz)

	exps := []string{
		"2026-09-02", // DTE 1
		"2026-09-10", // DTE 9, only via the multi-day widening
	}
	got := sel.SelectExpirations(exps, trigger, scan.Window1To3Days)
	assert.Equal(t, []string{"2026-09-02", "2026-09-10"}, got)
}

func TestSelectExpirations_FallbackToFirstThree(t *testing.T) {
	sel := newTestSelector(t, nil)
	exps := []string{"2026-12-18", "2027-01-15", "2027-02-19", "2027-03-19", "bogus"}

	got := sel.SelectExpirations(exps, morningTrigger(t), scan.WindowSameDay)
	assert.Equal(t, []string{"2026-12-18", "2027-01-15", "2027-02-19"}, got)
}

func TestContract_MidAndSpread(t *testing.T) {
	c := options.Contract{Bid: 1.2345, Ask: 1.2355}
	assert.InDelta(t, 1.235, c.Mid(), 1e-9)

	zero := options.Contract{Bid: 0, Ask: 0.004}
	// mid clamps to 0.01 in the spread denominator
	assert.InDelta(t, 0.4, zero.SpreadPct(), 1e-9)
}
