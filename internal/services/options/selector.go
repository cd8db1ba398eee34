package options

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"boxscout/internal/domain/options"
	"boxscout/internal/domain/scan"
	"boxscout/pkg/errors"
	"boxscout/pkg/logger"
)

const exitPlan = "Take 40-60% at T1, runner to T2"

// ChainLoader fetches the normalized contract chain for one expiration.
// Load failures are the caller's fault and propagate out of Select.
type ChainLoader func(ctx context.Context, expiration string) ([]options.Contract, error)

// delta band per tier, absolute delta
type tierBand struct {
	tier Tier
	low  float64
	high float64
}

type Tier = options.Tier

var tierBands = []tierBand{
	{options.TierConservative, 0.50, 0.65},
	{options.TierStandard, 0.35, 0.50},
	{options.TierAggressive, 0.25, 0.35},
}

// Selector picks up to three option contracts, one per risk tier, for
// a confirmed trade idea. It is a pure computation over the loaded
// chains and is safe to call concurrently.
type Selector struct {
	cfg Config
	tz  *time.Location
	log *logger.Logger
}

// NewSelector builds a selector from an explicit config snapshot
func NewSelector(cfg Config) (*Selector, error) {
	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "bad timezone %q", cfg.Timezone)
	}
	return &Selector{
		cfg: cfg,
		tz:  tz,
		log: logger.Get().With("component", "option_selector"),
	}, nil
}

// Select returns tiered contract picks for the given direction, or a
// stock-only result when IV is too high or no liquid contract exists.
// ivPercentile is nil when the provider has no IV data for the symbol.
func (s *Selector) Select(
	ctx context.Context,
	symbol string,
	direction scan.Direction,
	expectedWindow string,
	triggerTime time.Time,
	expirations []string,
	loadChain ChainLoader,
	ivPercentile *float64,
) (options.Result, error) {
	triggerTime = triggerTime.In(s.tz)

	if ivPercentile != nil && *ivPercentile > s.cfg.IVPctlMaxForAny {
		return stockOnly("IV too high; skipping options"), nil
	}

	preferred := s.SelectExpirations(expirations, triggerTime, expectedWindow)

	var all []options.Contract
	for _, exp := range preferred {
		chain, err := loadChain(ctx, exp)
		if err != nil {
			return options.Result{}, errors.Wrapf(err, "load option chain %s %s", symbol, exp)
		}
		for _, c := range chain {
			if direction == scan.Long && c.CallPut != options.Call {
				continue
			}
			if direction == scan.Short && c.CallPut != options.Put {
				continue
			}
			all = append(all, c)
		}
	}

	filtered := s.filterLiquid(all)
	s.log.Debugw("contract filter summary",
		"symbol", symbol,
		"total_contracts", len(all),
		"filtered_contracts", len(filtered),
		"lenient_mode", s.cfg.LenientMode,
	)
	if len(filtered) == 0 {
		return stockOnly("No liquid contracts"), nil
	}

	suppressAggressive := ivPercentile != nil && *ivPercentile > s.cfg.IVPctlMaxForAgg

	var picks []options.Pick
	for _, band := range tierBands {
		if band.tier == options.TierAggressive && suppressAggressive {
			continue
		}
		contract := pickByDelta(filtered, band.low, band.high)
		if contract == nil {
			contract = fallbackByMoneyness(filtered)
		}
		if contract == nil {
			continue
		}
		picks = append(picks, options.Pick{
			Tier:      band.tier,
			Contract:  *contract,
			Rationale: fmt.Sprintf("Delta in %.2f-%.2f, spread %.1f%%", band.low, band.high, contract.SpreadPct()*100),
			ExitPlan:  exitPlan,
		})
	}

	if len(picks) == 0 {
		return stockOnly("No suitable contracts"), nil
	}
	// backfill by duplicating the last selected tier so exactly three
	// picks come back whenever at least one exists
	for len(picks) < 3 {
		picks = append(picks, picks[len(picks)-1])
	}

	return options.Result{StockOnly: false, Picks: picks[:3]}, nil
}

// SelectExpirations keeps expirations whose DTE fits the trigger time
// of day: [3,7] before 14:00 local, [1,3] after, plus [3,10] whenever
// the expected window is multi-day. Falls back to the first three when
// nothing matches. Unparseable dates are skipped.
func (s *Selector) SelectExpirations(expirations []string, triggerTime time.Time, expectedWindow string) []string {
	triggerTime = triggerTime.In(s.tz)
	beforeCutoff := triggerTime.Hour() < 14

	var filtered []string
	seen := make(map[string]bool)
	for _, exp := range expirations {
		expDate, err := time.ParseInLocation("2006-01-02", exp, s.tz)
		if err != nil {
			continue
		}
		dte := daysBetween(triggerTime, expDate)
		keep := false
		if beforeCutoff {
			keep = dte >= 3 && dte <= 7
		} else {
			keep = dte >= 1 && dte <= 3
		}
		if expectedWindow == scan.Window1To3Days && dte >= 3 && dte <= 10 {
			keep = true
		}
		if keep && !seen[exp] {
			filtered = append(filtered, exp)
			seen[exp] = true
		}
	}
	if len(filtered) > 0 {
		return filtered
	}
	if len(expirations) > 3 {
		return expirations[:3]
	}
	return expirations
}

// filterLiquid drops contracts that fail the liquidity gates: no
// two-sided quote, spread too wide, both volume and OI below floor, or
// mid under the minimum premium.
func (s *Selector) filterLiquid(contracts []options.Contract) []options.Contract {
	minVolume, minOI, minMid, spreadMax := s.cfg.floors()

	var out []options.Contract
	for _, c := range contracts {
		if c.Bid <= 0 || c.Ask <= 0 {
			continue
		}
		if c.SpreadPct() > spreadMax {
			continue
		}
		if c.Volume < minVolume && c.OpenInterest < minOI {
			continue
		}
		if c.Mid() < minMid {
			continue
		}
		out = append(out, c)
	}
	return out
}

// pickByDelta scores every contract whose absolute delta sits inside
// [low, high] and returns the best, or nil when none qualifies. The
// score favors deltas near the band midpoint, tight spreads, traded
// volume plus open interest, and gamma when known.
func pickByDelta(contracts []options.Contract, low, high float64) *options.Contract {
	targetMid := (low + high) / 2
	var best *options.Contract
	bestScore := -1.0
	for i := range contracts {
		c := contracts[i]
		if c.Delta == nil {
			continue
		}
		absDelta := math.Abs(*c.Delta)
		if absDelta < low || absDelta > high {
			continue
		}
		score := 1 - math.Abs(absDelta-targetMid)
		score += math.Max(0, 1-c.SpreadPct())
		score += (c.Volume + c.OpenInterest) / 1000.0
		if c.Gamma != nil {
			score += *c.Gamma
		}
		if score > bestScore {
			best = &contracts[i]
			bestScore = score
		}
	}
	return best
}

// fallbackByMoneyness returns the contract with the smallest absolute
// strike, used when no contract carries a delta inside the band
func fallbackByMoneyness(contracts []options.Contract) *options.Contract {
	if len(contracts) == 0 {
		return nil
	}
	sorted := make([]options.Contract, len(contracts))
	copy(sorted, contracts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].Strike) < math.Abs(sorted[j].Strike)
	})
	return &sorted[0]
}

func stockOnly(reason string) options.Result {
	return options.Result{StockOnly: true, Reason: reason}
}

// daysBetween counts calendar days from a's date to b's date
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	aDate := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bDate := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(bDate.Sub(aDate).Hours() / 24)
}
